package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/models"
)

type Kind string

const (
	KindCreated  Kind = "created"
	KindDeleted  Kind = "deleted"
	KindNoChange Kind = "no_change"
	KindChanged  Kind = "changed"
)

// Summary is the presentation view of one audit entry. Changes always holds the full diff.
type Summary struct {
	Kind    Kind               `json:"kind"`
	Changes []models.DiffEntry `json:"changes"`
	Count   int                `json:"count"`
}

// Summarize classifies an audit entry. A created record is recognised by its missing
// previous snapshot, never by an empty diff.
func Summarize(rec *models.AuditRecord) Summary {
	var s Summary
	switch {
	case rec.PreviousValue == nil && rec.NewValue != nil:
		s.Kind = KindCreated
		s.Changes = Diff(nil, rec.NewValue)
	case rec.NewValue == nil:
		s.Kind = KindDeleted
		s.Changes = []models.DiffEntry{}
	default:
		s.Changes = Diff(rec.PreviousValue, rec.NewValue)
		s.Kind = KindChanged
		if len(s.Changes) == 0 {
			s.Kind = KindNoChange
		}
	}
	s.Count = len(s.Changes)
	return s
}

// Headline renders up to limit changes individually and a count beyond that.
func (s Summary) Headline(limit int) string {
	switch s.Kind {
	case KindCreated:
		return "record created"
	case KindDeleted:
		return "record deleted"
	case KindNoChange:
		return "no meaningful change"
	}
	if s.Count > limit {
		return fmt.Sprintf("%d fields changed", s.Count)
	}
	parts := make([]string, 0, len(s.Changes))
	for _, c := range s.Changes {
		parts = append(parts, fmt.Sprintf("%s: %s → %s", c.Field, formatValue(c.From), formatValue(c.To)))
	}
	return strings.Join(parts, "; ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
