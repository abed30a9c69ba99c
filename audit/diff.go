package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// JitterWindow is the largest difference between two timestamps still treated as the same instant.
const JitterWindow = 5 * time.Minute

// bookkeepingFields change on every write and never carry meaning.
var bookkeepingFields = map[string]bool{
	"updated_at":    true,
	"updatedAt":     true,
	"last_updated":  true,
	"lastUpdated":   true,
	"modified_at":   true,
	"modifiedAt":    true,
	"last_modified": true,
	"synced_at":     true,
}

var timestampHints = []string{"fecha", "date", "time", "hora", "timestamp"}

// Diff lists the fields of next whose values differ from prev, in the order they appear in next.
// Bookkeeping fields are skipped, and so are timestamp fields that moved by less than JitterWindow.
// Either snapshot may be empty or null.
func Diff(prev, next json.RawMessage) []models.DiffEntry {
	out := make([]models.DiffEntry, 0)
	if !isObject(next) {
		return out
	}

	before := make(map[string]gjson.Result)
	if isObject(prev) {
		gjson.ParseBytes(prev).ForEach(func(key, value gjson.Result) bool {
			before[key.String()] = value
			return true
		})
	}

	gjson.ParseBytes(next).ForEach(func(key, value gjson.Result) bool {
		field := key.String()
		if bookkeepingFields[field] {
			return true
		}
		old, existed := before[field]
		if existed && canonical(old) == canonical(value) {
			return true
		}
		if existed && looksLikeTimestamp(field) && withinJitter(old, value) {
			return true
		}
		entry := models.DiffEntry{Field: field, To: valueOf(value)}
		if existed {
			entry.From = valueOf(old)
		}
		out = append(out, entry)
		return true
	})
	return out
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && gjson.ParseBytes(raw).IsObject()
}

// canonical is the serialized form used for comparison: compact JSON with sorted keys,
// numbers by exact decimal value.
func canonical(v gjson.Result) string {
	if v.Type == gjson.Number {
		return numberKey(v.Raw)
	}
	if !v.IsObject() && !v.IsArray() {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
			return v.Raw
		}
		return buf.String()
	}
	b, err := json.Marshal(normalizeNumbers(valueOf(v)))
	if err != nil {
		return v.Raw
	}
	return string(b)
}

// numberKey spells a JSON number so that equal values compare equal (1.50 and 1.5) and
// large integers keep every digit.
func numberKey(raw string) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return d.String()
}

// valueOf decodes a snapshot value; numbers stay json.Number so no digit is lost.
func valueOf(v gjson.Result) any {
	switch {
	case v.Type == gjson.Number:
		return json.Number(v.Raw)
	case v.IsObject(), v.IsArray():
		dec := json.NewDecoder(strings.NewReader(v.Raw))
		dec.UseNumber()
		var out any
		if err := dec.Decode(&out); err != nil {
			return v.Value()
		}
		return out
	}
	return v.Value()
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		return json.Number(numberKey(string(val)))
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
	}
	return v
}

func looksLikeTimestamp(field string) bool {
	lower := strings.ToLower(field)
	if strings.HasSuffix(lower, "_at") || strings.HasSuffix(field, "At") {
		return true
	}
	for _, hint := range timestampHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func withinJitter(a, b gjson.Result) bool {
	if a.Type != gjson.String || b.Type != gjson.String {
		return false
	}
	ta, ok := models.ParseDateTime(a.Str)
	if !ok {
		return false
	}
	tb, ok := models.ParseDateTime(b.Str)
	if !ok {
		return false
	}
	d := ta.Sub(tb)
	if d < 0 {
		d = -d
	}
	return d < JitterWindow
}
