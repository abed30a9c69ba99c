package audit

import (
	"encoding/json"
	"testing"

	"github.com/mmdatafocus/shopdash_backend/models"
)

func record(action models.AuditAction, prev, next string) *models.AuditRecord {
	rec := &models.AuditRecord{ID: 1, TableName: "products", Action: action}
	if prev != "" {
		rec.PreviousValue = json.RawMessage(prev)
	}
	if next != "" {
		rec.NewValue = json.RawMessage(next)
	}
	return rec
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		rec      *models.AuditRecord
		kind     Kind
		count    int
		headline string
	}{
		{
			name:     "created",
			rec:      record(models.AuditInsert, "", `{"id": 1, "name": "Taza"}`),
			kind:     KindCreated,
			count:    2,
			headline: "record created",
		},
		{
			name:     "deleted",
			rec:      record(models.AuditDelete, `{"id": 1}`, ""),
			kind:     KindDeleted,
			count:    0,
			headline: "record deleted",
		},
		{
			name:     "only noise",
			rec:      record(models.AuditUpdate, `{"id": 1, "updated_at": "2026-01-01T00:00:00Z"}`, `{"id": 1, "updated_at": "2026-02-01T00:00:00Z"}`),
			kind:     KindNoChange,
			count:    0,
			headline: "no meaningful change",
		},
		{
			name:     "one change",
			rec:      record(models.AuditUpdate, `{"precio": 100, "nombre": "A"}`, `{"precio": 150, "nombre": "A"}`),
			kind:     KindChanged,
			count:    1,
			headline: "precio: 100 → 150",
		},
		{
			name:     "two changes",
			rec:      record(models.AuditUpdate, `{"precio": 100, "nombre": "A"}`, `{"precio": 150, "nombre": "B"}`),
			kind:     KindChanged,
			count:    2,
			headline: "precio: 100 → 150; nombre: A → B",
		},
		{
			name:     "many changes",
			rec:      record(models.AuditUpdate, `{"a": 1, "b": 1, "c": 1}`, `{"a": 2, "b": 2, "c": 2}`),
			kind:     KindChanged,
			count:    3,
			headline: "3 fields changed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.rec)
			if s.Kind != tt.kind || s.Count != tt.count || len(s.Changes) != tt.count {
				t.Fatalf("Summarize() = %+v", s)
			}
			if got := s.Headline(2); got != tt.headline {
				t.Fatalf("Headline(2) = %q, want %q", got, tt.headline)
			}
		})
	}
}

func TestSummarizeDemoAuditLog(t *testing.T) {
	for _, row := range models.DemoList(models.MustResource(models.ResourceAuditLog)) {
		rec, err := models.ParseAuditRecord(row)
		if err != nil {
			t.Fatalf("ParseAuditRecord: %v", err)
		}
		s := Summarize(rec)
		if rec.Action == models.AuditUpdate && s.Kind == KindCreated {
			t.Fatalf("update %d classified as created", rec.ID)
		}
	}
}
