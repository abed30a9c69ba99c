package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

var ErrInvalidAuditRecord = errors.New("invalid audit record")

// AuditRecord is one write recorded by the external audit trail.
// PreviousValue/NewValue keep the raw JSON text so field order survives; nil means null.
type AuditRecord struct {
	ID            int64           `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	TableName     string          `json:"tableName"`
	Action        AuditAction     `json:"action"`
	Actor         string          `json:"actor"`
	PreviousValue json.RawMessage `json:"previousValue"`
	NewValue      json.RawMessage `json:"newValue"`
	QueryContext  *string         `json:"queryContext"`
}

// DiffEntry is one meaningful field-level change between two snapshots.
type DiffEntry struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// ParseAuditRecord validates a row of the audit view.
// Columns: id, created_at, table_name, action, actor, previous_value, new_value, query_context.
func ParseAuditRecord(row Record) (*AuditRecord, error) {
	id, ok := row.Int("id")
	if !ok {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidAuditRecord)
	}
	rec := &AuditRecord{
		ID:        int64(id),
		TableName: row.String("table_name"),
		Action:    AuditAction(strings.ToUpper(row.String("action"))),
		Actor:     row.String("actor"),
	}
	if ts, ok := row.Time("created_at"); ok {
		rec.Timestamp = ts
	}
	switch rec.Action {
	case AuditInsert, AuditUpdate, AuditDelete:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAuditRecord, rec.Action)
	}

	var err error
	if rec.PreviousValue, err = snapshotFrom(row["previous_value"]); err != nil {
		return nil, fmt.Errorf("%w: previous_value: %v", ErrInvalidAuditRecord, err)
	}
	if rec.NewValue, err = snapshotFrom(row["new_value"]); err != nil {
		return nil, fmt.Errorf("%w: new_value: %v", ErrInvalidAuditRecord, err)
	}
	if rec.Action == AuditInsert && rec.PreviousValue != nil {
		return nil, fmt.Errorf("%w: INSERT with a previous value", ErrInvalidAuditRecord)
	}
	if rec.Action == AuditDelete && rec.NewValue != nil {
		return nil, fmt.Errorf("%w: DELETE with a new value", ErrInvalidAuditRecord)
	}
	if qc := row.String("query_context"); qc != "" {
		rec.QueryContext = &qc
	}
	return rec, nil
}

// snapshotFrom accepts a JSON object (as text, bytes or a decoded map) or null.
func snapshotFrom(v any) (json.RawMessage, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	case json.RawMessage:
		raw = val
	case map[string]any, Record:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, fmt.Errorf("unsupported snapshot type %T", v)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(trimmed)) || !strings.HasPrefix(trimmed, "{") {
		return nil, errors.New("snapshot is not a JSON object")
	}
	return json.RawMessage(trimmed), nil
}
