package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/shopdash_backend/models"
)

// ProcedureFunc implements a write procedure of the memory backend.
// It may mutate the tables it receives; they are guarded by the backend lock.
type ProcedureFunc func(ctx context.Context, tables map[string][]models.Record, args []any) (json.RawMessage, error)

type MemoryBackend struct {
	mu         sync.RWMutex
	tables     map[string][]models.Record
	procedures map[string]ProcedureFunc
}

// NewMemoryBackend serves tables (view or table name -> rows) from memory.
func NewMemoryBackend(tables map[string][]models.Record) *MemoryBackend {
	b := &MemoryBackend{
		tables:     make(map[string][]models.Record, len(tables)),
		procedures: make(map[string]ProcedureFunc),
	}
	for name, rows := range tables {
		b.tables[name] = rows
	}
	return b
}

func (b *MemoryBackend) RegisterProcedure(name string, fn ProcedureFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.procedures[name] = fn
}

// SetTable replaces the rows of a table.
func (b *MemoryBackend) SetTable(name string, rows []models.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = rows
}

func (b *MemoryBackend) Query(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("query", req.View, err)
	}
	b.mu.RLock()
	rows, ok := b.tables[req.View]
	b.mu.RUnlock()
	if !ok {
		return nil, wrap("query", req.View, fmt.Errorf("%w: %s", ErrUnknownView, req.View))
	}

	matched := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		if matchesFilter(row, req.Filter) && withinBounds(row, req.Date) {
			matched = append(matched, row)
		}
	}
	if s := req.Sort; s != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][s.Column], matched[j][s.Column])
			if s.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	total := len(matched)
	if r := req.Range; r != nil {
		from, to := clamp(r.From, total), clamp(r.To, total)
		if to < from {
			to = from
		}
		matched = matched[from:to]
	}

	out := make([]models.Record, 0, len(matched))
	for _, row := range matched {
		out = append(out, project(row, req.Select))
	}
	return &Result{Rows: out, Count: total}, nil
}

func (b *MemoryBackend) QueryDetails(ctx context.Context, table string, foreignKey string, value any) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("details", table, err)
	}
	b.mu.RLock()
	rows, ok := b.tables[table]
	b.mu.RUnlock()
	if !ok {
		return nil, wrap("details", table, fmt.Errorf("%w: %s", ErrUnknownView, table))
	}
	want := fmt.Sprint(value)
	out := make([]models.Record, 0)
	for _, row := range rows {
		if row.String(foreignKey) == want {
			out = append(out, project(row, nil))
		}
	}
	return out, nil
}

func (b *MemoryBackend) CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("call", name, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fn, ok := b.procedures[name]
	if !ok {
		return nil, wrap("call", name, fmt.Errorf("%w: %s", ErrUnknownProcedure, name))
	}
	raw, err := fn(ctx, b.tables, args)
	if err != nil {
		return nil, wrap("call", name, err)
	}
	return raw, nil
}

func matchesFilter(row models.Record, f *Filter) bool {
	if f == nil || f.Value == "" {
		return true
	}
	if row[f.Column] == nil {
		return false
	}
	return strings.Contains(strings.ToLower(row.String(f.Column)), strings.ToLower(f.Value))
}

func withinBounds(row models.Record, d *DateBounds) bool {
	if d == nil {
		return true
	}
	if row[d.Column] == nil {
		return false
	}
	if d.Start != "" && compareValues(row[d.Column], d.Start) < 0 {
		return false
	}
	if d.End != "" && compareValues(row[d.Column], d.End) > 0 {
		return false
	}
	return true
}

// compareValues orders numbers numerically, date-times chronologically and anything else as text.
// nil sorts first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return compareFloat(x, y)
		}
	}
	if x, ok := toTime(a); ok {
		if y, ok := toTime(b); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return models.ParseDateTime(t)
	}
	return time.Time{}, false
}

func project(row models.Record, columns []string) models.Record {
	if len(columns) == 0 {
		out := make(models.Record, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(models.Record, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
