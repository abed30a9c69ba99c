package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("shopdash-backend")

type gormBackend struct {
	db *gorm.DB
}

// NewGormBackend reads views and detail tables and calls procedures on db.
func NewGormBackend(db *gorm.DB) Backend {
	return &gormBackend{db: db}
}

func (b *gormBackend) Query(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "backend.Query", trace.WithAttributes(attribute.String("view", req.View)))
	defer span.End()

	if err := checkRequest(req); err != nil {
		return nil, b.fail(span, "query", req.View, err)
	}

	base := applyFilters(b.db.WithContext(ctx).Table(req.View), req).Session(&gorm.Session{})

	var count int64
	if err := base.Count(&count).Error; err != nil {
		return nil, b.fail(span, "count", req.View, err)
	}

	var rows []map[string]interface{}
	if err := applyWindow(base, req).Find(&rows).Error; err != nil {
		return nil, b.fail(span, "query", req.View, err)
	}

	result := &Result{Rows: make([]models.Record, 0, len(rows)), Count: int(count)}
	for _, row := range rows {
		result.Rows = append(result.Rows, models.NormalizeRecord(row))
	}
	span.SetAttributes(attribute.Int("rows", len(result.Rows)), attribute.Int("count", result.Count))
	return result, nil
}

func (b *gormBackend) QueryDetails(ctx context.Context, table string, foreignKey string, value any) ([]models.Record, error) {
	ctx, span := tracer.Start(ctx, "backend.QueryDetails", trace.WithAttributes(attribute.String("table", table)))
	defer span.End()

	if !utils.IsIdentifier(table) || !utils.IsIdentifier(foreignKey) {
		return nil, b.fail(span, "details", table, ErrUnknownView)
	}

	var rows []map[string]interface{}
	err := b.db.WithContext(ctx).
		Table(table).
		Where(clause.Eq{Column: clause.Column{Name: foreignKey}, Value: value}).
		Find(&rows).Error
	if err != nil {
		return nil, b.fail(span, "details", table, err)
	}
	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.NormalizeRecord(row))
	}
	return records, nil
}

// CallProcedure runs CALL name(?, ...) and returns the JSON "result" column of its first row.
func (b *gormBackend) CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "backend.CallProcedure", trace.WithAttributes(attribute.String("procedure", name)))
	defer span.End()

	if !utils.IsIdentifier(name) {
		return nil, b.fail(span, "call", name, ErrUnknownProcedure)
	}

	rows, err := b.db.WithContext(ctx).Raw(callStatement(name, len(args)), args...).Rows()
	if err != nil {
		return nil, b.fail(span, "call", name, err)
	}
	defer rows.Close()

	var result sql.NullString
	if rows.Next() {
		if err := rows.Scan(&result); err != nil {
			return nil, b.fail(span, "call", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, b.fail(span, "call", name, err)
	}
	if !result.Valid {
		return nil, nil
	}
	return json.RawMessage(result.String), nil
}

func (b *gormBackend) fail(span trace.Span, op string, target string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return wrap(op, target, err)
}

func callStatement(name string, argc int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", argc), ", ")
	return fmt.Sprintf("CALL %s(%s)", name, placeholders)
}

func checkRequest(req Request) error {
	columns := append([]string{req.View}, req.Select...)
	if req.Filter != nil {
		columns = append(columns, req.Filter.Column)
	}
	if req.Date != nil {
		columns = append(columns, req.Date.Column)
	}
	if req.Sort != nil {
		columns = append(columns, req.Sort.Column)
	}
	for _, c := range columns {
		if !utils.IsIdentifier(c) {
			return fmt.Errorf("%w: invalid identifier %q", ErrUnknownView, c)
		}
	}
	return nil
}

// applyFilters adds the projection, the substring filter and the date bounds.
func applyFilters(tx *gorm.DB, req Request) *gorm.DB {
	if len(req.Select) > 0 {
		tx = tx.Select(req.Select)
	}
	if f := req.Filter; f != nil && f.Value != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Value)) + "%"
		expr := "LOWER(?) LIKE ?"
		if f.CastToText {
			expr = "LOWER(CAST(? AS CHAR)) LIKE ?"
		}
		tx = tx.Where(clause.Expr{SQL: expr, Vars: []interface{}{clause.Column{Name: f.Column}, pattern}})
	}
	if d := req.Date; d != nil {
		if d.Start != "" {
			tx = tx.Where(clause.Gte{Column: clause.Column{Name: d.Column}, Value: d.Start})
		}
		if d.End != "" {
			tx = tx.Where(clause.Lte{Column: clause.Column{Name: d.Column}, Value: d.End})
		}
	}
	return tx
}

// applyWindow adds ordering and the row window; it must not be applied before counting.
func applyWindow(tx *gorm.DB, req Request) *gorm.DB {
	if s := req.Sort; s != nil {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Column}, Desc: s.Desc})
	}
	if r := req.Range; r != nil {
		size := r.To - r.From
		if size < 0 {
			size = 0
		}
		tx = tx.Offset(r.From).Limit(size)
	}
	return tx
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
