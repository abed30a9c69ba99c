package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/utils"
)

var ErrInvalidOptions = errors.New("invalid query options")

// Result is one page of a list query. TotalCount covers the whole filtered set.
type Result struct {
	Rows       []models.Record `json:"rows"`
	TotalCount int             `json:"totalCount"`
}

// Builder turns declarative options into backend requests against named views.
type Builder struct {
	backend backend.Backend
}

func NewBuilder(b backend.Backend) *Builder {
	return &Builder{backend: b}
}

// Query lists a resource. Zero matching rows is an empty result, not an error.
// Backend failures are returned as they came from the backend.
func (b *Builder) Query(ctx context.Context, resourceName string, opts models.QueryOptions) (*Result, error) {
	res, err := models.LookupResource(resourceName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, resourceName)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	out, err := b.backend.Query(ctx, BuildRequest(res, opts))
	if err != nil {
		return nil, err
	}
	rows := out.Rows
	if rows == nil {
		rows = []models.Record{}
	}
	return &Result{Rows: rows, TotalCount: out.Count}, nil
}

// QueryDetails returns every detail row whose foreignKey equals value, without pagination.
// An empty foreignKey uses the resource's own detail key.
func (b *Builder) QueryDetails(ctx context.Context, resourceName string, foreignKey string, value any) ([]models.Record, error) {
	res, err := models.LookupResource(resourceName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, resourceName)
	}
	table := res.View
	if res.HasDetails() {
		table = res.DetailTable
		if foreignKey == "" {
			foreignKey = res.DetailForeignKey
		}
	}
	if !utils.IsIdentifier(foreignKey) {
		return nil, fmt.Errorf("%w: invalid detail column %q", ErrInvalidOptions, foreignKey)
	}

	rows, err := b.backend.QueryDetails(ctx, table, foreignKey, value)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Record{}
	}
	return rows, nil
}

// BuildRequest maps validated options onto a backend request.
func BuildRequest(res models.Resource, opts models.QueryOptions) backend.Request {
	req := backend.Request{View: res.View, Select: opts.Select}
	if opts.HasFilter() {
		req.Filter = &backend.Filter{
			Column:     opts.FilterColumn,
			Value:      opts.FilterValue,
			CastToText: utils.IsIdentifierLike(opts.FilterColumn),
		}
	}
	if opts.DateColumn != "" && !opts.DateRange.IsZero() {
		req.Date = &backend.DateBounds{
			Column: opts.DateColumn,
			Start:  strings.TrimSpace(opts.DateRange.Start),
			End:    strings.TrimSpace(opts.DateRange.End),
		}
	}
	if opts.HasSort() {
		req.Sort = &backend.Sort{Column: opts.SortColumn, Desc: opts.SortOrder == models.SortDesc}
	}
	if from, to, ok := opts.Window(); ok {
		req.Range = &backend.Range{From: from, To: to}
	}
	return req
}
