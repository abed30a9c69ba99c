package hooks

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/query"
	"github.com/mmdatafocus/shopdash_backend/utils"
)

// ListResult is the list-shaped view of a resource.
type ListResult struct {
	Data    []models.Record
	Count   int
	Loading bool
	Err     error
}

// DetailResult is the detail-shaped view of one record.
type DetailResult struct {
	Data    []models.Record
	Loading bool
	Err     error
}

// Hooks exposes resources to the presentation layer through the cache.
// It is the only place that decides between live data and the demo dataset.
type Hooks struct {
	cache   *cache.Cache
	builder *query.Builder

	location  *time.Location
	openHour  int
	closeHour int
}

type Option func(*Hooks)

func WithLocation(loc *time.Location) Option {
	return func(h *Hooks) {
		if loc != nil {
			h.location = loc
		}
	}
}

func WithBusinessHours(openHour, closeHour int) Option {
	return func(h *Hooks) {
		h.openHour, h.closeHour = openHour, closeHour
	}
}

func New(c *cache.Cache, b *query.Builder, opts ...Option) *Hooks {
	h := &Hooks{cache: c, builder: b, location: time.UTC, openHour: 8, closeHour: 21}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hooks) Cache() *cache.Cache {
	return h.cache
}

// gate nulls every key while the session is in demo mode.
func (h *Hooks) gate(ctx context.Context, key cache.Key) cache.Key {
	if models.ModeFromContext(ctx).IsDemo() {
		return cache.NullKey
	}
	return key
}

// UseList returns one page of a resource. Failed reads come back as an empty list with Err set.
func (h *Hooks) UseList(ctx context.Context, resource string, opts models.QueryOptions) ListResult {
	res, err := models.LookupResource(resource)
	if err != nil {
		return ListResult{Data: []models.Record{}, Err: err}
	}

	key := h.gate(ctx, cache.ListKey(res.Name, opts))
	if key.IsNull() {
		rows := models.DemoList(res)
		return ListResult{Data: rows, Count: len(rows)}
	}
	if err := opts.Validate(); err != nil {
		return ListResult{Data: []models.Record{}, Err: err}
	}

	opts = opts.Clone()
	r := cache.Fetch(ctx, h.cache, key, func(ctx context.Context) (*query.Result, error) {
		return h.builder.Query(ctx, res.Name, opts)
	})
	return listResult(r)
}

func listResult(r cache.Result[*query.Result]) ListResult {
	if r.Err != nil || r.Data == nil {
		return ListResult{Data: []models.Record{}, Loading: r.Loading, Err: r.Err}
	}
	return ListResult{Data: r.Data.Rows, Count: r.Data.TotalCount, Loading: r.Loading}
}

// UseDetails returns the detail rows of one record. A missing id fetches nothing.
func (h *Hooks) UseDetails(ctx context.Context, resource string, id string) DetailResult {
	res, err := models.LookupResource(resource)
	if err != nil {
		return DetailResult{Data: []models.Record{}, Err: err}
	}

	id = strings.TrimSpace(id)
	key := h.gate(ctx, cache.DetailKey(res.Name, id))
	if key.IsNull() {
		if id == "" {
			return DetailResult{Data: []models.Record{}}
		}
		return DetailResult{Data: demoDetails(res, id)}
	}

	r := cache.Fetch(ctx, h.cache, key, func(ctx context.Context) ([]models.Record, error) {
		return h.builder.QueryDetails(ctx, res.Name, "", id)
	})
	if r.Err != nil || r.Data == nil {
		return DetailResult{Data: []models.Record{}, Loading: r.Loading, Err: r.Err}
	}
	return DetailResult{Data: r.Data, Loading: r.Loading}
}

func demoDetails(res models.Resource, id string) []models.Record {
	out := make([]models.Record, 0)
	for _, row := range models.DemoDetails(res) {
		if row.String(res.DetailForeignKey) == id {
			out = append(out, row)
		}
	}
	return out
}

// Search runs an autocomplete lookup: the first page of a substring match on one column.
// A blank term fetches nothing.
func (h *Hooks) Search(ctx context.Context, resource string, column string, term string) ListResult {
	term = strings.TrimSpace(term)
	if term == "" {
		return ListResult{Data: []models.Record{}}
	}
	return h.UseList(ctx, resource, SearchOptions(column, term))
}

func SearchOptions(column string, term string) models.QueryOptions {
	return models.QueryOptions{
		FilterColumn: column,
		FilterValue:  strings.TrimSpace(term),
		Page:         utils.NewInt(1),
		PageSize:     utils.NewInt(config.SearchLimit),
	}
}

// WatchList subscribes to the background refresh of a list. It returns nil in demo mode,
// where nothing is fetched.
func (h *Hooks) WatchList(ctx context.Context, resource string, opts models.QueryOptions) (*cache.Subscription, error) {
	res, err := models.LookupResource(resource)
	if err != nil {
		return nil, err
	}
	key := h.gate(ctx, cache.ListKey(res.Name, opts))
	if key.IsNull() {
		return nil, nil
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.Clone()
	return cache.Watch(ctx, h.cache, key, func(ctx context.Context) (*query.Result, error) {
		return h.builder.Query(ctx, res.Name, opts)
	}), nil
}

// ListFromEntry converts a list subscription update.
func ListFromEntry(e cache.Entry) ListResult {
	return listResult(cache.Typed[*query.Result](e))
}
