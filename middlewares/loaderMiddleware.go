package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/shopdash_backend/hooks"
	"github.com/mmdatafocus/shopdash_backend/models"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// DetailRef addresses the detail rows of one record.
type DetailRef struct {
	Resource string
	ID       string
}

// Loaders batch the detail lookups of one request.
type Loaders struct {
	detailLoader *dataloader.Loader[DetailRef, []models.Record]
}

type detailReader struct {
	hooks *hooks.Hooks
}

// getDetails resolves each ref through the cache; one failed ref does not fail the batch.
func (r *detailReader) getDetails(ctx context.Context, refs []DetailRef) []*dataloader.Result[[]models.Record] {
	results := make([]*dataloader.Result[[]models.Record], 0, len(refs))
	for _, ref := range refs {
		d := r.hooks.UseDetails(ctx, ref.Resource, ref.ID)
		results = append(results, &dataloader.Result[[]models.Record]{Data: d.Data, Error: d.Err})
	}
	return results
}

func NewLoaders(h *hooks.Hooks) *Loaders {
	detailReader := &detailReader{hooks: h}
	return &Loaders{
		detailLoader: dataloader.NewBatchedLoader(detailReader.getDetails, dataloader.WithWait[DetailRef, []models.Record](time.Millisecond)),
	}
}

func LoaderMiddleware(h *hooks.Hooks) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(h)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the loaders of the request. Outside LoaderMiddleware it returns nil.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

func GetDetails(ctx context.Context, resource string, id string) ([]models.Record, error) {
	loaders := For(ctx)
	return loaders.detailLoader.Load(ctx, DetailRef{Resource: resource, ID: id})()
}

func GetManyDetails(ctx context.Context, resource string, ids []string) ([][]models.Record, []error) {
	loaders := For(ctx)
	refs := make([]DetailRef, len(ids))
	for i, id := range ids {
		refs[i] = DetailRef{Resource: resource, ID: id}
	}
	return loaders.detailLoader.LoadMany(ctx, refs)()
}
