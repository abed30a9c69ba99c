package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/hooks"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/query"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestModeMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   models.Mode
	}{
		{name: "default", want: models.ModeLive},
		{name: "header", header: "demo", want: models.ModeDemo},
		{name: "boolean header", header: "true", want: models.ModeDemo},
		{name: "cookie", cookie: "demo", want: models.ModeDemo},
		{name: "header wins", header: "live", cookie: "demo", want: models.ModeLive},
		{name: "garbage falls through", header: "maybe", cookie: "demo", want: models.ModeDemo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEMO_MODE", "false")
			var got models.Mode
			r := gin.New()
			r.Use(ModeMiddleware())
			r.GET("/", func(c *gin.Context) {
				got = models.ModeFromContext(c.Request.Context())
				c.Status(http.StatusNoContent)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(ModeHeader, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: ModeCookie, Value: tt.cookie})
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Fatalf("mode = %q, want %q", got, tt.want)
			}
		})
	}
}

type countingBackend struct {
	backend.Backend
	mu      sync.Mutex
	details int
}

func (b *countingBackend) QueryDetails(ctx context.Context, table string, fk string, value any) ([]models.Record, error) {
	b.mu.Lock()
	b.details++
	b.mu.Unlock()
	return b.Backend.QueryDetails(ctx, table, fk, value)
}

func TestDetailLoaderDeduplicates(t *testing.T) {
	cb := &countingBackend{Backend: backend.NewMemoryBackend(models.DemoTables())}
	h := hooks.New(cache.New(), query.NewBuilder(cb))
	ctx := context.WithValue(context.Background(), loadersKey, NewLoaders(h))

	rows, errs := GetManyDetails(ctx, models.ResourceSales, []string{"1041", "1042", "1041"})
	for _, err := range errs {
		if err != nil {
			t.Fatalf("GetManyDetails: %v", err)
		}
	}
	if len(rows) != 3 || len(rows[0]) != 2 || len(rows[1]) != 1 || len(rows[2]) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if cb.details != 2 {
		t.Fatalf("backend detail calls = %d, want 2", cb.details)
	}

	if _, err := GetDetails(ctx, "unknown", "1"); err == nil {
		t.Fatalf("unknown resource resolved")
	}
}
