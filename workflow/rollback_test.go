package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/models"
)

func TestRollback(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		id        int64
		result    json.RawMessage
		err       error
		wantOK    bool
		wantMsg   string
		wantErr   bool
		wantCalls int
	}{
		{name: "success", id: 7, result: json.RawMessage(`{"success": true}`), wantOK: true, wantCalls: 1},
		{
			name: "explicit failure", id: 7,
			result:  json.RawMessage(`{"success": false, "error": "entry already reverted"}`),
			wantMsg: "entry already reverted", wantCalls: 1,
		},
		{
			name: "signal is surfaced verbatim", id: 7,
			err:     &mysql.MySQLError{Number: 1644, SQLState: [5]byte{'4', '5', '0', '0', '0'}, Message: "No se puede revertir: venta anulada"},
			wantMsg: "No se puede revertir: venta anulada", wantCalls: 1,
		},
		{name: "backend failure is not retried", id: 7, err: errors.New("i/o timeout"), wantErr: true, wantCalls: 1},
		{name: "invalid id", id: 0, wantMsg: "invalid audit entry id 0"},
		{name: "demo mode", ctx: models.WithMode(context.Background(), models.ModeDemo), id: 7, wantMsg: demoWriteMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := backend.NewMemoryBackend(nil)
			calls := 0
			var gotArgs []any
			b.RegisterProcedure(models.ProcedureRollbackAudit, func(_ context.Context, _ map[string][]models.Record, args []any) (json.RawMessage, error) {
				calls++
				gotArgs = args
				return tt.result, tt.err
			})
			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}

			result, err := NewRollbackCoordinator(b).Rollback(ctx, tt.id)
			if calls != tt.wantCalls {
				t.Fatalf("procedure called %d times, want %d", calls, tt.wantCalls)
			}
			if calls > 0 && (len(gotArgs) != 1 || gotArgs[0] != tt.id) {
				t.Fatalf("args = %v", gotArgs)
			}
			if tt.wantErr {
				if err == nil || err.Error() != tt.err.Error() {
					t.Fatalf("err = %v, want %v verbatim", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Success != tt.wantOK || result.Error != tt.wantMsg {
				t.Fatalf("result = %+v", result)
			}
		})
	}
}

func TestRollbackInvalidation(t *testing.T) {
	ok := &models.CorrectionResult{Success: true}
	tests := []struct {
		name  string
		table string
		hit   []cache.Key
		miss  []cache.Key
	}{
		{
			name:  "sale line",
			table: "sale_items",
			hit: []cache.Key{
				cache.DetailKey(models.ResourceSales, "1041"),
				cache.ListKey(models.ResourceSales, models.QueryOptions{}),
				cache.DetailKey(models.ResourceMoneyMovements, "1041"),
				cache.ListKey(models.ResourceAuditLog, models.QueryOptions{}),
			},
			miss: []cache.Key{
				cache.ListKey(models.ResourceProducts, models.QueryOptions{}),
				cache.DetailKey(models.ResourceAuditLog, "7"),
			},
		},
		{
			name:  "product",
			table: "PRODUCTS",
			hit: []cache.Key{
				cache.ListKey(models.ResourceProducts, models.QueryOptions{}),
				cache.ListKey(models.ResourceInventory, models.QueryOptions{}),
			},
			miss: []cache.Key{cache.ListKey(models.ResourceSales, models.QueryOptions{})},
		},
		{
			name:  "unknown table",
			table: "legacy_table",
			hit: []cache.Key{
				cache.ListKey(models.ResourceSales, models.QueryOptions{}),
				cache.ListKey(models.ResourcePurchases, models.QueryOptions{}),
			},
			miss: []cache.Key{cache.ListKey(models.ResourceCustomers, models.QueryOptions{})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := RollbackInvalidation(tt.table, ok)
			for _, k := range tt.hit {
				if !inv.Matches(k) {
					t.Fatalf("%s not invalidated", k)
				}
			}
			for _, k := range tt.miss {
				if inv.Matches(k) {
					t.Fatalf("%s invalidated", k)
				}
			}
		})
	}
}
