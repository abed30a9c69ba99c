package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/hooks"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/query"
	"github.com/mmdatafocus/shopdash_backend/workflow"
	"github.com/spf13/cobra"
)

// env is what every command runs against.
type env struct {
	cache    *cache.Cache
	hooks    *hooks.Hooks
	rollback *workflow.RollbackCoordinator
	out      io.Writer
}

func newEnv(b backend.Backend, c *cache.Cache, out io.Writer) *env {
	openHour, closeHour := config.MilestoneHours()
	return &env{
		cache: c,
		hooks: hooks.New(c, query.NewBuilder(b),
			hooks.WithLocation(config.DashboardLocation()),
			hooks.WithBusinessHours(openHour, closeHour),
		),
		rollback: workflow.NewRollbackCoordinator(b),
		out:      out,
	}
}

var useMemory bool

// openEnv connects MySQL, and Redis so that invalidations reach the running servers.
func openEnv(ctx context.Context) (*env, error) {
	if useMemory || config.DataBackend() == "memory" {
		return newEnv(backend.NewMemoryBackend(models.DemoTables()), cache.New(), os.Stdout), nil
	}
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	config.ConnectRedisWithRetry(ctx)
	opts := []cache.Option{cache.WithLogger(config.GetLogger())}
	if config.GetRedisDB() != nil {
		opts = append(opts, cache.WithMirror(cache.NewRedisMirror(), config.CacheMirrorTTL()))
	}
	return newEnv(backend.NewGormBackend(db), cache.New(opts...), os.Stdout), nil
}

var rootCmd = &cobra.Command{
	Use:           "dashboard-ops",
	Short:         "Operator tooling for the dashboard data layer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "run against the in-memory demo dataset")
	rootCmd.AddCommand(diffCmd, rollbackCmd, timelineCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
