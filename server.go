package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/hooks"
	"github.com/mmdatafocus/shopdash_backend/middlewares"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/query"
	"github.com/mmdatafocus/shopdash_backend/utils"
	"github.com/mmdatafocus/shopdash_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

const appKey = "app"

// app holds the services the handlers need. It exists once the data backend is connected.
type app struct {
	hooks     *hooks.Hooks
	cache     *cache.Cache
	corrector *workflow.Corrector
	rollback  *workflow.RollbackCoordinator
	debounce  *cache.DebounceGroup
}

func newApp(b backend.Backend, c *cache.Cache, locker workflow.LineLocker) *app {
	openHour, closeHour := config.MilestoneHours()
	h := hooks.New(c, query.NewBuilder(b),
		hooks.WithLocation(config.DashboardLocation()),
		hooks.WithBusinessHours(openHour, closeHour),
	)
	return &app{
		hooks:     h,
		cache:     c,
		corrector: workflow.NewCorrector(b, c, locker),
		rollback:  workflow.NewRollbackCoordinator(b),
		debounce:  cache.NewDebounceGroup(config.SearchDebounce()),
	}
}

func current(c *gin.Context) *app {
	return c.MustGet(appKey).(*app)
}

func newRouter(ready *atomic.Pointer[app], logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Until the data backend is ready, app endpoints return 503.
		a := ready.Load()
		if a == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Set(appKey, a)
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.Use(cors.New(corsConfig()))
	r.Use(middlewares.ModeMiddleware())
	r.Use(func(c *gin.Context) {
		middlewares.LoaderMiddleware(current(c).hooks)(c)
	})
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		if rl := middlewares.RateLimiterFromEnv(config.GetRedisDB()); rl != nil {
			r.Use(rl.RateLimitMiddleware)
		}
	}
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/resources/:resource", listHandler)
	api.GET("/resources/:resource/:id/details", detailsHandler)
	api.GET("/details/:resource", batchDetailsHandler)
	api.GET("/watch/:resource", watchHandler)
	api.GET("/search/:resource", searchHandler)
	api.GET("/milestones", milestonesHandler)
	api.GET("/audit", auditListHandler)
	api.GET("/audit/:id", auditEntryHandler)
	api.POST("/audit/:id/rollback", rollbackHandler)
	api.POST("/corrections/:resource", correctionHandler)
	api.POST("/products/:id/correction", productCorrectionHandler)
	r.NoRoute(customNotFoundHandler)
	return r
}

// corsConfig allows every origin outside production and only CORS_ALLOWED_ORIGINS in production.
func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", middlewares.ModeHeader, "x-correlation-id", "x-client-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	return corsConfig
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// connectBackend blocks until the configured data backend is usable.
func connectBackend(ctx context.Context, logger *logrus.Logger) (backend.Backend, []cache.Option) {
	opts := []cache.Option{
		cache.WithRefreshInterval(config.CacheRefreshInterval()),
		cache.WithLogger(logger),
	}
	if config.DataBackend() == "memory" {
		logger.WithFields(logrus.Fields{"field": "backend"}).Warn("DATA_BACKEND=memory; serving the demo dataset from memory")
		return backend.NewMemoryBackend(models.DemoTables()), opts
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(ctx)
	if config.GetRedisDB() != nil {
		opts = append(opts, cache.WithMirror(cache.NewRedisMirror(), config.CacheMirrorTTL()))
	}
	return backend.NewGormBackend(config.GetDB()), opts
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Listen before the dependencies are connected; app endpoints answer 503 until then.
	var ready atomic.Pointer[app]
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(&ready, logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	b, cacheOpts := connectBackend(sigCtx, logger)
	c := cache.New(cacheOpts...)

	listenCtx, stopListening := context.WithCancel(context.Background())
	defer stopListening()
	go func() {
		if err := c.ListenRemote(listenCtx); err != nil && !errors.Is(err, context.Canceled) {
			config.LogError(logger, "server.go", "main", "listen for remote invalidations", nil, err)
		}
	}()

	ready.Store(newApp(b, c, workflow.NewLineLocker(config.GetRedisLock())))
	logger.WithFields(logrus.Fields{
		"info":    "Connection Established",
		"backend": config.DataBackend(),
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	stopListening()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if db := config.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}
