package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mealsync/mealsync/internal/api"
	"github.com/mealsync/mealsync/internal/cache"
	"github.com/mealsync/mealsync/internal/config"
	"github.com/mealsync/mealsync/internal/directory"
	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/ledger"
	"github.com/mealsync/mealsync/internal/registry"
	"github.com/mealsync/mealsync/internal/storage/sql"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Create data directories if needed (for SQLite files)
	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			logger.Fatal("creating data directory", zap.Error(err))
		}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0755); err != nil {
		logger.Fatal("creating cache directory", zap.Error(err))
	}

	// Shared document store
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("initializing storage", zap.Error(err))
	}
	defer store.Close()

	// Device-local durable cache
	localCache, err := cache.OpenSQLite(cfg.Cache.Path)
	if err != nil {
		logger.Fatal("initializing cache", zap.Error(err))
	}
	defer localCache.Close()

	// Sync transport: push over redis when configured, polling otherwise
	var transport syncpkg.Transport
	if cfg.UsePush() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		transport = syncpkg.NewRedisTransport(client, logger)
	} else {
		transport = syncpkg.NewPollTransport(cfg.Sync.MembersPollEvery, cfg.Sync.AttendancePollEvery)
	}
	defer transport.Close()
	logger.Info("sync transport selected", zap.String("transport", transport.Name()))

	// Application services
	reg := registry.New(store, logger)
	dir := directory.New(store, logger)
	reconciler := ledger.NewReconciler(store, deadlinePolicy(cfg.Attendance),
		ledger.WithLogger(logger),
		ledger.WithAllowExpired(cfg.Attendance.AllowExpired),
	)
	syncMgr := syncpkg.NewManager(transport, store, localCache, logger)
	defer syncMgr.StopSync()

	router := api.NewRouter(api.Deps{
		Registry:      reg,
		Directory:     dir,
		Reconciler:    reconciler,
		SyncManager:   syncMgr,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		TokenDuration: cfg.Auth.TokenDuration,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting mealsync server", zap.String("addr", cfg.Server.Addr()))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// deadlinePolicy builds the ledger's deadline policy from configuration.
// Meals without a configured time fall back to the grace-period rule.
func deadlinePolicy(cfg config.AttendanceConfig) ledger.DeadlinePolicy {
	policy := ledger.DefaultPolicy()
	policy.Grace = time.Duration(cfg.GraceMinutes) * time.Minute
	policy.Lead = time.Duration(cfg.DeadlineLeadMinutes) * time.Minute

	schedule := make(ledger.MealSchedule)
	if cfg.BreakfastAt != "" {
		schedule[domain.MealBreakfast] = cfg.BreakfastAt
	}
	if cfg.LunchAt != "" {
		schedule[domain.MealLunch] = cfg.LunchAt
	}
	if cfg.DinnerAt != "" {
		schedule[domain.MealDinner] = cfg.DinnerAt
	}
	policy.Schedule = schedule
	return policy
}

// newLogger builds the process logger from configuration.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
