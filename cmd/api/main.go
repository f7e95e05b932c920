// Package main is the entry point for the favorites-sync-service API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/config"
	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/infra/postgres"
	"favorites-sync-service/internal/infra/postgres/migrations"
	"favorites-sync-service/internal/infra/provider/registry"
	rediscache "favorites-sync-service/internal/infra/redis"
	"favorites-sync-service/internal/infra/storage"
	"favorites-sync-service/internal/job"
	"favorites-sync-service/internal/logger"
	"favorites-sync-service/internal/transport/httpserver"
	"favorites-sync-service/internal/validator"
	"favorites-sync-service/pkg/locker"
)

const cacheKeyPrefix = "favsync:"

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(
		logger.Config{
			Service: cfg.App.Name,
			Level:   cfg.Logger.Level,
			Format:  cfg.Logger.Format,
			Output:  cfg.Logger.Output,
		},
		logger.SentryConfig{
			Enabled:     cfg.Sentry.Enabled,
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		},
	)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting favorites-sync-service",
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
		zap.Strings("providers", cfg.EnabledProviders()),
	)

	ctx := context.Background()

	// Snapshot files and backups
	fs := afero.NewOsFs()
	store := storage.NewFileStore(fs, cfg.Storage.DataDir, cfg.Storage.Files, log.Logger)
	backups := storage.NewBackupManager(fs, cfg.Storage.BackupDir, cfg.Storage.BackupKeep, log.Logger)

	providers := registry.NewProviders(cfg.Provider, store, log.Logger)

	// Redis is only needed for the shared lock or the query cache
	var redisClient *redis.Client
	if cfg.Lock.Backend == locker.BackendRedis || cfg.Cache.Enabled {
		redisClient, err = rediscache.NewClient(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		log.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	runLocker, err := locker.New(cfg.Lock.Backend, redisClient, log.Logger)
	if err != nil {
		log.Fatal("failed to create run locker", zap.Error(err))
	}

	var cache domain.Cache
	if cfg.Cache.Enabled {
		cache = rediscache.NewCache(redisClient, log.Logger, cacheKeyPrefix)
		log.Info("cache enabled", zap.Duration("ttl", cfg.Cache.TTL))
	} else {
		log.Info("cache disabled")
	}

	// Optional run history
	var (
		db   *gorm.DB
		runs domain.RunRepository
	)
	if cfg.History.Enabled {
		db, err = postgres.NewConnection(ctx,
			postgres.Config{
				Host:            cfg.History.Host,
				Port:            cfg.History.Port,
				Name:            cfg.History.Name,
				User:            cfg.History.User,
				Password:        cfg.History.Password,
				SSLMode:         cfg.History.SSLMode,
				ApplicationName: cfg.App.Name,
				ConnectTimeout:  cfg.History.ConnectTimeout,
				SlowThreshold:   cfg.History.SlowQuery,
				MaxOpenConns:    cfg.History.MaxOpenConns,
				MaxIdleConns:    cfg.History.MaxIdleConns,
				MaxLifetime:     cfg.History.MaxLifetime,
			},
			log.Logger,
		)
		if err != nil {
			log.Fatal("failed to connect to history database", zap.Error(err))
		}
		defer func() { _ = postgres.Close(db) }()

		if err := migrations.Run(db); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("database migrations completed", zap.String("version", migrations.Latest()))

		runs = postgres.NewRunRepository(db)
	}

	// Create services
	syncSvc := service.NewSyncService(service.SyncDeps{
		Providers:   providers,
		Store:       store,
		Checkpoints: store,
		Backups:     backups,
		Runs:        runs,
		Cache:       cache,
		Locker:      runLocker,
	}, cfg.Lock.TTL, log.Logger)

	if err := syncSvc.LoadAll(ctx); err != nil {
		log.Error("some snapshots could not be loaded", zap.Error(err))
	}

	gallerySvc := service.NewGalleryService(syncSvc.Holder(), cache, cfg.Cache.TTL, log.Logger)

	names := syncSvc.GetProviderNames()
	ready := func() bool {
		if !syncSvc.Holder().Loaded(names...) {
			return false
		}
		if db != nil {
			return postgres.HealthCheck(ctx, db, 2*time.Second) == nil
		}
		return true
	}

	// Create HTTP server
	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Port:      cfg.App.Port,
			BodyLimit: 1024 * 1024, // 1MB
			Debug:     cfg.App.Debug,
		},
		syncSvc,
		gallerySvc,
		ready,
		validator.New(),
		log.Logger,
	)

	// Start background sync
	scheduler := job.NewSyncScheduler(
		syncSvc,
		job.SyncConfig{
			Interval:  cfg.Sync.Interval,
			Timeout:   cfg.Sync.Timeout,
			OnStartup: cfg.Sync.OnStartup,
		},
		log.Logger,
	)
	if cfg.Sync.Interval > 0 || cfg.Sync.OnStartup {
		scheduler.Start(cfg.Sync.OnStartup)
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutdown signal received")

		scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := syncSvc.Shutdown(ctx); err != nil {
			log.Warn("background syncs did not stop in time", zap.Error(err))
		}
		if err := server.App.ShutdownWithContext(ctx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
	}()

	// Start server
	if err := server.Start(cfg.App.Port); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
