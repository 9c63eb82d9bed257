// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the serve command.
package app

import (
	"context"
	"fmt"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/api"
	"github.com/wrenlabs/quill/internal/clock/system"
	"github.com/wrenlabs/quill/internal/config"
	"github.com/wrenlabs/quill/internal/faults"
	"github.com/wrenlabs/quill/internal/httpexec"
	"github.com/wrenlabs/quill/internal/id/uuid"
	"github.com/wrenlabs/quill/internal/limits"
	"github.com/wrenlabs/quill/internal/metrics"
	"github.com/wrenlabs/quill/internal/progress"
	"github.com/wrenlabs/quill/internal/progress/sinks"
	memorypublisher "github.com/wrenlabs/quill/internal/publisher/memory"
	pubsubpublisher "github.com/wrenlabs/quill/internal/publisher/pubsub"
	"github.com/wrenlabs/quill/internal/runner"
	"github.com/wrenlabs/quill/internal/signing"
	memorystorage "github.com/wrenlabs/quill/internal/storage/memory"
	pgstorage "github.com/wrenlabs/quill/internal/storage/postgres"
)

// App holds all shared long-lived services. It is initialized once at
// startup, handed to the HTTP server, and closed on shutdown.
type App struct {
	Server *api.Server
	Runner *runner.Runner
	Hub    *progress.Hub

	logger       *zap.Logger
	redisClient  *redis.Client
	pubsubClient *pubsubv2.Client
	historyStore *pgstorage.HistoryStore
}

// New builds the full service graph from config. It fails fast when any
// backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{logger: logger}
	clock := system.New()
	idGen := uuid.New()

	// Signing subsystem.
	var cache signing.Cache
	switch cfg.Signing.CacheBackend {
	case "redis":
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Signing.Redis.Addr,
			Password: cfg.Signing.Redis.Password,
			DB:       cfg.Signing.Redis.DB,
		})
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		cache = signing.NewRedisCache(a.redisClient, logger.Named("sigcache"))
		logger.Info("using redis signature cache", zap.String("addr", cfg.Signing.Redis.Addr))
	default:
		cache = signing.NewLRUCache(cfg.Signing.CacheCapacity, clock)
		logger.Info("using in-memory signature cache", zap.Int("capacity", cfg.Signing.CacheCapacity))
	}
	signer := signing.NewDefaultManager(signing.ManagerConfig{
		Cache:      cache,
		DefaultTTL: cfg.CacheTTL(),
		Logger:     logger.Named("signing"),
	})
	creds := signing.Credentials(cfg.Signing.Credentials)

	// Recovery history store.
	var history faults.HistoryStore
	switch cfg.Recovery.HistoryBackend {
	case "postgres":
		store, err := pgstorage.NewHistoryStore(ctx, pgstorage.HistoryStoreConfig{
			DSN:   cfg.Recovery.PostgresDSN,
			Table: cfg.Recovery.HistoryTable,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init postgres history store: %w", err)
		}
		a.historyStore = store
		history = store
		logger.Info("using postgres recovery history", zap.String("table", cfg.Recovery.HistoryTable))
	default:
		history = faults.NewMemoryHistory()
	}

	// Shared token bucket so adjust-rate recovery slows every run using the
	// configured default rate.
	rateTimeout := time.Duration(cfg.Scheduler.RateTimeoutSec) * time.Second
	bucket := limits.NewTokenBucket(cfg.Scheduler.RatePerSec, cfg.Scheduler.Burst, rateTimeout)

	// Request executor with optional proxy rotation.
	var rotator *httpexec.ProxyRotator
	if len(cfg.HTTP.Proxies) > 0 {
		var err error
		rotator, err = httpexec.NewProxyRotator(cfg.HTTP.Proxies, logger.Named("rotator"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init proxy rotator: %w", err)
		}
	}
	exec := httpexec.New(httpexec.Config{
		Timeout:   cfg.HTTPTimeout(),
		UserAgent: cfg.HTTP.UserAgent,
	}, signer, creds, rotator, logger.Named("httpexec"))

	// Fault recovery engine.
	engine := faults.NewDefaultEngine(history, logger.Named("recovery"))
	executor := engine.Executor()
	executor.Handle(faults.ActionRetry, faults.NewRetryHandler())
	executor.Handle(faults.ActionAdjustRate, faults.NewAdjustRateHandler(bucket, cfg.Recovery.RateFloor))
	executor.Handle(faults.ActionEscalate, faults.NewEscalateHandler(logger.Named("recovery")))
	executor.Handle(faults.ActionAbort, faults.NewAbortHandler())
	if rotator != nil {
		executor.Handle(faults.ActionRotateIdentity, rotator.Handler())
	}

	// Progress pipeline.
	snapshot := sinks.NewStore()
	a.Hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLog(logger.Named("progress")),
		sinks.NewPrometheus(),
		snapshot,
	)

	// Run completion publisher.
	var publisher agent.Publisher
	if cfg.PubSub.Enabled {
		client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		a.pubsubClient = client
		publisher = pubsubpublisher.New(client.Publisher(cfg.PubSub.TopicName))
		logger.Info("publishing run events to pubsub", zap.String("topic", cfg.PubSub.TopicName))
	} else {
		publisher = memorypublisher.New()
	}

	runStore := memorystorage.NewRunStore()
	a.Runner = runner.New(runner.Config{
		Concurrency: cfg.Scheduler.Concurrency,
		RatePerSec:  cfg.Scheduler.RatePerSec,
		Burst:       cfg.Scheduler.Burst,
		RateWindow:  cfg.RateWindow(),
		WindowLimit: cfg.Scheduler.WindowLimit,
		MaxRetries:  cfg.Scheduler.MaxRetries,
		BaseBackoff: cfg.BaseBackoff(),
		MaxBackoff:  cfg.MaxBackoff(),
		RateTimeout: rateTimeout,
		Bucket:      bucket,
		Topic:       cfg.PubSub.TopicName,
	}, runStore, exec, engine, a.Hub, publisher, idGen, clock, logger.Named("runner"))

	a.Server = api.NewServer(a.Runner, runStore, signer, creds, snapshot, cfg, logger.Named("api"))
	return a, nil
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("close pubsub client failed", zap.Error(err))
		}
	}
	if a.historyStore != nil {
		a.historyStore.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("close redis client failed", zap.Error(err))
		}
	}
}
