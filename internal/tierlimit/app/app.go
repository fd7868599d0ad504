// Package app wires application dependencies.
package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"tierlimit/internal/tierlimit"
	"tierlimit/internal/tierlimit/config"
	"tierlimit/internal/tierlimit/observability"
	"tierlimit/internal/tierlimit/store/inmemory"
	redisstore "tierlimit/internal/tierlimit/store/redis"
	sqlitestore "tierlimit/internal/tierlimit/store/sqlite"
	httptransport "tierlimit/internal/tierlimit/transport/http"
)

// Application holds core components for the service.
type Application struct {
	Config          *config.Config
	Tiers           *tierlimit.TierRegistry
	OverrideCache   *tierlimit.OverrideCache
	OverrideDB      tierlimit.OverrideDB
	Store           tierlimit.StateStore
	Limiter         tierlimit.Limiter
	QuotaHandler    *tierlimit.QuotaHandler
	AdminHandler    *tierlimit.AdminHandler
	CacheSyncWorker *tierlimit.CacheSyncWorker
	HealthLoop      *tierlimit.StoreHealthLoop
	ready           atomic.Bool
	httpTransport   *httptransport.Transport
	transports      []tierlimit.Transport
	metrics         observability.Metrics
	promMetrics     *observability.PromMetrics
	tracer          observability.Tracer
	sampler         observability.Sampler
	redisClient     *redis.Client
	memStore        *inmemory.Store
	tokenBuckets    *tierlimit.TokenBucketLimiter
	sweepInterval   time.Duration
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          observability.Logger
}

// NewApplication validates configuration and prepares the application.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.EnableHTTP && cfg.HTTPListenAddr == "" {
		return nil, errors.New("http listen address is required")
	}
	if cfg.EnableAuth && cfg.AdminToken == "" {
		return nil, errors.New("admin token is required")
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = config.StoreBackendMemory
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = config.AlgorithmFixedWindow
	}
	if cfg.CacheSyncInterval == 0 {
		cfg.CacheSyncInterval = 30 * time.Second
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = 5 * time.Second
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.TraceSampleRate == 0 {
		cfg.TraceSampleRate = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewStdLogger(os.Stdout)
	}

	tiers := tierlimit.NewTierRegistry()
	for name, limits := range cfg.Tiers {
		window := time.Duration(limits.WindowMS) * time.Millisecond
		if window <= 0 {
			window = time.Hour
		}
		err := tiers.Register(name, tierlimit.TierPolicy{
			BaseLimit:  limits.BaseLimit,
			BurstLimit: limits.BurstLimit,
			Window:     window,
		})
		if err != nil {
			return nil, err
		}
	}

	metrics := cfg.Metrics
	var promMetrics *observability.PromMetrics
	if metrics == nil {
		promMetrics = observability.NewPromMetrics()
		metrics = promMetrics
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NoopTracer{}
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = observability.NewHashSampler(cfg.TraceSampleRate)
	}

	app := &Application{
		Config:        cfg,
		Tiers:         tiers,
		metrics:       metrics,
		promMetrics:   promMetrics,
		tracer:        tracer,
		sampler:       sampler,
		sweepInterval: cfg.SweepInterval,
		logger:        cfg.Logger,
	}

	var store tierlimit.StateStore
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
		app.redisClient = client
		store = redisstore.NewStore(client,
			redisstore.WithPrefix(cfg.Redis.KeyPrefix),
			redisstore.WithGrace(cfg.StateGrace),
		)
	case config.StoreBackendMemory:
		memStore := inmemory.NewStore(
			inmemory.WithShardCount(cfg.ShardCount),
			inmemory.WithMaxKeysPerShard(cfg.MaxKeysPerShard),
			inmemory.WithGrace(cfg.StateGrace),
		)
		app.memStore = memStore
		store = memStore
	default:
		return nil, errors.New("unknown store backend: " + cfg.StoreBackend)
	}

	breaker := tierlimit.NewCircuitBreaker(cfg.BreakerOptions)
	guarded := tierlimit.NewGuardedStore(store, breaker, metrics)
	app.Store = guarded

	switch cfg.Algorithm {
	case config.AlgorithmFixedWindow:
		app.Limiter = tierlimit.NewWindowLimiter(guarded, metrics)
	case config.AlgorithmTokenBucket:
		buckets := tierlimit.NewTokenBucketLimiter(0)
		app.tokenBuckets = buckets
		app.Limiter = buckets
	default:
		return nil, errors.New("unknown algorithm: " + cfg.Algorithm)
	}

	var overrideDB tierlimit.OverrideDB
	if cfg.SQLitePath != "" {
		db, err := sqlitestore.Open(cfg.SQLitePath, nil)
		if err != nil {
			return nil, err
		}
		overrideDB = db
	} else {
		overrideDB = tierlimit.NewInMemoryOverrideDB(nil)
	}
	app.OverrideDB = overrideDB
	app.OverrideCache = tierlimit.NewOverrideCache()

	keys := tierlimit.NewKeyBuilder(tierlimit.NewByteBufferPool(4096))
	respPool := tierlimit.NewResponsePool()
	app.QuotaHandler = tierlimit.NewQuotaHandler(tiers, app.OverrideCache, app.Limiter, keys, respPool, tracer, sampler, metrics, nil)
	app.AdminHandler = tierlimit.NewAdminHandler(overrideDB, app.OverrideCache)
	app.CacheSyncWorker = tierlimit.NewCacheSyncWorker(overrideDB, app.OverrideCache, cfg.CacheSyncInterval)
	app.HealthLoop = tierlimit.NewStoreHealthLoop(guarded, cfg.HealthInterval, cfg.Logger)

	if cfg.EnableHTTP {
		opts := httptransport.Options{
			Addr:           cfg.HTTPListenAddr,
			Ready:          app.Ready,
			Logger:         cfg.Logger,
			EnableAuth:     cfg.EnableAuth,
			AdminToken:     cfg.AdminToken,
			MaxBodyBytes:   cfg.MaxBodyBytes,
			ReadTimeout:    cfg.HTTPReadTimeout,
			WriteTimeout:   cfg.HTTPWriteTimeout,
			IdleTimeout:    cfg.HTTPIdleTimeout,
			RequestTimeout: cfg.RequestTimeout,
		}
		if promMetrics != nil {
			opts.PromRegistry = promMetrics.Registry()
		}
		if snap, ok := metrics.(interface{ Snapshot() map[string]any }); ok {
			opts.Snapshot = snap.Snapshot
		}
		transport := httptransport.NewTransport(opts)
		if err := transport.ServeQuota(app.QuotaHandler); err != nil {
			return nil, err
		}
		if err := transport.ServeAdmin(app.AdminHandler); err != nil {
			return nil, err
		}
		app.httpTransport = transport
		app.transports = append(app.transports, transport)
	}

	return app, nil
}

// Start begins background work for the application.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if app.OverrideDB != nil && app.OverrideCache != nil {
		overrides, err := app.OverrideDB.LoadAll(ctx)
		if err != nil {
			return err
		}
		app.OverrideCache.ReplaceAll(overrides)
	}

	if app.CacheSyncWorker != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.CacheSyncWorker.Start(ctx)
		}()
	}
	if app.HealthLoop != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.HealthLoop.Start(ctx)
		}()
	}
	if app.memStore != nil {
		app.memStore.StartJanitor(ctx, app.sweepInterval)
	}
	if app.tokenBuckets != nil {
		app.tokenBuckets.StartJanitor(ctx, app.sweepInterval)
	}
	if app.httpTransport != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.httpTransport.Start()
		}()
	}

	app.ready.Store(true)
	if app.logger != nil && app.Config != nil {
		app.logger.Info("application started", map[string]any{
			"http_enabled":  app.Config.EnableHTTP,
			"store_backend": app.Config.StoreBackend,
			"algorithm":     app.Config.Algorithm,
		})
	}
	return nil
}

// Shutdown stops background work for the application.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app.ready.Store(false)
	if app.logger != nil {
		app.logger.Info("application shutdown", nil)
	}
	for _, transport := range app.transports {
		if transport == nil {
			continue
		}
		_ = transport.Shutdown(ctx)
	}
	if app.cancel != nil {
		app.cancel()
	}
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if app.redisClient != nil {
		return app.redisClient.Close()
	}
	return nil
}

// Ready reports whether the application has completed startup and the
// state store is reachable.
func (app *Application) Ready() bool {
	if app == nil || !app.ready.Load() {
		return false
	}
	if app.HealthLoop != nil {
		return app.HealthLoop.Healthy()
	}
	return true
}
