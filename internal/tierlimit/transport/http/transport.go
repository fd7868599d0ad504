// Package httptransport serves the quota and admin APIs over HTTP.
package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tierlimit/internal/tierlimit"
	"tierlimit/internal/tierlimit/observability"
)

// Options configures a Transport.
type Options struct {
	Addr           string
	Ready          func() bool
	Logger         observability.Logger
	PromRegistry   *prometheus.Registry
	Snapshot       func() map[string]any
	EnableAuth     bool
	AdminToken     string
	MaxBodyBytes   int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// Transport serves the quota and admin services over HTTP.
type Transport struct {
	addr           string
	srv            *http.Server
	quota          tierlimit.QuotaService
	admin          tierlimit.AdminService
	appReady       func() bool
	logger         observability.Logger
	promRegistry   *prometheus.Registry
	snapshot       func() map[string]any
	enableAuth     bool
	adminToken     string
	maxBodyBytes   int64
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	requestTimeout time.Duration
	router         http.Handler
	mu             sync.Mutex
}

// NewTransport constructs a transport bound to an address.
func NewTransport(opts Options) *Transport {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return false }
	}
	return &Transport{
		addr:           opts.Addr,
		appReady:       opts.Ready,
		logger:         opts.Logger,
		promRegistry:   opts.PromRegistry,
		snapshot:       opts.Snapshot,
		enableAuth:     opts.EnableAuth,
		adminToken:     opts.AdminToken,
		maxBodyBytes:   opts.MaxBodyBytes,
		readTimeout:    opts.ReadTimeout,
		writeTimeout:   opts.WriteTimeout,
		idleTimeout:    opts.IdleTimeout,
		requestTimeout: opts.RequestTimeout,
	}
}

// ServeQuota registers the quota service.
func (t *Transport) ServeQuota(service tierlimit.QuotaService) error {
	if service == nil {
		return errors.New("quota service is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quota = service
	return nil
}

// ServeAdmin registers the admin service.
func (t *Transport) ServeAdmin(service tierlimit.AdminService) error {
	if service == nil {
		return errors.New("admin service is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admin = service
	return nil
}

// Start begins serving HTTP requests.
func (t *Transport) Start() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	handler, err := t.handler()
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.srv == nil {
		t.srv = &http.Server{
			Addr:         t.addr,
			Handler:      handler,
			ReadTimeout:  t.readTimeout,
			WriteTimeout: t.writeTimeout,
			IdleTimeout:  t.idleTimeout,
		}
	}
	srv := t.srv
	t.mu.Unlock()

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (t *Transport) Shutdown(ctx context.Context) error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (t *Transport) Handler() (http.Handler, error) {
	return t.handler()
}

func (t *Transport) handler() (http.Handler, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.router != nil {
		return t.router, nil
	}
	if t.quota == nil || t.admin == nil {
		return nil, errors.New("services must be registered before starting")
	}
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(t.logMiddleware)
	if t.requestTimeout > 0 {
		r.Use(timeoutMiddleware(t.requestTimeout))
	}

	r.Post("/v1/quota/check", t.handleCheck)
	r.Post("/v1/quota/checkBatch", t.handleCheckBatch)
	r.Route("/v1/admin/overrides", func(r chi.Router) {
		r.Use(t.requireAdmin)
		r.Post("/", t.handleCreateOverride)
		r.Put("/", t.handleUpdateOverride)
		r.Delete("/", t.handleDeleteOverride)
		r.Get("/", t.handleGetOverride)
		r.Get("/list", t.handleListOverrides)
	})
	r.Get("/healthz", t.handleHealth)
	r.Get("/readyz", t.handleReady)
	r.Get("/metrics", t.metricsHandler().ServeHTTP)
	if t.snapshot != nil {
		r.Get("/metrics/snapshot", t.handleMetricsSnapshot)
	}

	t.router = r
	return r, nil
}

func (t *Transport) metricsHandler() http.Handler {
	if t.promRegistry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(t.promRegistry, promhttp.HandlerOpts{})
}
