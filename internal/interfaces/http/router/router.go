// Package router assembles the gin engine: the global middleware chain, the
// unauthenticated system routes and the tenant-scoped /api group.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/retail/ledger/internal/infrastructure/logger"
	"github.com/retail/ledger/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config controls the middleware chain
type Config struct {
	ServiceName    string
	TrustedProxies []string
	CORS           middleware.CORSConfig
	Tenant         middleware.TenantConfig
	MaxBodyBytes   int64
	// RateLimitRPS of 0 disables rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
	TracingEnabled bool
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		ServiceName:  "ledger",
		CORS:         middleware.DefaultCORSConfig(),
		Tenant:       middleware.DefaultTenantConfig(),
		MaxBodyBytes: 1 << 20,
	}
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	config     Config
	logger     *zap.Logger
	metrics    *middleware.HTTPMetrics
	apiVersion string
	health     gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithHealth serves h on GET /health
func WithHealth(h gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.health = h
	}
}

// WithMetrics records request metrics and serves them on GET /metrics
func WithMetrics(m *middleware.HTTPMetrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter creates a new Router with a fresh gin engine
func NewRouter(cfg Config, log *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		engine:     gin.New(),
		config:     cfg,
		logger:     log,
		apiVersion: "v1",
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered on Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup installs the middleware chain and all routes and returns the engine
func (r *Router) Setup() (*gin.Engine, error) {
	if err := r.engine.SetTrustedProxies(r.config.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	// Order matters: the request ID must exist before the access log and
	// recovery write it, and the span must exist before anything annotates it
	r.engine.Use(
		middleware.RequestID(),
		logger.Recovery(r.logger),
		logger.GinMiddleware(r.logger),
		middleware.CORSWithConfig(r.config.CORS),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName:    r.config.ServiceName,
			Enabled:        r.config.TracingEnabled,
			TracerProvider: r.config.TracerProvider,
		}),
	)
	if r.metrics != nil {
		r.engine.Use(r.metrics.Middleware())
		r.engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}
	if r.health != nil {
		r.engine.GET("/health", r.health)
	}

	api := r.engine.Group("/api/"+r.apiVersion,
		middleware.Tenant(r.config.Tenant),
		middleware.EnrichSpan(),
	)
	if r.config.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(middleware.NewRateLimiter(r.config.RateLimitRPS, r.config.RateLimitBurst)))
	}
	if r.config.MaxBodyBytes > 0 {
		api.Use(middleware.BodyLimit(r.config.MaxBodyBytes))
	}

	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	return r.engine, nil
}
