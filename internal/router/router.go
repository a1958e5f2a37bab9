package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/middleware"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/ratelimit"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine      *gin.Engine
	auth        *middleware.AuthMiddleware
	health      Handler
	familyH     Handler
	invitationH Handler
	directoryH  Handler
	adminH      Handler
	limiter     ratelimit.Limiter
	config      RouterConfig
	metrics     *routerMetrics
	appMetrics  *metrics.Metrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
	// RateLimitBackend labels rejections; an empty value with a nil limiter
	// disables rate limiting.
	RateLimitBackend string
	MetricsPrefix    string
	Registerer       prometheus.Registerer
}

type Handlers struct {
	Health     Handler
	Family     Handler
	Invitation Handler
	Directory  Handler
	Admin      Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	limiter ratelimit.Limiter,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()
	// Handlers pass *gin.Context as the request context.
	engine.ContextWithFallback = true

	if config.MetricsPrefix == "" {
		config.MetricsPrefix = "family_http"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if m == nil {
		m = metrics.Discard()
	}

	r := &Router{
		engine:      engine,
		auth:        auth,
		health:      handlers.Health,
		familyH:     handlers.Family,
		invitationH: handlers.Invitation,
		directoryH:  handlers.Directory,
		adminH:      handlers.Admin,
		limiter:     limiter,
		config:      config,
		metrics:     initRouterMetrics(config.MetricsPrefix, config.Registerer),
		appMetrics:  m,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORSConfig),
	)
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout))
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	protected := api.Group("")
	protected.Use(
		middleware.BodyLimit(r.config.MaxBodyBytes),
		r.auth.Authenticate(),
	)
	if r.limiter != nil {
		protected.Use(middleware.RateLimit(r.limiter, r.config.RateLimitBackend, r.appMetrics))
	}
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	for _, h := range []Handler{r.familyH, r.invitationH, r.directoryH} {
		if h != nil {
			h.RegisterRoutes(rg)
		}
	}

	if r.adminH != nil {
		admin := rg.Group("/admin")
		admin.Use(r.auth.RequireAdmin())
		r.adminH.RegisterRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string, reg prometheus.Registerer) *routerMetrics {
	m := &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
	reg.MustRegister(m.requestDuration, m.requestTotal, m.errorTotal)
	return m
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case code >= 500:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
