package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crumbline/orders-api/internal/platform/httpx"
)

const (
	apiPrefix             = "/api/v1"
	defaultRequestTimeout = 60 * time.Second
)

// RouteRegistrar mounts a group of routes.
type RouteRegistrar func(r chi.Router)

type routes struct {
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	orders      RouteRegistrar
}

type Option func(*routes)

// NewRouter assembles the HTTP surface: probes at the root and the order API under /api/v1.
// Request ids, client IP resolution and the request deadline apply to every route, ahead of any
// middleware passed with WithMiddlewares.
func NewRouter(opts ...Option) chi.Router {
	cfg := routes{timeout: defaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		routeError(w, req, http.StatusNotFound, "route_not_found", "no route for %s", req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		routeError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method %s not allowed on %s", req.Method, req.URL.Path)
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	r.Route(apiPrefix+"/orders", cfg.mountOrders)
	return r
}

func (cfg routes) mountOrders(r chi.Router) {
	if cfg.orders != nil {
		cfg.orders(r)
		return
	}
	unavailable := func(w http.ResponseWriter, req *http.Request) {
		routeError(w, req, http.StatusServiceUnavailable, "order_service_unavailable", "order service unavailable")
	}
	r.HandleFunc("/", unavailable)
	r.HandleFunc("/*", unavailable)
}

func routeError(w http.ResponseWriter, req *http.Request, status int, code, format string, args ...any) {
	httpx.WriteError(req.Context(), w, httpx.NewError(code, fmt.Sprintf(format, args...), status))
}

// WithMiddlewares appends global middleware, applied in the order given.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routes) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRequestTimeout sets the per-request deadline. Non-positive values keep the default.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routes) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routes) {
		cfg.health = h
	}
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routes) {
		cfg.orders = reg
	}
}
