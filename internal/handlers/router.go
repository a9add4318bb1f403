package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/boibabu/api/internal/platform/httpx"
)

// APIPrefix is the path every API route group is mounted under.
const APIPrefix = "/api/v1"

const requestTimeout = 60 * time.Second

// Route groups under APIPrefix, in mount order.
const (
	groupOrders   = "/orders"
	groupSeller   = "/seller"
	groupAdmin    = "/admin"
	groupWebhooks = "/webhooks"
	groupInternal = "/internal"
)

var groupOrder = []string{groupOrders, groupSeller, groupAdmin, groupWebhooks, groupInternal}

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routeGroup struct {
	register    RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      map[string]*routeGroup
}

func (c *routerConfig) group(path string) *routeGroup {
	g, ok := c.groups[path]
	if !ok {
		g = &routeGroup{}
		c.groups[path] = g
	}
	return g
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the chi router: health endpoints at the root, API groups under APIPrefix.
// A group without a registrar answers 501 so a half-wired deployment fails loudly.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
		groups: make(map[string]*routeGroup, len(groupOrder)),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "route_not_found", http.StatusNotFound, "no route for %s", req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "method_not_allowed", http.StatusMethodNotAllowed, "%s is not allowed on %s", req.Method, req.URL.Path)
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(APIPrefix, func(api chi.Router) {
		for _, path := range groupOrder {
			g := cfg.group(path)
			api.Route(path, func(sub chi.Router) {
				for _, mw := range g.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if g.register == nil {
					unwired(sub, path)
					return
				}
				g.register(sub)
			})
		}
	})
	return r
}

func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func withGroup(path string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.group(path).register = reg }
}

func withGroupMiddlewares(path string, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(path)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// WithOrderRoutes mounts customer order endpoints at /api/v1/orders.
func WithOrderRoutes(reg RouteRegistrar) Option { return withGroup(groupOrders, reg) }

// WithSellerRoutes mounts seller payment and statement endpoints.
func WithSellerRoutes(reg RouteRegistrar) Option { return withGroup(groupSeller, reg) }

// WithAdminRoutes mounts the admin order console.
func WithAdminRoutes(reg RouteRegistrar) Option { return withGroup(groupAdmin, reg) }

// WithWebhookRoutes mounts payment provider callbacks.
func WithWebhookRoutes(reg RouteRegistrar) Option { return withGroup(groupWebhooks, reg) }

func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares(groupWebhooks, mw...)
}

// WithInternalRoutes mounts Pub/Sub push endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option { return withGroup(groupInternal, reg) }

// WithInternalMiddlewares guards /internal, normally with OIDC push verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares(groupInternal, mw...)
}

func unwired(r chi.Router, path string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "not_implemented", http.StatusNotImplemented, "%s routes are not configured", path)
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}

func writeRouteError(w http.ResponseWriter, r *http.Request, code string, status int, format string, args ...any) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, fmt.Sprintf(format, args...), status))
}
