package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// routeGroups lists the API groups in mount order. A group without a registrar answers 501.
var routeGroups = []string{"auth", "cart", "wishlist", "orders", "checkout", "me", "products", "webhooks", "internal"}

type routeGroup struct {
	register RouteRegistrar
	guards   []middlewareFunc
}

type routerConfig struct {
	basePath    string
	middlewares []middlewareFunc
	health      *HealthHandlers
	groups      map[string]routeGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the chi router: request id, real ip and timeout first, then the caller's
// middlewares, the health probes and every API group under the base path.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:    defaultAPIPrefix,
		middlewares: []middlewareFunc{middleware.RequestID, middleware.RealIP, middleware.Timeout(defaultTimeout)},
		groups:      make(map[string]routeGroup, len(routeGroups)),
	}
	for _, opt := range opts {
		opt(&cfg)
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
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		msg := fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path)
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", msg, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range routeGroups {
			group := cfg.groups[name]
			api.Route("/"+name, func(sub chi.Router) {
				for _, mw := range group.guards {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if group.register == nil {
					notImplemented(sub, name)
					return
				}
				group.register(sub)
			})
		}
	})
	return r
}

func withGroup(name string, reg RouteRegistrar, guards ...middlewareFunc) Option {
	return func(cfg *routerConfig) {
		group := cfg.groups[name]
		group.register = reg
		group.guards = append(group.guards, guards...)
		cfg.groups[name] = group
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithAuthRoutes(reg RouteRegistrar) Option     { return withGroup("auth", reg) }
func WithCartRoutes(reg RouteRegistrar) Option     { return withGroup("cart", reg) }
func WithWishlistRoutes(reg RouteRegistrar) Option { return withGroup("wishlist", reg) }
func WithOrderRoutes(reg RouteRegistrar) Option    { return withGroup("orders", reg) }
func WithCheckoutRoutes(reg RouteRegistrar) Option { return withGroup("checkout", reg) }
func WithProductRoutes(reg RouteRegistrar) Option  { return withGroup("products", reg) }
func WithWebhookRoutes(reg RouteRegistrar) Option  { return withGroup("webhooks", reg) }

// WithMeRoutes configures customer scoped endpoints such as addresses.
func WithMeRoutes(reg RouteRegistrar) Option { return withGroup("me", reg) }

// WithInternalRoutes configures the maintenance endpoints and the middleware guarding them.
func WithInternalRoutes(reg RouteRegistrar, guards ...func(http.Handler) http.Handler) Option {
	return withGroup("internal", reg, guards...)
}

func notImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes not implemented", http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
