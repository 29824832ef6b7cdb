// Package routing wires the chat handlers, middleware and observability
// endpoints into one chi router.
package routing

import (
	"fmt"
	"net/http"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"github.com/Siva-Pavan02/Computer-Science-AI/errors"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/handlers"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/middleware"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/validation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handlers are the components the router dispatches to. Limiter, Queue and
// Metrics are optional.
type Handlers struct {
	Chat    *handlers.ChatHandler
	Health  http.Handler
	Limiter *middleware.RateLimiter
	Queue   *middleware.QueueMiddleware
	Metrics *metrics.Metrics
}

// Router handles HTTP routing for the relay.
type Router struct {
	router chi.Router
	logger *zap.Logger
}

// NewRouter creates a router with the global middleware stack and all
// routes.
func NewRouter(cfg *config.Config, h Handlers, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		router: chi.NewRouter(),
		logger: logger,
	}

	// Add global middleware stack
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RequestTimer)
	r.router.Use(middleware.Logging(logger))
	if h.Metrics != nil {
		r.router.Use(middleware.PrometheusMetrics(h.Metrics))
	}
	r.router.Use(errors.ErrorHandler(logger))
	r.router.Use(middleware.CORS(cfg.Server.AllowedOrigin))

	r.router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, errors.NewNotFoundError(middleware.GetRequestID(req.Context()),
			fmt.Sprintf("No route for %s", req.URL.Path)))
	})
	r.router.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errors.ErrorWithType(w, fmt.Sprintf("Method %s not allowed on %s", req.Method, req.URL.Path),
			errors.BadRequestError, http.StatusMethodNotAllowed)
	})

	r.setupRoutes(cfg, h)
	return r
}

func (r *Router) setupRoutes(cfg *config.Config, h Handlers) {
	r.router.Get("/", h.Chat.Index)
	r.router.Handle("/static/*", handlers.Static())

	r.router.Group(func(router chi.Router) {
		router.Use(validation.LimitBody(validation.DefaultMaxBodyBytes))

		router.With(r.chatGuards(h)...).Post("/chat", h.Chat.Chat)
		router.Post("/clear", h.Chat.Clear)
		router.Post("/set_role", h.Chat.SetRole)
	})

	if h.Health != nil {
		r.router.Get("/health", h.Health.ServeHTTP)
	}

	if h.Metrics != nil && cfg.Metrics.Enabled {
		RegisterMetricsRoutes(r.router, h.Metrics, cfg.Metrics.Token)
	}
}

// chatGuards are the load shedding middleware in front of /chat. The
// limiter runs first so a flooding client never takes a queue slot.
func (r *Router) chatGuards(h Handlers) []func(http.Handler) http.Handler {
	var guards []func(http.Handler) http.Handler
	if h.Limiter != nil {
		guards = append(guards, h.Limiter.Handler)
	}
	if h.Queue != nil {
		guards = append(guards, h.Queue.Handler)
	}
	return guards
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
