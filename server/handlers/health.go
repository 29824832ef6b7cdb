package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/server/provider"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/session"
	"go.uber.org/zap"
)

// Health states reported by /health.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// healthPingTimeout bounds the session store check.
const healthPingTimeout = 2 * time.Second

// ProviderHealth is the provider section of the health report.
type ProviderHealth struct {
	Name             string    `json:"name"`
	Healthy          bool      `json:"healthy"`
	BreakerState     string    `json:"breaker_state"`
	LastCheck        time.Time `json:"last_check"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status       string         `json:"status"`
	Provider     ProviderHealth `json:"provider"`
	SessionStore string         `json:"session_store"`
}

// HealthHandler reports provider and session store health. An unreachable
// store makes the relay unhealthy (503). An unhealthy provider only
// degrades it: pages and sessions still work.
type HealthHandler struct {
	manager *provider.Manager
	store   session.Store
	logger  *zap.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(manager *provider.Manager, store session.Store, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{manager: manager, store: store, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := h.manager.Provider().Name()
	status := h.manager.GetHealthStatus(name)

	resp := HealthResponse{
		Status: StatusHealthy,
		Provider: ProviderHealth{
			Name:             name,
			Healthy:          h.manager.Healthy(),
			BreakerState:     h.manager.Breaker().State().String(),
			LastCheck:        status.LastCheck,
			ConsecutiveFails: status.ConsecutiveFails,
			RequestCount:     status.RequestCount,
			ErrorCount:       status.ErrorCount,
		},
		SessionStore: "ok",
	}
	if !resp.Provider.Healthy {
		resp.Status = StatusDegraded
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("session store unreachable", zap.Error(err))
		resp.SessionStore = "unreachable"
		resp.Status = StatusUnhealthy
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}
