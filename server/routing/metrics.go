package routing

import (
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterMetricsRoutes adds the Prometheus endpoint, behind a bearer
// token when one is configured.
func RegisterMetricsRoutes(r chi.Router, m *metrics.Metrics, token string) {
	r.With(middleware.Authentication(token)).Get("/metrics", m.Handler().ServeHTTP)
}
