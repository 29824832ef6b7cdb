package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/middleware"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/mocks"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/provider"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPrometheusMetrics(t *testing.T) {
	m := metrics.NewMetrics()

	r := chi.NewRouter()
	r.Use(middleware.PrometheusMetrics(m))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	tests := []struct {
		name             string
		path             string
		expectedCode     int
		expectedEndpoint string
		expectedStatus   string
		expectedErrType  string
	}{
		{
			name:             "success request",
			path:             "/ok",
			expectedCode:     http.StatusOK,
			expectedEndpoint: "/ok",
			expectedStatus:   "200",
		},
		{
			name:             "error request",
			path:             "/boom",
			expectedCode:     http.StatusInternalServerError,
			expectedEndpoint: "/boom",
			expectedStatus:   "500",
			expectedErrType:  "server_error",
		},
		{
			name:             "unknown path",
			path:             "/wp-admin/setup.php",
			expectedCode:     http.StatusNotFound,
			expectedEndpoint: "unmatched",
			expectedStatus:   "404",
			expectedErrType:  "client_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues(tt.expectedEndpoint, tt.expectedStatus)))

			// Active requests drop back once the request completes
			assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests.WithLabelValues("http")))

			if tt.expectedErrType != "" {
				assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(tt.expectedErrType)))
			}
		})
	}
}

// TestMetricsObservability checks that provider metrics land on the shared
// registry and are exposed by the metrics handler.
func TestMetricsObservability(t *testing.T) {
	testCases := []struct {
		name         string
		generate     func(context.Context, string) (string, error)
		expectedCode string
		expectError  bool
	}{
		{
			name: "successful provider interaction",
			generate: func(ctx context.Context, prompt string) (string, error) {
				return "Successful response", nil
			},
			expectedCode: "200",
		},
		{
			name: "upstream failure",
			generate: func(ctx context.Context, prompt string) (string, error) {
				return "", &provider.UpstreamError{StatusCode: http.StatusServiceUnavailable}
			},
			expectedCode: "503",
			expectError:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewMetrics()

			cfg := config.DefaultConfig()
			manager, err := provider.NewManager(cfg, mocks.NewMockProvider(tc.generate), zap.NewNop(), m.Registry())
			require.NoError(t, err)

			_, err = manager.Generate(context.Background(), "What is a B-tree?")
			if tc.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			mfs, err := m.Registry().Gather()
			require.NoError(t, err)

			var found bool
			for _, mf := range mfs {
				if mf.GetName() != "csai_provider_upstream_responses_total" {
					continue
				}
				for _, metric := range mf.GetMetric() {
					for _, label := range metric.GetLabel() {
						if label.GetName() == "code" && label.GetValue() == tc.expectedCode {
							found = true
							assert.Equal(t, float64(1), metric.GetCounter().GetValue())
						}
					}
				}
			}
			assert.True(t, found, fmt.Sprintf("no upstream response sample with code %s", tc.expectedCode))

			rr := httptest.NewRecorder()
			m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
			assert.Contains(t, rr.Body.String(), "csai_circuit_breaker_state")
		})
	}
}
