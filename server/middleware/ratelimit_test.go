package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/errors"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest("POST", "/chat", nil)
	req.RemoteAddr = ip + ":1234"
	return req
}

func TestRateLimitMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	rl := middleware.NewRateLimiter(10, 10, m, nil)
	handler := rl.Handler(okHandler())

	testIP := "127.0.0.1"

	// Make 11 requests (1 more than burst)
	for i := 0; i < 11; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom(testIP))

		if i < 10 {
			assert.Equal(t, http.StatusOK, rr.Code, "request %d", i)
			continue
		}

		// Last request should be rate limited
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))

		var resp errors.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, errors.RateLimitError, resp.Type)
		assert.Greater(t, resp.Details["retry_after"], float64(0))

		assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits.WithLabelValues("rate_limit")))
	}
}

func TestRateLimitPerClient(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 1, nil, nil)
	handler := rl.Handler(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom(ip))
		assert.Equal(t, http.StatusOK, rr.Code, ip)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimitCustomReject(t *testing.T) {
	var got int
	rl := middleware.NewRateLimiter(1, 1, nil, func(w http.ResponseWriter, r *http.Request, retryAfter int) {
		got = retryAfter
		w.WriteHeader(http.StatusOK)
	})
	handler := rl.Handler(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.9"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.9"))

	assert.Equal(t, http.StatusOK, rr.Code)
	// One request per minute: the next token is a minute away
	assert.InDelta(t, 60, got, 1)
}

func TestRateLimitSetLimits(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 1, nil, nil)
	handler := rl.Handler(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.3"))
	rl.SetLimits(600, 5)

	// The existing bucket gets the larger burst, refilled over time
	time.Sleep(250 * time.Millisecond)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.3"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitCleanup(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10, nil, nil)
	handler := rl.Handler(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.4"))
	require.Equal(t, 1, rl.Len())

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, rl.Cleanup(time.Millisecond))
	assert.Equal(t, 0, rl.Len())
}
