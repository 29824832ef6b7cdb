package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingHandler holds every request until release is closed and records
// the order in which requests entered.
type blockingHandler struct {
	release chan struct{}
	mu      sync.Mutex
	order   []string
	entered chan struct{}
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{
		release: make(chan struct{}),
		entered: make(chan struct{}, 64),
	}
}

func (h *blockingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.order = append(h.order, r.URL.Query().Get("n"))
	h.mu.Unlock()
	h.entered <- struct{}{}
	<-h.release
	w.WriteHeader(http.StatusOK)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestQueueMiddleware(t *testing.T) {
	t.Run("basic queue functionality", func(t *testing.T) {
		m := metrics.NewMetrics()
		qm := NewQueueMiddleware(QueueConfig{
			MaxSize:       5,
			MaxConcurrent: 1,
			Metrics:       m,
		})

		handler := qm.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/chat", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests.WithLabelValues("queued")),
			"Queue should be empty after request completes")
		assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests.WithLabelValues("processing")),
			"No requests should be processing after completion")
	})

	t.Run("waiters are admitted in arrival order", func(t *testing.T) {
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 10, MaxConcurrent: 1})
		h := newBlockingHandler()
		handler := qm.Handler(h)

		var wg sync.WaitGroup
		send := func(n string) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat?n="+n, nil))
			}()
		}

		send("0")
		<-h.entered
		for i, n := range []string{"1", "2", "3"} {
			send(n)
			want := i + 1
			waitFor(t, func() bool { return qm.GetQueueSize() == want })
		}
		assert.Equal(t, int64(1), qm.GetProcessing())

		close(h.release)
		wg.Wait()

		assert.Equal(t, []string{"0", "1", "2", "3"}, h.order)
		assert.Equal(t, int64(0), qm.GetProcessing())
		assert.Equal(t, 0, qm.GetQueueSize())
	})

	t.Run("rejects when the waiting line is full", func(t *testing.T) {
		m := metrics.NewMetrics()
		var rejected int
		qm := NewQueueMiddleware(QueueConfig{
			MaxSize:       1,
			MaxConcurrent: 1,
			Metrics:       m,
			Reject: func(w http.ResponseWriter, r *http.Request, retryAfter int) {
				rejected = retryAfter
				w.WriteHeader(http.StatusOK)
			},
		})
		h := newBlockingHandler()
		handler := qm.Handler(h)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))
			}()
		}
		<-h.entered
		waitFor(t, func() bool { return qm.GetQueueSize() == 1 })

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/chat", nil))
		assert.Equal(t, queueRetryAfter, rejected)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("queue_full")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits.WithLabelValues("queue_full")))

		close(h.release)
		wg.Wait()
	})

	t.Run("default reject is a 429 envelope", func(t *testing.T) {
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 0, MaxConcurrent: 1})
		h := newBlockingHandler()
		handler := qm.Handler(h)

		done := make(chan struct{})
		go func() {
			defer close(done)
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))
		}()
		<-h.entered

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/chat", nil))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "5", rr.Header().Get("Retry-After"))

		close(h.release)
		<-done
	})

	t.Run("cancelled waiter gives up its place", func(t *testing.T) {
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 5, MaxConcurrent: 1})
		h := newBlockingHandler()
		handler := qm.Handler(h)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat?n=first", nil))
		}()
		<-h.entered

		ctx, cancel := context.WithCancel(context.Background())
		cancelled := make(chan struct{})
		go func() {
			defer close(cancelled)
			req := httptest.NewRequest("POST", "/chat?n=cancelled", nil).WithContext(ctx)
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}()
		waitFor(t, func() bool { return qm.GetQueueSize() == 1 })
		cancel()
		<-cancelled
		assert.Equal(t, 0, qm.GetQueueSize())

		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat?n=last", nil))
		}()
		waitFor(t, func() bool { return qm.GetQueueSize() == 1 })

		close(h.release)
		wg.Wait()
		assert.Equal(t, []string{"first", "last"}, h.order)
		assert.Equal(t, int64(0), qm.GetProcessing())
	})

	t.Run("queue size adjustment", func(t *testing.T) {
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 5, MaxConcurrent: 1})

		qm.SetMaxSize(10)
		assert.Equal(t, int64(10), qm.GetMaxSize())

		h := newBlockingHandler()
		handler := qm.Handler(h)
		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))
			}()
		}
		<-h.entered
		waitFor(t, func() bool { return qm.GetQueueSize() == 2 })

		// Raising concurrency admits the waiters at once
		qm.SetMaxConcurrent(3)
		<-h.entered
		<-h.entered
		assert.Equal(t, int64(3), qm.GetProcessing())
		assert.Equal(t, 0, qm.GetQueueSize())

		close(h.release)
		wg.Wait()
		assert.Equal(t, int64(0), qm.GetProcessing())
	})

	t.Run("queue latency tracking", func(t *testing.T) {
		m := metrics.NewMetrics()
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 5, MaxConcurrent: 1, Metrics: m})

		handler := qm.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))

		assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration, "csai_http_request_duration_seconds"))
	})
}

func TestQueueShutdown(t *testing.T) {
	t.Run("waits for in-flight requests", func(t *testing.T) {
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 5, MaxConcurrent: 1})
		h := newBlockingHandler()
		handler := qm.Handler(h)

		done := make(chan struct{})
		go func() {
			defer close(done)
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))
		}()
		<-h.entered

		shutdownErr := make(chan error, 1)
		go func() {
			shutdownErr <- qm.Shutdown(context.Background())
		}()

		waitFor(t, func() bool {
			qm.mu.Lock()
			defer qm.mu.Unlock()
			return qm.closed
		})

		// New requests are turned away while draining
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/chat", nil))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)

		close(h.release)
		<-done
		assert.NoError(t, <-shutdownErr)
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		m := metrics.NewMetrics()
		qm := NewQueueMiddleware(QueueConfig{MaxSize: 5, MaxConcurrent: 1, Metrics: m})
		h := newBlockingHandler()
		handler := qm.Handler(h)

		done := make(chan struct{})
		go func() {
			defer close(done)
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))
		}()
		<-h.entered

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, qm.Shutdown(ctx), context.DeadlineExceeded)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("queue_shutdown_timeout")))

		close(h.release)
		<-done
	})
}
