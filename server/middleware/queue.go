package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/eapache/queue/v2"
)

var (
	errQueueFull   = errors.New("queue is full")
	errQueueClosed = errors.New("queue is shut down")
)

// queueRetryAfter is the wait suggested to shed requests.
const queueRetryAfter = 5

// ticket is one waiting request. granted and abandoned are guarded by the
// middleware mutex.
type ticket struct {
	ready     chan struct{}
	granted   bool
	abandoned bool
}

// QueueMiddleware admits at most maxConcurrent requests at a time. Others
// wait in FIFO order, up to maxSize of them; the rest are rejected.
//
// A waiting request whose context ends leaves its ticket in the queue
// marked abandoned; release skips such tickets when handing over a slot.
type QueueMiddleware struct {
	mu            sync.Mutex
	waiting       *queue.Queue[*ticket]
	abandoned     int
	processing    int64
	maxSize       int64
	maxConcurrent int64
	closed        bool

	metrics *metrics.Metrics
	reject  RejectFunc
}

// QueueConfig defines the operational parameters for the queue middleware.
type QueueConfig struct {
	MaxSize       int64            // Maximum number of waiting requests
	MaxConcurrent int64            // Requests processed at once
	Metrics       *metrics.Metrics // Optional
	Reject        RejectFunc       // Defaults to RejectWithError
}

// NewQueueMiddleware initializes a new queue middleware with the given configuration.
func NewQueueMiddleware(cfg QueueConfig) *QueueMiddleware {
	if cfg.Reject == nil {
		cfg.Reject = RejectWithError
	}
	return &QueueMiddleware{
		waiting:       queue.New[*ticket](),
		maxSize:       cfg.MaxSize,
		maxConcurrent: max(cfg.MaxConcurrent, 1),
		metrics:       cfg.Metrics,
		reject:        cfg.Reject,
	}
}

// SetMaxSize updates the maximum number of waiting requests. Requests
// already waiting keep their place.
func (qm *QueueMiddleware) SetMaxSize(size int64) {
	qm.mu.Lock()
	qm.maxSize = size
	qm.mu.Unlock()
}

// SetMaxConcurrent updates the number of requests processed at once.
func (qm *QueueMiddleware) SetMaxConcurrent(n int64) {
	qm.mu.Lock()
	qm.maxConcurrent = max(n, 1)
	// Raising the limit may free slots for waiters
	for qm.processing < qm.maxConcurrent && qm.grantNextLocked() {
		qm.processing++
	}
	qm.updateGaugesLocked()
	qm.mu.Unlock()
}

// GetQueueSize returns the number of waiting requests.
func (qm *QueueMiddleware) GetQueueSize() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.waitingLocked()
}

// GetMaxSize returns the current maximum queue size.
func (qm *QueueMiddleware) GetMaxSize() int64 {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.maxSize
}

// GetProcessing returns the number of requests currently being processed.
func (qm *QueueMiddleware) GetProcessing() int64 {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.processing
}

func (qm *QueueMiddleware) waitingLocked() int {
	return qm.waiting.Length() - qm.abandoned
}

func (qm *QueueMiddleware) updateGaugesLocked() {
	if qm.metrics == nil {
		return
	}
	qm.metrics.ActiveRequests.WithLabelValues("queued").Set(float64(qm.waitingLocked()))
	qm.metrics.ActiveRequests.WithLabelValues("processing").Set(float64(qm.processing))
}

// grantNextLocked wakes the oldest live waiter. It reports whether one
// was found.
func (qm *QueueMiddleware) grantNextLocked() bool {
	for qm.waiting.Length() > 0 {
		t := qm.waiting.Remove()
		if t.abandoned {
			qm.abandoned--
			continue
		}
		t.granted = true
		close(t.ready)
		return true
	}
	return false
}

func (qm *QueueMiddleware) acquire(ctx context.Context) error {
	qm.mu.Lock()
	if qm.closed {
		qm.mu.Unlock()
		return errQueueClosed
	}
	if qm.processing < qm.maxConcurrent && qm.waitingLocked() == 0 {
		qm.processing++
		qm.updateGaugesLocked()
		qm.mu.Unlock()
		return nil
	}
	if int64(qm.waitingLocked()) >= qm.maxSize {
		qm.mu.Unlock()
		return errQueueFull
	}
	t := &ticket{ready: make(chan struct{})}
	qm.waiting.Add(t)
	qm.updateGaugesLocked()
	qm.mu.Unlock()

	select {
	case <-t.ready:
		// The slot was counted in processing by release
		return nil
	case <-ctx.Done():
		qm.mu.Lock()
		defer qm.mu.Unlock()
		if t.granted {
			// Lost the race with release; hand the slot on
			qm.releaseLocked()
		} else {
			t.abandoned = true
			qm.abandoned++
		}
		qm.updateGaugesLocked()
		return ctx.Err()
	}
}

func (qm *QueueMiddleware) release() {
	qm.mu.Lock()
	qm.releaseLocked()
	qm.updateGaugesLocked()
	qm.mu.Unlock()
}

// releaseLocked passes the slot to the next waiter, or frees it.
func (qm *QueueMiddleware) releaseLocked() {
	if qm.processing <= qm.maxConcurrent && qm.grantNextLocked() {
		return
	}
	qm.processing--
}

// Handler queues the request until a processing slot is free.
func (qm *QueueMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if err := qm.acquire(r.Context()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// The client is gone; nobody reads the answer
				return
			}
			if qm.metrics != nil {
				qm.metrics.ErrorsTotal.WithLabelValues("queue_full").Inc()
				qm.metrics.RateLimitHits.WithLabelValues("queue_full").Inc()
			}
			qm.reject(w, r, queueRetryAfter)
			return
		}
		defer qm.release()

		if qm.metrics != nil {
			qm.metrics.RequestDuration.WithLabelValues("queue_wait").Observe(time.Since(start).Seconds())
		}

		next.ServeHTTP(w, r)
	})
}

// Shutdown stops admitting requests and waits until the admitted and
// waiting ones are done or ctx ends.
func (qm *QueueMiddleware) Shutdown(ctx context.Context) error {
	qm.mu.Lock()
	qm.closed = true
	qm.mu.Unlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		qm.mu.Lock()
		idle := qm.processing == 0 && qm.waitingLocked() == 0
		qm.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			if qm.metrics != nil {
				qm.metrics.ErrorsTotal.WithLabelValues("queue_shutdown_timeout").Inc()
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
