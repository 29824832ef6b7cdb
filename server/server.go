// Package server assembles the relay: provider, sessions, chat pipeline,
// admission control and router, and runs them behind one http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	relayerrors "github.com/Siva-Pavan02/Computer-Science-AI/errors"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/handlers"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/middleware"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/processing"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/provider"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/routing"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/session"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// visitorIdleTimeout is how long a rate limiter entry survives without traffic.
const visitorIdleTimeout = 10 * time.Minute

// Server represents the HTTP server and the components it owns.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	listener   net.Listener
	watcher    config.Watcher
	level      *zap.AtomicLevel
	logger     *zap.Logger

	metrics *metrics.Metrics
	gemini  *provider.GeminiClient
	manager *provider.Manager
	store   session.Store
	chat    *handlers.ChatHandler
	limiter *middleware.RateLimiter
	queue   *middleware.QueueMiddleware
	router  *routing.Router
}

// Option configures a Server.
type Option func(*options)

type options struct {
	provider provider.Provider
	store    session.Store
	watcher  config.Watcher
	listener net.Listener
	level    *zap.AtomicLevel
}

// WithProvider replaces the Gemini client.
func WithProvider(p provider.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithStore replaces the session store selected by session.backend.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithWatcher applies reloaded configuration while the server runs.
func WithWatcher(w config.Watcher) Option {
	return func(o *options) { o.watcher = w }
}

// WithListener serves on l instead of listening on server.port.
func WithListener(l net.Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithLogLevel lets reloads change logging.level.
func WithLogLevel(level zap.AtomicLevel) Option {
	return func(o *options) { o.level = &level }
}

// NewServer wires every component from cfg.
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, relayerrors.NewConfigError("config is required", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:      cfg,
		listener: o.listener,
		watcher:  o.watcher,
		level:    o.level,
		logger:   logger,
		metrics:  metrics.NewMetrics(),
	}

	p := o.provider
	if p == nil {
		s.gemini = provider.NewGeminiClient(cfg.Gemini, provider.WithLogger(logger))
		p = s.gemini
	}

	manager, err := provider.NewManager(cfg, p, logger, s.metrics.Registry())
	if err != nil {
		return nil, fmt.Errorf("create provider manager: %w", err)
	}
	s.manager = manager

	s.store = o.store
	if s.store == nil {
		if s.store, err = newStore(cfg.Session); err != nil {
			return nil, err
		}
	}

	sessions, err := session.NewManager(cfg, s.store, logger)
	if err != nil {
		return nil, relayerrors.NewConfigError("invalid session settings", err)
	}

	procOpts := []processing.Option{processing.WithLogger(logger)}
	if cfg.Chat.CountTokens {
		counter, err := validation.NewTokenCounter(cfg.Chat.TokenEncoding)
		if err != nil {
			// Estimates are optional; the encoding may not be available offline
			logger.Warn("token counting disabled", zap.String("encoding", cfg.Chat.TokenEncoding), zap.Error(err))
		} else {
			procOpts = append(procOpts, processing.WithTokenCounter(counter, s.metrics.PromptTokens))
		}
	}
	processor, err := processing.NewProcessor(manager, cfg.Chat.PromptTemplate, procOpts...)
	if err != nil {
		return nil, relayerrors.NewConfigError("invalid chat.prompt_template", err)
	}

	s.chat = handlers.NewChatHandler(sessions, processor, cfg.Chat, s.metrics, logger)

	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, s.metrics, s.chat.RejectChat)
	}
	if cfg.Queue.Enabled {
		s.queue = middleware.NewQueueMiddleware(middleware.QueueConfig{
			MaxSize:       cfg.Queue.MaxSize,
			MaxConcurrent: cfg.Queue.MaxConcurrent,
			Metrics:       s.metrics,
			Reject:        s.chat.RejectChat,
		})
	}

	s.router = routing.NewRouter(cfg, routing.Handlers{
		Chat:    s.chat,
		Health:  handlers.NewHealthHandler(manager, s.store, logger),
		Limiter: s.limiter,
		Queue:   s.queue,
		Metrics: s.metrics,
	}, logger)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	return s, nil
}

func newStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "redis":
		store, err := session.NewRedisStoreFromURL(cfg.RedisURL, cfg.KeyPrefix, cfg.TTL)
		if err != nil {
			return nil, relayerrors.NewConfigError("invalid session.redis_url", err)
		}
		return store, nil
	case "memory", "":
		return session.NewMemoryStore(cfg.TTL), nil
	default:
		return nil, relayerrors.NewConfigError(fmt.Sprintf("unknown session backend %q", cfg.Backend), nil)
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metric set.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start serves until ctx is done, then shuts down gracefully. It returns
// nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.httpServer.Addr); err != nil {
			return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server started", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	if s.watcher != nil {
		g.Go(func() error {
			s.watchConfig(gctx)
			return nil
		})
	}

	if ms, ok := s.store.(*session.MemoryStore); ok {
		g.Go(func() error {
			return ms.Run(gctx, s.cfg.Session.CleanupInterval, s.reportSweep)
		})
	}

	if s.limiter != nil {
		g.Go(func() error {
			s.sweepVisitors(gctx)
			return nil
		})
	}

	err := g.Wait()
	if c, ok := s.store.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			s.logger.Warn("failed to close session store", zap.Error(cerr))
		}
	}
	return err
}

func (s *Server) shutdown() error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down server", zap.Duration("timeout", timeout))

	// Stop admitting chats first so queued ones drain before connections close
	if s.queue != nil {
		if err := s.queue.Shutdown(ctx); err != nil {
			s.logger.Warn("queue did not drain", zap.Error(err))
		}
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	return nil
}

func (s *Server) reportSweep(removed, remaining int) {
	s.metrics.SessionsStored.Set(float64(remaining))
	if removed > 0 {
		s.logger.Debug("expired sessions removed", zap.Int("count", removed), zap.Int("remaining", remaining))
	}
}

func (s *Server) sweepVisitors(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Cleanup(visitorIdleTimeout); n > 0 {
				s.logger.Debug("evicted idle rate limit entries", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) watchConfig(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.applyConfig(cfg)
		}
	}
}

// applyConfig pushes the reloadable settings of cfg into the running
// components. Listener, session and breaker settings need a restart.
func (s *Server) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	if s.gemini != nil {
		s.gemini.SetGeneration(cfg.Gemini.Generation)
	}
	s.manager.SetDeduplicate(cfg.Gemini.Deduplicate)

	if err := s.chat.ApplyConfig(cfg.Chat); err != nil {
		s.logger.Warn("keeping previous chat settings", zap.Error(err))
	}
	if s.limiter != nil {
		s.limiter.SetLimits(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}
	if s.queue != nil {
		s.queue.SetMaxSize(cfg.Queue.MaxSize)
		s.queue.SetMaxConcurrent(cfg.Queue.MaxConcurrent)
	}
	if s.level != nil {
		if err := s.level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
			s.logger.Warn("invalid log level", zap.String("level", cfg.Logging.Level))
		}
	}

	if cfg.Server.Port != s.cfg.Server.Port || cfg.Session.Backend != s.cfg.Session.Backend {
		s.logger.Warn("server.port and session.backend changes take effect after a restart")
	}
	s.logger.Info("configuration reloaded")
}
