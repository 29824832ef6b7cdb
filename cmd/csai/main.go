package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"github.com/Siva-Pavan02/Computer-Science-AI/errors"
	"github.com/Siva-Pavan02/Computer-Science-AI/server"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile = flag.String("config", "csai.yaml", "Path to configuration file")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("csai %s\n", Version)
		os.Exit(0)
	}

	// A missing .env is normal in production
	_ = godotenv.Load()

	cfg, err := config.LoadOptionalFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	level := zap.NewAtomicLevel()
	logger, err := newLogger(cfg.Logging, level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	errors.SetLogger(logger)

	opts := []server.Option{server.WithLogLevel(level)}
	if _, err := os.Stat(*configFile); err == nil {
		watcher, err := config.NewConfigWatcherWithConfig(*configFile, cfg, logger)
		if err != nil {
			logger.Warn("config reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			opts = append(opts, server.WithWatcher(watcher))
		}
	}

	srv, err := server.NewServer(cfg, logger, opts...)
	if err != nil {
		logger.Fatal("Server initialization failed",
			zap.Error(err),
			zap.String("config_path", *configFile),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting csai",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.Gemini.Model),
		zap.String("session_backend", cfg.Session.Backend),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// newLogger builds a production logger honoring logging.level and
// logging.format. level stays adjustable after construction.
func newLogger(cfg config.LoggingConfig, level zap.AtomicLevel) (*zap.Logger, error) {
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Format == "text" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zc.Build()
}
