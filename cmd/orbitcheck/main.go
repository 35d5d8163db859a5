package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/guillemso1er/orbitcheck-sub004/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("orbitcheck stopped with an error")
		os.Exit(1)
	}
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.InitialFields = map[string]any{"app": cfg.AppName, "version": cfg.Version}
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	app := newApp(cfg, logger)
	if err := app.start(ctx); err != nil {
		_ = app.stop()
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return app.stop()
}
