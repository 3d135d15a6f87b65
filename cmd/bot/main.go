package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nobat/internal/app"
	"nobat/internal/config"
	"nobat/internal/logging"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, closer, err := loadConfigAndLogger(ctx)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	application, err := app.New(ctx, cfg, logger, app.Options{})
	logger = logging.Component(logger, "bot-main")
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации")
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("close failed")
		}
	}()

	application.StartBackground(ctx)

	if cfg.Telegram.Mode == config.ModePolling {
		return runPolling(ctx, application, logger)
	}
	return runWebhook(ctx, application, logger)
}

func loadConfigAndLogger(ctx context.Context) (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("configs/config.yaml"); err == nil {
			configPath = "configs/config.yaml"
		}
	}

	cfg, err := app.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, baseLogger, closer, nil
}

// runPolling serves /healthz and /metrics next to long polling.
func runPolling(ctx context.Context, application *app.App, logger *zerolog.Logger) error {
	go func() {
		if err := application.Server.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()
	defer shutdown(application, logger)

	logger.Info().Msg("Бот запущен (polling)...")
	application.Bot.Start(ctx)
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func runWebhook(ctx context.Context, application *app.App, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Server.Start()
	}()

	logger.Info().Msg("Бот запущен (webhook)...")
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdown(application, logger)
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func shutdown(application *app.App, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
}
