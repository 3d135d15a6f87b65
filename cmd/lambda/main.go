package main

import (
	"context"
	"log"
	"os"

	"nobat/internal/app"
	"nobat/internal/logging"

	"github.com/aws/aws-lambda-go/lambda"
)

// Configuration comes from the function environment; CONFIG_PATH may point at a bundled YAML.
func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig(ctx, os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, _, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	application, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("init failed")
	}

	lambda.Start(application.Server.HandleFunctionURL)
}
