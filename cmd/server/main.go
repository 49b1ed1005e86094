package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/marketa/catalog/internal/app"
	"github.com/marketa/catalog/internal/config"
	"github.com/marketa/catalog/pkg/logger"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName, cfg.Log.Level)
	slog.SetDefault(log)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	application, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
