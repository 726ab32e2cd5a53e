package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crewroom/crewroom/pkg/config"
	"github.com/crewroom/crewroom/pkg/db"
	"github.com/crewroom/crewroom/pkg/utils"
)

func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to write default config", "error", err)
	}

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config; falling back to defaults", "error", err)
		cfg = &config.AppConfig{}
	} else {
		logger.Info("Config loaded", "path", cfgPath)
	}

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		fmt.Println("Database open failed", err)
		logger.Error("Failed to open database", "path", cfg.DatabasePath(), "error", err)
		os.Exit(1)
	}

	server, err := NewServer(cfg, database)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		fmt.Println("Server start failed", err)
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Shutting down")
}
