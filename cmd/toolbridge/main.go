package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/kagent-dev/toolbridge/internal/auth"
	"github.com/kagent-dev/toolbridge/internal/config"
	"github.com/kagent-dev/toolbridge/internal/httpapi"
	"github.com/kagent-dev/toolbridge/internal/session"
)

const (
	defaultConfigPath = "config/toolbridge.yaml"

	shutdownTimeout = 10 * time.Second
)

func main() {
	// Parse command line arguments
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load configuration
	cfg, err := loadConfiguration(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("starting toolbridge",
		"mcpEndpoint", cfg.MCP.Endpoint,
		"defaultProvider", cfg.LLM.DefaultProvider,
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	registry := session.NewRegistry(logger.WithName("registry"))

	var exchanger *auth.Exchanger
	if cfg.Auth.JWTSecret != "" && cfg.Auth.ExchangeEndpoint != "" {
		exchanger = auth.NewExchanger(auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)), cfg.Auth.ExchangeEndpoint)
	}

	api := httpapi.NewServer(registry, cfg, exchanger, logger.WithName("http"))
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("shutdown signal received, gracefully stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "HTTP server shutdown error")
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "error terminating sessions")
	}

	logger.Info("shutdown complete")
}

func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Config file %s not found, using defaults", path)
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func newLogger() (logr.Logger, error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zapLogger), nil
}
