// Package main is the entry point for the stockledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/app"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting stockledger server",
		"storage", cfg.StorageDriver,
		"valuation_method", cfg.ValuationMethod,
		"checkpoints", cfg.RedisAddr != "",
	)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		Ledger:           a.Ledger,
		Valuation:        a.Valuation,
		Reconciliation:   a.Reconciliation,
		Transfers:        a.Transfers,
		Metrics:          a.Metrics,
		HealthChecks:     a.HealthChecks,
		DefaultMethod:    cfg.Method(),
		CurrencyDecimals: cfg.CurrencyDecimals,
	})

	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// In-flight ledger writes get 30 seconds to commit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
