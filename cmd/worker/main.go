// Package main is the entry point for the stockledger audit worker. It checks
// that cached stock levels match their ledgers, once or on an interval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"stockledger/internal/app"
	"stockledger/pkg/logger"
)

// workerConfig is read with the AUDIT_ prefix, e.g. AUDIT_INTERVAL.
type workerConfig struct {
	// Interval of 0 runs a single pass and exits.
	Interval    time.Duration `envconfig:"INTERVAL" default:"0"`
	StoreID     string        `envconfig:"STORE_ID"`
	Rebuild     bool          `envconfig:"REBUILD" default:"false"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"4"`
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}
	var wc workerConfig
	if err := envconfig.Process("audit", &wc); err != nil {
		fmt.Printf("invalid audit configuration: %v\n", err)
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

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	var checkpoints CheckpointInvalidator
	if a.Checkpoints != nil {
		checkpoints = a.Checkpoints
	}
	auditor := NewAuditor(a.Ledger, checkpoints, AuditorConfig{
		StoreID:     wc.StoreID,
		Rebuild:     wc.Rebuild,
		Concurrency: wc.Concurrency,
	}, log)

	if wc.Interval <= 0 {
		report, err := auditor.RunOnce(ctx)
		if err != nil {
			log.Fatalw("audit failed", "error", err)
		}
		if len(report.Inconsistent) > report.Rebuilt || report.Failed > 0 {
			a.Close()
			os.Exit(2)
		}
		return
	}

	log.Infow("starting audit worker", "interval", wc.Interval, "store_id", wc.StoreID, "rebuild", wc.Rebuild)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		auditor.Run(ctx, wc.Interval)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
