package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// CheckpointInvalidator drops stale lot checkpoints of a position.
type CheckpointInvalidator interface {
	Invalidate(ctx context.Context, key entity.Key) error
}

// AuditorConfig controls one audit pass.
type AuditorConfig struct {
	StoreID     string // empty audits every store
	Rebuild     bool   // overwrite inconsistent cached levels
	Concurrency int
}

// AuditReport summarizes one pass.
type AuditReport struct {
	Checked      int
	Inconsistent []entity.Key
	Rebuilt      int
	Failed       int
}

// Auditor compares cached stock levels with the ledger they derive from.
type Auditor struct {
	ledger      *ledger.Service
	checkpoints CheckpointInvalidator
	cfg         AuditorConfig
	log         *logger.Logger
}

func NewAuditor(svc *ledger.Service, checkpoints CheckpointInvalidator, cfg AuditorConfig, log *logger.Logger) *Auditor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Auditor{
		ledger:      svc,
		checkpoints: checkpoints,
		cfg:         cfg,
		log:         log.WithComponent("auditor"),
	}
}

// Run audits every interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil {
			a.log.Errorw("audit pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce audits all cached levels of the configured store. Per-position
// failures are counted and logged; only listing the levels aborts the pass.
func (a *Auditor) RunOnce(ctx context.Context) (AuditReport, error) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, a.log)
	started := time.Now()

	levels, err := a.ledger.ListLevels(ctx, a.cfg.StoreID, false)
	if err != nil {
		return AuditReport{}, fmt.Errorf("list levels: %w", err)
	}

	var (
		mu     sync.Mutex
		report = AuditReport{Checked: len(levels)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, level := range levels {
		key := level.Key()
		g.Go(func() error {
			rebuilt, consistent, err := a.auditPosition(gctx, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				logger.Error(gctx, "position audit failed", "store_id", key.StoreID, "product_id", key.ProductID, "error", err)
				return nil
			}
			if !consistent {
				report.Inconsistent = append(report.Inconsistent, key)
			}
			if rebuilt {
				report.Rebuilt++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	logger.Info(ctx, "audit pass finished",
		"store_id", a.cfg.StoreID,
		"checked", report.Checked,
		"inconsistent", len(report.Inconsistent),
		"rebuilt", report.Rebuilt,
		"failed", report.Failed,
		"duration", time.Since(started),
	)
	return report, nil
}

func (a *Auditor) auditPosition(ctx context.Context, key entity.Key) (rebuilt, consistent bool, err error) {
	result, err := a.ledger.Audit(ctx, key.StoreID, key.ProductID)
	if err != nil {
		return false, false, err
	}
	if result.Consistent || !a.cfg.Rebuild {
		return false, result.Consistent, nil
	}

	if _, err := a.ledger.Rebuild(ctx, key.StoreID, key.ProductID); err != nil {
		return false, false, fmt.Errorf("rebuild: %w", err)
	}
	if a.checkpoints != nil {
		if err := a.checkpoints.Invalidate(ctx, key); err != nil {
			logger.Warn(ctx, "failed to invalidate lot checkpoint", "store_id", key.StoreID, "product_id", key.ProductID, "error", err)
		}
	}
	return true, false, nil
}
