package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/metrics"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/transfer_repo"
	"stockledger/internal/infrastructure/telemetry"
	"stockledger/pkg/logger"
)

// App is the wired set of services shared by the binaries.
type App struct {
	Config *Config

	Metrics        metrics.Collector
	Ledger         *ledger.Service
	Lots           *lots.Tracker
	Valuation      *valuation.Engine
	Reconciliation *reconciliation.Engine
	Transfers      *transfer.Coordinator

	// Checkpoints is nil unless Redis is configured.
	Checkpoints *cache.CheckpointStore

	HealthChecks map[string]handlers.Pinger

	closers []func()
}

type storage struct {
	ledger    ledger.Repository
	transfers transfer.Repository
	txm       tx.Manager
}

// Build connects the configured backends and wires the services.
func Build(ctx context.Context, cfg *Config) (*App, error) {
	a := &App{Config: cfg, HealthChecks: map[string]handlers.Pinger{}}

	collector, err := telemetry.NewCollector(nil)
	if err != nil {
		return nil, err
	}
	a.Metrics = collector

	st, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Ledger = ledger.NewService(st.ledger, st.txm, collector)

	checkpoints, err := a.openCheckpoints(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Lots = lots.NewTracker(a.Ledger,
		lots.WithCheckpoints(checkpoints, cfg.CheckpointEvery),
		lots.WithMetrics(collector),
	)

	a.Valuation = valuation.NewEngine(a.Lots, valuation.Config{
		BatchSize:       cfg.ValuationBatchSize,
		LotFetchTimeout: cfg.LotFetchTimeout,
	}, collector)

	var policy reconciliation.Policy = cfg.Thresholds()
	if cfg.ReconSeverityExpr != "" {
		policy, err = reconciliation.NewExpressionPolicy(cfg.ReconSeverityExpr, cfg.Thresholds())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("RECON_SEVERITY_EXPR: %w", err)
		}
	}
	a.Reconciliation = reconciliation.NewEngine(a.Ledger, a.Valuation, policy, collector)

	a.Transfers = transfer.NewCoordinator(st.transfers, a.Ledger, st.txm, collector)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (storage, error) {
	if a.Config.StorageDriver == DriverMemory {
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")
		return storage{
			ledger:    memory.NewLedgerRepo(),
			transfers: memory.NewTransferRepo(),
			txm:       tx.Direct,
		}, nil
	}

	poolCfg := postgres.DefaultPoolConfig(a.Config.DatabaseURL)
	poolCfg.MaxConns = a.Config.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return storage{}, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.HealthChecks["database"] = pool

	txm := postgres.NewTxManager(pool)
	logger.Info(ctx, "database connection established", "max_conns", poolCfg.MaxConns)
	return storage{
		ledger:    ledger_repo.New(txm),
		transfers: transfer_repo.New(txm),
		txm:       txm,
	}, nil
}

func (a *App) openCheckpoints(ctx context.Context) (lots.CheckpointStore, error) {
	if a.Config.RedisAddr == "" {
		return memory.NewCheckpointStore(), nil
	}

	client, err := cache.NewClient(ctx, a.Config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.HealthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	store, err := cache.NewCheckpointStore(redis.UniversalClient(client), a.Config.CheckpointTTL)
	if err != nil {
		return nil, err
	}
	a.Checkpoints = store
	logger.Info(ctx, "redis lot checkpoints enabled", "addr", a.Config.RedisAddr, "ttl", a.Config.CheckpointTTL)
	return store, nil
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
