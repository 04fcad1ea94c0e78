package valuation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/lots"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/valuation")

// DefaultBatchSize is the number of lot fetches in flight per group.
const DefaultBatchSize = 10

// LotProvider returns the lot pool of a position. Implemented by lots.Tracker.
type LotProvider interface {
	BuildLots(ctx context.Context, storeID, productID string) (lots.Pool, error)
}

// Config tunes batch valuation.
type Config struct {
	BatchSize int
	// LotFetchTimeout bounds each lot fetch; zero disables the bound.
	LotFetchTimeout time.Duration
}

// BatchResult aggregates the valuation of many positions.
type BatchResult struct {
	Method          Method         `json:"method"`
	TotalValue      types.Money    `json:"totalValue"`
	TotalQuantity   types.Quantity `json:"totalQuantity"`
	AverageUnitCost types.Money    `json:"averageUnitCost"`
	Products        []Result       `json:"productBreakdown"`
	// Failures lists positions excluded because their lots could not be fetched.
	Failures []*apperror.AppError `json:"failures"`
	// Warnings lists integrity problems of valued positions.
	Warnings []*apperror.AppError `json:"warnings"`
	// Partial is set when the batch stopped early on cancellation.
	Partial      bool      `json:"partial"`
	CalculatedAt time.Time `json:"calculatedAt"`
}

// Engine values positions using lots from a LotProvider.
type Engine struct {
	provider LotProvider
	cfg      Config
	metrics  metrics.Collector
	now      func() time.Time
}

// NewEngine creates a valuation engine.
func NewEngine(provider LotProvider, cfg Config, collector metrics.Collector) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Engine{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics.OrNop(collector),
		now:      time.Now,
	}
}

// ValuateProduct fetches the lots of one position and values its quantity.
func (e *Engine) ValuateProduct(ctx context.Context, level entity.StockLevel, method Method) (Result, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return Result{}, err
	}
	start := time.Now()

	pool, err := e.fetchLots(ctx, level)
	if err != nil {
		return Result{}, err
	}
	res, err := Valuate(level, pool.Lots, method)
	if err != nil {
		return Result{}, err
	}
	if res.Warning == nil {
		res.Warning = pool.Warning()
	}

	e.metrics.Record(metrics.Event{
		Name:     metrics.EventValuation,
		Duration: time.Since(start),
		Labels:   map[string]string{"method": string(method)},
	})
	return res, nil
}

func (e *Engine) fetchLots(ctx context.Context, level entity.StockLevel) (lots.Pool, error) {
	if e.cfg.LotFetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.LotFetchTimeout)
		defer cancel()
	}
	pool, err := e.provider.BuildLots(ctx, level.StoreID, level.ProductID)
	if err != nil {
		return lots.Pool{}, apperror.NewLotFetchFailure(level.StoreID, level.ProductID, err)
	}
	return pool, nil
}

type outcome struct {
	result Result
	err    error
}

// ValuateBatch values levels in groups of BatchSize. Each group runs concurrently
// and is awaited before the next starts. A failed lot fetch excludes only that
// position. On cancellation the positions valued so far are returned with Partial set.
func (e *Engine) ValuateBatch(ctx context.Context, levels []entity.StockLevel, method Method) (BatchResult, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return BatchResult{}, err
	}

	ctx, span := tracer.Start(ctx, "valuation.batch",
		trace.WithAttributes(
			attribute.String("valuation.method", string(method)),
			attribute.Int("valuation.positions", len(levels)),
			attribute.Int("valuation.batch_size", e.cfg.BatchSize),
		))
	defer span.End()

	start := time.Now()
	out := BatchResult{
		Method:          method,
		TotalValue:      types.Zero(),
		AverageUnitCost: types.Zero(),
		Products:        make([]Result, 0, len(levels)),
		Failures:        []*apperror.AppError{},
		Warnings:        []*apperror.AppError{},
	}

	for from := 0; from < len(levels); from += e.cfg.BatchSize {
		if ctx.Err() != nil {
			out.Partial = true
			break
		}
		to := min(from+e.cfg.BatchSize, len(levels))
		group := levels[from:to]
		outcomes := make([]outcome, len(group))

		var g errgroup.Group
		for i, level := range group {
			g.Go(func() error {
				res, err := e.ValuateProduct(ctx, level, method)
				outcomes[i] = outcome{result: res, err: err}
				// Failures are collected per position; returning nil keeps siblings running.
				return nil
			})
		}
		_ = g.Wait()

		cancelled := ctx.Err() != nil
		for i, o := range outcomes {
			if o.err != nil {
				if cancelled && isCancellation(o.err) {
					continue
				}
				e.recordFailure(ctx, group[i], o.err, &out)
				continue
			}
			out.Products = append(out.Products, o.result)
			if o.result.Warning != nil {
				out.Warnings = append(out.Warnings, o.result.Warning)
			}
		}
		if cancelled {
			out.Partial = to < len(levels) || len(out.Products)+len(out.Failures) < to
			break
		}
	}

	for _, r := range out.Products {
		out.TotalValue = out.TotalValue.Add(r.TotalValue)
		if r.Quantity.IsPositive() {
			out.TotalQuantity += r.Quantity
		}
	}
	if out.TotalQuantity.IsPositive() {
		out.AverageUnitCost = out.TotalValue.Div(out.TotalQuantity.Decimal())
	}
	out.CalculatedAt = e.now().UTC()

	span.SetAttributes(
		attribute.Int("valuation.valued", len(out.Products)),
		attribute.Int("valuation.failures", len(out.Failures)),
		attribute.Bool("valuation.partial", out.Partial),
	)
	if out.Partial {
		span.SetStatus(codes.Error, "batch interrupted")
	}
	e.metrics.Record(metrics.Event{
		Name:     metrics.EventBatchValuation,
		Duration: time.Since(start),
		Labels:   map[string]string{"method": string(method)},
	})

	return out, nil
}

func (e *Engine) recordFailure(ctx context.Context, level entity.StockLevel, err error, out *BatchResult) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewLotFetchFailure(level.StoreID, level.ProductID, err)
	}
	out.Failures = append(out.Failures, appErr)
	e.metrics.Record(metrics.Event{Name: metrics.EventLotFetchFailure})
	logger.Warn(ctx, "position excluded from batch valuation",
		"store_id", level.StoreID,
		"product_id", level.ProductID,
		"error", err,
	)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
