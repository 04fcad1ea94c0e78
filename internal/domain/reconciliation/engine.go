package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/valuation"
	"stockledger/pkg/logger"
)

// Ledger is the part of ledger.Service the engine depends on.
type Ledger interface {
	CurrentLevel(ctx context.Context, storeID, productID string) (entity.StockLevel, error)
	AppendBatch(ctx context.Context, movements []entity.NewMovement, guard ledger.Guard) ([]entity.Movement, error)
}

// Valuer provides the current unit cost of a position.
type Valuer interface {
	ValuateProduct(ctx context.Context, level entity.StockLevel, method valuation.Method) (valuation.Result, error)
}

// CountLine is one counted product.
type CountLine struct {
	ProductID        string         `json:"productId"`
	PhysicalQuantity types.Quantity `json:"physicalQuantity"`
}

// CountReport is the reconciliation of a whole physical count.
type CountReport struct {
	StoreID          string                     `json:"storeId"`
	Method           valuation.Method           `json:"method"`
	Records          []entity.DiscrepancyRecord `json:"records"`
	SurplusQuantity  types.Quantity             `json:"surplusQuantity"`
	ShortageQuantity types.Quantity             `json:"shortageQuantity"`
	SurplusValue     types.Money                `json:"surplusValue"`
	ShortageValue    types.Money                `json:"shortageValue"`
	Significant      int                        `json:"significantCount"`
	CountedAt        time.Time                  `json:"countedAt"`
}

// Engine reconciles counts against the ledger.
type Engine struct {
	ledger  Ledger
	valuer  Valuer
	policy  Policy
	metrics metrics.Collector
	now     func() time.Time
}

// NewEngine creates an engine. A nil policy uses DefaultThresholds.
func NewEngine(l Ledger, v Valuer, policy Policy, collector metrics.Collector) *Engine {
	if policy == nil {
		policy = DefaultThresholds()
	}
	return &Engine{
		ledger:  l,
		valuer:  v,
		policy:  policy,
		metrics: metrics.OrNop(collector),
		now:     time.Now,
	}
}

// Reconcile classifies one discrepancy with the engine's policy.
func (e *Engine) Reconcile(productID string, theoretical, physical types.Quantity, unitCost types.Money) (entity.DiscrepancyRecord, error) {
	rec, err := Reconcile(productID, theoretical, physical, unitCost, e.policy)
	if err == nil {
		e.metrics.Record(metrics.Event{
			Name:   metrics.EventReconciliation,
			Labels: map[string]string{"severity": string(rec.Severity)},
		})
	}
	return rec, err
}

// ReconcileCount reconciles every counted line of a store. Theoretical quantities
// come from the ledger, unit costs from the valuation method.
func (e *Engine) ReconcileCount(ctx context.Context, storeID string, lines []CountLine, method valuation.Method) (CountReport, error) {
	if err := validateCount(storeID, lines); err != nil {
		return CountReport{}, err
	}

	report := CountReport{
		StoreID:       storeID,
		Method:        method,
		Records:       make([]entity.DiscrepancyRecord, 0, len(lines)),
		SurplusValue:  types.Zero(),
		ShortageValue: types.Zero(),
	}

	for _, line := range lines {
		level, err := e.ledger.CurrentLevel(ctx, storeID, line.ProductID)
		if err != nil {
			return CountReport{}, fmt.Errorf("current level of %s: %w", line.ProductID, err)
		}
		valued, err := e.valuer.ValuateProduct(ctx, level, method)
		if err != nil {
			return CountReport{}, err
		}

		rec, err := e.Reconcile(line.ProductID, level.Quantity, line.PhysicalQuantity, valued.UnitCost)
		if err != nil {
			return CountReport{}, err
		}
		report.Records = append(report.Records, rec)

		switch {
		case rec.IsSurplus():
			report.SurplusQuantity += rec.DeltaQuantity
			report.SurplusValue = report.SurplusValue.Add(rec.DeltaValue)
		case rec.IsShortage():
			report.ShortageQuantity += rec.DeltaQuantity.Abs()
			report.ShortageValue = report.ShortageValue.Add(rec.DeltaValue.Abs())
		}
		if rec.Severity == entity.SeveritySignificant {
			report.Significant++
		}
	}

	report.CountedAt = e.now().UTC()
	logger.Info(ctx, "physical count reconciled",
		"store_id", storeID,
		"lines", len(lines),
		"significant", report.Significant,
		"shortage_value", report.ShortageValue.String(),
	)
	return report, nil
}

func validateCount(storeID string, lines []CountLine) error {
	if strings.TrimSpace(storeID) == "" {
		return apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}
	if len(lines) == 0 {
		return apperror.NewValidation("count has no lines")
	}
	seen := make(map[string]struct{}, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return apperror.NewValidation("product id is required").WithDetail("line", i)
		}
		if _, dup := seen[l.ProductID]; dup {
			return apperror.NewValidation("product counted twice").WithDetail("productId", l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
		if l.PhysicalQuantity.IsNegative() {
			return apperror.NewValidation("physical quantity must be >= 0").WithDetail("productId", l.ProductID)
		}
	}
	return nil
}

// Accept absorbs one discrepancy with a count_adjustment movement. A zero delta
// appends nothing and returns nil. If the ledger moved since the count was
// reconciled, the acceptance is refused with ConcurrentModification.
func (e *Engine) Accept(ctx context.Context, storeID string, rec entity.DiscrepancyRecord, referenceID string) (*entity.Movement, error) {
	out, err := e.AcceptCount(ctx, storeID, []entity.DiscrepancyRecord{rec}, referenceID)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

// AcceptCount accepts several discrepancies of one store atomically. A count
// below the reserved quantity is refused with InsufficientStock until the
// reservations are released.
func (e *Engine) AcceptCount(ctx context.Context, storeID string, records []entity.DiscrepancyRecord, referenceID string) ([]entity.Movement, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}

	expected := make(map[entity.Key]types.Quantity, len(records))
	movements := make([]entity.NewMovement, 0, len(records))
	for _, rec := range records {
		if rec.PhysicalQuantity.IsNegative() {
			return nil, apperror.NewValidation("physical quantity must be >= 0").
				WithDetail("productId", rec.ProductID)
		}
		if rec.DeltaQuantity != rec.PhysicalQuantity-rec.TheoreticalQuantity {
			return nil, apperror.NewValidation("delta does not match physical minus theoretical quantity").
				WithDetail("productId", rec.ProductID)
		}
		key := entity.NewKey(storeID, rec.ProductID)
		if _, dup := expected[key]; dup {
			return nil, apperror.NewValidation("product accepted twice").WithDetail("productId", rec.ProductID)
		}
		expected[key] = rec.TheoreticalQuantity
		if rec.DeltaQuantity.IsZero() {
			continue
		}
		movements = append(movements, entity.NewMovement{
			StoreID:       storeID,
			ProductID:     rec.ProductID,
			Type:          entity.MovementCountAdjustment,
			QuantityDelta: rec.DeltaQuantity,
			ReferenceID:   referenceID,
			ReferenceType: "physical_count",
		})
	}
	if len(movements) == 0 {
		return nil, nil
	}

	out, err := e.ledger.AppendBatch(ctx, movements, func(levels map[entity.Key]entity.StockLevel) error {
		for _, m := range movements {
			key := m.Key()
			level := levels[key]
			if level.Quantity != expected[key] {
				return apperror.NewConcurrentModification("stock_level", key.String()).
					WithDetail("expected", expected[key].String()).
					WithDetail("actual", level.Quantity.String())
			}
			if counted := level.Quantity + m.QuantityDelta; counted < level.ReservedQuantity {
				return apperror.NewInsufficientStock(key.StoreID, key.ProductID,
					level.ReservedQuantity.String(), counted.String()).
					WithDetail("reason", "count is below reserved quantity")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Record(metrics.Event{Name: metrics.EventAdjustmentAccepted, Count: int64(len(out))})
	logger.Info(ctx, "count adjustments accepted",
		"store_id", storeID,
		"reference_id", referenceID,
		"movements", len(out),
	)
	return out, nil
}
