package transfer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// Ledger is the part of ledger.Service the coordinator depends on.
type Ledger interface {
	AppendBatch(ctx context.Context, movements []entity.NewMovement, guard ledger.Guard) ([]entity.Movement, error)
}

// Coordinator runs the transfer state machine on top of the ledger.
type Coordinator struct {
	repo    Repository
	ledger  Ledger
	txm     tx.Manager
	locks   *keylock.Locker[id.ID]
	metrics metrics.Collector
	now     func() time.Time
}

// NewCoordinator creates a Coordinator. A nil tx manager runs writes directly.
func NewCoordinator(repo Repository, l Ledger, txm tx.Manager, collector metrics.Collector) *Coordinator {
	if txm == nil {
		txm = tx.Direct
	}
	return &Coordinator{
		repo:   repo,
		ledger: l,
		txm:    txm,
		locks: keylock.New(func(a, b id.ID) bool {
			return bytes.Compare(a[:], b[:]) < 0
		}),
		metrics: metrics.OrNop(collector),
		now:     time.Now,
	}
}

// Initiate ships lines from source to dest. The sufficiency check and the
// transfer_out appends happen under the same position locks.
func (c *Coordinator) Initiate(ctx context.Context, sourceStoreID, destStoreID string, lines []LineRequest, referenceID string) (*Transfer, error) {
	if err := validateInitiate(sourceStoreID, destStoreID, lines); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	t := &Transfer{
		ID:            id.New(),
		SourceStoreID: sourceStoreID,
		DestStoreID:   destStoreID,
		Status:        StatusCreated,
		Lines:         make([]Line, 0, len(lines)),
		ReferenceID:   referenceID,
		Version:       1,
		CreatedAt:     now,
	}

	required := make(map[entity.Key]types.Quantity, len(lines))
	movements := make([]entity.NewMovement, 0, len(lines))
	for _, l := range lines {
		t.Lines = append(t.Lines, Line{ProductID: l.ProductID, SentQuantity: l.Quantity})
		required[entity.NewKey(sourceStoreID, l.ProductID)] = l.Quantity
		movements = append(movements, entity.NewMovement{
			StoreID:       sourceStoreID,
			ProductID:     l.ProductID,
			Type:          entity.MovementTransferOut,
			QuantityDelta: l.Quantity.Neg(),
			ReferenceID:   t.ID.String(),
			ReferenceType: "transfer",
		})
	}

	err := c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := c.ledger.AppendBatch(ctx, movements, ledger.RequireAvailable(required)); err != nil {
			return err
		}
		if err := t.transition(StatusInTransit); err != nil {
			return err
		}
		t.ShippedAt = &now
		if err := c.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Record(metrics.Event{Name: metrics.EventTransferInitiated})
	logger.Info(ctx, "transfer shipped",
		"transfer_id", t.ID,
		"source_store_id", sourceStoreID,
		"dest_store_id", destStoreID,
		"lines", len(t.Lines),
		"quantity", t.TotalSent().String(),
	)
	return t, nil
}

func validateInitiate(source, dest string, lines []LineRequest) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return apperror.NewInvalidTransfer("source and destination stores are required")
	}
	if source == dest {
		return apperror.NewInvalidTransfer("source and destination store must differ").
			WithDetail("store_id", source)
	}
	if len(lines) == 0 {
		return apperror.NewInvalidTransfer("transfer has no lines")
	}
	seen := make(map[string]struct{}, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return apperror.NewInvalidTransfer("product id is required").WithDetail("line", i)
		}
		if _, dup := seen[l.ProductID]; dup {
			return apperror.NewInvalidTransfer("product appears on several lines").
				WithDetail("product_id", l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
		if !l.Quantity.IsPositive() {
			return apperror.NewInvalidTransfer("line quantity must be positive").
				WithDetail("product_id", l.ProductID)
		}
	}
	return nil
}

// Receive records what arrived at the destination. Lines missing from received
// count as received zero. Any variance completes the transfer with variance.
func (c *Coordinator) Receive(ctx context.Context, transferID id.ID, received []ReceivedLine) (*Transfer, error) {
	unlock, err := c.locks.Lock(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("acquire transfer lock: %w", err)
	}
	defer unlock()

	var t *Transfer
	err = c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		t, err = c.repo.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status != StatusInTransit {
			return apperror.NewInvalidTransfer(fmt.Sprintf("transfer is %s, cannot receive", t.Status)).
				WithDetail("transfer_id", transferID.String())
		}

		counted, err := receivedByProduct(t, received)
		if err != nil {
			return err
		}

		movements := make([]entity.NewMovement, 0, len(t.Lines))
		next := StatusCompleted
		for i := range t.Lines {
			line := &t.Lines[i]
			qty := counted[line.ProductID]
			line.ReceivedQuantity = &qty
			line.Variance = qty - line.SentQuantity
			if !line.Variance.IsZero() {
				next = StatusCompletedWithVariance
			}
			if qty.IsZero() {
				continue
			}
			movements = append(movements, entity.NewMovement{
				StoreID:       t.DestStoreID,
				ProductID:     line.ProductID,
				Type:          entity.MovementTransferIn,
				QuantityDelta: qty,
				ReferenceID:   t.ID.String(),
				ReferenceType: "transfer",
			})
		}

		if len(movements) > 0 {
			if _, err := c.ledger.AppendBatch(ctx, movements, nil); err != nil {
				return err
			}
		}

		if err := t.transition(next); err != nil {
			return err
		}
		now := c.now().UTC()
		t.ReceivedAt = &now
		t.Version++
		if err := c.repo.Update(ctx, t); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Record(metrics.Event{
		Name:   metrics.EventTransferReceived,
		Labels: map[string]string{"status": string(t.Status)},
	})
	if t.Status == StatusCompletedWithVariance {
		logger.Warn(ctx, "transfer received with variance",
			"transfer_id", t.ID,
			"dest_store_id", t.DestStoreID,
			"variance_lines", len(t.Variances()),
		)
	} else {
		logger.Info(ctx, "transfer received", "transfer_id", t.ID, "dest_store_id", t.DestStoreID)
	}
	return t, nil
}

func receivedByProduct(t *Transfer, received []ReceivedLine) (map[string]types.Quantity, error) {
	sent := make(map[string]struct{}, len(t.Lines))
	for _, l := range t.Lines {
		sent[l.ProductID] = struct{}{}
	}

	out := make(map[string]types.Quantity, len(received))
	for _, r := range received {
		if _, ok := sent[r.ProductID]; !ok {
			return nil, apperror.NewInvalidTransfer("received product was not shipped").
				WithDetail("product_id", r.ProductID)
		}
		if _, dup := out[r.ProductID]; dup {
			return nil, apperror.NewInvalidTransfer("product received on several lines").
				WithDetail("product_id", r.ProductID)
		}
		if r.Quantity.IsNegative() {
			return nil, apperror.NewInvalidTransfer("received quantity must be >= 0").
				WithDetail("product_id", r.ProductID)
		}
		out[r.ProductID] = r.Quantity
	}
	return out, nil
}

// Get returns a transfer by id.
func (c *Coordinator) Get(ctx context.Context, transferID id.ID) (*Transfer, error) {
	return c.repo.GetByID(ctx, transferID)
}

// List returns transfers touching a store, newest first.
func (c *Coordinator) List(ctx context.Context, filter ListFilter) ([]*Transfer, error) {
	return c.repo.List(ctx, filter)
}

func (t *Transfer) transition(to Status) error {
	if !t.Status.canTransition(to) {
		return apperror.NewInvalidTransfer(fmt.Sprintf("transition %s -> %s not allowed", t.Status, to)).
			WithDetail("transfer_id", t.ID.String())
	}
	t.Status = to
	return nil
}
