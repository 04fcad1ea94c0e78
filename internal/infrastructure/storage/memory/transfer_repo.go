package memory

import (
	"context"
	"sort"
	"sync"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/transfer"
)

// TransferRepo stores transfers by id. Reads return deep copies.
type TransferRepo struct {
	mu        sync.RWMutex
	transfers map[id.ID]*transfer.Transfer
}

func NewTransferRepo() *TransferRepo {
	return &TransferRepo{transfers: make(map[id.ID]*transfer.Transfer)}
}

var _ transfer.Repository = (*TransferRepo)(nil)

func (r *TransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transfers[t.ID]; exists {
		return apperror.NewConcurrentModification("transfer", t.ID.String())
	}
	r.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (r *TransferRepo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transfers[transferID]
	if !ok {
		return nil, apperror.NewNotFound("transfer", transferID.String())
	}
	return cloneTransfer(t), nil
}

func (r *TransferRepo) GetForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.GetByID(ctx, transferID)
}

func (r *TransferRepo) Update(ctx context.Context, t *transfer.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.transfers[t.ID]
	if !ok {
		return apperror.NewNotFound("transfer", t.ID.String())
	}
	if cur.Version != t.Version-1 {
		return apperror.NewConcurrentModification("transfer", t.ID.String())
	}
	r.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (r *TransferRepo) List(ctx context.Context, filter transfer.ListFilter) ([]*transfer.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*transfer.Transfer, 0)
	for _, t := range r.transfers {
		if filter.StoreID != "" && t.SourceStoreID != filter.StoreID && t.DestStoreID != filter.StoreID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, cloneTransfer(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneTransfer(t *transfer.Transfer) *transfer.Transfer {
	c := *t
	c.Lines = make([]transfer.Line, len(t.Lines))
	for i, l := range t.Lines {
		if l.ReceivedQuantity != nil {
			q := *l.ReceivedQuantity
			l.ReceivedQuantity = &q
		}
		c.Lines[i] = l
	}
	return &c
}
