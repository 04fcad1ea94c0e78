// Package transfer_repo provides the PostgreSQL implementation of transfer.Repository.
package transfer_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/storage/postgres"
)

const transfersTable = "stock_transfers"

var transferColumns = postgres.Columns[transferRow]()

// transferRow mirrors stock_transfers; lines are JSONB.
type transferRow struct {
	ID            id.ID      `db:"id"`
	SourceStoreID string     `db:"source_store_id"`
	DestStoreID   string     `db:"dest_store_id"`
	Status        string     `db:"status"`
	Lines         []byte     `db:"lines"`
	ReferenceID   string     `db:"reference_id"`
	Version       int        `db:"version"`
	CreatedAt     time.Time  `db:"created_at"`
	ShippedAt     *time.Time `db:"shipped_at"`
	ReceivedAt    *time.Time `db:"received_at"`
}

func newTransferRow(t *transfer.Transfer) (transferRow, error) {
	lines, err := json.Marshal(t.Lines)
	if err != nil {
		return transferRow{}, fmt.Errorf("encode transfer lines: %w", err)
	}
	return transferRow{
		ID:            t.ID,
		SourceStoreID: t.SourceStoreID,
		DestStoreID:   t.DestStoreID,
		Status:        string(t.Status),
		Lines:         lines,
		ReferenceID:   t.ReferenceID,
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
		ShippedAt:     t.ShippedAt,
		ReceivedAt:    t.ReceivedAt,
	}, nil
}

func (row transferRow) toDomain() (*transfer.Transfer, error) {
	t := &transfer.Transfer{
		ID:            row.ID,
		SourceStoreID: row.SourceStoreID,
		DestStoreID:   row.DestStoreID,
		Status:        transfer.Status(row.Status),
		ReferenceID:   row.ReferenceID,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt,
		ShippedAt:     row.ShippedAt,
		ReceivedAt:    row.ReceivedAt,
	}
	if err := json.Unmarshal(row.Lines, &t.Lines); err != nil {
		return nil, fmt.Errorf("decode transfer lines: %w", err)
	}
	return t, nil
}

// Repo implements transfer.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// New creates the repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ transfer.Repository = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, t *transfer.Transfer) error {
	row, err := newTransferRow(t)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert(transfersTable).
		Columns(transferColumns...).
		Values(postgres.Values(row)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, transferID, false)
}

func (r *Repo) GetForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, transferID, true)
}

func (r *Repo) get(ctx context.Context, transferID id.ID, forUpdate bool) (*transfer.Transfer, error) {
	q := r.builder.Select(transferColumns...).
		From(transfersTable).
		Where(squirrel.Eq{"id": transferID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row transferRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transfer", transferID.String())
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return row.toDomain()
}

// Update writes t when the stored version is t.Version-1.
func (r *Repo) Update(ctx context.Context, t *transfer.Transfer) error {
	row, err := newTransferRow(t)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Update(transfersTable).
		Set("status", row.Status).
		Set("lines", row.Lines).
		Set("version", t.Version).
		Set("shipped_at", t.ShippedAt).
		Set("received_at", t.ReceivedAt).
		Where(squirrel.Eq{"id": t.ID, "version": t.Version - 1}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("transfer", t.ID.String())
	}
	return nil
}

func (r *Repo) List(ctx context.Context, filter transfer.ListFilter) ([]*transfer.Transfer, error) {
	q := r.builder.Select(transferColumns...).From(transfersTable)
	if filter.StoreID != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"source_store_id": filter.StoreID},
			squirrel.Eq{"dest_store_id": filter.StoreID},
		})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []transferRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select transfers: %w", err)
	}

	out := make([]*transfer.Transfer, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
