// Package ledger_repo provides the PostgreSQL implementation of ledger.Repository.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"
	levelsTable    = "stock_levels"

	uniqueViolation = "23505"
)

var movementColumns = []string{
	"id", "store_id", "product_id", "sequence", "movement_type",
	"quantity_delta", "unit_cost", "recorded_at", "reference_id", "reference_type",
}

var levelColumns = []string{
	"store_id", "product_id", "quantity", "reserved_quantity", "version", "last_updated",
}

// Repo implements ledger.Repository.
type Repo struct {
	txm      *postgres.TxManager
	inserter *postgres.BatchInserter
	builder  squirrel.StatementBuilderType
}

// New creates the repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:      txm,
		inserter: postgres.NewBatchInserter(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ ledger.Repository = (*Repo)(nil)

func movementRow(m entity.Movement) []any {
	return []any{
		m.ID, m.StoreID, m.ProductID, m.Sequence, string(m.Type),
		m.QuantityDelta.Int64Scaled(), m.UnitCost, m.RecordedAt, m.ReferenceID, m.ReferenceType,
	}
}

// InsertMovements appends movements, through COPY for large batches.
func (r *Repo) InsertMovements(ctx context.Context, movements []entity.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	if r.inserter.UseCopy(ctx, len(movements)) {
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, movementRow(m))
		}
		if _, err := r.inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
			return mapWriteError(fmt.Errorf("copy movements: %w", err))
		}
		return nil
	}

	q := r.builder.Insert(movementsTable).Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(movementRow(m)...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return mapWriteError(fmt.Errorf("insert movements: %w", err))
	}
	return nil
}

// mapWriteError turns a sequence collision into ConcurrentModification.
// It can only happen when another process appended to the same position.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperror.NewConcurrentModification("movement", pgErr.ConstraintName).WithCause(err)
	}
	return err
}

// ListMovements returns movements of a position ordered by sequence.
func (r *Repo) ListMovements(ctx context.Context, key entity.Key, filter ledger.MovementFilter) ([]entity.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"store_id": key.StoreID, "product_id": key.ProductID})

	if filter.AfterSequence > 0 {
		q = q.Where(squirrel.Gt{"sequence": filter.AfterSequence})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"recorded_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"recorded_at": *filter.To})
	}
	q = q.OrderBy("sequence")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	movements := make([]entity.Movement, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// GetLevel returns the cached level, or an empty one for an unknown position.
func (r *Repo) GetLevel(ctx context.Context, key entity.Key) (entity.StockLevel, error) {
	sql, args, err := r.builder.Select(levelColumns...).
		From(levelsTable).
		Where(squirrel.Eq{"store_id": key.StoreID, "product_id": key.ProductID}).
		Limit(1).
		ToSql()
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("build query: %w", err)
	}

	var level entity.StockLevel
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &level, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.EmptyLevel(key), nil
		}
		return entity.StockLevel{}, fmt.Errorf("get level: %w", err)
	}
	return level, nil
}

// GetLevelForUpdate locks the level row for the current transaction. A row is
// created first for new positions so there is always something to lock.
func (r *Repo) GetLevelForUpdate(ctx context.Context, key entity.Key) (entity.StockLevel, error) {
	querier := r.txm.GetQuerier(ctx)

	_, err := querier.Exec(ctx, `
		INSERT INTO stock_levels (store_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT (store_id, product_id) DO NOTHING
	`, key.StoreID, key.ProductID)
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("ensure level row: %w", err)
	}

	var level entity.StockLevel
	err = pgxscan.Get(ctx, querier, &level, `
		SELECT store_id, product_id, quantity, reserved_quantity, version, last_updated
		FROM stock_levels
		WHERE store_id = $1 AND product_id = $2
		FOR UPDATE
	`, key.StoreID, key.ProductID)
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("get level for update: %w", err)
	}
	if level.Version == 0 {
		// Placeholder row: normalize the epoch default to the zero time.
		level.LastUpdated = entity.EmptyLevel(key).LastUpdated
	}
	return level, nil
}

// SaveLevel upserts the cached level.
func (r *Repo) SaveLevel(ctx context.Context, level entity.StockLevel) error {
	sql, args, err := r.builder.Insert(levelsTable).
		Columns(levelColumns...).
		Values(level.StoreID, level.ProductID, level.Quantity.Int64Scaled(),
			level.ReservedQuantity.Int64Scaled(), level.Version, level.LastUpdated).
		Suffix(`ON CONFLICT (store_id, product_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			reserved_quantity = EXCLUDED.reserved_quantity,
			version = EXCLUDED.version,
			last_updated = EXCLUDED.last_updated`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("save level: %w", err)
	}
	return nil
}

// ListLevels returns cached levels ordered by store, product.
func (r *Repo) ListLevels(ctx context.Context, filter ledger.LevelFilter) ([]entity.StockLevel, error) {
	q := r.builder.Select(levelColumns...).From(levelsTable)
	if filter.StoreID != "" {
		q = q.Where(squirrel.Eq{"store_id": filter.StoreID})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.Or{
			squirrel.NotEq{"quantity": int64(0)},
			squirrel.NotEq{"reserved_quantity": int64(0)},
		})
	}
	q = q.OrderBy("store_id", "product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	levels := make([]entity.StockLevel, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &levels, sql, args...); err != nil {
		return nil, fmt.Errorf("select levels: %w", err)
	}
	return levels, nil
}
