package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// copyThreshold is the row count from which COPY beats a multi-row INSERT.
const copyThreshold = 8

// BatchInserter bulk-loads rows with the COPY protocol. It requires a
// transaction in ctx so a failed load never leaves half a batch behind.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice inserts rows into table. Each row matches columns.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}

	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, err
	}
	if n != int64(len(rows)) {
		return n, fmt.Errorf("copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

// UseCopy reports whether a batch of n rows should go through COPY.
func (b *BatchInserter) UseCopy(ctx context.Context, n int) bool {
	return n >= copyThreshold && b.txManager.GetTx(ctx) != nil
}
