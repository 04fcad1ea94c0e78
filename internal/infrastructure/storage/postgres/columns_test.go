package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type auditStamp struct {
	Version   int       `db:"version"`
	CreatedAt time.Time `db:"created_at"`
}

type sampleRow struct {
	ID    string `db:"id"`
	Lines []byte `db:"lines"`
	Skip  string `db:"-"`
	Note  string
	auditStamp
}

func TestColumns_FollowsFieldOrder(t *testing.T) {
	assert.Equal(t, []string{"id", "lines", "version", "created_at"}, Columns[sampleRow]())
	assert.Equal(t, Columns[sampleRow](), Columns[*sampleRow]())
}

func TestValues_AlignedWithColumns(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	row := sampleRow{
		ID:         "T-1",
		Lines:      []byte(`[]`),
		Skip:       "ignored",
		Note:       "ignored",
		auditStamp: auditStamp{Version: 3, CreatedAt: now},
	}

	assert.Equal(t, []any{"T-1", []byte(`[]`), 3, now}, Values(row))
	assert.Equal(t, Values(row), Values(&row))
}
