package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

func memoryConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestBuild_Memory(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Checkpoints)
	assert.Empty(t, a.HealthChecks)

	cost := types.MustMoney("4")
	_, err = a.Ledger.Append(ctx, entity.NewMovement{
		StoreID: "S1", ProductID: "P1", Type: entity.MovementArrival,
		QuantityDelta: types.NewQuantity(5), UnitCost: &cost,
	})
	require.NoError(t, err)

	level, err := a.Ledger.CurrentLevel(ctx, "S1", "P1")
	require.NoError(t, err)
	res, err := a.Valuation.ValuateProduct(ctx, level, a.Config.Method())
	require.NoError(t, err)
	assert.True(t, res.TotalValue.Equal(types.MustMoney("20")))
}

func TestBuild_RedisCheckpoints(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t)
	cfg.RedisAddr = mr.Addr()
	cfg.CheckpointEvery = 1

	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Checkpoints)
	require.Contains(t, a.HealthChecks, "redis")
	require.NoError(t, a.HealthChecks["redis"].Ping(ctx))

	cost := types.MustMoney("1")
	_, err = a.Ledger.Append(ctx, entity.NewMovement{
		StoreID: "S1", ProductID: "P1", Type: entity.MovementArrival,
		QuantityDelta: types.NewQuantity(2), UnitCost: &cost,
	})
	require.NoError(t, err)

	_, err = a.Lots.BuildLots(ctx, "S1", "P1")
	require.NoError(t, err)

	saved, err := a.Checkpoints.Load(ctx, entity.NewKey("S1", "P1"))
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, int64(1), saved.LastSequence)
}

func TestBuild_InvalidSeverityExpression(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.ReconSeverityExpr = "ratio >"

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECON_SEVERITY_EXPR")
}

func TestBuild_RedisUnreachable(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}
