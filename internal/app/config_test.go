package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain/valuation"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 10, cfg.ValuationBatchSize)
	assert.Equal(t, 5*time.Second, cfg.LotFetchTimeout)
	assert.Equal(t, valuation.MethodFIFO, cfg.Method())
	assert.Equal(t, int32(2), cfg.CurrencyDecimals)
	assert.True(t, cfg.Thresholds().Value.IsZero())
	assert.Equal(t, "0.1", cfg.Thresholds().Ratio.String())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("VALUATION_METHOD", "wac")
	t.Setenv("RECON_VALUE_THRESHOLD", "500")
	t.Setenv("CHECKPOINT_EVERY", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, valuation.MethodWeightedAverage, cfg.Method())
	assert.Equal(t, "500", cfg.Thresholds().Value.String())
	assert.Equal(t, 25, cfg.CheckpointEvery)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":       {"STORAGE_DRIVER": "sqlite"},
		"postgres without url": {"STORAGE_DRIVER": "postgres"},
		"unknown method":       {"VALUATION_METHOD": "median"},
		"zero batch":           {"VALUATION_BATCH_SIZE": "0"},
		"negative value":       {"RECON_VALUE_THRESHOLD": "-1"},
		"too many decimals":    {"CURRENCY_DECIMALS": "12"},
		"unparseable duration": {"LOT_FETCH_TIMEOUT": "soon"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
