package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "ADMIN_ID", "PERSISTENCE_ENABLED", "WEB_PORT", "METRICS_PORT",
		"UPDATER_INTERVAL", "UPDATER_ID", "TREASURY_ID", "AUTHORIZED_UPDATERS",
		"SWAP_FEE_BP", "PROTOCOL_FEE_SHARE_BP", "STABLE_DENOM",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultMarketParametersAreValid(t *testing.T) {
	params := DefaultMarketParameters()
	require.NoError(t, params.Validate())
	assert.Equal(t, uint32(30), params.SwapFeeBp)
	assert.Equal(t, uint32(1667), params.ProtocolFeeShareBp)

	// Each call returns an independent copy.
	params.SwapFeeBp = 99
	assert.Equal(t, uint32(30), DefaultMarketParameters().SwapFeeBp)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_ID", "ops")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.AdminID)
	assert.Equal(t, "8080", cfg.WebPort)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 2112, cfg.MetricsPort)
	assert.Equal(t, 10*time.Minute, cfg.UpdaterInterval)
	assert.False(t, cfg.PersistenceEnabled)
	assert.Equal(t, []string{"price-updater"}, cfg.Updaters())
	assert.Equal(t, DefaultMarketParameters().SwapFeeBp, cfg.Market.SwapFeeBp)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_ID", "ops")
	t.Setenv("UPDATER_INTERVAL", "90")
	t.Setenv("UPDATER_ID", "bot-1")
	t.Setenv("AUTHORIZED_UPDATERS", "bot-2, ,bot-1,bot-3")
	t.Setenv("SWAP_FEE_BP", "50")
	t.Setenv("PROTOCOL_FEE_SHARE_BP", "2000")
	t.Setenv("PERSISTENCE_ENABLED", "true")
	t.Setenv("DB_USER", "credmarket")
	t.Setenv("DB_NAME", "credmarket")
	t.Setenv("DB_PORT", "6543")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.UpdaterInterval)
	assert.Equal(t, []string{"bot-1", "bot-2", "bot-3"}, cfg.Updaters())
	assert.Equal(t, uint32(50), cfg.Market.SwapFeeBp)
	assert.Equal(t, uint32(2000), cfg.Market.ProtocolFeeShareBp)
	assert.True(t, cfg.PersistenceEnabled)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing admin", map[string]string{}, "ADMIN_ID"},
		{"bad duration", map[string]string{"ADMIN_ID": "ops", "UPDATER_INTERVAL": "soon"}, "UPDATER_INTERVAL"},
		{"fee above bp range", map[string]string{"ADMIN_ID": "ops", "SWAP_FEE_BP": "20000"}, "SWAP_FEE_BP"},
		{"fee rejected by market rules", map[string]string{"ADMIN_ID": "ops", "SWAP_FEE_BP": "10000"}, "swap fee"},
		{"persistence without db user", map[string]string{"ADMIN_ID": "ops", "PERSISTENCE_ENABLED": "1", "DB_NAME": "x"}, "DB_USER"},
		{"bad bool", map[string]string{"ADMIN_ID": "ops", "PERSISTENCE_ENABLED": "maybe"}, "PERSISTENCE_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
