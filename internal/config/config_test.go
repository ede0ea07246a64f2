package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WATCHCOIN_JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10, cfg.Watch.MinWatchSeconds)
	assert.Equal(t, 10*time.Minute, cfg.Watch.StaleAfter)
	assert.Equal(t, 5*time.Second, cfg.Watch.MaxHeartbeatGap)
	assert.False(t, cfg.Payments.SandboxEnabled)
	assert.Len(t, cfg.Packages, len(DefaultPackages))
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("WATCHCOIN_JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WATCHCOIN_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("WATCHCOIN_PORT", "9090")
	t.Setenv("WATCHCOIN_STALE_AFTER", "90s")
	t.Setenv("WATCHCOIN_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WATCHCOIN_PAYMENT_SANDBOX", "true")
	t.Setenv("WATCHCOIN_PACKAGES", `[{"id":"tiny","name":"Tiny","coins":100,"price_usd":"1.25"}]`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.Watch.StaleAfter)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Payments.SandboxEnabled)
	require.Len(t, cfg.Packages, 1)
	assert.Equal(t, "1.25", cfg.Packages[0].PriceUSD.StringFixed(2))
}

func TestLoadRejectsBadPackages(t *testing.T) {
	t.Setenv("WATCHCOIN_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("WATCHCOIN_PACKAGES", `[{"id":"free","coins":100,"price_usd":"0"}]`)

	_, err := Load()
	require.Error(t, err)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WATCHCOIN_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("WATCHCOIN_PORT", "not-a-port")
	t.Setenv("WATCHCOIN_SWEEP_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Watch.SweepInterval)
}
