package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30, cfg.SireneRateLimit)
	assert.Equal(t, time.Minute, cfg.SireneRateWindow)
	assert.Equal(t, 15*time.Second, cfg.ViesTimeout)
	assert.Equal(t, "9.9", cfg.DeliveryFee.String())
	assert.False(t, cfg.DevTools)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SIRENE_RATE_LIMIT", "10")
	t.Setenv("DELIVERY_FEE", "4.50")
	t.Setenv("DEV_TOOLS", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ORDER_TTL", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10, cfg.SireneRateLimit)
	assert.Equal(t, "4.5", cfg.DeliveryFee.String())
	assert.True(t, cfg.DevTools)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.OrderTTL)
}

func TestLoadDotEnv_EnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHOP_TEST_A=from-file\nSHOP_TEST_B=\"quoted\"\n"), 0o600))

	t.Setenv("SHOP_TEST_A", "from-env")
	t.Setenv("SHOP_TEST_B", "")
	require.NoError(t, os.Unsetenv("SHOP_TEST_B"))

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-env", os.Getenv("SHOP_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("SHOP_TEST_B"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
