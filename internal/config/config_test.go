package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, uint64(1000), cfg.Matcher.SnapshotInterval)
	assert.Equal(t, time.Minute, cfg.Matcher.OrderCleanupInterval)
	assert.False(t, cfg.Matcher.RecoverOrderHistory)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7777
matcher:
  data_dir: /tmp/books
  snapshot_interval: 50
  order_cleanup_interval: 5s
  recover_order_history: true
  min_price: 10
  max_price: 100000
  price_tick: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, uint64(50), cfg.Matcher.SnapshotInterval)
	assert.Equal(t, 5*time.Second, cfg.Matcher.OrderCleanupInterval)
	assert.True(t, cfg.Matcher.RecoverOrderHistory)

	book := cfg.ExchangeConfig().Book
	assert.Equal(t, uint64(10), book.MinPrice)
	assert.Equal(t, uint64(100000), book.MaxPrice)
	assert.Equal(t, uint64(5), book.PriceTick)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Matcher.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Matcher.SnapshotInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Matcher.MinPrice = 10
	cfg.Matcher.MaxPrice = 5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Port = -1
	assert.Error(t, cfg.Validate())
}
