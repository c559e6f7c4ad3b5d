package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("STREAM_BUFFER_SIZE", "16")
	t.Setenv("ME_TIMEOUT_MS", "250")
	t.Setenv("FEED_TRANSPORT", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("SIM_DEPOSITS", "BTC:1,USD:10")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, 16, cfg.Stream.BufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Timeout)
	assert.Equal(t, "kafka", cfg.Feed.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Feed.KafkaBrokers)
	assert.True(t, cfg.Auth.Disabled)
	assert.Equal(t, []string{"BTC:1", "USD:10"}, cfg.Sim.Deposits)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STREAM_SHARDS=8\nHISTORY_PATH=/tmp/hist\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("STREAM_SHARDS")
		os.Unsetenv("HISTORY_PATH")
	})

	cfg := LoadFromEnv(path)
	assert.Equal(t, 8, cfg.Stream.Shards)
	assert.Equal(t, "/tmp/hist", cfg.History.Path)
}

func TestInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("STREAM_BUFFER_SIZE", "lots")
	t.Setenv("ME_TIMEOUT_MS", "-5")
	t.Setenv("WS_PONG_WAIT_MS", "1000")
	t.Setenv("WS_PING_PERIOD_MS", "5000")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	def := Default()

	assert.Equal(t, def.Stream.BufferSize, cfg.Stream.BufferSize)
	assert.Equal(t, def.Engine.Timeout, cfg.Engine.Timeout)
	assert.Less(t, cfg.API.PingPeriod, cfg.API.PongWait)
}
