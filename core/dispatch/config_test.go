package dispatch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/config"
	"github.com/veridoc/veridoc/core/dispatch"
)

func TestConfig(t *testing.T) {
	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DISPATCH_POLL_INTERVAL", "500ms")
		t.Setenv("DISPATCH_CONCURRENCY", "8")
		t.Setenv("DISPATCH_QUEUES", "generation,renders")

		var cfg dispatch.Config
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, 8, cfg.Concurrency)
		assert.Equal(t, []string{"generation", "renders"}, cfg.Queues)
	})

	t.Run("defaults match DefaultConfig", func(t *testing.T) {
		assert.Equal(t, dispatch.DefaultConfig().LockTimeout, 2*time.Minute)
		assert.Equal(t, dispatch.DefaultConfig().MaxAttempts, 3)
	})
}
