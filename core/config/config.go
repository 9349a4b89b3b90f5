package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu    sync.Mutex
	cache = make(map[string]any)

	dotenvOnce sync.Once
)

// Load parses environment variables into cfg. The first call for a given
// type reads the environment; later calls return the cached value so every
// component sees the same configuration.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config: nil target")
	}

	// Missing .env is not an error; environment variables take precedence.
	dotenvOnce.Do(func() { _ = godotenv.Load() })

	key := fmt.Sprintf("%T", *cfg)

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", key, err)
	}

	cache[key] = *cfg
	return nil
}

// MustLoad is Load that panics on failure. Intended for application startup
// where a missing required variable should abort the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
