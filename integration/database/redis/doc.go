// Package redis provides Redis client initialization with retry logic and
// health checking.
//
// The service uses Redis for the per-tenant monthly quota counters. Connect
// validates the connection URL, retries with backoff, and verifies
// connectivity with a ping before returning the client.
//
// Configuration is handled through the Config struct with environment
// variable mapping:
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL,required"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// Both redis:// and rediss:// URL schemes are supported. Healthcheck returns
// a probe function suitable for readiness endpoints.
package redis
