package dispatch

import "time"

// Config holds worker and publisher settings, mapped from the environment.
type Config struct {
	PollInterval    time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"2s"`
	LockTimeout     time.Duration `env:"DISPATCH_LOCK_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout time.Duration `env:"DISPATCH_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	Concurrency     int           `env:"DISPATCH_CONCURRENCY" envDefault:"3"`
	Queues          []string      `env:"DISPATCH_QUEUES" envDefault:"generation" envSeparator:","`

	DefaultQueue string `env:"DISPATCH_DEFAULT_QUEUE" envDefault:"generation"`
	MaxAttempts  int    `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
}

// DefaultConfig returns production defaults. Concurrency stays deliberately
// small; the renderer is the bottleneck, not the queue.
func DefaultConfig() Config {
	return Config{
		PollInterval:    2 * time.Second,
		LockTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		Concurrency:     3,
		Queues:          []string{DefaultQueueName},
		DefaultQueue:    DefaultQueueName,
		MaxAttempts:     3,
	}
}
