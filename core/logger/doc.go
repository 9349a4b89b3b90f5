// Package logger builds the process-wide slog.Logger from environment
// configuration and provides nil-safe attribute helpers for structured
// logging.
//
// Usage:
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log := logger.New(cfg)
//	log.Info("certificate issued", logger.Component("engine"), logger.Error(err))
//
// Attribute helpers return an empty attr for nil/zero input so call sites
// never need explicit nil checks.
package logger
