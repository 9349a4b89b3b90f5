// Package config provides type-safe environment variable loading with
// per-type caching using Go generics.
//
// The package loads .env files once on first use and parses environment
// variables into struct fields via the caarlos0/env library.
//
// Basic usage:
//
//	type DatabaseConfig struct {
//		URL string `env:"DATABASE_URL,required"`
//	}
//
//	var db DatabaseConfig
//	if err := config.Load(&db); err != nil {
//		log.Fatal(err)
//	}
//
//	// Or panic on failure (useful for startup)
//	config.MustLoad(&db)
//
// Each configuration type is loaded only once per process; subsequent Load
// calls for the same type return the cached value.
package config
