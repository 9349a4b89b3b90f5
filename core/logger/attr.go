package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Attribute helpers use the empty Attr pattern for nil safety, so call
// sites can write log.Info("msg", logger.Error(err)) without nil checks.

// Error records a non-nil error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Component tags the log record with the emitting component name.
func Component(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("component", name)
}

// UUID records a non-nil identifier under the given key.
func UUID(key string, id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String(key, id.String())
}

// Namespace records the active tenant namespace.
func Namespace(ns string) slog.Attr {
	if ns == "" {
		return slog.Attr{}
	}
	return slog.String("tenant_namespace", ns)
}
