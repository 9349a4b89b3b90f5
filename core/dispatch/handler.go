package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler processes jobs of one kind. The payload arrives as raw JSON and
// is decoded by the handler.
type Handler interface {
	Kind() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// JobHandlerFunc is a type-safe handler function; T is the payload type.
type JobHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewJobHandler wraps a typed function as a Handler for the given kind.
func NewJobHandler[T any](kind string, fn JobHandlerFunc[T]) Handler {
	return &jobHandler[T]{kind: kind, fn: fn}
}

type jobHandler[T any] struct {
	kind string
	fn   JobHandlerFunc[T]
}

func (h *jobHandler[T]) Kind() string { return h.kind }

func (h *jobHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.kind, err)
	}
	return h.fn(ctx, t)
}
