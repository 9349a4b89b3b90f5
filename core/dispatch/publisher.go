package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Publisher stores jobs through a Broker. One job is published per delivery
// attempt; redelivery semantics live in the worker and the handler.
type Publisher struct {
	broker       Broker
	defaultQueue string
	maxAttempts  int8
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

func WithDefaultQueue(queue string) PublisherOption {
	return func(p *Publisher) {
		if queue != "" {
			p.defaultQueue = queue
		}
	}
}

func WithMaxAttempts(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 && n <= 127 {
			p.maxAttempts = int8(n)
		}
	}
}

func NewPublisher(broker Broker, opts ...PublisherOption) (*Publisher, error) {
	if broker == nil {
		return nil, ErrBrokerNil
	}

	p := &Publisher{
		broker:       broker,
		defaultQueue: DefaultQueueName,
		maxAttempts:  3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewPublisherFromConfig builds a Publisher from environment configuration;
// explicit options override config values.
func NewPublisherFromConfig(cfg Config, broker Broker, opts ...PublisherOption) (*Publisher, error) {
	allOpts := append([]PublisherOption{
		WithDefaultQueue(cfg.DefaultQueue),
		WithMaxAttempts(cfg.MaxAttempts),
	}, opts...)
	return NewPublisher(broker, allOpts...)
}

// PublishOption adjusts a single publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	queue string
	delay time.Duration
}

func ToQueue(queue string) PublishOption {
	return func(o *publishOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithDelay(d time.Duration) PublishOption {
	return func(o *publishOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Publish JSON-encodes the payload and stores it as a pending job of the
// given kind.
func (p *Publisher) Publish(ctx context.Context, kind string, payload any, opts ...PublishOption) error {
	if payload == nil {
		return ErrPayloadNil
	}
	if kind == "" {
		return fmt.Errorf("job kind is required")
	}

	options := &publishOptions{queue: p.defaultQueue}
	for _, opt := range opts {
		opt(options)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload of type %T: %w", payload, err)
	}

	now := time.Now()
	job := &Job{
		ID:          uuid.New(),
		Queue:       options.queue,
		Kind:        kind,
		Payload:     body,
		Status:      JobStatusPending,
		Attempts:    0,
		MaxAttempts: p.maxAttempts,
		ScheduledAt: now.Add(options.delay),
		CreatedAt:   now,
	}

	if err := p.broker.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create %q job in queue %q: %w", kind, job.Queue, err)
	}
	return nil
}
