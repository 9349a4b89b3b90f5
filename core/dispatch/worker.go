package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/logger"
)

// Worker is the consumer pool: up to Concurrency jobs are processed at once,
// each claimed atomically from the broker with a lock timeout.
type Worker struct {
	broker   Broker
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex

	pollInterval    time.Duration
	lockTimeout     time.Duration
	shutdownTimeout time.Duration
	log             *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
	activeJobs    atomic.Int32
}

// WorkerStats exposes counters for monitoring and tests.
type WorkerStats struct {
	JobsProcessed int64
	JobsFailed    int64
	ActiveJobs    int32
	IsRunning     bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues          []string
	pollInterval    time.Duration
	lockTimeout     time.Duration
	shutdownTimeout time.Duration
	concurrency     int
	log             *slog.Logger
}

func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if log != nil {
			o.log = log
		}
	}
}

func NewWorker(broker Broker, opts ...WorkerOption) (*Worker, error) {
	if broker == nil {
		return nil, ErrBrokerNil
	}

	options := &workerOptions{
		queues:          []string{DefaultQueueName},
		pollInterval:    2 * time.Second,
		lockTimeout:     2 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		concurrency:     3,
		log:             logger.Discard(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		broker:          broker,
		handlers:        make(map[string]Handler),
		queues:          options.queues,
		workerID:        uuid.New(),
		sem:             make(chan struct{}, options.concurrency),
		pollInterval:    options.pollInterval,
		lockTimeout:     options.lockTimeout,
		shutdownTimeout: options.shutdownTimeout,
		log:             options.log,
	}, nil
}

// NewWorkerFromConfig builds a Worker from environment configuration;
// explicit options override config values.
func NewWorkerFromConfig(cfg Config, broker Broker, opts ...WorkerOption) (*Worker, error) {
	allOpts := append([]WorkerOption{
		WithPollInterval(cfg.PollInterval),
		WithLockTimeout(cfg.LockTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithConcurrency(cfg.Concurrency),
		WithQueues(cfg.Queues...),
	}, opts...)
	return NewWorker(broker, allOpts...)
}

// RegisterHandler adds a handler for its job kind.
func (w *Worker) RegisterHandler(h Handler) {
	if h == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[h.Kind()] = h
}

// RegisterHandlers adds multiple handlers.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	for _, h := range handlers {
		w.RegisterHandler(h)
	}
}

// Start begins the poll loop. Blocking; runs until the context is
// cancelled. Use Run for the errgroup pattern.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.log.InfoContext(w.ctx, "dispatch worker started",
		logger.Component("dispatch"),
		logger.UUID("worker_id", w.workerID),
		slog.Any("queues", w.queues),
		slog.Int("concurrency", cap(w.sem)))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// Verify the worker is still running and join the waitgroup
				// under the same lock, otherwise Stop may wait on an
				// incomplete count.
				w.mu.RLock()
				if w.cancel == nil {
					w.mu.RUnlock()
					<-w.sem
					return nil
				}
				w.wg.Add(1)
				w.mu.RUnlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.claimAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.log.ErrorContext(w.ctx, "job processing error",
							logger.Component("dispatch"),
							logger.UUID("worker_id", w.workerID),
							logger.Error(err))
					}
				}()
			default:
				// All slots busy; skip this tick.
			}
		}
	}
}

// Stop shuts the pool down gracefully, waiting up to the shutdown timeout
// for in-flight jobs.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.InfoContext(context.Background(), "dispatch worker stopped",
			logger.Component("dispatch"),
			logger.UUID("worker_id", w.workerID))
		return nil
	case <-ctx.Done():
		w.log.WarnContext(context.Background(), "dispatch worker shutdown timeout exceeded",
			logger.Component("dispatch"),
			logger.UUID("worker_id", w.workerID),
			slog.Duration("timeout", w.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", w.shutdownTimeout)
	}
}

// Run adapts the worker to the errgroup lifecycle: it starts the worker,
// waits for context cancellation, and performs graceful shutdown.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = w.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (w *Worker) claimAndProcess() error {
	job, err := w.broker.ClaimJob(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			return nil
		}
		return fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return nil
	}
	return w.process(job)
}

func (w *Worker) process(job *Job) (retErr error) {
	start := time.Now()

	w.activeJobs.Add(1)
	defer w.activeJobs.Add(-1)

	// A panicking handler must not take the pool down with it; the panic
	// becomes a delivery failure for this job only.
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.log.ErrorContext(w.ctx, "handler panicked",
				logger.Component("dispatch"),
				logger.UUID("job_id", job.ID),
				slog.String("kind", job.Kind),
				slog.Any("panic", r))
			_ = w.deliveryFailed(job, retErr)
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[job.Kind]
	w.mu.RUnlock()

	if !ok {
		return w.missingHandler(job)
	}

	// Jobs get an independent deadline so worker shutdown does not
	// interrupt a running generation mid-upload.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	err := handler.Handle(ctx, job.Payload)
	duration := time.Since(start)

	if err != nil {
		w.log.ErrorContext(w.ctx, "job delivery failed",
			logger.Component("dispatch"),
			logger.UUID("job_id", job.ID),
			slog.String("kind", job.Kind),
			slog.Int("attempts", int(job.Attempts)),
			slog.Duration("duration", duration),
			logger.Error(err))
		return w.deliveryFailed(job, err)
	}

	if err := w.broker.CompleteJob(w.ctx, job.ID); err != nil {
		return fmt.Errorf("acknowledge job %s: %w", job.ID, err)
	}
	w.jobsProcessed.Add(1)

	w.log.InfoContext(w.ctx, "job acknowledged",
		logger.Component("dispatch"),
		logger.UUID("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.String("queue", job.Queue),
		slog.Duration("duration", duration))
	return nil
}

// missingHandler parks the job immediately: redelivery cannot help until a
// handler for the kind is deployed.
func (w *Worker) missingHandler(job *Job) error {
	w.jobsFailed.Add(1)

	w.log.ErrorContext(w.ctx, "no handler for job kind",
		logger.Component("dispatch"),
		logger.UUID("job_id", job.ID),
		slog.String("kind", job.Kind))

	if err := w.broker.FailJob(w.ctx, job.ID, "no handler registered for kind: "+job.Kind); err != nil {
		return fmt.Errorf("mark job %s failed: %w", job.ID, err)
	}
	if err := w.broker.MoveToDeadLetter(w.ctx, job.ID); err != nil {
		return fmt.Errorf("move job %s to dead letter: %w", job.ID, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) deliveryFailed(job *Job, cause error) error {
	w.jobsFailed.Add(1)

	if err := w.broker.FailJob(w.ctx, job.ID, cause.Error()); err != nil {
		return fmt.Errorf("mark job %s failed: %w", job.ID, err)
	}
	if job.Attempts+1 >= job.MaxAttempts {
		if err := w.broker.MoveToDeadLetter(w.ctx, job.ID); err != nil {
			return fmt.Errorf("move job %s to dead letter: %w", job.ID, err)
		}
		w.log.WarnContext(w.ctx, "job moved to dead letter",
			logger.Component("dispatch"),
			logger.UUID("job_id", job.ID),
			slog.String("kind", job.Kind))
	}
	return nil
}

// Stats returns current worker counters. Thread-safe.
func (w *Worker) Stats() WorkerStats {
	w.mu.RLock()
	isRunning := w.cancel != nil
	w.mu.RUnlock()

	return WorkerStats{
		JobsProcessed: w.jobsProcessed.Load(),
		JobsFailed:    w.jobsFailed.Load(),
		ActiveJobs:    w.activeJobs.Load(),
		IsRunning:     isRunning,
	}
}

// Healthcheck reports whether the worker is running and has free slots.
// Suitable for readiness probes; check causes with errors.Is.
func (w *Worker) Healthcheck(ctx context.Context) error {
	stats := w.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerNotRunning)
	}
	if stats.ActiveJobs >= int32(cap(w.sem)) {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerOverloaded,
			fmt.Errorf("%d/%d slots busy", stats.ActiveJobs, cap(w.sem)))
	}
	return nil
}
