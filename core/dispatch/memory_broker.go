package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/logger"
)

// MemoryBroker implements Broker in memory for tests and local development.
// A background janitor releases expired locks so jobs abandoned by a crashed
// worker become claimable again.
type MemoryBroker struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	dead map[uuid.UUID]*DeadJob

	byStatus map[JobStatus][]uuid.UUID

	lockCheckInterval time.Duration
	log               *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	expiredLocksFreed atomic.Int64
}

var _ Broker = (*MemoryBroker)(nil)

// MemoryBrokerOption configures a MemoryBroker.
type MemoryBrokerOption func(*MemoryBroker)

func WithLockCheckInterval(d time.Duration) MemoryBrokerOption {
	return func(b *MemoryBroker) {
		if d > 0 {
			b.lockCheckInterval = d
		}
	}
}

func WithMemoryBrokerLogger(log *slog.Logger) MemoryBrokerOption {
	return func(b *MemoryBroker) {
		if log != nil {
			b.log = log
		}
	}
}

// NewMemoryBroker creates an in-memory broker. Call Run (or Start) to begin
// the lock janitor; the broker works without it, but expired locks then stay
// held.
func NewMemoryBroker(opts ...MemoryBrokerOption) *MemoryBroker {
	b := &MemoryBroker{
		jobs:              make(map[uuid.UUID]*Job),
		dead:              make(map[uuid.UUID]*DeadJob),
		byStatus:          make(map[JobStatus][]uuid.UUID),
		lockCheckInterval: time.Second,
		log:               logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBroker) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrJobNil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	cp := *job
	b.jobs[job.ID] = &cp
	b.byStatus[job.Status] = append(b.byStatus[job.Status], job.ID)
	return nil
}

// ClaimJob picks the oldest eligible pending job (FIFO by scheduled time)
// from the requested queues.
func (b *MemoryBroker) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var oldest *Job
	for _, id := range b.byStatus[JobStatusPending] {
		job := b.jobs[id]
		if !slices.Contains(queues, job.Queue) {
			continue
		}
		if job.ScheduledAt.After(now) {
			continue
		}
		if job.LockedUntil != nil && job.LockedUntil.After(now) {
			continue
		}
		if oldest == nil || job.ScheduledAt.Before(oldest.ScheduledAt) {
			oldest = job
		}
	}

	if oldest == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockDuration)
	oldest.Status = JobStatusProcessing
	oldest.LockedUntil = &lockUntil
	oldest.LockedBy = &workerID

	b.removeFromStatusIndex(oldest.ID, JobStatusPending)
	b.byStatus[JobStatusProcessing] = append(b.byStatus[JobStatusProcessing], oldest.ID)

	cp := *oldest
	return &cp, nil
}

func (b *MemoryBroker) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, exists := b.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != JobStatusProcessing {
		return fmt.Errorf("job %s is not processing", jobID)
	}

	now := time.Now()
	job.Status = JobStatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	b.removeFromStatusIndex(jobID, JobStatusProcessing)
	b.byStatus[JobStatusCompleted] = append(b.byStatus[JobStatusCompleted], jobID)
	return nil
}

func (b *MemoryBroker) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, exists := b.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != JobStatusProcessing {
		return fmt.Errorf("job %s is not processing", jobID)
	}

	job.Attempts++
	job.LastError = &errorMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	b.removeFromStatusIndex(jobID, JobStatusProcessing)
	if job.Attempts >= job.MaxAttempts {
		job.Status = JobStatusFailed
		b.byStatus[JobStatusFailed] = append(b.byStatus[JobStatusFailed], jobID)
	} else {
		// Linear backoff keeps redelivery pressure bounded without the
		// long tail of exponential schedules.
		job.Status = JobStatusPending
		job.ScheduledAt = time.Now().Add(time.Duration(job.Attempts) * 30 * time.Second)
		b.byStatus[JobStatusPending] = append(b.byStatus[JobStatusPending], jobID)
	}
	return nil
}

func (b *MemoryBroker) MoveToDeadLetter(ctx context.Context, jobID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, exists := b.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	dead := &DeadJob{
		ID:        uuid.New(),
		JobID:     job.ID,
		Queue:     job.Queue,
		Kind:      job.Kind,
		Payload:   job.Payload,
		Attempts:  job.Attempts,
		FailedAt:  time.Now(),
		CreatedAt: time.Now(),
	}
	if job.LastError != nil {
		dead.LastError = *job.LastError
	}
	b.dead[dead.ID] = dead

	b.removeFromStatusIndex(jobID, job.Status)
	delete(b.jobs, jobID)
	return nil
}

func (b *MemoryBroker) ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, exists := b.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != JobStatusProcessing {
		return fmt.Errorf("job %s is not processing", jobID)
	}

	lockUntil := time.Now().Add(duration)
	job.LockedUntil = &lockUntil
	return nil
}

// DeadJobs returns a snapshot of the dead-letter table for inspection.
func (b *MemoryBroker) DeadJobs() []DeadJob {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]DeadJob, 0, len(b.dead))
	for _, d := range b.dead {
		out = append(out, *d)
	}
	return out
}

// PendingJobs reports how many jobs are currently claimable or scheduled.
func (b *MemoryBroker) PendingJobs() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byStatus[JobStatusPending])
}

func (b *MemoryBroker) removeFromStatusIndex(jobID uuid.UUID, status JobStatus) {
	b.byStatus[status] = slices.DeleteFunc(b.byStatus[status], func(id uuid.UUID) bool {
		return id == jobID
	})
}

// Start runs the lock janitor until the context is cancelled.
func (b *MemoryBroker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return fmt.Errorf("memory broker already started")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	ticker := time.NewTicker(b.lockCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return b.ctx.Err()
		case <-ticker.C:
			b.expireLocks()
		}
	}
}

// Stop cancels the janitor.
func (b *MemoryBroker) Stop() error {
	b.mu.Lock()
	if b.cancel == nil {
		b.mu.Unlock()
		return fmt.Errorf("memory broker not started")
	}
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
	return nil
}

// Run adapts the janitor to the errgroup lifecycle.
func (b *MemoryBroker) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- b.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = b.Stop()
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

// expireLocks releases locks whose deadline has passed so crashed workers'
// jobs become claimable again.
func (b *MemoryBroker) expireLocks() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Collect first: removeFromStatusIndex rewrites the slice being ranged
	// over, which would skip and misread entries mid-loop.
	now := time.Now()
	var expired []uuid.UUID
	for _, id := range b.byStatus[JobStatusProcessing] {
		job := b.jobs[id]
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		job := b.jobs[id]
		job.Status = JobStatusPending
		job.LockedUntil = nil
		job.LockedBy = nil

		b.removeFromStatusIndex(id, JobStatusProcessing)
		b.byStatus[JobStatusPending] = append(b.byStatus[JobStatusPending], id)
	}

	if len(expired) > 0 {
		b.expiredLocksFreed.Add(int64(len(expired)))
		b.log.Debug("released expired job locks",
			logger.Component("dispatch"),
			slog.Int("count", len(expired)))
	}
}

// Healthcheck reports whether the janitor is running.
func (b *MemoryBroker) Healthcheck(ctx context.Context) error {
	b.mu.RLock()
	running := b.cancel != nil
	b.mu.RUnlock()

	if !running {
		return errors.Join(ErrHealthcheckFailed, fmt.Errorf("lock janitor is not running"))
	}
	return nil
}
