package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Broker is the storage contract shared by Publisher and Worker. A single
// implementation serves both sides of the queue.
type Broker interface {
	// CreateJob stores a new pending job.
	CreateJob(ctx context.Context, job *Job) error

	// ClaimJob atomically claims the next eligible pending job for the
	// given queues, locking it for lockDuration. Returns ErrNoJobToClaim
	// when nothing is eligible.
	ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error)

	// CompleteJob acknowledges a claimed job.
	CompleteJob(ctx context.Context, jobID uuid.UUID) error

	// FailJob records a delivery failure, increments the attempt counter,
	// and reschedules the job with backoff while attempts remain.
	FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error

	// MoveToDeadLetter parks the job for operator inspection.
	MoveToDeadLetter(ctx context.Context, jobID uuid.UUID) error

	// ExtendLock pushes out the lock deadline of a long-running job.
	ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error
}
