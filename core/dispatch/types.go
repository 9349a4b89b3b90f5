package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when a publisher or worker does not name a queue.
const DefaultQueueName = "generation"

// JobStatus tracks a job through the queue, independent of the certificate
// status it may carry in its payload.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one delivery attempt's worth of work. Payload is the JSON-encoded
// application message; Kind routes it to a handler.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	Kind        string     `json:"kind"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      JobStatus  `json:"status"`
	Attempts    int8       `json:"attempts"`
	MaxAttempts int8       `json:"max_attempts"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DeadJob is a job parked in the dead-letter table for operator inspection:
// either its kind had no handler or delivery kept failing past MaxAttempts.
type DeadJob struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Queue     string    `json:"queue"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"payload,omitempty"`
	LastError string    `json:"last_error"`
	Attempts  int8      `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
	CreatedAt time.Time `json:"created_at"`
}
