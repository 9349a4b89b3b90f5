package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/dispatch"
)

var _ dispatch.Broker = (*Broker)(nil)

// Broker implements the dispatch queue over the shared job tables. Claiming
// uses FOR UPDATE SKIP LOCKED so concurrent workers never block each other
// and a job is claimed exactly once. There is no janitor process: a job
// abandoned mid-flight by a crashed worker is reclaimed directly by the
// claim predicate once its lock expires.
type Broker struct {
	pool *pgxpool.Pool
}

func NewBroker(pool *pgxpool.Pool) (*Broker, error) {
	if pool == nil {
		return nil, errors.New("pg: pool cannot be nil")
	}
	return &Broker{pool: pool}, nil
}

func (b *Broker) CreateJob(ctx context.Context, job *dispatch.Job) error {
	if job == nil {
		return dispatch.ErrJobNil
	}

	if _, err := queryTarget(ctx, b.pool).Exec(ctx, `
		INSERT INTO shared.dispatch_jobs
			(id, queue, kind, payload, status, attempts, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Queue, job.Kind, job.Payload, job.Status,
		job.Attempts, job.MaxAttempts, job.ScheduledAt, job.CreatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (b *Broker) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*dispatch.Job, error) {
	row := b.pool.QueryRow(ctx, `
		UPDATE shared.dispatch_jobs
		SET status = 'processing',
		    locked_until = now() + $3::interval,
		    locked_by = $2
		WHERE id = (
			SELECT id FROM shared.dispatch_jobs
			WHERE queue = ANY($1)
			  AND (
			      (status = 'pending' AND scheduled_at <= now()
			       AND (locked_until IS NULL OR locked_until < now()))
			      OR (status = 'processing' AND locked_until < now())
			  )
			ORDER BY scheduled_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, kind, payload, status, attempts, max_attempts,
		          scheduled_at, locked_until, locked_by, processed_at, last_error, created_at`,
		queues, workerID, lockDuration.String())

	job, err := scanJob(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, dispatch.ErrNoJobToClaim
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (b *Broker) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	tag, err := b.pool.Exec(ctx, `
		UPDATE shared.dispatch_jobs
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}
	return nil
}

// FailJob increments the attempt counter and either reschedules the job with
// linear backoff or parks it as failed when the attempt budget is spent.
func (b *Broker) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	tag, err := b.pool.Exec(ctx, `
		UPDATE shared.dispatch_jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    locked_until = NULL,
		    locked_by = NULL,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    scheduled_at = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_at
		                        ELSE now() + (attempts + 1) * interval '30 seconds' END
		WHERE id = $1 AND status = 'processing'`, jobID, errorMsg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}
	return nil
}

func (b *Broker) MoveToDeadLetter(ctx context.Context, jobID uuid.UUID) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO shared.dispatch_dead_jobs
			(id, job_id, queue, kind, payload, last_error, attempts, failed_at, created_at)
		SELECT gen_random_uuid(), id, queue, kind, payload, COALESCE(last_error, ''), attempts, now(), now()
		FROM shared.dispatch_jobs
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("copy job to dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM shared.dispatch_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("remove dead job: %w", err)
	}
	return tx.Commit(ctx)
}

func (b *Broker) ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error {
	tag, err := b.pool.Exec(ctx, `
		UPDATE shared.dispatch_jobs
		SET locked_until = now() + $2::interval
		WHERE id = $1 AND status = 'processing'`, jobID, duration.String())
	if err != nil {
		return fmt.Errorf("extend job lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}
	return nil
}

// Healthcheck reports whether the job tables are reachable.
func (b *Broker) Healthcheck(ctx context.Context) error {
	var n int
	if err := b.pool.QueryRow(ctx, `SELECT 1`).Scan(&n); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

func scanJob(row pgx.Row) (*dispatch.Job, error) {
	var job dispatch.Job
	if err := row.Scan(
		&job.ID, &job.Queue, &job.Kind, &job.Payload, &job.Status,
		&job.Attempts, &job.MaxAttempts, &job.ScheduledAt, &job.LockedUntil,
		&job.LockedBy, &job.ProcessedAt, &job.LastError, &job.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}
