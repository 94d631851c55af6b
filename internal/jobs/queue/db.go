package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	jobrepos "github.com/yungbote/coursegen-backend/internal/data/repos/jobs"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

const pgUniqueViolation = "23505"

// DBQueue is the durable queue backed by the generation_job table.
type DBQueue struct {
	log      *logger.Logger
	repo     jobrepos.GenerationJobRepo
	metrics  *observability.Metrics
	leaseFor time.Duration
}

func NewDBQueue(log *logger.Logger, repo jobrepos.GenerationJobRepo, metrics *observability.Metrics, leaseFor time.Duration) *DBQueue {
	if leaseFor <= 0 {
		leaseFor = 5 * time.Minute
	}
	return &DBQueue{
		log:      log.With("component", "DBQueue"),
		repo:     repo,
		metrics:  metrics,
		leaseFor: leaseFor,
	}
}

func (q *DBQueue) Enqueue(ctx context.Context, job *types.GenerationJob) (*types.GenerationJob, bool, error) {
	if job == nil {
		return nil, false, fmt.Errorf("queue: nil job")
	}
	dbc := dbctx.New(ctx)
	if existing, err := q.repo.GetByIdempotencyKey(dbc, job.IdempotencyKey); err != nil {
		return nil, false, fmt.Errorf("queue: lookup idempotency key: %w", err)
	} else if existing != nil {
		return existing, false, nil
	}
	if inflight, err := q.repo.FindInFlight(dbc, job.CourseID, job.Stage); err != nil {
		return nil, false, fmt.Errorf("queue: in-flight check: %w", err)
	} else if inflight != nil {
		return nil, false, fmt.Errorf("%w (job %s)", ErrDuplicateInFlight, inflight.ID)
	}

	job.Status = types.QueueStatusQueued
	if err := q.repo.Create(dbc, job); err != nil {
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("queue: insert job: %w", err)
		}
		// lost a race; the key lookup tells which constraint fired
		if existing, lErr := q.repo.GetByIdempotencyKey(dbc, job.IdempotencyKey); lErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, ErrDuplicateInFlight
	}
	q.log.Debug("Job enqueued", "job_id", job.ID, "course_id", job.CourseID, "job_type", job.JobType)
	return job, true, nil
}

func (q *DBQueue) Dequeue(ctx context.Context) (*Lease, error) {
	job, err := q.repo.ClaimNext(dbctx.New(ctx), q.leaseFor)
	if err != nil {
		q.metrics.ObserveQueueClaim("error")
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	return q.lease(job), nil
}

func (q *DBQueue) Claim(ctx context.Context, jobID uuid.UUID) (*Lease, error) {
	job, err := q.repo.ClaimByID(dbctx.New(ctx), jobID, q.leaseFor)
	if err != nil {
		q.metrics.ObserveQueueClaim("error")
		return nil, fmt.Errorf("queue: claim %s: %w", jobID, err)
	}
	return q.lease(job), nil
}

func (q *DBQueue) lease(job *types.GenerationJob) *Lease {
	if job == nil || job.LeaseToken == nil {
		q.metrics.ObserveQueueClaim("empty")
		return nil
	}
	q.metrics.ObserveQueueClaim("claimed")
	return &Lease{Job: job, Token: *job.LeaseToken}
}

func (q *DBQueue) Heartbeat(ctx context.Context, lease *Lease) error {
	if err := validateLease(lease); err != nil {
		return err
	}
	ok, err := q.repo.ExtendLease(dbctx.New(ctx), lease.Job.ID, lease.Token, q.leaseFor)
	if err != nil {
		return fmt.Errorf("queue: heartbeat: %w", err)
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

func (q *DBQueue) Ack(ctx context.Context, lease *Lease) error {
	if err := validateLease(lease); err != nil {
		return err
	}
	ok, err := q.repo.DeleteLeased(dbctx.New(ctx), lease.Job.ID, lease.Token)
	if err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

func (q *DBQueue) DeadLetter(ctx context.Context, lease *Lease, reason string) error {
	if err := validateLease(lease); err != nil {
		return err
	}
	ok, err := q.repo.MarkDead(dbctx.New(ctx), lease.Job.ID, lease.Token, reason)
	if err != nil {
		return fmt.Errorf("queue: dead-letter: %w", err)
	}
	if !ok {
		return ErrLeaseLost
	}
	q.log.Warn("Job dead-lettered", "job_id", lease.Job.ID, "course_id", lease.Job.CourseID, "reason", reason)
	return nil
}

func (q *DBQueue) CancelPending(ctx context.Context, courseID uuid.UUID) (int64, error) {
	n, err := q.repo.DeleteQueuedForCourse(dbctx.New(ctx), courseID)
	if err != nil {
		return 0, fmt.Errorf("queue: cancel pending: %w", err)
	}
	return n, nil
}

func (q *DBQueue) InFlight(ctx context.Context, courseID uuid.UUID, stage types.Stage) (*types.GenerationJob, error) {
	return q.repo.FindInFlight(dbctx.New(ctx), courseID, stage)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
