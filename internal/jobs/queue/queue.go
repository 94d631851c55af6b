package queue

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

var (
	// ErrDuplicateInFlight means the course already has a queued or leased job for the stage.
	ErrDuplicateInFlight = errors.New("queue: job already in flight for course stage")
	// ErrLeaseLost means the lease expired and the job was redelivered elsewhere.
	ErrLeaseLost = errors.New("queue: lease lost")
)

// Lease is a claimed job. Token must accompany every follow-up call.
type Lease struct {
	Job   *types.GenerationJob
	Token uuid.UUID
}

type Queue interface {
	// Enqueue stores the job. A job whose idempotency key already exists is
	// returned instead, with created=false.
	Enqueue(ctx context.Context, job *types.GenerationJob) (stored *types.GenerationJob, created bool, err error)
	// Dequeue leases the next runnable job; nil when the queue is empty.
	Dequeue(ctx context.Context) (*Lease, error)
	// Claim leases one job by id; nil when it is missing or leased elsewhere.
	Claim(ctx context.Context, jobID uuid.UUID) (*Lease, error)
	Heartbeat(ctx context.Context, lease *Lease) error
	Ack(ctx context.Context, lease *Lease) error
	DeadLetter(ctx context.Context, lease *Lease, reason string) error
	// CancelPending drops every queued (not leased) job of the course.
	CancelPending(ctx context.Context, courseID uuid.UUID) (int64, error)
	InFlight(ctx context.Context, courseID uuid.UUID, stage types.Stage) (*types.GenerationJob, error)
}

// Notifier is told about every newly stored job.
type Notifier interface {
	Notify(ctx context.Context, job *types.GenerationJob) error
}

type NotifierFunc func(ctx context.Context, job *types.GenerationJob) error

func (f NotifierFunc) Notify(ctx context.Context, job *types.GenerationJob) error { return f(ctx, job) }

type notifying struct {
	Queue
	notifier Notifier
}

// WithNotifier wraps q so n runs after each successful Enqueue that created a job.
// Notification errors are returned alongside the stored job.
func WithNotifier(q Queue, n Notifier) Queue {
	if n == nil {
		return q
	}
	return &notifying{Queue: q, notifier: n}
}

func (q *notifying) Enqueue(ctx context.Context, job *types.GenerationJob) (*types.GenerationJob, bool, error) {
	stored, created, err := q.Queue.Enqueue(ctx, job)
	if err != nil || !created {
		return stored, created, err
	}
	if nErr := q.notifier.Notify(ctx, stored); nErr != nil {
		return stored, true, fmt.Errorf("queue: notify: %w", nErr)
	}
	return stored, true, nil
}

// IdempotencyKey derives the default key for a job.
func IdempotencyKey(courseID uuid.UUID, stage types.Stage, fileID *uuid.UUID, jobID uuid.UUID) string {
	file := "-"
	if fileID != nil {
		file = fileID.String()
	}
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s", courseID, stage, file, jobID)))
	return hex.EncodeToString(sum[:])
}

func validateLease(lease *Lease) error {
	if lease == nil || lease.Job == nil || lease.Token == uuid.Nil {
		return fmt.Errorf("queue: invalid lease")
	}
	return nil
}
