package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	jobrepos "github.com/yungbote/coursegen-backend/internal/data/repos/jobs"
	"github.com/yungbote/coursegen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

func queues(t *testing.T) map[string]func(lease time.Duration) Queue {
	return map[string]func(time.Duration) Queue{
		"memory": func(lease time.Duration) Queue { return NewMemoryQueue(lease) },
		"db": func(lease time.Duration) Queue {
			db := testutil.DB(t)
			return NewDBQueue(logger.Nop(), jobrepos.NewGenerationJobRepo(db, logger.Nop()), nil, lease)
		},
	}
}

func job(courseID uuid.UUID, stage types.Stage) *types.GenerationJob {
	id := uuid.New()
	return &types.GenerationJob{
		ID:             id,
		JobType:        stage.JobType(),
		Stage:          stage,
		OrganizationID: uuid.New(),
		CourseID:       courseID,
		UserID:         uuid.New(),
		IdempotencyKey: IdempotencyKey(courseID, stage, nil, id),
	}
}

func TestQueueLifecycle(t *testing.T) {
	for name, mk := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := mk(time.Minute)
			courseID := uuid.New()

			j := job(courseID, types.StageInitialize)
			stored, created, err := q.Enqueue(ctx, j)
			if err != nil || !created || stored.ID != j.ID {
				t.Fatalf("Enqueue: stored=%+v created=%v err=%v", stored, created, err)
			}

			again := *j
			again.ID = uuid.New()
			stored, created, err = q.Enqueue(ctx, &again)
			if err != nil || created || stored.ID != j.ID {
				t.Fatalf("same idempotency key must return the existing job: stored=%+v created=%v err=%v", stored, created, err)
			}

			if _, _, err := q.Enqueue(ctx, job(courseID, types.StageInitialize)); !errors.Is(err, ErrDuplicateInFlight) {
				t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
			}

			lease, err := q.Dequeue(ctx)
			if err != nil || lease == nil || lease.Job.ID != j.ID {
				t.Fatalf("Dequeue: %+v err=%v", lease, err)
			}
			if inflight, _ := q.InFlight(ctx, courseID, types.StageInitialize); inflight == nil {
				t.Fatalf("leased job must count as in flight")
			}
			if empty, err := q.Dequeue(ctx); err != nil || empty != nil {
				t.Fatalf("expected empty queue, got %+v err=%v", empty, err)
			}
			if err := q.Heartbeat(ctx, lease); err != nil {
				t.Fatalf("Heartbeat: %v", err)
			}
			if err := q.Ack(ctx, lease); err != nil {
				t.Fatalf("Ack: %v", err)
			}
			if err := q.Ack(ctx, lease); !errors.Is(err, ErrLeaseLost) {
				t.Fatalf("second ack: expected ErrLeaseLost, got %v", err)
			}
			if inflight, _ := q.InFlight(ctx, courseID, types.StageInitialize); inflight != nil {
				t.Fatalf("acked job must not be in flight")
			}
			if _, created, err := q.Enqueue(ctx, job(courseID, types.StageInitialize)); err != nil || !created {
				t.Fatalf("enqueue after ack: created=%v err=%v", created, err)
			}
		})
	}
}

func TestQueueExpiredLeaseIsRedelivered(t *testing.T) {
	for name, mk := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := mk(-time.Second)
			j := job(uuid.New(), types.StageContentGeneration)
			if _, _, err := q.Enqueue(ctx, j); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			first, err := q.Dequeue(ctx)
			if err != nil || first == nil {
				t.Fatalf("Dequeue: %v", err)
			}
			second, err := q.Claim(ctx, j.ID)
			if err != nil || second == nil {
				t.Fatalf("expired lease must be claimable: %+v err=%v", second, err)
			}
			if second.Job.Attempts != 2 {
				t.Fatalf("expected attempts=2, got %d", second.Job.Attempts)
			}
			if err := q.Ack(ctx, first); !errors.Is(err, ErrLeaseLost) {
				t.Fatalf("stale lease ack: expected ErrLeaseLost, got %v", err)
			}
			if err := q.DeadLetter(ctx, second, "boom"); err != nil {
				t.Fatalf("DeadLetter: %v", err)
			}
			if next, _ := q.Dequeue(ctx); next != nil {
				t.Fatalf("dead job must not be redelivered")
			}
		})
	}
}

func TestQueueCancelPending(t *testing.T) {
	for name, mk := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := mk(time.Minute)
			courseID := uuid.New()
			other := uuid.New()
			for _, j := range []*types.GenerationJob{
				job(courseID, types.StageInitialize),
				job(courseID, types.StageStructureAnalysis),
				job(other, types.StageInitialize),
			} {
				if _, _, err := q.Enqueue(ctx, j); err != nil {
					t.Fatalf("Enqueue: %v", err)
				}
			}
			n, err := q.CancelPending(ctx, courseID)
			if err != nil || n != 2 {
				t.Fatalf("CancelPending: n=%d err=%v", n, err)
			}
			lease, _ := q.Dequeue(ctx)
			if lease == nil || lease.Job.CourseID != other {
				t.Fatalf("other course's job must survive, got %+v", lease)
			}
		})
	}
}

func TestWithNotifier(t *testing.T) {
	ctx := context.Background()
	var notified []uuid.UUID
	q := WithNotifier(NewMemoryQueue(time.Minute), NotifierFunc(func(ctx context.Context, j *types.GenerationJob) error {
		notified = append(notified, j.ID)
		return nil
	}))
	j := job(uuid.New(), types.StageInitialize)
	if _, _, err := q.Enqueue(ctx, j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	dup := *j
	if _, created, _ := q.Enqueue(ctx, &dup); created {
		t.Fatalf("duplicate key must not create")
	}
	if len(notified) != 1 || notified[0] != j.ID {
		t.Fatalf("expected exactly one notification, got %v", notified)
	}
}

func TestIdempotencyKeyStable(t *testing.T) {
	course, jobID, file := uuid.New(), uuid.New(), uuid.New()
	a := IdempotencyKey(course, types.StageDocumentProcessing, &file, jobID)
	b := IdempotencyKey(course, types.StageDocumentProcessing, &file, jobID)
	if a != b || len(a) != 64 {
		t.Fatalf("unexpected keys %q %q", a, b)
	}
	if a == IdempotencyKey(course, types.StageDocumentProcessing, nil, jobID) {
		t.Fatalf("file id must contribute to the key")
	}
}
