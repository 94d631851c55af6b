package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/jobs/queue"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type recordingProcessor struct {
	q      queue.Queue
	mu     sync.Mutex
	seen   []uuid.UUID
	sweeps int
	fail   bool
}

func (p *recordingProcessor) Process(ctx context.Context, lease *queue.Lease) error {
	p.mu.Lock()
	p.seen = append(p.seen, lease.Job.ID)
	p.mu.Unlock()
	if err := p.q.Ack(ctx, lease); err != nil {
		return err
	}
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

func (p *recordingProcessor) ResumeStalled(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweeps++
	return 0, nil
}

func (p *recordingProcessor) snapshot() ([]uuid.UUID, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.seen...), p.sweeps
}

func enqueue(t *testing.T, q queue.Queue, n int) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	for range n {
		id := uuid.New()
		courseID := uuid.New()
		_, _, err := q.Enqueue(context.Background(), &types.GenerationJob{
			ID:             id,
			JobType:        types.JobTypeInitialize,
			Stage:          types.StageInitialize,
			CourseID:       courseID,
			IdempotencyKey: queue.IdempotencyKey(courseID, types.StageInitialize, nil, id),
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestRunOnce(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	p := &recordingProcessor{q: q, fail: true}
	w := NewWorker(logger.Nop(), q, p, Config{})
	if w.RunOnce(context.Background(), 1) {
		t.Fatalf("empty queue must report no work")
	}
	ids := enqueue(t, q, 1)
	if !w.RunOnce(context.Background(), 1) {
		t.Fatalf("expected a job")
	}
	if seen, _ := p.snapshot(); len(seen) != 1 || seen[0] != ids[0] {
		t.Fatalf("unexpected processed jobs %v", seen)
	}
}

func TestPoolDrainsQueueAndStops(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	p := &recordingProcessor{q: q}
	w := NewWorker(logger.Nop(), q, p, Config{
		Concurrency:   3,
		PollInterval:  5 * time.Millisecond,
		StallAfter:    time.Minute,
		SweepInterval: 5 * time.Millisecond,
	})
	enqueue(t, q, 10)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for {
		seen, sweeps := p.snapshot()
		if len(seen) == 10 && sweeps > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pool did not drain: processed=%d sweeps=%d", len(seen), sweeps)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	w.Wait()
	if len(q.Jobs()) != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestSweeperDoesNotPoll(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	p := &recordingProcessor{q: q}
	enqueue(t, q, 1)
	w := NewWorker(logger.Nop(), q, p, Config{StallAfter: time.Minute, SweepInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	w.StartSweeper(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, sweeps := p.snapshot(); sweeps > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	w.Wait()

	seen, sweeps := p.snapshot()
	if sweeps == 0 {
		t.Fatalf("sweeper never ran")
	}
	if len(seen) != 0 {
		t.Fatalf("sweeper must not process jobs, saw %v", seen)
	}
}
