package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// MemoryQueue keeps jobs in process. It honours the same lease and
// uniqueness rules as DBQueue and is used by tests and single-process runs.
type MemoryQueue struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*types.GenerationJob
	leaseFor time.Duration
	now      func() time.Time
}

func NewMemoryQueue(leaseFor time.Duration) *MemoryQueue {
	if leaseFor <= 0 {
		leaseFor = 5 * time.Minute
	}
	return &MemoryQueue{
		jobs:     map[uuid.UUID]*types.GenerationJob{},
		leaseFor: leaseFor,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *types.GenerationJob) (*types.GenerationJob, bool, error) {
	if job == nil {
		return nil, false, fmt.Errorf("queue: nil job")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.jobs {
		if job.IdempotencyKey != "" && existing.IdempotencyKey == job.IdempotencyKey {
			return clone(existing), false, nil
		}
	}
	if inflight := q.inFlightLocked(job.CourseID, job.Stage); inflight != nil {
		return nil, false, fmt.Errorf("%w (job %s)", ErrDuplicateInFlight, inflight.ID)
	}

	stored := clone(job)
	now := q.now()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Status = types.QueueStatusQueued
	q.jobs[stored.ID] = stored
	*job = *clone(stored)
	return clone(stored), true, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var runnable []*types.GenerationJob
	for _, j := range q.jobs {
		if q.runnableLocked(j, now) {
			runnable = append(runnable, j)
		}
	}
	if len(runnable) == 0 {
		return nil, nil
	}
	sort.Slice(runnable, func(a, b int) bool {
		if runnable[a].Priority != runnable[b].Priority {
			return runnable[a].Priority < runnable[b].Priority
		}
		return runnable[a].CreatedAt.Before(runnable[b].CreatedAt)
	})
	return q.leaseLocked(runnable[0], now), nil
}

func (q *MemoryQueue) Claim(ctx context.Context, jobID uuid.UUID) (*Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	j, ok := q.jobs[jobID]
	if !ok || !q.runnableLocked(j, now) {
		return nil, nil
	}
	return q.leaseLocked(j, now), nil
}

func (q *MemoryQueue) Heartbeat(ctx context.Context, lease *Lease) error {
	if err := validateLease(lease); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.heldLocked(lease)
	if err != nil {
		return err
	}
	until := q.now().Add(q.leaseFor)
	j.LeasedUntil = &until
	return nil
}

func (q *MemoryQueue) Ack(ctx context.Context, lease *Lease) error {
	if err := validateLease(lease); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.heldLocked(lease)
	if err != nil {
		return err
	}
	delete(q.jobs, j.ID)
	return nil
}

func (q *MemoryQueue) DeadLetter(ctx context.Context, lease *Lease, reason string) error {
	if err := validateLease(lease); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.heldLocked(lease)
	if err != nil {
		return err
	}
	j.Status = types.QueueStatusDead
	j.DeadReason = reason
	j.LeasedUntil = nil
	j.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) CancelPending(ctx context.Context, courseID uuid.UUID) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for id, j := range q.jobs {
		if j.CourseID == courseID && j.Status == types.QueueStatusQueued {
			delete(q.jobs, id)
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) InFlight(ctx context.Context, courseID uuid.UUID, stage types.Stage) (*types.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return clone(q.inFlightLocked(courseID, stage)), nil
}

// Jobs returns a snapshot of every stored job, oldest first.
func (q *MemoryQueue) Jobs() []*types.GenerationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*types.GenerationJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, clone(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (q *MemoryQueue) inFlightLocked(courseID uuid.UUID, stage types.Stage) *types.GenerationJob {
	for _, j := range q.jobs {
		if j.CourseID == courseID && j.Stage == stage && j.InFlight() {
			return j
		}
	}
	return nil
}

func (q *MemoryQueue) runnableLocked(j *types.GenerationJob, now time.Time) bool {
	switch j.Status {
	case types.QueueStatusQueued:
		return true
	case types.QueueStatusLeased:
		return j.LeasedUntil != nil && j.LeasedUntil.Before(now)
	default:
		return false
	}
}

func (q *MemoryQueue) leaseLocked(j *types.GenerationJob, now time.Time) *Lease {
	token := uuid.New()
	until := now.Add(q.leaseFor)
	j.Status = types.QueueStatusLeased
	j.LeaseToken = &token
	j.LeasedUntil = &until
	j.Attempts++
	j.UpdatedAt = now
	return &Lease{Job: clone(j), Token: token}
}

func (q *MemoryQueue) heldLocked(lease *Lease) (*types.GenerationJob, error) {
	j, ok := q.jobs[lease.Job.ID]
	if !ok || j.Status != types.QueueStatusLeased || j.LeaseToken == nil || *j.LeaseToken != lease.Token {
		return nil, ErrLeaseLost
	}
	return j, nil
}

func clone(j *types.GenerationJob) *types.GenerationJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.LeaseToken != nil {
		t := *j.LeaseToken
		c.LeaseToken = &t
	}
	if j.LeasedUntil != nil {
		u := *j.LeasedUntil
		c.LeasedUntil = &u
	}
	if j.FileID != nil {
		f := *j.FileID
		c.FileID = &f
	}
	return &c
}
