package worker

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/coursegen-backend/internal/jobs/queue"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

// Processor runs one leased job and repairs courses whose job went missing.
type Processor interface {
	Process(ctx context.Context, lease *queue.Lease) error
	ResumeStalled(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// StallAfter is how long a working course may go without an update before
	// its stage is resubmitted. Zero disables the sweep.
	StallAfter    time.Duration
	SweepInterval time.Duration
	SweepLimit    int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		PollInterval:  time.Second,
		StallAfter:    15 * time.Minute,
		SweepInterval: time.Minute,
		SweepLimit:    100,
	}
}

type Worker struct {
	log   *logger.Logger
	queue queue.Queue
	proc  Processor
	cfg   Config
	wg    sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, q queue.Queue, proc Processor, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Worker{
		log:   baseLog.With("component", "JobWorker"),
		queue: q,
		proc:  proc,
		cfg:   cfg,
	}
}

// Start launches the polling loops. They stop when ctx is done; Wait blocks until they have.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)
	for i := range w.cfg.Concurrency {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
	w.StartSweeper(ctx)
}

// StartSweeper runs only the stalled-course sweep. Deployments that dispatch
// through Temporal use it instead of Start.
func (w *Worker) StartSweeper(ctx context.Context) {
	if w.cfg.StallAfter <= 0 {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.sweepLoop(ctx)
	}()
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// drain without waiting for the next tick while work is available
			for w.RunOnce(ctx, workerID) {
				if ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was found.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	lease, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.log.Warn("Dequeue failed", "worker_id", workerID, "error", err)
		return false
	}
	if lease == nil {
		return false
	}
	if err := w.proc.Process(ctx, lease); err != nil {
		w.log.Warn("Job failed",
			"worker_id", workerID,
			"job_id", lease.Job.ID,
			"job_type", lease.Job.JobType,
			"course_id", lease.Job.CourseID,
			"error", err,
		)
	}
	return true
}

func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.proc.ResumeStalled(ctx, w.cfg.StallAfter, w.cfg.SweepLimit)
			if err != nil {
				w.log.Warn("Stalled course sweep failed", "error", err)
			}
			if n > 0 {
				w.log.Info("Resumed stalled courses", "count", n)
			}
		}
	}
}
