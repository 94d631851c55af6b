package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

// JobProcessor claims a job by id and runs it.
type JobProcessor interface {
	ProcessByID(ctx context.Context, jobID uuid.UUID) error
}

type Activities struct {
	Log       *logger.Logger
	Processor JobProcessor
	// HeartbeatInterval defaults to 20s.
	HeartbeatInterval time.Duration
}

func (a *Activities) Process(ctx context.Context, jobID string) error {
	if a == nil || a.Processor == nil {
		return fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(strings.TrimSpace(jobID))
	if err != nil || id == uuid.Nil {
		return fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}
	stop := a.startHeartbeat(ctx)
	defer stop()

	if err := a.Processor.ProcessByID(ctx, id); err != nil {
		if a.Log != nil {
			a.Log.Warn("Job run failed", "job_id", id, "error", err)
		}
		return err
	}
	return nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.HeartbeatInterval
	if every <= 0 {
		every = 20 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
