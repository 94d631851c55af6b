package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/jobs/queue"
	"github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
)

// ProcessByID claims one job by id and processes it. A job that is gone or
// leased elsewhere is not an error.
func (o *Orchestrator) ProcessByID(ctx context.Context, jobID uuid.UUID) error {
	lease, err := o.queue.Claim(ctx, jobID)
	if err != nil {
		return err
	}
	if lease == nil {
		o.log.Debug("Job not claimable", "job_id", jobID)
		return nil
	}
	return o.Process(ctx, lease)
}

/*
Process runs one leased job.

The course row is re-read first: jobs of missing or terminal courses, jobs for any
stage other than the active one, and jobs arriving while the course waits at a gate
are acked without running. A handler error fails the course with a categorized
message and dead-letters the job. On success the job is acked before the result
is applied, so the follow-up job for the same stage does not collide with it.
*/
func (o *Orchestrator) Process(ctx context.Context, lease *queue.Lease) error {
	if lease == nil || lease.Job == nil {
		return fmt.Errorf("process: nil lease")
	}
	job := lease.Job
	log := o.log.With("job_id", job.ID, "course_id", job.CourseID, "job_type", job.JobType)

	st, skip, err := o.admit(ctx, lease)
	if err != nil || skip {
		return err
	}

	res, runErr := o.run(ctx, lease, st)
	if runErr != nil {
		if errors.Is(runErr, queue.ErrLeaseLost) {
			log.Warn("Lease lost while running; another worker owns the job")
			return runErr
		}
		if ctx.Err() != nil {
			// shutdown: leave the lease to expire so the job is redelivered
			log.Warn("Stage interrupted by shutdown", "error", runErr)
			return ctx.Err()
		}
		return o.fail(ctx, lease, runErr)
	}

	if err := o.queue.Ack(ctx, lease); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			log.Warn("Lease lost before ack; result dropped")
		}
		return err
	}
	return o.HandleStageResult(ctx, job.CourseID, job.Stage, res)
}

// admit decides whether the job may run. Only the stage-1 job of a course that
// has not started moves the row; every other job must match the active stage.
func (o *Orchestrator) admit(ctx context.Context, lease *queue.Lease) (*types.CourseGenerationState, bool, error) {
	job := lease.Job
	log := o.log.With("job_id", job.ID, "course_id", job.CourseID, "job_type", job.JobType)
	dbc := dbctx.New(ctx)

	st, err := o.states.Get(dbc, job.CourseID)
	if err != nil {
		return nil, true, types.NewStorageError("load state", err)
	}
	switch {
	case st == nil:
		log.Warn("Dropping job of unknown course")
		return nil, true, o.ack(ctx, lease)
	case st.Status.IsTerminal():
		log.Info("Skipping job of terminal course", "status", st.Status.String())
		return nil, true, o.ack(ctx, lease)
	case st.Status.IsAwaitingApproval():
		log.Warn("Skipping job of course waiting for approval", "status", st.Status.String(), "current_stage", int(st.CurrentStage))
		return nil, true, o.ack(ctx, lease)
	case st.CurrentStage == types.StageNone && job.Stage != types.StageInitialize,
		st.CurrentStage != types.StageNone && job.Stage != st.CurrentStage:
		log.Warn("Skipping job for inactive stage", "status", st.Status.String(), "current_stage", int(st.CurrentStage))
		return nil, true, o.ack(ctx, lease)
	}

	if job.Stage == st.CurrentStage {
		if st.Status != job.Stage.WorkingStatus() {
			log.Warn("Skipping job for stage in unexpected status", "status", st.Status.String())
			return nil, true, o.ack(ctx, lease)
		}
		// bump updated_at so the stall sweeper leaves the course alone
		if _, err := o.states.CompareAndSwap(dbc, st.CourseID, st.Status, nil); err != nil {
			return nil, true, types.NewStorageError("touch state", err)
		}
		return st, false, nil
	}

	to := job.Stage.WorkingStatus()
	updates := map[string]interface{}{
		"current_stage": job.Stage,
		"status":        to,
	}
	if st.StartedAt == nil {
		now := o.now()
		updates["started_at"] = now
		st.StartedAt = &now
	}
	ok, err := o.states.CompareAndSwap(dbc, st.CourseID, st.Status, updates)
	if err != nil {
		return nil, true, types.NewStorageError("enter stage", err)
	}
	if !ok {
		log.Warn("Course changed before job start; skipping")
		return nil, true, o.ack(ctx, lease)
	}
	st.CurrentStage = job.Stage
	st.Status = to
	o.publish(ctx, st.CourseID, to, job.Stage, st.DecodeProgress().Percentage, fmt.Sprintf("Started %s", job.Stage), "")
	return st, false, nil
}

func (o *Orchestrator) ack(ctx context.Context, lease *queue.Lease) error {
	if err := o.queue.Ack(ctx, lease); err != nil && !errors.Is(err, queue.ErrLeaseLost) {
		return err
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, lease *queue.Lease, st *types.CourseGenerationState) (res *runtime.Result, err error) {
	job := lease.Job
	h, ok := o.registry.Get(job.JobType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingHandler, job.JobType)
	}

	ctx, span := observability.Tracer().Start(ctx, "stage."+string(job.JobType), trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("course.id", job.CourseID.String()),
		attribute.Int("stage", int(job.Stage)),
		attribute.Int("attempt", job.Attempts),
	))
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var lost atomic.Bool
	go o.keepAlive(runCtx, lease, func() {
		lost.Store(true)
		cancel()
	})

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			o.log.Error("Stage handler panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil && lost.Load() {
			err = fmt.Errorf("%w: %v", queue.ErrLeaseLost, err)
		}
		outcome := "succeeded"
		if err != nil {
			outcome = string(types.Categorize(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.metrics.ObserveStage(string(job.JobType), outcome, time.Since(start))
	}()

	jc := runtime.NewContext(runCtx, job, st, runtime.Deps{
		Log:    o.log,
		States: o.states,
		Beat: func(ctx context.Context) error {
			return o.queue.Heartbeat(ctx, lease)
		},
		Progress: o.progressFunc(st),
	})
	return h.Run(jc)
}

// keepAlive extends the lease until ctx ends. onLost runs once if the lease is taken away.
func (o *Orchestrator) keepAlive(ctx context.Context, lease *queue.Lease, onLost func()) {
	if o.cfg.HeartbeatInterval <= 0 {
		return
	}
	t := time.NewTicker(o.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := o.queue.Heartbeat(ctx, lease)
			if errors.Is(err, queue.ErrLeaseLost) {
				o.log.Warn("Lease lost during heartbeat", "job_id", lease.Job.ID)
				onLost()
				return
			}
			if err != nil && ctx.Err() == nil {
				o.log.Warn("Heartbeat failed", "job_id", lease.Job.ID, "error", err)
			}
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, lease *queue.Lease, runErr error) error {
	job := lease.Job
	msg := types.FailureMessage(runErr)
	ok, err := o.states.CompareAndSwap(dbctx.New(ctx), job.CourseID, job.Stage.WorkingStatus(), map[string]interface{}{
		"status":        types.Failed,
		"error_message": msg,
	})
	if err != nil {
		return types.NewStorageError("record failure", err)
	}
	if dlErr := o.queue.DeadLetter(ctx, lease, msg); dlErr != nil {
		o.log.Warn("Dead-letter failed", "job_id", job.ID, "error", dlErr)
	}
	if !ok {
		o.log.Warn("Stage failed after course moved on", "job_id", job.ID, "course_id", job.CourseID, "error", runErr)
		return runErr
	}
	o.log.Error("Stage failed", "job_id", job.ID, "course_id", job.CourseID, "stage", int(job.Stage), "error", msg)
	pct := 0
	if st, err := o.states.Get(dbctx.New(ctx), job.CourseID); err == nil && st != nil {
		pct = st.DecodeProgress().Percentage
	}
	o.publish(ctx, job.CourseID, types.Failed, job.Stage, pct, "", msg)
	return runErr
}
