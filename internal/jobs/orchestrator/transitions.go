package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/realtime"
)

/*
HandleStageResult applies a finished stage to the course row.

Callbacks for terminal courses, for a stage that is no longer the active one, or
for a course that is not in the stage's working status are ignored. Otherwise
the stage output is persisted together with the progress record and the course
either halts at an approval gate, completes, or moves to the next stage whose
job is submitted here.
*/
func (o *Orchestrator) HandleStageResult(ctx context.Context, courseID uuid.UUID, stage types.Stage, result *runtime.Result) error {
	dbc := dbctx.New(ctx)
	st, err := o.states.Get(dbc, courseID)
	if err != nil {
		return types.NewStorageError("load state", err)
	}
	if st == nil {
		return &NotFoundError{CourseID: courseID}
	}
	log := o.log.With("course_id", courseID, "stage", int(stage))
	if st.Status.IsTerminal() {
		log.Info("Ignoring stage result for terminal course", "status", st.Status.String())
		return nil
	}
	if stage != st.CurrentStage || st.Status != stage.WorkingStatus() {
		log.Warn("Ignoring stale stage result", "current_stage", int(st.CurrentStage), "status", st.Status.String())
		return nil
	}
	if result == nil {
		result = &runtime.Result{}
	}

	updates := map[string]interface{}{}
	if len(result.Output) > 0 {
		b, err := json.Marshal(result.Output)
		if err != nil {
			return fmt.Errorf("encode stage %d output: %w", stage, err)
		}
		switch stage {
		case types.StageStructureAnalysis:
			updates["analysis_result"] = datatypes.JSON(b)
		case types.StageStructureGeneration:
			updates["structure_result"] = datatypes.JSON(b)
		}
	}

	if stage == types.StageDocumentProcessing {
		next, total, done, err := o.documentProgress(ctx, courseID)
		if err != nil {
			return err
		}
		if next != nil {
			return o.continueDocuments(ctx, st, next, total, done, result.Message, updates)
		}
	}
	return o.completeStage(ctx, st, stage, result.Message, updates)
}

func (o *Orchestrator) documentProgress(ctx context.Context, courseID uuid.UUID) (*types.CourseDocument, int, int, error) {
	docs, err := o.documents.ListByCourse(dbctx.New(ctx), courseID)
	if err != nil {
		return nil, 0, 0, types.NewStorageError("list documents", err)
	}
	var next *types.CourseDocument
	done := 0
	for _, d := range docs {
		switch d.Status {
		case types.DocumentPending:
			if next == nil {
				next = d
			}
		default:
			done++
		}
	}
	return next, len(docs), done, nil
}

// continueDocuments records one processed document and submits the job for the next one.
func (o *Orchestrator) continueDocuments(ctx context.Context, st *types.CourseGenerationState, next *types.CourseDocument, total, done int, msg string, updates map[string]interface{}) error {
	prog := st.DecodeProgress()
	prog.CurrentStep = int(types.StageDocumentProcessing)
	base := stagePercentage(types.StageInitialize)
	span := stagePercentage(types.StageDocumentProcessing) - base
	if total > 0 {
		prog.Percentage = max(prog.Percentage, base+span*done/total)
	}
	if msg == "" {
		msg = fmt.Sprintf("Processed %d of %d documents", done, total)
	}
	prog.Message = msg
	updates["progress"] = types.EncodeProgress(prog)

	ok, err := o.states.CompareAndSwap(dbctx.New(ctx), st.CourseID, st.Status, updates)
	if err != nil {
		return types.NewStorageError("record document progress", err)
	}
	if !ok {
		o.log.Warn("Course changed while recording document progress", "course_id", st.CourseID)
		return nil
	}
	o.publish(ctx, st.CourseID, st.Status, types.StageDocumentProcessing, prog.Percentage, prog.Message, "")
	_, err = o.submitDocument(ctx, st, next)
	return err
}

func (o *Orchestrator) completeStage(ctx context.Context, st *types.CourseGenerationState, stage types.Stage, msg string, updates map[string]interface{}) error {
	now := o.now()
	prog := st.DecodeProgress()
	prog.CurrentStep = int(stage)
	prog.TotalSteps = types.TotalSteps
	prog.Percentage = max(prog.Percentage, stagePercentage(stage))
	if prog.StageCompletedAt == nil {
		prog.StageCompletedAt = map[types.Stage]time.Time{}
	}
	prog.StageCompletedAt[stage] = now
	if msg == "" {
		msg = fmt.Sprintf("Completed %s", stage)
	}
	prog.Message = msg

	var (
		to   types.Status
		next types.Stage
	)
	switch {
	case stage == types.LastStage:
		to = types.Completed
		prog.Percentage = 100
	case o.cfg.Approval.RequiresApproval(stage):
		to = types.AwaitingApproval(stage)
	default:
		n, err := o.nextStage(ctx, st.CourseID, stage)
		if err != nil {
			return err
		}
		next = n
		to = next.WorkingStatus()
		updates["current_stage"] = next
	}
	updates["status"] = to
	updates["progress"] = types.EncodeProgress(prog)

	ok, err := o.states.CompareAndSwap(dbctx.New(ctx), st.CourseID, st.Status, updates)
	if err != nil {
		return types.NewStorageError("advance state", err)
	}
	if !ok {
		o.log.Warn("Course changed before stage result was applied", "course_id", st.CourseID, "stage", int(stage))
		return nil
	}
	current := stage
	if next != types.StageNone {
		current = next
	}
	o.publish(ctx, st.CourseID, to, current, prog.Percentage, prog.Message, "")
	o.log.Info("Stage completed", "course_id", st.CourseID, "stage", int(stage), "status", to.String())

	if next == types.StageNone {
		return nil
	}
	st.CurrentStage = next
	st.Status = to
	_, err = o.startStage(ctx, st, next)
	return err
}

// nextStage routes stage 1 past document processing when the course has no documents.
func (o *Orchestrator) nextStage(ctx context.Context, courseID uuid.UUID, stage types.Stage) (types.Stage, error) {
	if stage != types.StageInitialize {
		return stage.Next(), nil
	}
	docs, err := o.documents.ListByCourse(dbctx.New(ctx), courseID)
	if err != nil {
		return types.StageNone, types.NewStorageError("list documents", err)
	}
	if len(docs) == 0 {
		return types.StageStructureAnalysis, nil
	}
	return types.StageDocumentProcessing, nil
}

func stagePercentage(stage types.Stage) int {
	return int(stage) * 100 / types.TotalSteps
}

/*
startStage submits the job for a stage the course row already points at. For
document processing it submits the next pending document; when none is left
the stage is completed on the spot.
*/
func (o *Orchestrator) startStage(ctx context.Context, st *types.CourseGenerationState, stage types.Stage) (uuid.UUID, error) {
	base := basePayload(ctx, st, stage.JobType(), o.now())
	var payload any = &base
	switch stage {
	case types.StageDocumentProcessing:
		doc, err := o.documents.NextPending(dbctx.New(ctx), st.CourseID)
		if err != nil {
			return uuid.Nil, types.NewStorageError("next pending document", err)
		}
		if doc == nil {
			return uuid.Nil, o.HandleStageResult(ctx, st.CourseID, stage, &runtime.Result{Message: "No documents left to process"})
		}
		return o.submitDocument(ctx, st, doc)
	case types.StageStructureAnalysis:
		payload = analysisPayload(base, st.DecodeSettings())
	}
	return o.submitInternal(ctx, st.CourseID, stage.JobType(), payload)
}

func (o *Orchestrator) submitDocument(ctx context.Context, st *types.CourseGenerationState, doc *types.CourseDocument) (uuid.UUID, error) {
	base := basePayload(ctx, st, types.JobTypeDocumentProcessing, o.now())
	return o.submitInternal(ctx, st.CourseID, types.JobTypeDocumentProcessing, documentPayload(base, doc, st.DecodeSettings(), o.cfg.ChunkDefaults))
}

// submitInternal treats an already in-flight job as success: a resumed course may race the worker.
func (o *Orchestrator) submitInternal(ctx context.Context, courseID uuid.UUID, jt types.JobType, payload any) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode %s payload: %w", jt, err)
	}
	id, err := o.Submit(ctx, courseID, jt, raw)
	if IsDuplicate(err) {
		o.log.Warn("Next job already in flight", "course_id", courseID, "job_type", jt)
		return uuid.Nil, nil
	}
	return id, err
}

/*
Approve releases the approval gate of stage. The course must be exactly at
stage_<stage>_awaiting_approval. An approval for a gate the course already left
returns StaleApprovalError, which is what a concurrent second approval sees.
*/
func (o *Orchestrator) Approve(ctx context.Context, courseID uuid.UUID, stage types.Stage) (uuid.UUID, error) {
	if !stage.Valid() || stage == types.LastStage {
		return uuid.Nil, &ValidationError{Fields: []string{"stageNumber(range)"}, Err: fmt.Errorf("stage %d cannot be approved", stage)}
	}
	st, err := o.State(ctx, courseID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := approvalError(st, stage); err != nil {
		return uuid.Nil, err
	}

	next, err := o.nextStage(ctx, courseID, stage)
	if err != nil {
		return uuid.Nil, err
	}
	ok, err := o.states.CompareAndSwap(dbctx.New(ctx), courseID, types.AwaitingApproval(stage), map[string]interface{}{
		"current_stage": next,
		"status":        next.WorkingStatus(),
	})
	if err != nil {
		return uuid.Nil, types.NewStorageError("approve", err)
	}
	if !ok {
		// lost the race: report what the winner left behind
		cur, err := o.State(ctx, courseID)
		if err != nil {
			return uuid.Nil, err
		}
		if err := approvalError(cur, stage); err != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, &ConflictError{CourseID: courseID, Status: cur.Status, Action: "approve"}
	}

	prog := st.DecodeProgress()
	o.log.Info("Approval gate released", "course_id", courseID, "stage", int(stage), "next_stage", int(next))
	o.publish(ctx, courseID, next.WorkingStatus(), next, prog.Percentage, fmt.Sprintf("Stage %d approved", stage), "")

	st.CurrentStage = next
	st.Status = next.WorkingStatus()
	return o.startStage(ctx, st, next)
}

func approvalError(st *types.CourseGenerationState, stage types.Stage) error {
	switch {
	case st.Status.IsTerminal():
		return &ConflictError{CourseID: st.CourseID, Status: st.Status, Action: "approve"}
	case st.Status == types.AwaitingApproval(stage):
		return nil
	case st.Status.IsAwaitingApproval() && st.Status.Stage > stage, st.CurrentStage > stage:
		return &StaleApprovalError{CourseID: st.CourseID, Stage: stage, CurrentStage: st.CurrentStage, Status: st.Status}
	default:
		return &ConflictError{CourseID: st.CourseID, Status: st.Status, Action: fmt.Sprintf("approve stage %d of", stage)}
	}
}

// CancelGeneration moves any non-terminal course to cancelled and drops its queued jobs.
// Outputs of completed stages are kept.
func (o *Orchestrator) CancelGeneration(ctx context.Context, courseID uuid.UUID) error {
	ok, err := o.states.UpdateUnlessTerminal(dbctx.New(ctx), courseID, map[string]interface{}{
		"status": types.Cancelled,
	})
	if err != nil {
		return types.NewStorageError("cancel", err)
	}
	st, err := o.State(ctx, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{CourseID: courseID, Status: st.Status, Action: "cancel"}
	}
	n, err := o.queue.CancelPending(ctx, courseID)
	if err != nil {
		o.log.Warn("Failed to drop queued jobs of cancelled course", "course_id", courseID, "error", err)
	}
	o.log.Info("Generation cancelled", "course_id", courseID, "dropped_jobs", n)
	o.publish(ctx, courseID, types.Cancelled, st.CurrentStage, st.DecodeProgress().Percentage, "Generation cancelled", "")
	return nil
}

/*
Restart is the explicit recovery path for a failed course. fromStage zero means
the stage that failed. The row is reset to the stage's working status, document
error flags are cleared and a fresh job is submitted.
*/
func (o *Orchestrator) Restart(ctx context.Context, courseID uuid.UUID, fromStage types.Stage) (uuid.UUID, error) {
	st, err := o.State(ctx, courseID)
	if err != nil {
		return uuid.Nil, err
	}
	if st.Status != types.Failed {
		return uuid.Nil, &ConflictError{CourseID: courseID, Status: st.Status, Action: "restart"}
	}
	if fromStage == types.StageNone {
		fromStage = max(st.CurrentStage, types.StageInitialize)
	}
	if !fromStage.Valid() || fromStage > max(st.CurrentStage, types.StageInitialize) {
		return uuid.Nil, &ValidationError{Fields: []string{"fromStage(range)"}, Err: fmt.Errorf("cannot restart course at stage %d from stage %d", st.CurrentStage, fromStage)}
	}

	ok, err := o.states.CompareAndSwap(dbctx.New(ctx), courseID, types.Failed, map[string]interface{}{
		"current_stage": fromStage,
		"status":        fromStage.WorkingStatus(),
		"error_message": nil,
	})
	if err != nil {
		return uuid.Nil, types.NewStorageError("restart", err)
	}
	if !ok {
		cur, err := o.State(ctx, courseID)
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, &ConflictError{CourseID: courseID, Status: cur.Status, Action: "restart"}
	}
	reset, err := o.documents.ResetErrors(dbctx.New(ctx), courseID)
	if err != nil {
		return uuid.Nil, types.NewStorageError("reset document errors", err)
	}
	o.log.Info("Generation restarted", "course_id", courseID, "stage", int(fromStage), "documents_reset", reset)
	o.publish(ctx, courseID, fromStage.WorkingStatus(), fromStage, st.DecodeProgress().Percentage, fmt.Sprintf("Restarted at %s", fromStage), "")

	st.CurrentStage = fromStage
	st.Status = fromStage.WorkingStatus()
	st.ErrorMessage = nil
	return o.startStage(ctx, st, fromStage)
}

func workingStatuses() []types.Status {
	out := make([]types.Status, 0, types.TotalSteps)
	for s := types.FirstStage; s <= types.LastStage; s++ {
		out = append(out, s.WorkingStatus())
	}
	return out
}

/*
ResumeStalled repairs courses left in a working status with no job in flight,
which happens when a worker dies between acking a job and submitting the next
one. Only rows untouched for olderThan are considered. It returns how many
courses got a new job.
*/
func (o *Orchestrator) ResumeStalled(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	states, err := o.states.ListByStatus(dbctx.New(ctx), workingStatuses(), limit)
	if err != nil {
		return 0, types.NewStorageError("list working courses", err)
	}
	cutoff := o.now().Add(-olderThan)
	resumed := 0
	var errs []error
	for _, st := range states {
		if st.UpdatedAt.After(cutoff) {
			continue
		}
		stage := max(st.CurrentStage, types.StageInitialize)
		inflight, err := o.queue.InFlight(ctx, st.CourseID, stage)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if inflight != nil {
			continue
		}
		o.log.Warn("Resuming stalled course", "course_id", st.CourseID, "stage", int(stage), "status", st.Status.String())
		if _, err := o.startStage(ctx, st, stage); err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", st.CourseID, err))
			continue
		}
		resumed++
	}
	return resumed, errors.Join(errs...)
}

// progressFunc publishes handler messages without touching the row.
func (o *Orchestrator) progressFunc(st *types.CourseGenerationState) runtime.ProgressFunc {
	return func(ctx context.Context, msg string) {
		o.publishEvent(ctx, st.CourseID, st.Status, st.CurrentStage, st.DecodeProgress().Percentage, msg, "")
	}
}

// publish records a transition and announces it.
func (o *Orchestrator) publish(ctx context.Context, courseID uuid.UUID, status types.Status, stage types.Stage, pct int, msg, errMsg string) {
	o.metrics.ObserveTransition(status.String())
	o.publishEvent(ctx, courseID, status, stage, pct, msg, errMsg)
}

func (o *Orchestrator) publishEvent(ctx context.Context, courseID uuid.UUID, status types.Status, stage types.Stage, pct int, msg, errMsg string) {
	if o.bus == nil {
		return
	}
	ev := realtime.ProgressEvent{
		CourseID:   courseID,
		Status:     status.String(),
		Stage:      int(stage),
		Percentage: pct,
		Message:    msg,
		Error:      errMsg,
		At:         o.now(),
	}
	if err := o.bus.Publish(ctx, ev); err != nil {
		o.log.Warn("Progress publish failed", "course_id", courseID, "error", err)
	}
}
