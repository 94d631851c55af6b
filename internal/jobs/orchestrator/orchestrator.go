package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/jobs/queue"
	"github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
	"github.com/yungbote/coursegen-backend/internal/realtime/bus"
)

type Config struct {
	Approval      ApprovalPolicy
	ChunkDefaults ChunkDefaults
	// HeartbeatInterval extends a running job's lease; zero disables it.
	HeartbeatInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Approval:          DefaultApprovalPolicy(),
		ChunkDefaults:     ChunkDefaults{Size: 1000, Overlap: 200},
		HeartbeatInterval: time.Minute,
	}
}

type Deps struct {
	Log       *logger.Logger
	States    repos.StateRepo
	Documents repos.DocumentRepo
	Queue     queue.Queue
	Registry  *runtime.Registry
	Bus       bus.Bus
	Metrics   *observability.Metrics
}

// Orchestrator owns every write to course_generation_state. Handlers return
// results; transitions happen here.
type Orchestrator struct {
	cfg       Config
	log       *logger.Logger
	states    repos.StateRepo
	documents repos.DocumentRepo
	queue     queue.Queue
	registry  *runtime.Registry
	bus       bus.Bus
	metrics   *observability.Metrics
	now       func() time.Time
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.States == nil || deps.Documents == nil {
		return nil, fmt.Errorf("orchestrator: state and document repos are required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("orchestrator: queue is required")
	}
	if deps.Registry == nil {
		deps.Registry = runtime.NewRegistry()
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ChunkDefaults.Size <= 0 {
		cfg.ChunkDefaults = DefaultConfig().ChunkDefaults
	}
	return &Orchestrator{
		cfg:       cfg,
		log:       log.With("component", "StageOrchestrator"),
		states:    deps.States,
		documents: deps.Documents,
		queue:     deps.Queue,
		registry:  deps.Registry,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock replaces the time source used for timestamps written by the orchestrator.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

func (o *Orchestrator) Registry() *runtime.Registry { return o.registry }

func (o *Orchestrator) Approval() ApprovalPolicy { return o.cfg.Approval }

// State returns the course row, or NotFoundError.
func (o *Orchestrator) State(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationState, error) {
	st, err := o.states.Get(dbctx.New(ctx), courseID)
	if err != nil {
		return nil, types.NewStorageError("load state", err)
	}
	if st == nil {
		return nil, &NotFoundError{CourseID: courseID}
	}
	return st, nil
}

// Submit validates payload against the job type's schema and enqueues it.
func (o *Orchestrator) Submit(ctx context.Context, courseID uuid.UUID, jobType types.JobType, payload json.RawMessage) (uuid.UUID, error) {
	return o.SubmitIdempotent(ctx, courseID, jobType, payload, "")
}

// SubmitIdempotent is Submit with a caller-chosen idempotency key. A key that
// was already used returns the original job id.
func (o *Orchestrator) SubmitIdempotent(ctx context.Context, courseID uuid.UUID, jobType types.JobType, payload json.RawMessage, key string) (uuid.UUID, error) {
	decoded, err := ValidatePayload(courseID, jobType, payload)
	if err != nil {
		return uuid.Nil, err
	}
	common := commonPart(decoded)
	stage, _ := jobType.Stage()

	dbc := dbctx.New(ctx)
	st, err := o.states.Get(dbc, courseID)
	if err != nil {
		return uuid.Nil, types.NewStorageError("load state", err)
	}
	if st != nil {
		if st.Status.IsTerminal() {
			return uuid.Nil, &ConflictError{CourseID: courseID, Status: st.Status, Action: "submit"}
		}
		if !acceptsStage(st, stage) {
			return uuid.Nil, &ConflictError{CourseID: courseID, Status: st.Status, Action: "submit " + string(jobType) + " for"}
		}
	} else {
		if stage != types.StageInitialize {
			return uuid.Nil, &NotFoundError{CourseID: courseID}
		}
		if _, err := o.states.CreateIfAbsent(dbc, o.newState(common.OrganizationID, courseID, common.UserID, nil)); err != nil {
			return uuid.Nil, types.NewStorageError("create state", err)
		}
	}

	var fileID *uuid.UUID
	if dp, ok := decoded.(*types.DocumentProcessingPayload); ok {
		f := dp.FileID
		fileID = &f
	}
	return o.enqueue(ctx, common, stage, fileID, payload, strings.TrimSpace(key))
}

// acceptsStage reports whether a job for stage may be queued: only the active
// stage in its working status, or stage 1 for a course that has not started.
func acceptsStage(st *types.CourseGenerationState, stage types.Stage) bool {
	if st.CurrentStage == types.StageNone {
		return stage == types.StageInitialize
	}
	return stage == st.CurrentStage && st.Status == stage.WorkingStatus()
}

func (o *Orchestrator) newState(orgID, courseID, userID uuid.UUID, settings map[string]any) *types.CourseGenerationState {
	now := o.now()
	st := &types.CourseGenerationState{
		CourseID:       courseID,
		OrganizationID: orgID,
		UserID:         userID,
		CurrentStage:   types.StageNone,
		Status:         types.StageInitialize.WorkingStatus(),
		Progress:       types.EncodeProgress(types.ProgressRecord{TotalSteps: types.TotalSteps}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(settings) > 0 {
		if b, err := json.Marshal(settings); err == nil {
			st.Settings = datatypes.JSON(b)
		}
	}
	return st
}

// jobPriority drains courses closest to completion first.
func jobPriority(stage types.Stage) int {
	return int(types.LastStage - stage)
}

func (o *Orchestrator) enqueue(ctx context.Context, p *types.JobPayload, stage types.Stage, fileID *uuid.UUID, raw json.RawMessage, key string) (uuid.UUID, error) {
	id := uuid.New()
	if key == "" {
		key = queue.IdempotencyKey(p.CourseID, stage, fileID, id)
	}
	job := &types.GenerationJob{
		ID:             id,
		JobType:        stage.JobType(),
		Stage:          stage,
		OrganizationID: p.OrganizationID,
		CourseID:       p.CourseID,
		UserID:         p.UserID,
		FileID:         fileID,
		Payload:        datatypes.JSON(raw),
		Priority:       jobPriority(stage),
		IdempotencyKey: key,
		CreatedAt:      o.now(),
	}
	stored, created, err := o.queue.Enqueue(ctx, job)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateInFlight) {
			return uuid.Nil, &DuplicateJobError{CourseID: p.CourseID, Stage: stage}
		}
		if stored == nil {
			return uuid.Nil, err
		}
		// stored but the dispatcher was not told; the polling worker still picks it up
		o.log.Warn("Job stored but notification failed", "job_id", stored.ID, "error", err)
	}
	if created {
		o.log.Info("Job submitted", "job_id", stored.ID, "course_id", p.CourseID, "job_type", stored.JobType)
	}
	return stored.ID, nil
}

// NewDocument describes a source file attached when generation starts.
type NewDocument struct {
	FileName string
	FilePath string
	MimeType string
	Priority types.PriorityClass
}

type StartRequest struct {
	OrganizationID uuid.UUID
	CourseID       uuid.UUID
	UserID         uuid.UUID
	Settings       map[string]any
	Documents      []NewDocument
}

/*
StartGeneration creates the course row with its settings and documents and
submits the stage-1 job. Calling it again for a course that has not started
yet returns the in-flight job as a DuplicateJobError.
*/
func (o *Orchestrator) StartGeneration(ctx context.Context, req StartRequest) (uuid.UUID, error) {
	if req.CourseID == uuid.Nil || req.OrganizationID == uuid.Nil || req.UserID == uuid.Nil {
		return uuid.Nil, &ValidationError{JobType: types.JobTypeInitialize, Fields: []string{"courseId/organizationId/userId(required)"}}
	}
	for i, d := range req.Documents {
		if strings.TrimSpace(d.FilePath) == "" {
			return uuid.Nil, &ValidationError{JobType: types.JobTypeInitialize, Fields: []string{fmt.Sprintf("documents[%d].filePath(required)", i)}}
		}
	}
	dbc := dbctx.New(ctx)
	created, err := o.states.CreateIfAbsent(dbc, o.newState(req.OrganizationID, req.CourseID, req.UserID, req.Settings))
	if err != nil {
		return uuid.Nil, types.NewStorageError("create state", err)
	}
	if !created {
		st, err := o.State(ctx, req.CourseID)
		if err != nil {
			return uuid.Nil, err
		}
		if st.Status.IsTerminal() || st.CurrentStage != types.StageNone {
			return uuid.Nil, &ConflictError{CourseID: req.CourseID, Status: st.Status, Action: "start"}
		}
	}
	if created && len(req.Documents) > 0 {
		docs := make([]*types.CourseDocument, 0, len(req.Documents))
		for _, d := range req.Documents {
			name := d.FileName
			if strings.TrimSpace(name) == "" {
				name = baseName(d.FilePath)
			}
			docs = append(docs, &types.CourseDocument{
				CourseID: req.CourseID,
				FileName: name,
				FilePath: d.FilePath,
				MimeType: d.MimeType,
				Priority: d.Priority,
			})
		}
		if _, err := o.documents.Create(dbc, docs); err != nil {
			return uuid.Nil, types.NewStorageError("create documents", err)
		}
	}

	st := &types.CourseGenerationState{OrganizationID: req.OrganizationID, CourseID: req.CourseID, UserID: req.UserID}
	raw, err := json.Marshal(basePayload(ctx, st, types.JobTypeInitialize, o.now()))
	if err != nil {
		return uuid.Nil, err
	}
	return o.Submit(ctx, req.CourseID, types.JobTypeInitialize, raw)
}

func baseName(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
