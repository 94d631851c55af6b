package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

/*
runtime.Context is the execution handle a stage handler receives for one leased job.
It wraps:
  - the request-scoped context (lease deadline, shutdown),
  - the job row and the course state snapshot taken when the job was picked up,
  - the only sanctioned ways to heartbeat, report progress and check for cancellation.

Handlers never write the course state row. They return a Result and the
orchestrator applies the transition.
*/
type Context struct {
	Ctx   context.Context
	Job   *types.GenerationJob
	State *types.CourseGenerationState
	Log   *logger.Logger

	states   StateReader
	beat     HeartbeatFunc
	progress ProgressFunc
	payload  map[string]any
}

type StateReader interface {
	Get(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseGenerationState, error)
}

type HeartbeatFunc func(ctx context.Context) error

type ProgressFunc func(ctx context.Context, message string)

type Deps struct {
	Log      *logger.Logger
	States   StateReader
	Beat     HeartbeatFunc
	Progress ProgressFunc
}

/*
NewContext builds the handle for a claimed job. The payload is decoded eagerly;
a malformed payload leaves an empty map and handlers fail on their own validation.
*/
func NewContext(ctx context.Context, job *types.GenerationJob, state *types.CourseGenerationState, deps Deps) *Context {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{
		Ctx:      ctx,
		Job:      job,
		State:    state,
		states:   deps.States,
		beat:     deps.Beat,
		progress: deps.Progress,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	if job != nil {
		log = log.With("job_id", job.ID, "job_type", job.JobType, "course_id", job.CourseID)
	}
	c.Log = log.With(ctxutil.TraceFields(c.Ctx)...)
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c.Ctx == nil {
		c.Ctx = context.Background()
	}
	traceID := c.payloadString("traceId")
	reqID := c.payloadString("requestId")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// DecodePayload unmarshals the raw job payload into dst.
func (c *Context) DecodePayload(dst any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return &types.InputError{Field: "payload", Reason: "empty"}
	}
	if err := json.Unmarshal(c.Job.Payload, dst); err != nil {
		return &types.InputError{Field: "payload", Reason: err.Error()}
	}
	return nil
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.payloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) payloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Settings returns the course settings captured at submission.
func (c *Context) Settings() map[string]any {
	return c.State.DecodeSettings()
}

// Heartbeat extends the job lease. Long handlers call it between provider calls.
func (c *Context) Heartbeat() error {
	if c.beat == nil {
		return nil
	}
	return c.beat(c.Ctx)
}

// Progress publishes a human message without changing the course status.
func (c *Context) Progress(msg string) {
	if c.progress == nil {
		return
	}
	c.progress(c.Ctx, msg)
}

/*
IsCanceled re-reads the course row. True when the context is done or the course
reached a terminal status after this job was picked up. Handlers check it before
expensive side effects.
*/
func (c *Context) IsCanceled() bool {
	if c.Ctx.Err() != nil {
		return true
	}
	if c.states == nil || c.Job == nil {
		return false
	}
	st, err := c.states.Get(dbctx.New(c.Ctx), c.Job.CourseID)
	if err != nil {
		c.Log.Warn("Cancellation check failed", "error", err)
		return false
	}
	return st == nil || st.Status.IsTerminal()
}
