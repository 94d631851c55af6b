package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	"github.com/yungbote/coursegen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/jobs/queue"
	"github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/realtime"
)

type handlerFunc func(c *runtime.Context) (*runtime.Result, error)

type fakeHandler struct {
	jt    types.JobType
	mu    sync.Mutex
	calls int
	fn    handlerFunc
}

func (h *fakeHandler) Type() types.JobType { return h.jt }

func (h *fakeHandler) Run(c *runtime.Context) (*runtime.Result, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.fn == nil {
		return &runtime.Result{Output: map[string]any{"stage": string(h.jt)}}, nil
	}
	return h.fn(c)
}

func (h *fakeHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type recordingBus struct {
	mu     sync.Mutex
	events []realtime.ProgressEvent
}

func (b *recordingBus) Publish(ctx context.Context, ev realtime.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) StartForwarder(ctx context.Context, onMsg func(ev realtime.ProgressEvent)) error {
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) Events() []realtime.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.ProgressEvent(nil), b.events...)
}

type harness struct {
	o        *Orchestrator
	q        *queue.MemoryQueue
	states   repos.StateRepo
	docs     repos.DocumentRepo
	bus      *recordingBus
	handlers map[types.JobType]*fakeHandler
}

func newHarness(t *testing.T, policy ApprovalPolicy) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		q:        queue.NewMemoryQueue(time.Minute),
		states:   repos.NewStateRepo(db, log),
		docs:     repos.NewDocumentRepo(db, log),
		bus:      &recordingBus{},
		handlers: map[types.JobType]*fakeHandler{},
	}
	reg := runtime.NewRegistry()
	for _, jt := range types.AllJobTypes() {
		fh := &fakeHandler{jt: jt}
		h.handlers[jt] = fh
		if err := reg.Register(fh); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	h.handlers[types.JobTypeDocumentProcessing].fn = h.processDocument

	cfg := DefaultConfig()
	cfg.Approval = policy
	o, err := New(cfg, Deps{
		Log:       log,
		States:    h.states,
		Documents: h.docs,
		Queue:     h.q,
		Registry:  reg,
		Bus:       h.bus,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.o = o
	return h
}

func (h *harness) processDocument(c *runtime.Context) (*runtime.Result, error) {
	var p types.DocumentProcessingPayload
	if err := c.DecodePayload(&p); err != nil {
		return nil, err
	}
	if err := h.docs.MarkProcessed(dbctx.New(c.Ctx), p.FileID, "text", 100, 1); err != nil {
		return nil, types.NewStorageError("mark processed", err)
	}
	return &runtime.Result{Output: map[string]any{"file_id": p.FileID.String()}}, nil
}

// drain processes jobs until the queue has nothing runnable.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for range 50 {
		lease, err := h.q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if lease == nil {
			return
		}
		_ = h.o.Process(ctx, lease)
	}
	t.Fatalf("queue did not drain")
}

func (h *harness) state(t *testing.T, courseID uuid.UUID) *types.CourseGenerationState {
	t.Helper()
	st, err := h.states.Get(dbctx.New(context.Background()), courseID)
	if err != nil || st == nil {
		t.Fatalf("load state: %+v err=%v", st, err)
	}
	return st
}

func (h *harness) start(t *testing.T, docs ...NewDocument) uuid.UUID {
	t.Helper()
	courseID := uuid.New()
	_, err := h.o.StartGeneration(context.Background(), StartRequest{
		OrganizationID: uuid.New(),
		CourseID:       courseID,
		UserID:         uuid.New(),
		Settings:       map[string]any{"topic": "Distributed systems"},
		Documents:      docs,
	})
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	return courseID
}

// seed stores a course row sitting in the working status of stage.
func (h *harness) seed(t *testing.T, courseID uuid.UUID, stage types.Stage) {
	t.Helper()
	_, err := h.states.CreateIfAbsent(dbctx.New(context.Background()), &types.CourseGenerationState{
		CourseID:       courseID,
		OrganizationID: uuid.New(),
		UserID:         uuid.New(),
		CurrentStage:   stage,
		Status:         stage.WorkingStatus(),
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
}

func noGates() ApprovalPolicy {
	p, _ := NewApprovalPolicy(false, nil)
	return p
}

func gates(stages ...int) ApprovalPolicy {
	p, err := NewApprovalPolicy(true, stages)
	if err != nil {
		panic(err)
	}
	return p
}

func TestRunWithoutDocumentsSkipsDocumentProcessing(t *testing.T) {
	h := newHarness(t, noGates())
	courseID := h.start(t)
	h.drain(t)

	st := h.state(t, courseID)
	if st.Status != types.Completed {
		t.Fatalf("expected completed, got %s", st.Status)
	}
	if h.handlers[types.JobTypeDocumentProcessing].Calls() != 0 {
		t.Fatalf("document processing must be skipped without documents")
	}
	prog := st.DecodeProgress()
	if prog.Percentage != 100 || prog.CurrentStep != int(types.LastStage) {
		t.Fatalf("unexpected progress %+v", prog)
	}
	if _, ok := prog.StageCompletedAt[types.StageDocumentProcessing]; ok {
		t.Fatalf("stage 2 must not be marked completed: %+v", prog.StageCompletedAt)
	}
	for _, s := range []types.Stage{types.StageInitialize, types.StageStructureAnalysis, types.StageFinalization} {
		if _, ok := prog.StageCompletedAt[s]; !ok {
			t.Fatalf("missing completion timestamp for %s", s)
		}
	}
	if len(st.AnalysisResult) == 0 || len(st.StructureResult) == 0 {
		t.Fatalf("stage outputs must be persisted")
	}
	if st.StartedAt == nil {
		t.Fatalf("started_at must be set")
	}
	if len(h.q.Jobs()) != 0 {
		t.Fatalf("queue must be empty, got %d jobs", len(h.q.Jobs()))
	}

	last := -1
	for _, ev := range h.bus.Events() {
		if ev.CourseID != courseID {
			t.Fatalf("event for unexpected course %s", ev.CourseID)
		}
		if ev.Percentage < last {
			t.Fatalf("percentage regressed: %d after %d", ev.Percentage, last)
		}
		last = ev.Percentage
	}
}

func TestDocumentsAreProcessedOneAtATime(t *testing.T) {
	h := newHarness(t, noGates())
	inFlight := 0
	h.handlers[types.JobTypeDocumentProcessing].fn = func(c *runtime.Context) (*runtime.Result, error) {
		n := 0
		for _, j := range h.q.Jobs() {
			if j.Stage == types.StageDocumentProcessing && j.InFlight() {
				n++
			}
		}
		inFlight = max(inFlight, n)
		return h.processDocument(c)
	}
	courseID := h.start(t,
		NewDocument{FilePath: "/data/a.md", MimeType: "text/markdown"},
		NewDocument{FilePath: "/data/b.txt", MimeType: "text/plain"},
		NewDocument{FilePath: "/data/c.pdf", MimeType: "application/pdf"},
	)
	h.drain(t)

	if got := h.handlers[types.JobTypeDocumentProcessing].Calls(); got != 3 {
		t.Fatalf("expected 3 document jobs, got %d", got)
	}
	if inFlight != 1 {
		t.Fatalf("expected one document job in flight at a time, saw %d", inFlight)
	}
	st := h.state(t, courseID)
	if st.Status != types.Completed {
		t.Fatalf("expected completed, got %s", st.Status)
	}
	docs, _ := h.docs.ListByCourse(dbctx.New(context.Background()), courseID)
	for _, d := range docs {
		if d.Status != types.DocumentProcessed {
			t.Fatalf("document %s not processed: %s", d.FileName, d.Status)
		}
	}
}

func TestApprovalGateHaltsAndSecondApprovalIsStale(t *testing.T) {
	h := newHarness(t, gates(3))
	ctx := context.Background()
	courseID := h.start(t)
	h.drain(t)

	st := h.state(t, courseID)
	if st.Status != types.AwaitingApproval(types.StageStructureAnalysis) {
		t.Fatalf("expected stage_3_awaiting_approval, got %s", st.Status)
	}
	if len(h.q.Jobs()) != 0 {
		t.Fatalf("no work may be queued during a gate")
	}
	if h.handlers[types.JobTypeStructureGeneration].Calls() != 0 {
		t.Fatalf("stage 4 ran before approval")
	}

	if _, err := h.o.Approve(ctx, courseID, types.StageStructureAnalysis); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	_, err := h.o.Approve(ctx, courseID, types.StageStructureAnalysis)
	if !IsStaleApproval(err) {
		t.Fatalf("second approval: expected StaleApprovalError, got %v", err)
	}
	h.drain(t)
	if st := h.state(t, courseID); st.Status != types.Completed {
		t.Fatalf("expected completed after approval, got %s", st.Status)
	}
}

func TestApproveErrors(t *testing.T) {
	h := newHarness(t, gates(2))
	ctx := context.Background()

	if _, err := h.o.Approve(ctx, uuid.New(), types.StageDocumentProcessing); !IsNotFound(err) {
		t.Fatalf("unknown course: expected NotFoundError, got %v", err)
	}

	courseID := h.start(t)
	if _, err := h.o.Approve(ctx, courseID, types.StageStructureGeneration); !IsConflict(err) {
		t.Fatalf("not at gate: expected ConflictError, got %v", err)
	}
	if _, err := h.o.Approve(ctx, courseID, types.StageFinalization); !IsValidation(err) {
		t.Fatalf("last stage: expected ValidationError, got %v", err)
	}

	if err := h.o.CancelGeneration(ctx, courseID); err != nil {
		t.Fatalf("CancelGeneration: %v", err)
	}
	if _, err := h.o.Approve(ctx, courseID, types.StageDocumentProcessing); !IsConflict(err) {
		t.Fatalf("terminal course: expected ConflictError, got %v", err)
	}
}

func TestGateAfterDocumentProcessing(t *testing.T) {
	h := newHarness(t, gates(2))
	courseID := h.start(t, NewDocument{FilePath: "/data/a.md"})
	h.drain(t)
	st := h.state(t, courseID)
	if st.Status != types.AwaitingApproval(types.StageDocumentProcessing) {
		t.Fatalf("expected stage_2_awaiting_approval, got %s", st.Status)
	}
	if _, err := h.o.Approve(context.Background(), courseID, types.StageDocumentProcessing); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if st := h.state(t, courseID); st.Status != types.StageStructureAnalysis.WorkingStatus() || st.CurrentStage != types.StageStructureAnalysis {
		t.Fatalf("approval must move to stage 3, got %s at %d", st.Status, st.CurrentStage)
	}
}

func TestCancelDuringContentGenerationIgnoresLateResult(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	h.handlers[types.JobTypeContentGeneration].fn = func(c *runtime.Context) (*runtime.Result, error) {
		if err := h.o.CancelGeneration(ctx, c.Job.CourseID); err != nil {
			t.Errorf("CancelGeneration: %v", err)
		}
		if !c.IsCanceled() {
			t.Errorf("handler must observe the cancellation")
		}
		return &runtime.Result{Message: "lessons written"}, nil
	}
	courseID := h.start(t)
	h.drain(t)

	st := h.state(t, courseID)
	if st.Status != types.Cancelled {
		t.Fatalf("expected cancelled, got %s", st.Status)
	}
	if h.handlers[types.JobTypeFinalization].Calls() != 0 {
		t.Fatalf("finalization must not run after cancel")
	}
	if err := h.o.HandleStageResult(ctx, courseID, types.StageContentGeneration, &runtime.Result{}); err != nil {
		t.Fatalf("late HandleStageResult: %v", err)
	}
	if st := h.state(t, courseID); st.Status != types.Cancelled {
		t.Fatalf("state regressed from cancelled to %s", st.Status)
	}
	if len(st.StructureResult) == 0 {
		t.Fatalf("outputs of completed stages must be kept")
	}
	if err := h.o.CancelGeneration(ctx, courseID); !IsConflict(err) {
		t.Fatalf("cancel of terminal course: expected ConflictError, got %v", err)
	}
	if err := h.o.CancelGeneration(ctx, uuid.New()); !IsNotFound(err) {
		t.Fatalf("cancel of unknown course: expected NotFoundError, got %v", err)
	}
}

func TestCancelDropsQueuedJobs(t *testing.T) {
	h := newHarness(t, noGates())
	courseID := h.start(t)
	if err := h.o.CancelGeneration(context.Background(), courseID); err != nil {
		t.Fatalf("CancelGeneration: %v", err)
	}
	if n := len(h.q.Jobs()); n != 0 {
		t.Fatalf("expected queued jobs to be dropped, %d left", n)
	}
}

func TestProcessSkipsJobOfTerminalCourse(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := h.start(t)
	lease, err := h.q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("Dequeue: %+v err=%v", lease, err)
	}
	if err := h.o.CancelGeneration(ctx, courseID); err != nil {
		t.Fatalf("CancelGeneration: %v", err)
	}
	if err := h.o.Process(ctx, lease); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if h.handlers[types.JobTypeInitialize].Calls() != 0 {
		t.Fatalf("handler ran for a cancelled course")
	}
	if len(h.q.Jobs()) != 0 {
		t.Fatalf("skipped job must be acked")
	}
}

func payloadFor(t *testing.T, courseID uuid.UUID, jt types.JobType, extra map[string]any) json.RawMessage {
	t.Helper()
	m := map[string]any{
		"jobType":        string(jt),
		"organizationId": uuid.NewString(),
		"courseId":       courseID.String(),
		"userId":         uuid.NewString(),
		"createdAt":      time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestSubmitDuplicateAndIdempotency(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := uuid.New()

	raw := payloadFor(t, courseID, types.JobTypeInitialize, nil)
	first, err := h.o.SubmitIdempotent(ctx, courseID, types.JobTypeInitialize, raw, "client-key-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	again, err := h.o.SubmitIdempotent(ctx, courseID, types.JobTypeInitialize, raw, "client-key-1")
	if err != nil || again != first {
		t.Fatalf("same key must return the same job: %s vs %s err=%v", again, first, err)
	}
	_, err = h.o.Submit(ctx, courseID, types.JobTypeInitialize, raw)
	if !IsDuplicate(err) {
		t.Fatalf("expected DuplicateJobError, got %v", err)
	}
	if st := h.state(t, courseID); st.CurrentStage != types.StageNone || st.Status != types.StageInitialize.WorkingStatus() {
		t.Fatalf("submission must create the state at stage 0, got %d %s", st.CurrentStage, st.Status)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := uuid.New()
	fileID := uuid.NewString()
	docFields := map[string]any{"fileId": fileID, "filePath": "/data/a.pdf", "mimeType": "application/pdf", "chunkSize": 1000, "chunkOverlap": 200}
	with := func(base map[string]any, k string, v any) map[string]any {
		out := map[string]any{}
		for kk, vv := range base {
			out[kk] = vv
		}
		out[k] = v
		return out
	}

	tests := []struct {
		name    string
		jobType types.JobType
		payload json.RawMessage
		field   string
	}{
		{"unknown job type", types.JobType("render_video"), payloadFor(t, courseID, "render_video", nil), ""},
		{"empty payload", types.JobTypeInitialize, nil, ""},
		{"malformed json", types.JobTypeInitialize, json.RawMessage(`{"jobType":`), ""},
		{"missing user", types.JobTypeInitialize, payloadFor(t, courseID, types.JobTypeInitialize, map[string]any{"userId": nil}), "userId"},
		{"job type mismatch", types.JobTypeInitialize, payloadFor(t, courseID, types.JobTypeFinalization, nil), "jobType"},
		{"course mismatch", types.JobTypeInitialize, payloadFor(t, uuid.New(), types.JobTypeInitialize, nil), "courseId"},
		{"missing file id", types.JobTypeDocumentProcessing, payloadFor(t, courseID, types.JobTypeDocumentProcessing, with(docFields, "fileId", nil)), "fileId"},
		{"zero chunk size", types.JobTypeDocumentProcessing, payloadFor(t, courseID, types.JobTypeDocumentProcessing, with(docFields, "chunkSize", 0)), "chunkSize"},
		{"overlap not below size", types.JobTypeDocumentProcessing, payloadFor(t, courseID, types.JobTypeDocumentProcessing, with(docFields, "chunkOverlap", 1000)), "chunkOverlap"},
		{"bad webhook", types.JobTypeStructureAnalysis, payloadFor(t, courseID, types.JobTypeStructureAnalysis, map[string]any{"webhookUrl": "not a url"}), "webhookUrl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.o.Submit(ctx, courseID, tt.jobType, tt.payload)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if tt.field != "" && !strings.Contains(strings.Join(ve.Fields, ","), tt.field) {
				t.Fatalf("expected field %s in %v", tt.field, ve.Fields)
			}
		})
	}

	h.seed(t, courseID, types.StageDocumentProcessing)
	ok := payloadFor(t, courseID, types.JobTypeDocumentProcessing, docFields)
	if _, err := h.o.Submit(ctx, courseID, types.JobTypeDocumentProcessing, ok); err != nil {
		t.Fatalf("valid document payload rejected: %v", err)
	}
	analysisCourse := uuid.New()
	h.seed(t, analysisCourse, types.StageStructureAnalysis)
	nullHook := payloadFor(t, analysisCourse, types.JobTypeStructureAnalysis, nil)
	var m map[string]any
	_ = json.Unmarshal(nullHook, &m)
	m["webhookUrl"] = nil
	nullHook, _ = json.Marshal(m)
	if _, err := h.o.Submit(ctx, analysisCourse, types.JobTypeStructureAnalysis, nullHook); err != nil {
		t.Fatalf("null webhookUrl must be accepted: %v", err)
	}
}

func TestSubmitForTerminalCourseConflicts(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := h.start(t)
	if err := h.o.CancelGeneration(ctx, courseID); err != nil {
		t.Fatalf("CancelGeneration: %v", err)
	}
	_, err := h.o.Submit(ctx, courseID, types.JobTypeInitialize, payloadFor(t, courseID, types.JobTypeInitialize, nil))
	if !IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if _, err := h.o.StartGeneration(ctx, StartRequest{OrganizationID: uuid.New(), CourseID: courseID, UserID: uuid.New()}); !IsConflict(err) {
		t.Fatalf("restarting a cancelled course via start: expected ConflictError, got %v", err)
	}
}

func TestHandlerFailureIsCategorized(t *testing.T) {
	tests := []struct {
		name   string
		fn     handlerFunc
		prefix string
	}{
		{"provider", func(*runtime.Context) (*runtime.Result, error) {
			return nil, types.NewProviderError("openai", "chat", errors.New("429 rate limited"))
		}, "[provider]"},
		{"quality gate", func(*runtime.Context) (*runtime.Result, error) {
			return nil, &types.QualityGateError{FileID: uuid.New(), Score: 0.5, Threshold: 0.75, Attempts: 3}
		}, "[quality_gate]"},
		{"validation", func(*runtime.Context) (*runtime.Result, error) {
			return nil, &types.InputError{Field: "settings.topic", Reason: "missing"}
		}, "[validation]"},
		{"plain error", func(*runtime.Context) (*runtime.Result, error) {
			return nil, errors.New("boom")
		}, "[internal]"},
		{"panic", func(*runtime.Context) (*runtime.Result, error) {
			panic("nil map")
		}, "[internal] handler panic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, noGates())
			h.handlers[types.JobTypeStructureAnalysis].fn = tt.fn
			courseID := h.start(t)
			h.drain(t)

			st := h.state(t, courseID)
			if st.Status != types.Failed {
				t.Fatalf("expected failed, got %s", st.Status)
			}
			if st.ErrorMessage == nil || !strings.HasPrefix(*st.ErrorMessage, tt.prefix) {
				t.Fatalf("expected error message with prefix %q, got %v", tt.prefix, st.ErrorMessage)
			}
			if st.CurrentStage != types.StageStructureAnalysis {
				t.Fatalf("failure must keep the failing stage, got %d", st.CurrentStage)
			}
			jobs := h.q.Jobs()
			if len(jobs) != 1 || jobs[0].Status != types.QueueStatusDead || jobs[0].DeadReason != *st.ErrorMessage {
				t.Fatalf("expected one dead-lettered job, got %+v", jobs)
			}
			if h.handlers[types.JobTypeStructureGeneration].Calls() != 0 {
				t.Fatalf("no stage may run after a failure")
			}
		})
	}
}

func TestMissingHandlerFailsCourse(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	q := queue.NewMemoryQueue(time.Minute)
	states := repos.NewStateRepo(db, log)
	o, err := New(DefaultConfig(), Deps{Log: log, States: states, Documents: repos.NewDocumentRepo(db, log), Queue: q})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	courseID := uuid.New()
	if _, err := o.StartGeneration(ctx, StartRequest{OrganizationID: uuid.New(), CourseID: courseID, UserID: uuid.New()}); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	lease, _ := q.Dequeue(ctx)
	if err := o.Process(ctx, lease); !errors.Is(err, errMissingHandler) {
		t.Fatalf("expected errMissingHandler, got %v", err)
	}
	st, _ := states.Get(dbctx.New(ctx), courseID)
	if st.Status != types.Failed || !strings.HasPrefix(*st.ErrorMessage, "[internal]") {
		t.Fatalf("unexpected state %s %v", st.Status, st.ErrorMessage)
	}
}

func TestRestartAfterDocumentFailure(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	failOnce := true
	h.handlers[types.JobTypeDocumentProcessing].fn = func(c *runtime.Context) (*runtime.Result, error) {
		if failOnce {
			failOnce = false
			fileID, _ := c.PayloadUUID("fileId")
			_ = h.docs.MarkError(dbctx.New(c.Ctx), fileID, "conversion failed")
			return nil, types.NewProviderError("documentai", "process", errors.New("unavailable"))
		}
		return h.processDocument(c)
	}
	courseID := h.start(t, NewDocument{FilePath: "/data/a.pdf", MimeType: "application/pdf"})
	h.drain(t)
	if st := h.state(t, courseID); st.Status != types.Failed {
		t.Fatalf("expected failed, got %s", st.Status)
	}

	if _, err := h.o.Restart(ctx, courseID, types.StageStructureGeneration); !IsValidation(err) {
		t.Fatalf("restart beyond the failed stage: expected ValidationError, got %v", err)
	}
	if _, err := h.o.Restart(ctx, courseID, types.StageNone); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	st := h.state(t, courseID)
	if st.Status != types.StageDocumentProcessing.WorkingStatus() || st.ErrorMessage != nil {
		t.Fatalf("restart must reset status and error: %s %v", st.Status, st.ErrorMessage)
	}
	h.drain(t)
	if st := h.state(t, courseID); st.Status != types.Completed {
		t.Fatalf("expected completed after restart, got %s", st.Status)
	}
	if _, err := h.o.Restart(ctx, courseID, types.StageNone); !IsConflict(err) {
		t.Fatalf("restart of a completed course: expected ConflictError, got %v", err)
	}
}

func TestResumeStalled(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := uuid.New()
	_, err := h.states.CreateIfAbsent(dbctx.New(ctx), &types.CourseGenerationState{
		CourseID:       courseID,
		OrganizationID: uuid.New(),
		UserID:         uuid.New(),
		CurrentStage:   types.StageStructureAnalysis,
		Status:         types.StageStructureAnalysis.WorkingStatus(),
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	h.o.SetClock(func() time.Time { return time.Now().UTC().Add(time.Hour) })

	n, err := h.o.ResumeStalled(ctx, 30*time.Minute, 10)
	if err != nil || n != 1 {
		t.Fatalf("ResumeStalled: n=%d err=%v", n, err)
	}
	inflight, _ := h.q.InFlight(ctx, courseID, types.StageStructureAnalysis)
	if inflight == nil {
		t.Fatalf("expected a resumed stage 3 job")
	}
	if n, err := h.o.ResumeStalled(ctx, 30*time.Minute, 10); err != nil || n != 0 {
		t.Fatalf("course with a job in flight must be left alone: n=%d err=%v", n, err)
	}
	h.drain(t)
	if st := h.state(t, courseID); st.Status != types.Completed {
		t.Fatalf("expected completed, got %s", st.Status)
	}
}

func TestHandleStageResultIgnoresInactiveStage(t *testing.T) {
	h := newHarness(t, gates(3))
	ctx := context.Background()
	courseID := h.start(t)
	h.drain(t)

	if err := h.o.HandleStageResult(ctx, courseID, types.StageStructureGeneration, &runtime.Result{}); err != nil {
		t.Fatalf("HandleStageResult: %v", err)
	}
	if st := h.state(t, courseID); st.Status != types.AwaitingApproval(types.StageStructureAnalysis) {
		t.Fatalf("result for an inactive stage changed the course: %s", st.Status)
	}
	if err := h.o.HandleStageResult(ctx, uuid.New(), types.StageInitialize, nil); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestApprovalPolicy(t *testing.T) {
	if _, err := NewApprovalPolicy(true, []int{6}); err == nil {
		t.Fatalf("gating the last stage must be rejected")
	}
	if _, err := NewApprovalPolicy(true, []int{0}); err == nil {
		t.Fatalf("stage 0 must be rejected")
	}
	p := DefaultApprovalPolicy()
	if got := p.Stages(); len(got) != 4 || got[0] != 2 || got[3] != 5 {
		t.Fatalf("unexpected default stages %v", got)
	}
	off, _ := NewApprovalPolicy(false, []int{2})
	if off.RequiresApproval(types.StageDocumentProcessing) {
		t.Fatalf("disabled policy must not gate")
	}
}

func TestSubmitRejectsOutOfOrderStage(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := h.start(t, NewDocument{FilePath: "/data/a.txt", MimeType: "text/plain"})

	lease, err := h.q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("Dequeue: %+v err=%v", lease, err)
	}
	if err := h.o.Process(ctx, lease); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if st := h.state(t, courseID); st.CurrentStage != types.StageDocumentProcessing {
		t.Fatalf("expected stage 2, got %d", st.CurrentStage)
	}

	tests := []struct {
		name string
		jt   types.JobType
	}{
		{"later stage", types.JobTypeContentGeneration},
		{"next stage", types.JobTypeStructureAnalysis},
		{"earlier stage", types.JobTypeInitialize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.o.Submit(ctx, courseID, tt.jt, payloadFor(t, courseID, tt.jt, nil))
			if !IsConflict(err) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
		})
	}

	other := uuid.New()
	if _, err := h.o.Submit(ctx, other, types.JobTypeFinalization, payloadFor(t, other, types.JobTypeFinalization, nil)); !IsNotFound(err) {
		t.Fatalf("later stage for an unknown course: expected NotFoundError, got %v", err)
	}

	h.drain(t)
	st := h.state(t, courseID)
	if st.Status != types.Completed || len(st.AnalysisResult) == 0 || len(st.StructureResult) == 0 {
		t.Fatalf("course must run every stage in order: status=%s analysis=%d structure=%d", st.Status, len(st.AnalysisResult), len(st.StructureResult))
	}
	docs, _ := h.docs.ListByCourse(dbctx.New(ctx), courseID)
	if len(docs) != 1 || docs[0].Status != types.DocumentProcessed {
		t.Fatalf("document must be processed, got %+v", docs)
	}
}

func TestProcessSkipsJobForInactiveStage(t *testing.T) {
	h := newHarness(t, noGates())
	ctx := context.Background()
	courseID := uuid.New()
	h.seed(t, courseID, types.StageDocumentProcessing)

	j := &types.GenerationJob{
		ID:             uuid.New(),
		JobType:        types.JobTypeContentGeneration,
		Stage:          types.StageContentGeneration,
		OrganizationID: uuid.New(),
		CourseID:       courseID,
		UserID:         uuid.New(),
		Payload:        []byte(payloadFor(t, courseID, types.JobTypeContentGeneration, nil)),
	}
	j.IdempotencyKey = queue.IdempotencyKey(courseID, j.Stage, nil, j.ID)
	if _, _, err := h.q.Enqueue(ctx, j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	lease, err := h.q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("Dequeue: %+v err=%v", lease, err)
	}
	if err := h.o.Process(ctx, lease); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if h.handlers[types.JobTypeContentGeneration].Calls() != 0 {
		t.Fatalf("handler ran for an inactive stage")
	}
	st := h.state(t, courseID)
	if st.CurrentStage != types.StageDocumentProcessing || st.Status != types.StageDocumentProcessing.WorkingStatus() {
		t.Fatalf("course must stay on its stage, got %d %s", st.CurrentStage, st.Status)
	}
	if len(h.q.Jobs()) != 0 {
		t.Fatalf("skipped job must be acked")
	}
}
