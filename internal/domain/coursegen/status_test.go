package coursegen

import (
	"encoding/json"
	"testing"
)

func TestStatusRoundTrip(t *testing.T) {
	cases := []Status{
		StageInitialize.WorkingStatus(),
		StageDocumentProcessing.WorkingStatus(),
		StageStructureAnalysis.WorkingStatus(),
		StageStructureGeneration.WorkingStatus(),
		StageContentGeneration.WorkingStatus(),
		StageFinalization.WorkingStatus(),
		AwaitingApproval(StageStructureAnalysis),
		Completed,
		Failed,
		Cancelled,
	}
	for _, want := range cases {
		got, err := ParseStatus(want.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", want.String(), err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got=%+v want=%+v", got, want)
		}
	}
}

func TestStatusAwaitingApprovalString(t *testing.T) {
	if got := AwaitingApproval(StageDocumentProcessing).String(); got != "stage_2_awaiting_approval" {
		t.Fatalf("unexpected status string: %q", got)
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "running", "stage_9_awaiting_approval", "stage_x_awaiting_approval"} {
		if _, err := ParseStatus(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{Completed, Failed, Cancelled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StageStructureAnalysis.WorkingStatus(), AwaitingApproval(StageContentGeneration)} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Status Status `json:"status"`
	}{Status: AwaitingApproval(StageStructureGeneration)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"status":"stage_4_awaiting_approval"}` {
		t.Fatalf("unexpected json: %s", raw)
	}
	var out struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != AwaitingApproval(StageStructureGeneration) {
		t.Fatalf("unexpected status: %+v", out.Status)
	}
}

func TestStageJobTypeMapping(t *testing.T) {
	for s := FirstStage; s <= LastStage; s++ {
		jt := s.JobType()
		if jt == "" {
			t.Fatalf("stage %d has no job type", s)
		}
		back, ok := jt.Stage()
		if !ok || back != s {
			t.Fatalf("job type %s maps to %d, want %d", jt, back, s)
		}
	}
	if _, err := ParseJobType("summarize"); err == nil {
		t.Fatalf("expected unknown job type error")
	}
}
