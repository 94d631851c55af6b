package structure_generation

import (
	"encoding/json"
	"fmt"

	jobrt "github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) (*jobrt.Result, error) {
	var analysis struct {
		Title string `json:"title"`
	}
	if raw := jc.State.AnalysisResult; len(raw) > 0 {
		_ = json.Unmarshal(raw, &analysis)
	}
	title := steps.CourseTitle(nil, jc.Settings(), analysis.Title)

	if jc.IsCanceled() {
		return nil, fmt.Errorf("course generation was cancelled")
	}
	s, err := steps.GenerateStructure(jc.Ctx, steps.StructureDeps{Log: p.log, LLM: p.llm}, steps.StructureInput{
		CourseID: jc.Job.CourseID,
		Title:    title.Value,
		Analysis: json.RawMessage(jc.State.AnalysisResult),
		Settings: jc.Settings(),
	})
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode structure: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode structure: %w", err)
	}
	return &jobrt.Result{
		Output:  out,
		Message: fmt.Sprintf("Outlined %d section(s) and %d lesson(s)", len(s.Sections), len(s.Lessons())),
	}, nil
}
