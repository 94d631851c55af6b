package content_generation

import (
	"fmt"

	jobrt "github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) (*jobrt.Result, error) {
	s, err := steps.DecodeStructure(jc.State.StructureResult)
	if err != nil {
		return nil, err
	}
	jc.Progress(fmt.Sprintf("Writing %d lesson(s)", len(s.Lessons())))
	out, err := steps.GenerateContent(jc.Ctx, steps.ContentDeps{
		Log:     p.log,
		LLM:     p.llm,
		Lessons: p.lessons,
	}, steps.ContentInput{
		CourseID:    jc.Job.CourseID,
		Structure:   s,
		Concurrency: p.concurrency,
		Canceled:    jc.IsCanceled,
		Beat:        jc.Heartbeat,
	})
	if err != nil {
		return nil, err
	}
	return &jobrt.Result{
		Output: map[string]any{
			"lessons_total":     out.LessonsTotal,
			"lessons_generated": out.LessonsGenerated,
			"lessons_skipped":   out.LessonsSkipped,
		},
		Message: fmt.Sprintf("Wrote %d of %d lesson(s)", out.LessonsGenerated+out.LessonsSkipped, out.LessonsTotal),
	}, nil
}
