package finalization

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
	out, err := steps.Finalize(jc.Ctx, steps.FinalizeDeps{Lessons: p.lessons}, steps.FinalizeInput{
		CourseID:  jc.Job.CourseID,
		Structure: s,
	})
	if err != nil {
		return nil, err
	}
	p.log.Info("Course finalized", "course_id", jc.Job.CourseID, "lessons", out.Lessons, "words", out.Words)
	return &jobrt.Result{
		Output: map[string]any{
			"title":    out.Title,
			"sections": out.Sections,
			"lessons":  out.Lessons,
			"words":    out.Words,
		},
		Message: fmt.Sprintf("Course ready: %d lesson(s)", out.Lessons),
	}, nil
}
