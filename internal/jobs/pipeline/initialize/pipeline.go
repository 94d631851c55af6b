package initialize

import (
	"fmt"

	jobrt "github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) (*jobrt.Result, error) {
	out, err := steps.Initialize(jc.Ctx, steps.InitializeDeps{Documents: p.documents}, steps.InitializeInput{
		CourseID: jc.Job.CourseID,
		Settings: jc.Settings(),
	})
	if err != nil {
		return nil, err
	}
	msg := "Course initialized without source documents"
	if out.HasDocuments {
		msg = fmt.Sprintf("Course initialized with %d document(s)", out.DocumentCount)
	}
	return &jobrt.Result{
		Output: map[string]any{
			"has_documents":  out.HasDocuments,
			"document_count": out.DocumentCount,
			"title":          out.Title,
		},
		Message: msg,
	}, nil
}
