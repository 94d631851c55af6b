package document_processing

import (
	"fmt"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	jobrt "github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) (*jobrt.Result, error) {
	var payload types.DocumentProcessingPayload
	if err := jc.DecodePayload(&payload); err != nil {
		return nil, err
	}
	title := steps.CourseTitle(nil, jc.Settings(), "")

	jc.Progress("Processing " + payload.FilePath)
	out, err := steps.ProcessDocument(jc.Ctx, steps.ProcessDocumentDeps{
		Log:       p.log,
		Documents: p.documents,
		Fetcher:   p.fetcher,
		Converter: p.converter,
		LLM:       p.llm,
	}, steps.ProcessDocumentInput{
		CourseID:     jc.Job.CourseID,
		FileID:       payload.FileID,
		FilePath:     payload.FilePath,
		MimeType:     payload.MimeType,
		ChunkSize:    payload.ChunkSize,
		ChunkOverlap: payload.ChunkOverlap,
		CourseTitle:  title.Value,
		Canceled:     jc.IsCanceled,
	})
	if err != nil {
		return nil, err
	}
	return &jobrt.Result{
		Output: map[string]any{
			"file_id":          out.FileID.String(),
			"mime_type":        out.MimeType,
			"method":           out.Method,
			"characters":       out.Characters,
			"tokens":           out.Tokens,
			"chunks":           out.Chunks,
			"priority":         string(out.Priority),
			"priority_derived": out.PriorityDerived,
		},
		Message: fmt.Sprintf("Processed document (%d tokens, %d chunks)", out.Tokens, out.Chunks),
	}, nil
}
