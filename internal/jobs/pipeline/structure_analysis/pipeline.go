package structure_analysis

import (
	"fmt"
	"maps"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	jobrt "github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
)

const untitled = "Untitled course"

func (p *Pipeline) Run(jc *jobrt.Context) (*jobrt.Result, error) {
	var payload types.StructureAnalysisPayload
	if err := jc.DecodePayload(&payload); err != nil {
		return nil, err
	}
	// settings sent with the job override the ones stored at start
	settings := jc.Settings()
	maps.Copy(settings, payload.Settings)
	title := steps.CourseTitle(payload.Title, settings, untitled)

	jc.Progress("Allocating context budget")
	out, err := steps.Analyze(jc.Ctx, steps.AnalyzeDeps{
		Log:       p.log,
		Documents: p.documents,
		Budget:    p.budget,
		LLMFor:    p.llmFor,
		Summarize: steps.SummarizeDeps{
			Log:       p.log,
			Validator: p.validator,
			Checks:    p.checks,
		},
	}, steps.AnalyzeInput{
		CourseID:       jc.Job.CourseID,
		Title:          title.Value,
		Settings:       settings,
		Threshold:      p.opts.Threshold,
		SummaryRetries: p.opts.SummaryRetries,
		Debug:          p.opts.Debug,
		Canceled:       jc.IsCanceled,
	})
	if err != nil {
		return nil, err
	}
	m, err := out.Map()
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	m["title_source"] = title.Source
	if payload.WebhookURL != nil {
		m["webhook_url"] = *payload.WebhookURL
	}
	return &jobrt.Result{
		Output:  m,
		Message: fmt.Sprintf("Analysis complete on the %s tier", out.Tier),
	}, nil
}
