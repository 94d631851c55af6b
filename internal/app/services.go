package app

import (
	"fmt"

	"github.com/yungbote/coursegen-backend/internal/jobs/orchestrator"
	"github.com/yungbote/coursegen-backend/internal/jobs/pipeline/content_generation"
	"github.com/yungbote/coursegen-backend/internal/jobs/pipeline/document_processing"
	"github.com/yungbote/coursegen-backend/internal/jobs/pipeline/finalization"
	"github.com/yungbote/coursegen-backend/internal/jobs/pipeline/initialize"
	"github.com/yungbote/coursegen-backend/internal/jobs/pipeline/structure_analysis"
	"github.com/yungbote/coursegen-backend/internal/jobs/pipeline/structure_generation"
	"github.com/yungbote/coursegen-backend/internal/jobs/queue"
	"github.com/yungbote/coursegen-backend/internal/jobs/runtime"
	"github.com/yungbote/coursegen-backend/internal/jobs/worker"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/budget"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/quality"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
	"github.com/yungbote/coursegen-backend/internal/platform/openai"
	"github.com/yungbote/coursegen-backend/internal/temporalx/jobrun"
	"github.com/yungbote/coursegen-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Queue          queue.Queue
	Budget         *budget.Allocator
	Quality        *quality.Validator
	Orchestrator   *orchestrator.Orchestrator
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	var q queue.Queue = queue.NewDBQueue(log, r.Jobs, metrics, cfg.LeaseFor)
	if c.Temporal != nil {
		q = queue.WithNotifier(q, &jobrun.Notifier{Client: c.Temporal, TaskQueue: c.TemporalCfg.TaskQueue})
	}

	allocator, err := budget.NewAllocator(log, r.Documents, r.Budgets, cfg.Tiers, metrics)
	if err != nil {
		return Services{}, fmt.Errorf("init budget allocator: %w", err)
	}
	validator := quality.NewValidator(log, c.OpenAI, metrics, cfg.QualityConcurrency)

	llmFor := func(model string) steps.LLM { return openai.WithModel(c.OpenAI, model) }
	fetcher := steps.Fetcher{GCS: c.GcsReader}
	converter := steps.Converter{Documents: c.GcpDocument, Vision: c.GcpVision}

	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		initialize.New(log, r.Documents),
		document_processing.New(log, r.Documents, fetcher, converter, c.OpenAI),
		structure_analysis.New(log, r.Documents, allocator, llmFor, validator, r.Quality, structure_analysis.Options{
			Threshold:      cfg.QualityThreshold,
			SummaryRetries: cfg.SummaryRetries,
			Debug:          cfg.Debug,
		}),
		structure_generation.New(log, c.OpenAI),
		content_generation.New(log, c.OpenAI, r.Lessons, cfg.ContentConcurrency),
		finalization.New(log, r.Lessons),
	} {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register handler: %w", err)
		}
	}
	if missing := registry.Missing(); len(missing) > 0 {
		return Services{}, fmt.Errorf("no handler for job types %v", missing)
	}

	orch, err := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Log:       log,
		States:    r.States,
		Documents: r.Documents,
		Queue:     q,
		Registry:  registry,
		Bus:       c.Bus,
		Metrics:   metrics,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init orchestrator: %w", err)
	}

	out := Services{
		Queue:        q,
		Budget:       allocator,
		Quality:      validator,
		Orchestrator: orch,
		JobWorker:    worker.NewWorker(log, q, orch, cfg.Worker),
	}
	if c.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, c.Temporal, c.TemporalCfg, orch)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
	}
	return out, nil
}
