package structure_analysis

import (
	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

// Options tune the summary quality gate.
type Options struct {
	Threshold      float64
	SummaryRetries int
	Debug          bool
}

type Pipeline struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	budget    steps.BudgetEnsurer
	llmFor    func(model string) steps.LLM
	validator steps.SummaryValidator
	checks    repos.QualityCheckRepo
	opts      Options
}

func New(
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	budget steps.BudgetEnsurer,
	llmFor func(model string) steps.LLM,
	validator steps.SummaryValidator,
	checks repos.QualityCheckRepo,
	opts Options,
) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", string(types.JobTypeStructureAnalysis)),
		documents: documents,
		budget:    budget,
		llmFor:    llmFor,
		validator: validator,
		checks:    checks,
		opts:      opts,
	}
}

func (p *Pipeline) Type() types.JobType { return types.JobTypeStructureAnalysis }
