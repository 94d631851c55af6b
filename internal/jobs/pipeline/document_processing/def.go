package document_processing

import (
	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Pipeline struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	fetcher   steps.Fetcher
	converter steps.Converter
	llm       steps.LLM
}

func New(
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	fetcher steps.Fetcher,
	converter steps.Converter,
	llm steps.LLM,
) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", string(types.JobTypeDocumentProcessing)),
		documents: documents,
		fetcher:   fetcher,
		converter: converter,
		llm:       llm,
	}
}

func (p *Pipeline) Type() types.JobType { return types.JobTypeDocumentProcessing }
