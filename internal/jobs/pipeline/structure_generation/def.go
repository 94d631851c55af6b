package structure_generation

import (
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Pipeline struct {
	log *logger.Logger
	llm steps.LLM
}

func New(baseLog *logger.Logger, llm steps.LLM) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", string(types.JobTypeStructureGeneration)),
		llm: llm,
	}
}

func (p *Pipeline) Type() types.JobType { return types.JobTypeStructureGeneration }
