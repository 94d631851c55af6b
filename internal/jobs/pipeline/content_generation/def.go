package content_generation

import (
	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Pipeline struct {
	log         *logger.Logger
	llm         steps.LLM
	lessons     repos.LessonRepo
	concurrency int
}

func New(baseLog *logger.Logger, llm steps.LLM, lessons repos.LessonRepo, concurrency int) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("job", string(types.JobTypeContentGeneration)),
		llm:         llm,
		lessons:     lessons,
		concurrency: concurrency,
	}
}

func (p *Pipeline) Type() types.JobType { return types.JobTypeContentGeneration }
