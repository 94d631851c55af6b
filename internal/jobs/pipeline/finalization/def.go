package finalization

import (
	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Pipeline struct {
	log     *logger.Logger
	lessons repos.LessonRepo
}

func New(baseLog *logger.Logger, lessons repos.LessonRepo) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", string(types.JobTypeFinalization)),
		lessons: lessons,
	}
}

func (p *Pipeline) Type() types.JobType { return types.JobTypeFinalization }
