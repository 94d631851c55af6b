package initialize

import (
	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Pipeline struct {
	log       *logger.Logger
	documents repos.DocumentRepo
}

func New(baseLog *logger.Logger, documents repos.DocumentRepo) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", string(types.JobTypeInitialize)),
		documents: documents,
	}
}

func (p *Pipeline) Type() types.JobType { return types.JobTypeInitialize }
