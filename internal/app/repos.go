package app

import (
	"gorm.io/gorm"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	jobrepos "github.com/yungbote/coursegen-backend/internal/data/repos/jobs"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Repos struct {
	States    repos.StateRepo
	Documents repos.DocumentRepo
	Budgets   repos.BudgetRepo
	Quality   repos.QualityCheckRepo
	Lessons   repos.LessonRepo
	Jobs      jobrepos.GenerationJobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		States:    repos.NewStateRepo(db, log),
		Documents: repos.NewDocumentRepo(db, log),
		Budgets:   repos.NewBudgetRepo(db, log),
		Quality:   repos.NewQualityCheckRepo(db, log),
		Lessons:   repos.NewLessonRepo(db, log),
		Jobs:      jobrepos.NewGenerationJobRepo(db, log),
	}
}
