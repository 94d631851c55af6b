package coursegen

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type BudgetRepo interface {
	Get(dbc dbctx.Context, courseID uuid.UUID) (*types.BudgetAllocation, error)
	Upsert(dbc dbctx.Context, a *types.BudgetAllocation) error
}

type budgetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBudgetRepo(db *gorm.DB, baseLog *logger.Logger) BudgetRepo {
	return &budgetRepo{
		db:  db,
		log: baseLog.With("repo", "BudgetAllocationRepo"),
	}
}

func (r *budgetRepo) Get(dbc dbctx.Context, courseID uuid.UUID) (*types.BudgetAllocation, error) {
	if courseID == uuid.Nil {
		return nil, nil
	}
	var out types.BudgetAllocation
	if err := dbc.DB(r.db).Where("course_id = ?", courseID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.CourseID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *budgetRepo) Upsert(dbc dbctx.Context, a *types.BudgetAllocation) error {
	if a == nil || a.CourseID == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}},
			UpdateAll: true,
		}).
		Create(a).Error
}
