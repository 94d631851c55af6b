package coursegen

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type QualityCheckRepo interface {
	Create(dbc dbctx.Context, check *types.QualityCheck) error
	ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*types.QualityCheck, error)
}

type qualityCheckRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQualityCheckRepo(db *gorm.DB, baseLog *logger.Logger) QualityCheckRepo {
	return &qualityCheckRepo{
		db:  db,
		log: baseLog.With("repo", "QualityCheckRepo"),
	}
}

func (r *qualityCheckRepo) Create(dbc dbctx.Context, check *types.QualityCheck) error {
	if check == nil {
		return nil
	}
	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(check).Error
}

func (r *qualityCheckRepo) ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*types.QualityCheck, error) {
	var out []*types.QualityCheck
	if fileID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("file_id = ?", fileID).Order("attempt ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
