package coursegen

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type LessonRepo interface {
	Upsert(dbc dbctx.Context, lessons []*types.LessonContent) error
	// ListByCourse returns lessons in course order (section, then lesson).
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.LessonContent, error)
	Count(dbc dbctx.Context, courseID uuid.UUID) (int64, error)
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{
		db:  db,
		log: baseLog.With("repo", "LessonContentRepo"),
	}
}

func (r *lessonRepo) Upsert(dbc dbctx.Context, lessons []*types.LessonContent) error {
	if len(lessons) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, l := range lessons {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lesson_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "title", "body", "updated_at"}),
		}).
		Create(&lessons).Error
}

func (r *lessonRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.LessonContent, error) {
	var out []*types.LessonContent
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("course_id = ?", courseID).Find(&out).Error; err != nil {
		return nil, err
	}
	// labels are "section.lesson"; text order would put 1.10 before 1.2
	sort.SliceStable(out, func(i, j int) bool {
		pi, ei := out[i].Position()
		pj, ej := out[j].Position()
		if ei != nil || ej != nil {
			return out[i].Label < out[j].Label
		}
		if pi.Section() != pj.Section() {
			return pi.Section() < pj.Section()
		}
		return pi.Lesson() < pj.Lesson()
	})
	return out, nil
}

func (r *lessonRepo) Count(dbc dbctx.Context, courseID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.LessonContent{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}
