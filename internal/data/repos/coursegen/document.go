package coursegen

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*types.CourseDocument) ([]*types.CourseDocument, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CourseDocument, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseDocument, error)
	// NextPending returns the oldest unprocessed document of the course, or nil.
	NextPending(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseDocument, error)
	MarkProcessed(dbc dbctx.Context, id uuid.UUID, text string, tokenCount, chunkCount int) error
	// SetPriorityIfUnset writes the class only when none is stored yet.
	SetPriorityIfUnset(dbc dbctx.Context, id uuid.UUID, priority types.PriorityClass) (bool, error)
	MarkError(dbc dbctx.Context, id uuid.UUID, message string) error
	SetSummary(dbc dbctx.Context, id uuid.UUID, summary string) error
	ResetErrors(dbc dbctx.Context, courseID uuid.UUID) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "CourseDocumentRepo"),
	}
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*types.CourseDocument) ([]*types.CourseDocument, error) {
	if len(docs) == 0 {
		return []*types.CourseDocument{}, nil
	}
	now := time.Now().UTC()
	for _, d := range docs {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.Status == "" {
			d.Status = types.DocumentPending
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.UpdatedAt = now
	}
	if err := dbc.DB(r.db).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CourseDocument, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.CourseDocument
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *documentRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseDocument, error) {
	var out []*types.CourseDocument
	if courseID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("course_id = ?", courseID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) NextPending(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseDocument, error) {
	if courseID == uuid.Nil {
		return nil, nil
	}
	var out types.CourseDocument
	err := dbc.DB(r.db).
		Where("course_id = ? AND status = ?", courseID, types.DocumentPending).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *documentRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID, text string, tokenCount, chunkCount int) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":         types.DocumentProcessed,
		"processed_text": text,
		"token_count":    tokenCount,
		"chunk_count":    chunkCount,
		"error_message":  "",
	})
}

func (r *documentRepo) SetPriorityIfUnset(dbc dbctx.Context, id uuid.UUID, priority types.PriorityClass) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&types.CourseDocument{}).
		Where("id = ?", id).
		Where("priority IS NULL OR priority = ''").
		Updates(map[string]interface{}{
			"priority":   priority,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) MarkError(dbc dbctx.Context, id uuid.UUID, message string) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":        types.DocumentError,
		"error_message": message,
	})
}

func (r *documentRepo) SetSummary(dbc dbctx.Context, id uuid.UUID, summary string) error {
	return r.update(dbc, id, map[string]interface{}{"summary_text": summary})
}

func (r *documentRepo) ResetErrors(dbc dbctx.Context, courseID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).
		Model(&types.CourseDocument{}).
		Where("course_id = ? AND status = ?", courseID, types.DocumentError).
		Updates(map[string]interface{}{
			"status":        types.DocumentPending,
			"error_message": "",
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *documentRepo) update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.CourseDocument{}).
		Where("id = ?", id).
		Updates(withUpdatedAt(updates)).Error
}
