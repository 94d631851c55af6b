package coursegen

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type StateRepo interface {
	// CreateIfAbsent inserts the row unless one exists for the course. It reports whether it inserted.
	CreateIfAbsent(dbc dbctx.Context, state *types.CourseGenerationState) (bool, error)
	Get(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseGenerationState, error)
	GetForUpdate(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseGenerationState, error)
	ListByStatus(dbc dbctx.Context, statuses []types.Status, limit int) ([]*types.CourseGenerationState, error)
	// CompareAndSwap applies updates only while the stored status equals expected.
	CompareAndSwap(dbc dbctx.Context, courseID uuid.UUID, expected types.Status, updates map[string]interface{}) (bool, error)
	UpdateUnlessTerminal(dbc dbctx.Context, courseID uuid.UUID, updates map[string]interface{}) (bool, error)
}

type stateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStateRepo(db *gorm.DB, baseLog *logger.Logger) StateRepo {
	return &stateRepo{
		db:  db,
		log: baseLog.With("repo", "CourseGenerationStateRepo"),
	}
}

func (r *stateRepo) CreateIfAbsent(dbc dbctx.Context, state *types.CourseGenerationState) (bool, error) {
	if state == nil || state.CourseID == uuid.Nil {
		return false, errors.New("state: course id required")
	}
	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "course_id"}}, DoNothing: true}).
		Create(state)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stateRepo) Get(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseGenerationState, error) {
	if courseID == uuid.Nil {
		return nil, nil
	}
	var out types.CourseGenerationState
	err := dbc.DB(r.db).Where("course_id = ?", courseID).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.CourseID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *stateRepo) GetForUpdate(dbc dbctx.Context, courseID uuid.UUID) (*types.CourseGenerationState, error) {
	if courseID == uuid.Nil {
		return nil, nil
	}
	var out types.CourseGenerationState
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("course_id = ?", courseID).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.CourseID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *stateRepo) ListByStatus(dbc dbctx.Context, statuses []types.Status, limit int) ([]*types.CourseGenerationState, error) {
	var out []*types.CourseGenerationState
	if len(statuses) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, s.String())
	}
	q := dbc.DB(r.db).Where("status IN ?", raw).Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stateRepo) CompareAndSwap(dbc dbctx.Context, courseID uuid.UUID, expected types.Status, updates map[string]interface{}) (bool, error) {
	if courseID == uuid.Nil {
		return false, nil
	}
	updates = withUpdatedAt(updates)
	res := dbc.DB(r.db).
		Model(&types.CourseGenerationState{}).
		Where("course_id = ? AND status = ?", courseID, expected.String()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stateRepo) UpdateUnlessTerminal(dbc dbctx.Context, courseID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if courseID == uuid.Nil {
		return false, nil
	}
	updates = withUpdatedAt(updates)
	res := dbc.DB(r.db).
		Model(&types.CourseGenerationState{}).
		Where("course_id = ?", courseID).
		Where("status NOT IN ?", []string{types.Completed.String(), types.Failed.String(), types.Cancelled.String()}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func withUpdatedAt(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return updates
}
