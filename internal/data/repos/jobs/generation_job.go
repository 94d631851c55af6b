package jobs

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

type GenerationJobRepo interface {
	Create(dbc dbctx.Context, job *types.GenerationJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationJob, error)
	GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.GenerationJob, error)
	FindInFlight(dbc dbctx.Context, courseID uuid.UUID, stage types.Stage) (*types.GenerationJob, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.GenerationJob, error)
	// ClaimNext leases the next runnable job: queued, or leased with an expired lease.
	ClaimNext(dbc dbctx.Context, leaseFor time.Duration) (*types.GenerationJob, error)
	// ClaimByID leases one specific job if it is runnable.
	ClaimByID(dbc dbctx.Context, id uuid.UUID, leaseFor time.Duration) (*types.GenerationJob, error)
	ExtendLease(dbc dbctx.Context, id, token uuid.UUID, leaseFor time.Duration) (bool, error)
	DeleteLeased(dbc dbctx.Context, id, token uuid.UUID) (bool, error)
	MarkDead(dbc dbctx.Context, id, token uuid.UUID, reason string) (bool, error)
	DeleteQueuedForCourse(dbc dbctx.Context, courseID uuid.UUID) (int64, error)
}

type generationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
	return &generationJobRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationJobRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *generationJobRepo) Create(dbc dbctx.Context, job *types.GenerationJob) error {
	if job == nil {
		return errors.New("generation job: nil job")
	}
	now := r.now()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.QueueStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	return dbc.DB(r.db).Create(job).Error
}

func (r *generationJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *generationJobRepo) GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.GenerationJob, error) {
	if key == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("idempotency_key = ?", key))
}

func (r *generationJobRepo) FindInFlight(dbc dbctx.Context, courseID uuid.UUID, stage types.Stage) (*types.GenerationJob, error) {
	if courseID == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).
		Where("course_id = ? AND stage = ?", courseID, stage).
		Where("status IN ?", []types.QueueStatus{types.QueueStatusQueued, types.QueueStatusLeased}))
}

func (r *generationJobRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.GenerationJob, error) {
	var out []*types.GenerationJob
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("course_id = ?", courseID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationJobRepo) ClaimNext(dbc dbctx.Context, leaseFor time.Duration) (*types.GenerationJob, error) {
	return r.claim(dbc, uuid.Nil, leaseFor)
}

func (r *generationJobRepo) ClaimByID(dbc dbctx.Context, id uuid.UUID, leaseFor time.Duration) (*types.GenerationJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.claim(dbc, id, leaseFor)
}

func (r *generationJobRepo) claim(dbc dbctx.Context, id uuid.UUID, leaseFor time.Duration) (*types.GenerationJob, error) {
	now := r.now()
	var claimed *types.GenerationJob
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var job types.GenerationJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND leased_until IS NOT NULL
            AND leased_until < ?
          )
        )
      `, types.QueueStatusQueued, types.QueueStatusLeased, now)
		if id != uuid.Nil {
			q = q.Where("id = ?", id)
		}
		qErr := q.Order("priority ASC, created_at ASC").First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		token := uuid.New()
		until := now.Add(leaseFor)
		uErr := txx.Model(&types.GenerationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.QueueStatusLeased,
				"lease_token":  token,
				"leased_until": until,
				"attempts":     gorm.Expr("attempts + 1"),
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.QueueStatusLeased
		job.LeaseToken = &token
		job.LeasedUntil = &until
		job.Attempts++
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *generationJobRepo) ExtendLease(dbc dbctx.Context, id, token uuid.UUID, leaseFor time.Duration) (bool, error) {
	now := r.now()
	return r.updateLeased(dbc, id, token, map[string]interface{}{
		"leased_until": now.Add(leaseFor),
		"updated_at":   now,
	})
}

func (r *generationJobRepo) DeleteLeased(dbc dbctx.Context, id, token uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).
		Where("id = ? AND lease_token = ? AND status = ?", id, token, types.QueueStatusLeased).
		Delete(&types.GenerationJob{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *generationJobRepo) MarkDead(dbc dbctx.Context, id, token uuid.UUID, reason string) (bool, error) {
	return r.updateLeased(dbc, id, token, map[string]interface{}{
		"status":       types.QueueStatusDead,
		"dead_reason":  reason,
		"leased_until": nil,
		"updated_at":   r.now(),
	})
}

func (r *generationJobRepo) DeleteQueuedForCourse(dbc dbctx.Context, courseID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).
		Where("course_id = ? AND status = ?", courseID, types.QueueStatusQueued).
		Delete(&types.GenerationJob{})
	return res.RowsAffected, res.Error
}

func (r *generationJobRepo) updateLeased(dbc dbctx.Context, id, token uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || token == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&types.GenerationJob{}).
		Where("id = ? AND lease_token = ? AND status = ?", id, token, types.QueueStatusLeased).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *generationJobRepo) first(q *gorm.DB) (*types.GenerationJob, error) {
	var job types.GenerationJob
	if err := q.Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}
