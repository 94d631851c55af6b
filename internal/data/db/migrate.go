package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.CourseGenerationState{},
		&types.GenerationJob{},
		&types.CourseDocument{},
		&types.BudgetAllocation{},
		&types.QualityCheck{},
		&types.LessonContent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// At most one queued or leased job per (course, stage).
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_generation_job_inflight
		ON generation_job (course_id, stage)
		WHERE status IN ('queued', 'leased')`).Error; err != nil {
		return fmt.Errorf("create in-flight index: %w", err)
	}
	return nil
}
