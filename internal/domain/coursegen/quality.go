package coursegen

import (
	"time"

	"github.com/google/uuid"
)

type QualityCheckResult struct {
	Score            float64 `json:"score"`
	Threshold        float64 `json:"threshold"`
	Passed           bool    `json:"passed"`
	OriginalLength   int     `json:"original_length"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// QualityCheck is the persisted record of one summary validation.
type QualityCheck struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID         uuid.UUID `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`
	FileID           uuid.UUID `gorm:"type:uuid;column:file_id;not null;index" json:"file_id"`
	Attempt          int       `gorm:"column:attempt;not null" json:"attempt"`
	Score            float64   `gorm:"column:score;not null" json:"score"`
	Threshold        float64   `gorm:"column:threshold;not null" json:"threshold"`
	Passed           bool      `gorm:"column:passed;not null" json:"passed"`
	OriginalLength   int       `gorm:"column:original_length;not null" json:"original_length"`
	SummaryLength    int       `gorm:"column:summary_length;not null" json:"summary_length"`
	CompressionRatio float64   `gorm:"column:compression_ratio;not null" json:"compression_ratio"`
	CreatedAt        time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (QualityCheck) TableName() string { return "quality_check" }

func NewQualityCheck(courseID, fileID uuid.UUID, attempt int, r *QualityCheckResult) *QualityCheck {
	qc := &QualityCheck{
		ID:        uuid.New(),
		CourseID:  courseID,
		FileID:    fileID,
		Attempt:   attempt,
		CreatedAt: time.Now().UTC(),
	}
	if r != nil {
		qc.Score = r.Score
		qc.Threshold = r.Threshold
		qc.Passed = r.Passed
		qc.OriginalLength = r.OriginalLength
		qc.SummaryLength = r.SummaryLength
		qc.CompressionRatio = r.CompressionRatio
	}
	return qc
}
