package coursegen

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QueueStatus string

const (
	QueueStatusQueued QueueStatus = "queued"
	QueueStatusLeased QueueStatus = "leased"
	QueueStatusDead   QueueStatus = "dead"
)

// GenerationJob is one unit of stage work. Rows are deleted on ack and kept
// with status dead after a dead-letter.
type GenerationJob struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType        JobType        `gorm:"column:job_type;not null;index" json:"job_type"`
	Stage          Stage          `gorm:"column:stage;not null" json:"stage"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;column:organization_id;not null" json:"organization_id"`
	CourseID       uuid.UUID      `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`
	UserID         uuid.UUID      `gorm:"type:uuid;column:user_id;not null" json:"user_id"`
	FileID         *uuid.UUID     `gorm:"type:uuid;column:file_id" json:"file_id,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload"`
	Priority       int            `gorm:"column:priority;not null;default:0" json:"priority"`
	IdempotencyKey string         `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	Status         QueueStatus    `gorm:"column:status;not null;index" json:"status"`
	LeaseToken     *uuid.UUID     `gorm:"type:uuid;column:lease_token" json:"-"`
	LeasedUntil    *time.Time     `gorm:"column:leased_until;index" json:"leased_until,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	DeadReason     string         `gorm:"column:dead_reason" json:"dead_reason,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (GenerationJob) TableName() string { return "generation_job" }

func (j *GenerationJob) InFlight() bool {
	return j != nil && (j.Status == QueueStatusQueued || j.Status == QueueStatusLeased)
}
