package coursegen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PriorityClass string

const (
	PriorityHigh PriorityClass = "HIGH"
	PriorityLow  PriorityClass = "LOW"
)

func ParsePriorityClass(raw string) (PriorityClass, error) {
	switch PriorityClass(strings.ToUpper(strings.TrimSpace(raw))) {
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityLow:
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("unknown priority class %q", raw)
	}
}

type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
	DocumentError     DocumentStatus = "error"
)

// CourseDocument is a source file attached to a course together with the
// priority and token information the budget allocator reads.
type CourseDocument struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID      uuid.UUID      `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`
	FileName      string         `gorm:"column:file_name;not null" json:"file_name"`
	FilePath      string         `gorm:"column:file_path;not null" json:"file_path"`
	MimeType      string         `gorm:"column:mime_type" json:"mime_type"`
	Priority      PriorityClass  `gorm:"column:priority" json:"priority,omitempty"`
	TokenCount    int            `gorm:"column:token_count;not null;default:0" json:"token_count"`
	ChunkCount    int            `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	Status        DocumentStatus `gorm:"column:status;not null;index" json:"status"`
	ErrorMessage  string         `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessedText string         `gorm:"column:processed_text" json:"-"`
	SummaryText   string         `gorm:"column:summary_text" json:"-"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (CourseDocument) TableName() string { return "course_document" }

// Classified reports whether the document carries the data the allocator needs.
func (d *CourseDocument) Classified() bool {
	return d != nil && d.Priority != "" && d.TokenCount > 0
}
