package coursegen

import (
	"time"

	"github.com/google/uuid"
)

// JobPayload holds the fields every stage job carries.
type JobPayload struct {
	JobType        JobType   `json:"jobType" validate:"required"`
	OrganizationID uuid.UUID `json:"organizationId" validate:"required"`
	CourseID       uuid.UUID `json:"courseId" validate:"required"`
	UserID         uuid.UUID `json:"userId" validate:"required"`
	CreatedAt      time.Time `json:"createdAt" validate:"required"`
	TraceID        string    `json:"traceId,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
}

type DocumentProcessingPayload struct {
	JobPayload
	FileID       uuid.UUID `json:"fileId" validate:"required"`
	FilePath     string    `json:"filePath" validate:"required"`
	MimeType     string    `json:"mimeType" validate:"required"`
	ChunkSize    int       `json:"chunkSize" validate:"gt=0"`
	ChunkOverlap int       `json:"chunkOverlap" validate:"gt=0,ltfield=ChunkSize"`
}

type StructureAnalysisPayload struct {
	JobPayload
	Title      *string        `json:"title,omitempty" validate:"omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	WebhookURL *string        `json:"webhookUrl" validate:"omitempty,url"`
}
