package coursegen

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CourseGenerationState is the single row per course tracking where generation stands.
type CourseGenerationState struct {
	CourseID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"course_id"`
	OrganizationID  uuid.UUID      `gorm:"type:uuid;column:organization_id;not null;index" json:"organization_id"`
	UserID          uuid.UUID      `gorm:"type:uuid;column:user_id;not null;index" json:"user_id"`
	CurrentStage    Stage          `gorm:"column:current_stage;not null;default:0" json:"current_stage"`
	Status          Status         `gorm:"column:status;not null;index" json:"status"`
	Progress        datatypes.JSON `gorm:"column:progress" json:"progress"`
	ErrorMessage    *string        `gorm:"column:error_message" json:"error_message,omitempty"`
	Settings        datatypes.JSON `gorm:"column:settings" json:"settings,omitempty"`
	AnalysisResult  datatypes.JSON `gorm:"column:analysis_result" json:"analysis_result,omitempty"`
	StructureResult datatypes.JSON `gorm:"column:structure_result" json:"structure_result,omitempty"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (CourseGenerationState) TableName() string { return "course_generation_state" }

type ProgressRecord struct {
	CurrentStep      int                 `json:"current_step"`
	TotalSteps       int                 `json:"total_steps"`
	Percentage       int                 `json:"percentage"`
	Message          string              `json:"message,omitempty"`
	StageCompletedAt map[Stage]time.Time `json:"stage_completed_at,omitempty"`
}

func (s *CourseGenerationState) DecodeProgress() ProgressRecord {
	out := ProgressRecord{TotalSteps: TotalSteps}
	if s == nil || len(s.Progress) == 0 {
		return out
	}
	_ = json.Unmarshal(s.Progress, &out)
	if out.TotalSteps == 0 {
		out.TotalSteps = TotalSteps
	}
	return out
}

func (s *CourseGenerationState) DecodeSettings() map[string]any {
	out := map[string]any{}
	if s == nil || len(s.Settings) == 0 {
		return out
	}
	if err := json.Unmarshal(s.Settings, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func EncodeProgress(p ProgressRecord) datatypes.JSON {
	b, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
