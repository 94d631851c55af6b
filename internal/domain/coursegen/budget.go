package coursegen

import (
	"time"

	"github.com/google/uuid"
)

type BudgetAllocation struct {
	CourseID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
	TotalHigh   int       `gorm:"column:total_high;not null" json:"total_high"`
	TotalLow    int       `gorm:"column:total_low;not null" json:"total_low"`
	Tier        string    `gorm:"column:tier;not null" json:"tier"`
	Model       string    `gorm:"column:model;not null" json:"model"`
	HighBudget  int       `gorm:"column:high_budget;not null" json:"high_budget"`
	LowBudget   int       `gorm:"column:low_budget;not null" json:"low_budget"`
	Fingerprint string    `gorm:"column:fingerprint" json:"fingerprint,omitempty"`
	ComputedAt  time.Time `gorm:"column:computed_at;not null" json:"computed_at"`
}

func (BudgetAllocation) TableName() string { return "budget_allocation" }

type BudgetMode string

const (
	BudgetModeFullText BudgetMode = "full_text"
	BudgetModeSummary  BudgetMode = "summary"
)

type DocumentBudget struct {
	Budget int        `json:"budget"`
	Mode   BudgetMode `json:"mode"`
}
