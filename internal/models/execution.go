package models

import (
	"time"

	"github.com/google/uuid"
)

// Execution is one append-only record per case attempt. It is never
// mutated after creation and is the source of truth for history and
// statistics.
type Execution struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseHash   string     `gorm:"type:text;index;not null" json:"case_hash"`
	PlanID     *uuid.UUID `gorm:"type:uuid;index" json:"plan_id,omitempty"`
	Status     CaseStatus `gorm:"type:text;index;not null" json:"status"`
	Duration   float64    `gorm:"not null" json:"duration"`
	Details    string     `json:"details,omitempty"`
	ExecutedBy string     `gorm:"type:text;default:'scheduler'" json:"executed_by"`
	MachineID  string     `gorm:"type:text;index" json:"machine_id"`
	ExecutedAt time.Time  `gorm:"index;not null" json:"executed_at"`
}

type Executions []*Execution
