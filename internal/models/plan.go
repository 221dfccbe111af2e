package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PlanStatus enumerates the lifecycle states of a test plan.
type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusRunning   PlanStatus = "running"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusPaused    PlanStatus = "paused"
)

// Terminal reports whether the status is an end state.
func (s PlanStatus) Terminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed
}

// PlanType enumerates how a plan came to exist.
type PlanType string

const (
	PlanTypeScheduled PlanType = "scheduled"
	PlanTypeManual    PlanType = "manual"
	PlanTypeCustom    PlanType = "custom"
	PlanTypeAuto      PlanType = "auto"
)

// TestPlan is a named, bounded unit of work selecting a set of cases
// to execute together on the bench.
type TestPlan struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
	PlanType    PlanType  `gorm:"type:text;index;not null" json:"plan_type"`

	// Selection criteria. An explicit case set takes precedence over
	// the path filters.
	ScheduleCron string                     `json:"schedule_cron,omitempty"`
	IncludePaths datatypes.JSONSlice[string] `json:"include_paths,omitempty"`
	ExcludePaths datatypes.JSONSlice[string] `json:"exclude_paths,omitempty"`
	CaseHashes   datatypes.JSONSlice[string] `json:"case_hashes,omitempty"`

	RetryCount     int `gorm:"not null;default:0" json:"retry_count"`
	TimeoutMinutes int `gorm:"not null;default:0" json:"timeout_minutes"`

	Status            PlanStatus `gorm:"type:text;index;not null;default:'pending'" json:"status"`
	LastExecutionTime *time.Time `gorm:"index" json:"last_execution_time,omitempty"`
	TotalCases        int        `gorm:"not null;default:0" json:"total_cases"`
	ExecutedCases     int        `gorm:"not null;default:0" json:"executed_cases"`
	PassedCases       int        `gorm:"not null;default:0" json:"passed_cases"`
	FailedCases       int        `gorm:"not null;default:0" json:"failed_cases"`

	Distributed      bool                        `gorm:"not null;default:false" json:"distributed"`
	AssignedMachines datatypes.JSONSlice[string] `json:"assigned_machines,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type TestPlans []*TestPlan
