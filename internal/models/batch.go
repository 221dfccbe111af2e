package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BatchStatus enumerates the states of a batch submission. A completed
// batch states outcome delivery only; it may still contain failed plans.
type BatchStatus string

const (
	BatchStatusWaiting   BatchStatus = "waiting"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// FailurePolicy governs how a batch reacts to a plan failure.
type FailurePolicy string

const (
	FailurePolicyContinue FailurePolicy = "continue"
	FailurePolicyStop     FailurePolicy = "stop"
	FailurePolicyRetry    FailurePolicy = "retry"
)

// ExecutionMode selects how a batch dispatches its plans. Parallel
// dispatch still serializes at the case level through the hardware
// lock, so it only reduces bookkeeping latency.
type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
	ExecutionModeParallel   ExecutionMode = "parallel"
)

// BatchExecution groups N plan executions under one submission.
type BatchExecution struct {
	ID      uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string                      `json:"name,omitempty"`
	PlanIDs datatypes.JSONSlice[string] `json:"plan_ids"`

	Policy      FailurePolicy `gorm:"type:text;not null;default:'continue'" json:"policy"`
	Mode        ExecutionMode `gorm:"type:text;not null;default:'sequential'" json:"mode"`
	Concurrency int           `gorm:"not null;default:1" json:"concurrency"`

	Status       BatchStatus `gorm:"type:text;index;not null;default:'waiting'" json:"status"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type BatchExecutions []*BatchExecution
