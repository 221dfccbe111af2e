package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CaseStatus enumerates the execution states of a test case.
type CaseStatus string

const (
	CaseStatusNotExecuted CaseStatus = "not_executed"
	CaseStatusPassed      CaseStatus = "passed"
	CaseStatusFailed      CaseStatus = "failed"
	CaseStatusBlocked     CaseStatus = "blocked"
	CaseStatusSkipped     CaseStatus = "skipped"
	CaseStatusExecuting   CaseStatus = "executing"
)

// TestCase is one test artifact on disk, identified by a hash of its
// normalized relative path so the identity is stable across machines
// and re-scans.
type TestCase struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	CaseHash     string `gorm:"type:text;uniqueIndex;not null" json:"case_hash"`
	Name         string `gorm:"not null" json:"name"`
	FullPath     string `gorm:"not null" json:"full_path"`
	RelativePath string `gorm:"index;not null" json:"relative_path"`

	// Change detection, maintained by the scanner.
	FileSize    int64      `json:"file_size"`
	FileMtime   *time.Time `json:"file_mtime,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"`

	Status            CaseStatus `gorm:"type:text;index;not null;default:'not_executed'" json:"status"`
	LastExecutionTime *time.Time `gorm:"index" json:"last_execution_time,omitempty"`
	ExecutionDuration float64    `gorm:"not null;default:0" json:"execution_duration"`
	TotalExecutions   int        `gorm:"not null;default:0" json:"total_executions"`
	AvgDuration       float64    `gorm:"not null;default:0" json:"avg_duration"`
	ResultDetails     string     `json:"result_details,omitempty"`

	// Manual verification freezes the status against re-scans.
	VerifiedBy         string     `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	VerificationNotes  string     `json:"verification_notes,omitempty"`
	IsManuallyModified bool       `gorm:"not null;default:false" json:"is_manually_modified"`

	IsActive  bool      `gorm:"index;not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type TestCases []*TestCase

// CaseHashFor derives the machine-independent identity of a case from
// its relative path. Backslashes are normalized so Windows and Unix
// scanners agree on the hash.
func CaseHashFor(relativePath string) string {
	normalized := strings.ReplaceAll(relativePath, `\`, "/")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
