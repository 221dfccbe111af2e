// Package executor serializes case execution through the hardware lock,
// invokes the external runner, classifies its outcome, and persists
// execution statistics. It exclusively owns the executing-flag set and
// a case's executing-to-terminal transition.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gantry-io/gantry/internal/metrics"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Classifier maps a raw runner outcome to a case status and a details
// payload. Callers may supply their own to override the default
// exit-code mapping.
type Classifier func(res *RunResult, tc *models.TestCase) (models.CaseStatus, string)

// DefaultClassifier maps exit 0 to passed, anything else to failed.
func DefaultClassifier(res *RunResult, _ *models.TestCase) (models.CaseStatus, string) {
	status := models.CaseStatusPassed
	if res.ExitCode != 0 {
		status = models.CaseStatusFailed
	}

	details, _ := json.Marshal(map[string]interface{}{
		"stdout":      res.Stdout,
		"stderr":      res.Stderr,
		"return_code": res.ExitCode,
		"command":     res.Command,
	})

	return status, string(details)
}

// Config tunes a bench executor.
type Config struct {
	MachineID string
	LockWait  time.Duration
	Timeout   time.Duration
	Runner    Runner
	Classify  Classifier
}

// Executor runs single cases against the bench.
type Executor struct {
	db        *gorm.DB
	hw        *HardwareLock
	runner    Runner
	classify  Classifier
	machineID string
	lockWait  time.Duration
	timeout   time.Duration

	mu        sync.Mutex
	executing map[string]struct{}

	now func() time.Time
}

func New(db *gorm.DB, hw *HardwareLock, cfg Config) *Executor {
	if hw == nil {
		hw = NewHardwareLock()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Runner == nil {
		cfg.Runner = &ProcessRunner{Timeout: cfg.Timeout}
	}
	if cfg.Classify == nil {
		cfg.Classify = DefaultClassifier
	}

	return &Executor{
		db:        db,
		hw:        hw,
		runner:    cfg.Runner,
		classify:  cfg.Classify,
		machineID: cfg.MachineID,
		lockWait:  cfg.LockWait,
		timeout:   cfg.Timeout,
		executing: make(map[string]struct{}),
		now:       time.Now,
	}
}

// Result is the reported outcome of one ExecuteSingleCase call.
type Result struct {
	Status   models.CaseStatus
	Duration float64
	Details  string
}

// ExecuteSingleCase runs one case under the hardware lock. Lock
// contention and double triggers are reported as skipped; runner
// timeouts and faults are contained as failed and never propagate.
// The returned error covers persistence failures only.
func (e *Executor) ExecuteSingleCase(ctx context.Context, tc *models.TestCase, planID *uuid.UUID) (*Result, error) {
	if err := e.hw.Acquire(ctx, e.lockWait); err != nil {
		if errors.Is(err, ErrResourceBusy) {
			metrics.HardwareLockContentionTotal.Inc()
			log.Warn("bench busy, skipping case", "case_hash", tc.CaseHash, "wait", e.lockWait)
			return &Result{Status: models.CaseStatusSkipped, Details: "unable to acquire hardware resource"}, nil
		}
		return nil, err
	}
	defer e.hw.Release()

	// A second, fine-grained guard against concurrent trigger paths.
	if !e.markExecuting(tc.CaseHash) {
		return &Result{Status: models.CaseStatusSkipped, Details: "case is already executing"}, nil
	}
	defer e.unmarkExecuting(tc.CaseHash)

	// Persist the live state immediately so external viewers see it.
	if err := e.db.WithContext(ctx).Model(&models.TestCase{}).
		Where("case_hash = ?", tc.CaseHash).
		Update("status", models.CaseStatusExecuting).Error; err != nil {
		return nil, err
	}
	tc.Status = models.CaseStatusExecuting

	status, details, duration := e.invoke(ctx, tc)

	if err := e.persistOutcome(ctx, tc, status, duration, details, planID); err != nil {
		return nil, err
	}

	metrics.CaseExecutionsTotal.WithLabelValues(string(status)).Inc()
	metrics.CaseExecutionDurationSeconds.WithLabelValues(string(status)).Observe(duration)

	return &Result{Status: status, Duration: duration, Details: details}, nil
}

// invoke runs the external process and classifies the outcome. Every
// failure mode, including panics during invocation, resolves to a
// failed status with diagnostic detail.
func (e *Executor) invoke(ctx context.Context, tc *models.TestCase) (status models.CaseStatus, details string, duration float64) {
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			status = models.CaseStatusFailed
			details = diagnostic(fmt.Sprintf("panic during invocation: %v", r))
			duration = e.now().Sub(start).Seconds()
		}
	}()

	res, err := e.runner.Run(ctx, tc.FullPath)
	duration = e.now().Sub(start).Seconds()

	switch {
	case errors.Is(err, ErrExecutionTimeout):
		// Duration is clamped to the bound the process was given.
		return models.CaseStatusFailed, diagnostic("test execution timeout"), e.timeout.Seconds()
	case errors.Is(err, ErrUnsupportedArtifact):
		return models.CaseStatusFailed, diagnostic(fmt.Sprintf("unsupported artifact type: %v", tc.FullPath)), duration
	case err != nil:
		return models.CaseStatusFailed, diagnostic(err.Error()), duration
	}

	status, details = e.classify(res, tc)
	return status, details, duration
}

func (e *Executor) persistOutcome(ctx context.Context, tc *models.TestCase, status models.CaseStatus, duration float64, details string, planID *uuid.UUID) error {
	now := e.now()

	tc.Status = status
	tc.LastExecutionTime = &now
	tc.TotalExecutions++
	tc.AvgDuration = rollingAverage(tc.AvgDuration, tc.TotalExecutions, duration)
	tc.ExecutionDuration = duration
	tc.ResultDetails = details

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TestCase{}).
			Where("case_hash = ?", tc.CaseHash).
			Updates(map[string]interface{}{
				"status":              tc.Status,
				"last_execution_time": tc.LastExecutionTime,
				"total_executions":    tc.TotalExecutions,
				"avg_duration":        tc.AvgDuration,
				"execution_duration":  tc.ExecutionDuration,
				"result_details":      tc.ResultDetails,
			}).Error; err != nil {
			return err
		}

		return tx.Create(&models.Execution{
			ID:         uuid.New(),
			CaseHash:   tc.CaseHash,
			PlanID:     planID,
			Status:     status,
			Duration:   duration,
			Details:    details,
			ExecutedBy: "scheduler",
			MachineID:  e.machineID,
			ExecutedAt: now,
		}).Error
	})
}

func (e *Executor) markExecuting(caseHash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.executing[caseHash]; ok {
		return false
	}
	e.executing[caseHash] = struct{}{}
	return true
}

func (e *Executor) unmarkExecuting(caseHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.executing, caseHash)
}

// rollingAverage folds a new duration into the weighted running mean.
// n is the total execution count after the increment.
func rollingAverage(avg float64, n int, d float64) float64 {
	if n <= 1 {
		return d
	}
	return (avg*float64(n-1) + d) / float64(n)
}

func diagnostic(msg string) string {
	details, _ := json.Marshal(map[string]string{"error": msg})
	return string(details)
}
