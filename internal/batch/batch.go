// Package batch runs multiple plans under one submission with a
// configurable failure-handling policy. Parallel dispatch still
// serializes at the case level through the hardware lock; it only
// reduces orchestration latency.
package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gantry-io/gantry/internal/metrics"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/worker"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrPlanAlreadyRunning rejects a batch targeting an in-flight plan
// unless the submission forces execution.
var ErrPlanAlreadyRunning = stderrors.New("targeted plan already running")

// PlanRunner runs one plan to a terminal state.
type PlanRunner interface {
	Run(ctx context.Context, planID uuid.UUID) error
}

// Request describes a batch submission.
type Request struct {
	Name        string
	PlanIDs     []uuid.UUID
	Policy      models.FailurePolicy
	Mode        models.ExecutionMode
	Concurrency int
	Force       bool
	CreatedBy   string
}

// normalizePolicy folds case and whitespace; an empty value means
// continue, anything unrecognized is rejected.
func normalizePolicy(v models.FailurePolicy) (models.FailurePolicy, error) {
	switch p := models.FailurePolicy(strings.ToLower(strings.TrimSpace(string(v)))); p {
	case "":
		return models.FailurePolicyContinue, nil
	case models.FailurePolicyContinue, models.FailurePolicyStop, models.FailurePolicyRetry:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", v)
	}
}

func normalizeMode(v models.ExecutionMode) (models.ExecutionMode, error) {
	switch m := models.ExecutionMode(strings.ToLower(strings.TrimSpace(string(v)))); m {
	case "":
		return models.ExecutionModeSequential, nil
	case models.ExecutionModeSequential, models.ExecutionModeParallel:
		return m, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", v)
	}
}

// Orchestrator runs batches.
type Orchestrator struct {
	db     *gorm.DB
	runner PlanRunner
}

func NewOrchestrator(db *gorm.DB, runner PlanRunner) *Orchestrator {
	return &Orchestrator{db: db, runner: runner}
}

// Submit validates a batch, records it, and dispatches the sweep
// asynchronously. The returned record carries the batch identity for
// status polling.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*models.BatchExecution, error) {
	if len(req.PlanIDs) == 0 {
		return nil, fmt.Errorf("batch requires at least one plan")
	}

	policy, err := normalizePolicy(req.Policy)
	if err != nil {
		return nil, err
	}
	req.Policy = policy

	mode, err := normalizeMode(req.Mode)
	if err != nil {
		return nil, err
	}
	req.Mode = mode

	if req.Concurrency < 1 {
		req.Concurrency = 1
	}

	ids := make([]string, len(req.PlanIDs))
	for i, id := range req.PlanIDs {
		ids[i] = id.String()
	}

	var running int64
	if err := o.db.WithContext(ctx).Model(&models.TestPlan{}).
		Where("id IN ? AND status = ?", ids, models.PlanStatusRunning).
		Count(&running).Error; err != nil {
		return nil, err
	}
	if running > 0 && !req.Force {
		return nil, errors.Wrapf(ErrPlanAlreadyRunning, "%d of %d plans", running, len(req.PlanIDs))
	}

	now := time.Now()
	bat := &models.BatchExecution{
		ID:          uuid.New(),
		Name:        req.Name,
		PlanIDs:     ids,
		Policy:      req.Policy,
		Mode:        req.Mode,
		Concurrency: req.Concurrency,
		Status:      models.BatchStatusRunning,
		StartedAt:   &now,
		CreatedBy:   req.CreatedBy,
	}

	if err := o.db.WithContext(ctx).Create(bat).Error; err != nil {
		return nil, err
	}

	// The sweep must outlive the submitting request.
	go o.sweep(context.WithoutCancel(ctx), bat, req.PlanIDs)

	return bat, nil
}

// sweep drives every plan in the batch to a terminal state. The batch
// completes once all plans were handled, even when some of them
// failed; it only fails when the sweep itself could not finish.
func (o *Orchestrator) sweep(ctx context.Context, bat *models.BatchExecution, planIDs []uuid.UUID) {
	var sweepErr error

	defer func() {
		if rec := recover(); rec != nil {
			sweepErr = fmt.Errorf("batch sweep panic: %v", rec)
		}
		o.finish(bat, sweepErr)
	}()

	switch bat.Mode {
	case models.ExecutionModeParallel:
		o.runParallel(ctx, bat, planIDs)
	default:
		o.runSequential(ctx, bat, planIDs)
	}
}

func (o *Orchestrator) runSequential(ctx context.Context, bat *models.BatchExecution, planIDs []uuid.UUID) {
	for i, planID := range planIDs {
		if ctx.Err() != nil {
			return
		}

		log.Info("batch running plan",
			"batch_id", bat.ID, "plan_id", planID, "position", i+1, "of", len(planIDs))

		if err := o.runner.Run(ctx, planID); err != nil {
			log.Error("batch plan failure", "batch_id", bat.ID, "plan_id", planID, "error", err)

			switch bat.Policy {
			case models.FailurePolicyStop:
				log.Warn("stopping remaining plans", "batch_id", bat.ID, "remaining", len(planIDs)-i-1)
				return
			case models.FailurePolicyRetry:
				if retryErr := o.runner.Run(ctx, planID); retryErr != nil {
					log.Error("batch plan retry failure",
						"batch_id", bat.ID, "plan_id", planID, "error", retryErr)
				}
			}
			// continue: proceed regardless.
		}
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, bat *models.BatchExecution, planIDs []uuid.UUID) {
	pool := worker.NewPool(bat.Concurrency)

	var stopped sync.Once
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, planID := range planIDs {
		planID := planID
		if err := pool.Submit(runCtx, func() {
			if err := o.runner.Run(runCtx, planID); err != nil {
				log.Error("batch plan failure", "batch_id", bat.ID, "plan_id", planID, "error", err)
				if bat.Policy == models.FailurePolicyStop {
					stopped.Do(cancel)
				}
			}
		}); err != nil {
			break
		}
	}

	pool.Wait()
}

func (o *Orchestrator) finish(bat *models.BatchExecution, sweepErr error) {
	now := time.Now()
	status := models.BatchStatusCompleted
	msg := ""

	if sweepErr != nil {
		status = models.BatchStatusFailed
		msg = sweepErr.Error()
	}

	if err := o.db.Model(&models.BatchExecution{}).
		Where("id = ?", bat.ID).
		Updates(map[string]interface{}{
			"status":        status,
			"completed_at":  &now,
			"error_message": msg,
		}).Error; err != nil {
		log.Error("failed to finalize batch", "batch_id", bat.ID, "error", err)
		return
	}

	metrics.BatchRunsTotal.WithLabelValues(string(status)).Inc()
	log.Info("batch finished", "batch_id", bat.ID, "status", status)
}
