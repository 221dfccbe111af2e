package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/gantry-io/gantry/internal/executor"
	"github.com/gantry-io/gantry/internal/metrics"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/selector"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// defaultSelectionLimit caps case resolution when a plan does not
// declare its own total.
const defaultSelectionLimit = 1000

// CaseExecutor runs one case under the hardware lock.
type CaseExecutor interface {
	ExecuteSingleCase(ctx context.Context, tc *models.TestCase, planID *uuid.UUID) (*executor.Result, error)
}

// Runner drives a plan's selected cases through the executor,
// case by case, accumulating pass/fail counters as it goes.
type Runner struct {
	db   *gorm.DB
	exec CaseExecutor
	sel  *selector.Selector
	now  func() time.Time
}

func NewRunner(db *gorm.DB, exec CaseExecutor, sel *selector.Selector) *Runner {
	return &Runner{db: db, exec: exec, sel: sel, now: time.Now}
}

// Run executes the plan to a terminal state. Starting is a
// compare-and-swap from pending (or paused, for a resume), so two
// orchestrators cannot double-start the same plan. Failures inside the
// run are contained: the plan transitions to failed and the error is
// returned for synchronous callers to inspect.
func (r *Runner) Run(ctx context.Context, planID uuid.UUID) (err error) {
	var plan models.TestPlan
	if err = r.db.WithContext(ctx).First(&plan, "id = ?", planID).Error; err != nil {
		return err
	}

	resumed := plan.Status == models.PlanStatusPaused

	// Plans are re-executable: any state but running may start. The
	// compare-and-swap away from running is what prevents two
	// orchestrators from double-starting the same plan.
	if err = transition(r.db, planID,
		[]models.PlanStatus{
			models.PlanStatusPending,
			models.PlanStatusPaused,
			models.PlanStatusCompleted,
			models.PlanStatusFailed,
		},
		models.PlanStatusRunning); err != nil {
		return err
	}
	plan.Status = models.PlanStatusRunning

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plan run panic: %v", rec)
		}
		if err != nil {
			r.fail(&plan, err)
		}
	}()

	err = r.run(ctx, &plan, resumed)
	return err
}

func (r *Runner) run(ctx context.Context, plan *models.TestPlan, resumed bool) error {
	cases, err := r.resolveCases(ctx, plan)
	if err != nil {
		return err
	}

	offset := 0
	if resumed && plan.ExecutedCases > 0 && plan.ExecutedCases <= len(cases) {
		offset = plan.ExecutedCases
	} else {
		plan.TotalCases = len(cases)
		plan.ExecutedCases = 0
		plan.PassedCases = 0
		plan.FailedCases = 0
	}

	now := r.now()
	plan.LastExecutionTime = &now
	if err := r.persistProgress(ctx, plan); err != nil {
		return err
	}

	log.Info("running test plan",
		"plan_id", plan.ID, "name", plan.Name, "cases", len(cases), "offset", offset)

	for i := offset; i < len(cases); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Pause stops before the next case, never mid-case.
		if paused, err := r.paused(ctx, plan.ID); err != nil {
			return err
		} else if paused {
			log.Info("plan paused, suspending run", "plan_id", plan.ID, "executed", plan.ExecutedCases)
			return nil
		}

		status, err := r.runCase(ctx, plan, cases[i])
		if err != nil {
			return err
		}

		plan.ExecutedCases++
		switch status {
		case models.CaseStatusPassed:
			plan.PassedCases++
		case models.CaseStatusFailed:
			plan.FailedCases++
		}

		now := r.now()
		plan.LastExecutionTime = &now
		if err := r.persistProgress(ctx, plan); err != nil {
			return err
		}
	}

	if err := transition(r.db, plan.ID,
		[]models.PlanStatus{models.PlanStatusRunning}, models.PlanStatusCompleted); err != nil {
		return err
	}

	metrics.PlanRunsTotal.WithLabelValues(string(models.PlanStatusCompleted)).Inc()
	log.Info("test plan completed",
		"plan_id", plan.ID,
		"total", plan.TotalCases,
		"passed", plan.PassedCases,
		"failed", plan.FailedCases)

	return nil
}

// runCase executes one case, re-attempting a failure up to the plan's
// retry count. Every attempt appends its own execution record, but
// the returned status, and therefore the plan counters, reflect only
// the final outcome.
func (r *Runner) runCase(ctx context.Context, plan *models.TestPlan, tc *models.TestCase) (models.CaseStatus, error) {
	attempts := 0

	for {
		res, err := r.exec.ExecuteSingleCase(ctx, tc, &plan.ID)
		if err != nil {
			return "", err
		}

		if res.Status != models.CaseStatusFailed || attempts >= plan.RetryCount {
			return res.Status, nil
		}

		attempts++
		log.Info("retrying failed case",
			"plan_id", plan.ID, "case_hash", tc.CaseHash, "attempt", attempts+1)
	}
}

// resolveCases materializes the plan's case set once, as a snapshot.
// An explicit case list takes precedence over path-filter selection.
func (r *Runner) resolveCases(ctx context.Context, plan *models.TestPlan) (models.TestCases, error) {
	if len(plan.CaseHashes) > 0 {
		cases := make(models.TestCases, 0, len(plan.CaseHashes))
		for _, hash := range plan.CaseHashes {
			var tc models.TestCase
			if err := r.db.WithContext(ctx).First(&tc, "case_hash = ?", hash).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					log.Warn("plan references unknown case", "plan_id", plan.ID, "case_hash", hash)
					continue
				}
				return nil, err
			}
			cases = append(cases, &tc)
		}
		return cases, nil
	}

	var pool models.TestCases
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&pool).Error; err != nil {
		return nil, err
	}

	limit := plan.TotalCases
	if limit <= 0 {
		limit = defaultSelectionLimit
	}

	return r.sel.Select(pool, selector.Options{
		Limit:        limit,
		IncludePaths: plan.IncludePaths,
		ExcludePaths: plan.ExcludePaths,
	}), nil
}

func (r *Runner) persistProgress(ctx context.Context, plan *models.TestPlan) error {
	return r.db.WithContext(ctx).Model(&models.TestPlan{}).
		Where("id = ?", plan.ID).
		Updates(map[string]interface{}{
			"total_cases":         plan.TotalCases,
			"executed_cases":      plan.ExecutedCases,
			"passed_cases":        plan.PassedCases,
			"failed_cases":        plan.FailedCases,
			"last_execution_time": plan.LastExecutionTime,
		}).Error
}

func (r *Runner) paused(ctx context.Context, id uuid.UUID) (bool, error) {
	var current models.TestPlan
	if err := r.db.WithContext(ctx).Select("status").First(&current, "id = ?", id).Error; err != nil {
		return false, err
	}
	return current.Status == models.PlanStatusPaused, nil
}

func (r *Runner) fail(plan *models.TestPlan, cause error) {
	log.Error("plan run failure", "plan_id", plan.ID, "error", cause)

	if err := r.db.Model(&models.TestPlan{}).
		Where("id = ? AND status = ?", plan.ID, models.PlanStatusRunning).
		Update("status", models.PlanStatusFailed).Error; err != nil {
		log.Error("failed to mark plan failed", "plan_id", plan.ID, "error", err)
		return
	}

	metrics.PlanRunsTotal.WithLabelValues(string(models.PlanStatusFailed)).Inc()
}
