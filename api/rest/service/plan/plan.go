// Package plan exposes test-plan CRUD and lifecycle operations to the
// REST layer.
package plan

import (
	"context"
	stderrors "errors"

	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/plan"
	"github.com/gantry-io/gantry/internal/worker"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Service manages test plans. Plan runs are dispatched through a
// single-slot pool, mirroring the hardware's one-at-a-time nature.
type Service struct {
	db     *gorm.DB
	runner *plan.Runner
	runs   *worker.Pool
}

func NewService(db *gorm.DB, runner *plan.Runner) *Service {
	return &Service{
		db:     db,
		runner: runner,
		runs:   worker.NewPool(1),
	}
}

type ListRequest struct {
	Limit    uint64
	Offset   uint64
	OrderBy  []string
	Status   string
	PlanType string
}

func (s *Service) List(ctx context.Context, req *ListRequest) (models.TestPlans, error) {
	var (
		plans = make(models.TestPlans, 0)
		q     = s.db.WithContext(ctx)
	)

	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	if req.PlanType != "" {
		q = q.Where("plan_type = ?", req.PlanType)
	}

	for _, orderBy := range req.OrderBy {
		q = q.Order(orderBy)
	}

	if req.Limit > 0 {
		q = q.Limit(int(req.Limit))
	}

	if req.Offset > 0 {
		q = q.Offset(int(req.Offset))
	}

	return plans, q.Find(&plans).Error
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.TestPlan, error) {
	var (
		p = &models.TestPlan{ID: id}
		q = s.db.WithContext(ctx)
	)

	return p, q.First(p).Error
}

type CreateRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	PlanType       models.PlanType `json:"plan_type,omitempty"`
	ScheduleCron   string          `json:"schedule_cron,omitempty"`
	IncludePaths   []string        `json:"include_paths,omitempty"`
	ExcludePaths   []string        `json:"exclude_paths,omitempty"`
	CaseHashes     []string        `json:"case_hashes,omitempty"`
	RetryCount     int             `json:"retry_count,omitempty"`
	TimeoutMinutes int             `json:"timeout_minutes,omitempty"`
	Distributed    bool            `json:"distributed,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.TestPlan, error) {
	planType := req.PlanType
	if planType == "" {
		planType = models.PlanTypeManual
	}

	p := &models.TestPlan{
		ID:             uuid.New(),
		Name:           req.Name,
		Description:    req.Description,
		PlanType:       planType,
		ScheduleCron:   req.ScheduleCron,
		IncludePaths:   req.IncludePaths,
		ExcludePaths:   req.ExcludePaths,
		CaseHashes:     req.CaseHashes,
		RetryCount:     req.RetryCount,
		TimeoutMinutes: req.TimeoutMinutes,
		Status:         models.PlanStatusPending,
		TotalCases:     len(req.CaseHashes),
		Distributed:    req.Distributed,
		CreatedBy:      req.CreatedBy,
	}

	return p, s.db.WithContext(ctx).Create(p).Error
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.TestPlan{}, "id = ?", id).Error
}

// ErrRunBusy means a plan run is already in flight on this machine.
var ErrRunBusy = stderrors.New("a plan run is already in progress")

// Run hands the plan to the background runner. The call returns once
// the run is accepted, not when it finishes.
func (s *Service) Run(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	return s.dispatch(id)
}

func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	return plan.Pause(s.db.WithContext(ctx), id)
}

// Resume hands a paused plan back to the background runner, which
// continues from the recorded execution offset. Like Run, the call
// returns once the resume is accepted, not when the remaining cases
// finish.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if p.Status != models.PlanStatusPaused {
		return errors.Wrapf(plan.ErrPlanConflict,
			"cannot resume plan %v from %v", id, p.Status)
	}

	return s.dispatch(id)
}

// dispatch claims the single run slot; the runner owns the status
// transitions from there.
func (s *Service) dispatch(id uuid.UUID) error {
	accepted := s.runs.TrySubmit(func() {
		if err := s.runner.Run(context.Background(), id); err != nil {
			log.Error("plan run failure", "plan_id", id, "error", err)
		}
	})
	if !accepted {
		return ErrRunBusy
	}
	return nil
}
