// Package batch exposes batch submissions to the REST layer.
package batch

import (
	"context"

	"github.com/gantry-io/gantry/internal/batch"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	orch *batch.Orchestrator
}

func NewService(db *gorm.DB, orch *batch.Orchestrator) *Service {
	return &Service{db: db, orch: orch}
}

type SubmitRequest struct {
	Name        string               `json:"name,omitempty"`
	PlanIDs     []string             `json:"plan_ids"`
	Policy      models.FailurePolicy `json:"policy,omitempty"`
	Mode        models.ExecutionMode `json:"mode,omitempty"`
	Concurrency int                  `json:"concurrency,omitempty"`
	Force       bool                 `json:"force,omitempty"`
	CreatedBy   string               `json:"created_by,omitempty"`
}

func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*models.BatchExecution, error) {
	planIDs := make([]uuid.UUID, 0, len(req.PlanIDs))
	for _, raw := range req.PlanIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		planIDs = append(planIDs, id)
	}

	return s.orch.Submit(ctx, batch.Request{
		Name:        req.Name,
		PlanIDs:     planIDs,
		Policy:      req.Policy,
		Mode:        req.Mode,
		Concurrency: req.Concurrency,
		Force:       req.Force,
		CreatedBy:   req.CreatedBy,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.BatchExecution, error) {
	var (
		bat = &models.BatchExecution{ID: id}
		q   = s.db.WithContext(ctx)
	)

	return bat, q.First(bat).Error
}

type ListRequest struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
	Status  string
}

func (s *Service) List(ctx context.Context, req *ListRequest) (models.BatchExecutions, error) {
	var (
		batches = make(models.BatchExecutions, 0)
		q       = s.db.WithContext(ctx)
	)

	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
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

	return batches, q.Find(&batches).Error
}
