// Package execution exposes the append-only execution history.
package execution

import (
	"context"
	"time"

	"github.com/gantry-io/gantry/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type ListRequest struct {
	Limit    uint64
	Offset   uint64
	OrderBy  []string
	CaseHash string
	PlanID   string
	Since    *time.Time
	Until    *time.Time
}

func (s *Service) List(ctx context.Context, req *ListRequest) (models.Executions, error) {
	var (
		executions = make(models.Executions, 0)
		q          = s.db.WithContext(ctx)
	)

	if req.CaseHash != "" {
		q = q.Where("case_hash = ?", req.CaseHash)
	}

	if req.PlanID != "" {
		if _, err := uuid.Parse(req.PlanID); err != nil {
			return nil, err
		}

		q = q.Where("plan_id = ?", req.PlanID)
	}

	if req.Since != nil {
		q = q.Where("executed_at >= ?", req.Since)
	}

	if req.Until != nil {
		q = q.Where("executed_at <= ?", req.Until)
	}

	if len(req.OrderBy) == 0 {
		q = q.Order("executed_at DESC")
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

	return executions, q.Find(&executions).Error
}
