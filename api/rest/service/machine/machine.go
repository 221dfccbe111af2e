// Package machine exposes read-only machine liveness projections.
package machine

import (
	"context"
	"time"

	"github.com/gantry-io/gantry/internal/models"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type ListRequest struct {
	Status string
}

// MachineView is a MachineStatus plus its computed availability.
type MachineView struct {
	*models.MachineStatus
	Available bool `json:"available"`
}

func (s *Service) List(ctx context.Context, req *ListRequest, window time.Duration) ([]*MachineView, error) {
	var (
		machines = make(models.MachineStatuses, 0)
		q        = s.db.WithContext(ctx)
	)

	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	if err := q.Order("machine_id ASC").Find(&machines).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]*MachineView, 0, len(machines))
	for _, m := range machines {
		views = append(views, &MachineView{
			MachineStatus: m,
			Available:     m.Available(now, window),
		})
	}

	return views, nil
}
