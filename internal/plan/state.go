// Package plan governs the lifecycle of a test plan and drives the
// executor over a plan's selected cases. A plan's status transitions
// during a run are owned exclusively by the Runner that started it.
package plan

import (
	stderrors "errors"

	"github.com/gantry-io/gantry/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrPlanConflict is returned when a requested transition is not legal
// from the plan's current state. The plan is left untouched.
var ErrPlanConflict = stderrors.New("plan state conflict")

// Pause suspends a running plan. The in-flight case runs to completion;
// pause only prevents the next case from starting.
func Pause(db *gorm.DB, id uuid.UUID) error {
	return transition(db, id, []models.PlanStatus{models.PlanStatusRunning}, models.PlanStatusPaused)
}

// transition performs a compare-and-swap status update so concurrent
// orchestrators cannot double-apply a transition. A swap that matches
// zero rows resolves to ErrPlanConflict with the observed state.
func transition(db *gorm.DB, id uuid.UUID, from []models.PlanStatus, to models.PlanStatus) error {
	res := db.Model(&models.TestPlan{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		var current models.TestPlan
		if err := db.Select("status").First(&current, "id = ?", id).Error; err != nil {
			return err
		}
		return errors.Wrapf(ErrPlanConflict,
			"cannot transition plan %v from %v to %v", id, current.Status, to)
	}

	return nil
}
