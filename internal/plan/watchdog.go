package plan

import (
	"context"
	"time"

	"github.com/gantry-io/gantry/internal/metrics"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/pkg/log"
	"gorm.io/gorm"
)

// FailStuckPlans forcibly fails every running plan whose last
// execution activity is older than staleness. It is the hard upper
// bound on how long a plan can appear stuck.
func FailStuckPlans(ctx context.Context, db *gorm.DB, staleness time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleness)

	res := db.WithContext(ctx).Model(&models.TestPlan{}).
		Where("status = ? AND last_execution_time IS NOT NULL AND last_execution_time < ?",
			models.PlanStatusRunning, cutoff).
		Update("status", models.PlanStatusFailed)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		metrics.PlansWatchdogFailedTotal.Add(float64(res.RowsAffected))
		log.Warn("watchdog failed stuck plans", "count", res.RowsAffected, "staleness", staleness)
	}

	return res.RowsAffected, nil
}
