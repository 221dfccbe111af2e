package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gantry-io/gantry/internal/metrics"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/worker"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Heartbeat upserts this machine's own liveness record. Only the
// owning machine's heartbeat loop writes its record.
func (c *Coordinator) Heartbeat(ctx context.Context) error {
	now := c.now()

	var machine models.MachineStatus
	err := c.db.WithContext(ctx).First(&machine, "machine_id = ?", c.machineID).Error
	if err == gorm.ErrRecordNotFound {
		machine = models.MachineStatus{
			MachineID:   c.machineID,
			MachineIP:   c.machineIP,
			MachineName: c.machineID,
			MaxTasks:    c.maxTasks,
		}
	} else if err != nil {
		return err
	}

	machine.Status = models.MachineStateOnline
	machine.LastHeartbeat = now

	if err := c.db.WithContext(ctx).Save(&machine).Error; err != nil {
		return err
	}

	metrics.HeartbeatsTotal.WithLabelValues(c.machineID).Inc()
	return nil
}

// SweepOffline marks every machine whose heartbeat age exceeds the
// liveness window as offline.
func (c *Coordinator) SweepOffline(ctx context.Context, window time.Duration) error {
	cutoff := c.now().Add(-window)

	return c.db.WithContext(ctx).Model(&models.MachineStatus{}).
		Where("last_heartbeat < ? AND status != ?", cutoff, models.MachineStateOffline).
		Update("status", models.MachineStateOffline).Error
}

// RunHeartbeat emits heartbeats on the given interval and sweeps stale
// machines, until the context ends.
func (c *Coordinator) RunHeartbeat(ctx context.Context, interval, window time.Duration) error {
	for {
		if err := c.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			log.Error("heartbeat failure", "machine_id", c.machineID, "error", err)
		}

		if err := c.SweepOffline(ctx, window); err != nil && ctx.Err() == nil {
			log.Error("liveness sweep failure", "error", err)
		}

		if err := worker.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}

// AvailableMachines lists machines that are online and have
// heartbeated within the liveness window, least loaded first.
func (c *Coordinator) AvailableMachines(ctx context.Context, window time.Duration) (models.MachineStatuses, error) {
	cutoff := c.now().Add(-window)

	var machines models.MachineStatuses
	if err := c.db.WithContext(ctx).
		Where("last_heartbeat >= ? AND status = ?", cutoff, models.MachineStateOnline).
		Order("current_tasks ASC").
		Find(&machines).Error; err != nil {
		return nil, err
	}

	return machines, nil
}

// TaskAssignment is the payload pushed onto a machine's work queue.
type TaskAssignment struct {
	PlanID     uuid.UUID `json:"plan_id"`
	CaseHashes []string  `json:"case_hashes"`
	MachineID  string    `json:"machine_id"`
}

// AssignTask picks the available machine with the lowest load ratio,
// increments its task counter, and enqueues the task data to its work
// queue. Completion is the owning machine's responsibility; the
// coordinator does not await it.
func (c *Coordinator) AssignTask(ctx context.Context, window time.Duration, task TaskAssignment) (string, error) {
	machines, err := c.AvailableMachines(ctx, window)
	if err != nil {
		return "", err
	}
	if len(machines) == 0 {
		return "", ErrMachineUnavailable
	}

	selected := machines[0]
	for _, m := range machines[1:] {
		if m.LoadRatio() < selected.LoadRatio() {
			selected = m
		}
	}

	if err := c.db.WithContext(ctx).Model(&models.MachineStatus{}).
		Where("machine_id = ?", selected.MachineID).
		Update("current_tasks", gorm.Expr("current_tasks + 1")).Error; err != nil {
		return "", err
	}

	task.MachineID = selected.MachineID
	payload, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	queue := fmt.Sprintf("tasks:%s", selected.MachineID)
	if err := c.kv.RPush(ctx, queue, string(payload)); err != nil {
		return "", err
	}

	log.Info("assigned task to machine",
		"machine_id", selected.MachineID, "plan_id", task.PlanID, "cases", len(task.CaseHashes))

	return selected.MachineID, nil
}
