// Package scheduler owns the time-driven jobs: the daily run, the
// periodic artifact re-scan, and the stuck-plan watchdog. Multiple
// scheduler instances on different machines coordinate through the
// distributed daily-run lock, so at most one fires the daily plan.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gantry-io/gantry/internal/coordinator"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/plan"
	"github.com/gantry-io/gantry/internal/scanner"
	"github.com/gantry-io/gantry/internal/selector"
	"github.com/gantry-io/gantry/internal/worker"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"github.com/robfig/cron"
	"gorm.io/gorm"
)

// dailyLockKey serializes the daily run across orchestrator machines.
const dailyLockKey = "daily_schedule_lock"

// Rescanner is the artifact discovery collaborator.
type Rescanner interface {
	Rescan(ctx context.Context) (scanner.Result, error)
}

// Config tunes the scheduler's jobs and windows.
type Config struct {
	DailyCron        string
	WindowStart      string // "23:00"
	WindowEnd        string // "08:00"
	ScanInterval     time.Duration
	WatchdogInterval time.Duration
	PlanStaleAfter   time.Duration
	DailyLockTTL     time.Duration
	LivenessWindow   time.Duration
}

// Scheduler supervises gantry's periodic jobs.
type Scheduler struct {
	db       *gorm.DB
	coord    *coordinator.Coordinator
	plans    *plan.Runner
	sel      *selector.Selector
	rescan   Rescanner
	cfg      Config
	schedule cron.Schedule
	now      func() time.Time
}

func New(db *gorm.DB, coord *coordinator.Coordinator, plans *plan.Runner, sel *selector.Selector, rescan Rescanner, cfg Config) (*Scheduler, error) {
	if cfg.DailyCron == "" {
		cfg.DailyCron = "0 23 * * *"
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Minute
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 10 * time.Minute
	}
	if cfg.PlanStaleAfter <= 0 {
		cfg.PlanStaleAfter = 6 * time.Hour
	}
	if cfg.DailyLockTTL <= 0 {
		cfg.DailyLockTTL = 10 * time.Minute
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = 5 * time.Minute
	}

	parser := cron.NewParser(
		cron.Minute |
			cron.Hour |
			cron.Dom |
			cron.Month |
			cron.Dow,
	)

	schedule, err := parser.Parse(cfg.DailyCron)
	if err != nil {
		return nil, fmt.Errorf("invalid daily cron %q: %w", cfg.DailyCron, err)
	}

	return &Scheduler{
		db:       db,
		coord:    coord,
		plans:    plans,
		sel:      sel,
		rescan:   rescan,
		cfg:      cfg,
		schedule: schedule,
		now:      time.Now,
	}, nil
}

// Start runs the scheduler's jobs until the context ends.
func (s *Scheduler) Start(ctx context.Context) error {
	go s.dailyLoop(ctx)
	go s.rescanLoop(ctx)
	go s.watchdogLoop(ctx)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) dailyLoop(ctx context.Context) {
	for {
		next := s.schedule.Next(s.now())

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunDaily(ctx); err != nil {
				log.Error("daily schedule failure", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) rescanLoop(ctx context.Context) {
	for {
		if err := worker.Sleep(ctx, s.cfg.ScanInterval); err != nil {
			return
		}

		result, err := s.rescan.Rescan(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("artifact rescan failure", "error", err)
			}
			continue
		}

		if result.New > 0 || result.Changed > 0 || result.Deleted > 0 {
			log.Info("artifact rescan",
				"new", result.New, "changed", result.Changed, "deleted", result.Deleted)
		}
	}
}

func (s *Scheduler) watchdogLoop(ctx context.Context) {
	for {
		if err := worker.Sleep(ctx, s.cfg.WatchdogInterval); err != nil {
			return
		}

		if _, err := plan.FailStuckPlans(ctx, s.db, s.cfg.PlanStaleAfter); err != nil && ctx.Err() == nil {
			log.Error("stuck plan watchdog failure", "error", err)
		}
	}
}

// RunDaily performs one daily-schedule pass: grab the cross-machine
// lock, verify nothing is running and the clock is inside the allowed
// window, then run the best pending scheduled plan, synthesizing a
// default daily plan when none exists.
func (s *Scheduler) RunDaily(ctx context.Context) error {
	err := s.coord.WithLock(ctx, dailyLockKey, s.cfg.DailyLockTTL, func() error {
		var running int64
		if err := s.db.WithContext(ctx).Model(&models.TestPlan{}).
			Where("status = ?", models.PlanStatusRunning).
			Count(&running).Error; err != nil {
			return err
		}
		if running > 0 {
			log.Info("a plan is already running, skipping daily schedule")
			return nil
		}

		if !s.withinWindow(s.now()) {
			log.Info("outside the allowed execution window",
				"start", s.cfg.WindowStart, "end", s.cfg.WindowEnd)
			return nil
		}

		planID, err := s.pickDailyPlan(ctx)
		if err != nil {
			return err
		}

		return s.runPlan(ctx, planID)
	})

	if errors.Is(err, coordinator.ErrLockUnavailable) {
		log.Info("another machine is executing the daily schedule")
		return nil
	}
	return err
}

// pickDailyPlan selects among scheduled pending plans: a shorter
// declared timeout wins, ties broken by newer creation time. When no
// plan is pending, a default daily plan is synthesized.
func (s *Scheduler) pickDailyPlan(ctx context.Context) (uuid.UUID, error) {
	var pending models.TestPlans
	if err := s.db.WithContext(ctx).
		Where("plan_type = ? AND status = ?", models.PlanTypeScheduled, models.PlanStatusPending).
		Find(&pending).Error; err != nil {
		return uuid.Nil, err
	}

	if len(pending) > 0 {
		now := s.now()
		best := pending[0]
		bestScore := dailyScore(best, now)

		for _, p := range pending[1:] {
			if score := dailyScore(p, now); score > bestScore {
				best, bestScore = p, score
			}
		}

		return best.ID, nil
	}

	daily := &models.TestPlan{
		ID:          uuid.New(),
		Name:        fmt.Sprintf("Daily Schedule - %s", s.now().Format("2006-01-02")),
		Description: "Automated daily test execution",
		PlanType:    models.PlanTypeAuto,
		Status:      models.PlanStatusPending,
		CreatedBy:   "system",
	}

	if err := s.db.WithContext(ctx).Create(daily).Error; err != nil {
		return uuid.Nil, err
	}

	log.Info("synthesized daily plan", "plan_id", daily.ID, "name", daily.Name)
	return daily.ID, nil
}

// dailyScore rewards short timeouts and recency.
func dailyScore(p *models.TestPlan, now time.Time) float64 {
	return -float64(p.TimeoutMinutes)*1000 - now.Sub(p.CreatedAt).Seconds()*0.001
}

func (s *Scheduler) runPlan(ctx context.Context, planID uuid.UUID) error {
	var p models.TestPlan
	if err := s.db.WithContext(ctx).First(&p, "id = ?", planID).Error; err != nil {
		return err
	}

	if p.Distributed {
		return s.runDistributed(ctx, &p)
	}

	return s.plans.Run(ctx, planID)
}

// runDistributed splits the plan's selection across the available
// machines. With no live machine the plan fails immediately.
func (s *Scheduler) runDistributed(ctx context.Context, p *models.TestPlan) error {
	machines, err := s.coord.AvailableMachines(ctx, s.cfg.LivenessWindow)
	if err != nil {
		return err
	}

	if len(machines) == 0 {
		log.Warn("no machines available for distributed plan", "plan_id", p.ID)
		if err := s.db.WithContext(ctx).Model(&models.TestPlan{}).
			Where("id = ?", p.ID).
			Update("status", models.PlanStatusFailed).Error; err != nil {
			return err
		}
		return coordinator.ErrMachineUnavailable
	}

	var pool models.TestCases
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&pool).Error; err != nil {
		return err
	}

	cases := s.sel.Select(pool, selector.Options{
		IncludePaths: p.IncludePaths,
		ExcludePaths: p.ExcludePaths,
	})

	perMachine := len(cases)/len(machines) + 1

	for i := range machines {
		start := i * perMachine
		if start >= len(cases) {
			break
		}
		end := start + perMachine
		if end > len(cases) {
			end = len(cases)
		}

		hashes := make([]string, 0, end-start)
		for _, tc := range cases[start:end] {
			hashes = append(hashes, tc.CaseHash)
		}

		if _, err := s.coord.AssignTask(ctx, s.cfg.LivenessWindow, coordinator.TaskAssignment{
			PlanID:     p.ID,
			CaseHashes: hashes,
		}); err != nil {
			return err
		}
	}

	return nil
}

// withinWindow reports whether t's time of day falls inside the
// allowed execution window. Windows crossing midnight compare against
// both boundaries with inverted logic.
func (s *Scheduler) withinWindow(t time.Time) bool {
	start, okStart := parseClock(s.cfg.WindowStart)
	end, okEnd := parseClock(s.cfg.WindowEnd)
	if !okStart || !okEnd {
		return true
	}

	minute := t.Hour()*60 + t.Minute()

	if start > end {
		// Crosses midnight, e.g. 23:00-08:00.
		return minute >= start || minute <= end
	}
	return minute >= start && minute <= end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(v string) (int, bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
