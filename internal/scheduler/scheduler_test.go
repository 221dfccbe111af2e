package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/gantry-io/gantry/internal/coordinator"
	"github.com/gantry-io/gantry/internal/executor"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/plan"
	"github.com/gantry-io/gantry/internal/scanner"
	"github.com/gantry-io/gantry/internal/selector"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// passExecutor reports every case as passed without touching the bench.
type passExecutor struct{}

func (passExecutor) ExecuteSingleCase(ctx context.Context, tc *models.TestCase, planID *uuid.UUID) (*executor.Result, error) {
	return &executor.Result{Status: models.CaseStatusPassed, Duration: 1}, nil
}

type noopRescan struct{}

func (noopRescan) Rescan(ctx context.Context) (scanner.Result, error) {
	return scanner.Result{}, nil
}

type SchedulerSuite struct {
	suite.Suite
	db *gorm.DB
	kv coordinator.KV
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(models.All()...))
	s.db = db
	s.kv = coordinator.NewMemoryKV()
}

func (s *SchedulerSuite) TearDownTest() {
	if s.db != nil {
		sqlDB, _ := s.db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}
}

func (s *SchedulerSuite) newScheduler(machineID string) *Scheduler {
	coord := coordinator.New(s.kv, s.db, machineID, "10.0.0.1", 5)
	sel := selector.New(selector.DefaultWeights(), nil)
	runner := plan.NewRunner(s.db, passExecutor{}, sel)

	sched, err := New(s.db, coord, runner, sel, noopRescan{}, Config{
		WindowStart: "23:00",
		WindowEnd:   "08:00",
	})
	s.Require().NoError(err)

	// Inside the window unless a test overrides the clock.
	sched.now = func() time.Time {
		return time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	}
	return sched
}

func (s *SchedulerSuite) seedCase(hash string) {
	s.Require().NoError(s.db.Create(&models.TestCase{
		CaseHash:     hash,
		Name:         hash,
		FullPath:     "/cases/" + hash + ".py",
		RelativePath: hash + ".py",
		Status:       models.CaseStatusNotExecuted,
		IsActive:     true,
	}).Error)
}

func (s *SchedulerSuite) TestWithinWindowCrossesMidnight() {
	sched := s.newScheduler("machine-a")

	at := func(hour, minute int) time.Time {
		return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
	}

	s.True(sched.withinWindow(at(23, 0)))
	s.True(sched.withinWindow(at(2, 30)))
	s.True(sched.withinWindow(at(8, 0)))
	s.False(sched.withinWindow(at(8, 1)))
	s.False(sched.withinWindow(at(12, 0)))
	s.False(sched.withinWindow(at(22, 59)))
}

func (s *SchedulerSuite) TestWithinWindowSameDay() {
	sched := s.newScheduler("machine-a")
	sched.cfg.WindowStart = "09:00"
	sched.cfg.WindowEnd = "17:00"

	at := func(hour int) time.Time {
		return time.Date(2024, 6, 1, hour, 0, 0, 0, time.UTC)
	}

	s.True(sched.withinWindow(at(12)))
	s.False(sched.withinWindow(at(20)))
}

func (s *SchedulerSuite) TestRunDailyExecutesBestPendingPlan() {
	s.seedCase("a")

	slow := &models.TestPlan{
		ID:             uuid.New(),
		Name:           "slow",
		PlanType:       models.PlanTypeScheduled,
		Status:         models.PlanStatusPending,
		TimeoutMinutes: 120,
		CaseHashes:     []string{"a"},
	}
	quick := &models.TestPlan{
		ID:             uuid.New(),
		Name:           "quick",
		PlanType:       models.PlanTypeScheduled,
		Status:         models.PlanStatusPending,
		TimeoutMinutes: 10,
		CaseHashes:     []string{"a"},
	}
	s.Require().NoError(s.db.Create(slow).Error)
	s.Require().NoError(s.db.Create(quick).Error)

	sched := s.newScheduler("machine-a")
	s.Require().NoError(sched.RunDaily(context.Background()))

	var stored models.TestPlan
	s.Require().NoError(s.db.First(&stored, "id = ?", quick.ID).Error)
	s.Equal(models.PlanStatusCompleted, stored.Status)

	var storedSlow models.TestPlan
	s.Require().NoError(s.db.First(&storedSlow, "id = ?", slow.ID).Error)
	s.Equal(models.PlanStatusPending, storedSlow.Status)
}

func (s *SchedulerSuite) TestRunDailySynthesizesAutoPlan() {
	s.seedCase("a")

	sched := s.newScheduler("machine-a")
	s.Require().NoError(sched.RunDaily(context.Background()))

	var auto models.TestPlan
	s.Require().NoError(s.db.First(&auto, "plan_type = ?", models.PlanTypeAuto).Error)
	s.Contains(auto.Name, "Daily Schedule - 2024-06-01")
	s.Equal(models.PlanStatusCompleted, auto.Status)
	s.Equal("system", auto.CreatedBy)
}

func (s *SchedulerSuite) TestRunDailySkipsWhenPlanRunning() {
	s.Require().NoError(s.db.Create(&models.TestPlan{
		ID:       uuid.New(),
		Name:     "busy",
		PlanType: models.PlanTypeManual,
		Status:   models.PlanStatusRunning,
	}).Error)

	sched := s.newScheduler("machine-a")
	s.Require().NoError(sched.RunDaily(context.Background()))

	var count int64
	s.Require().NoError(s.db.Model(&models.TestPlan{}).
		Where("plan_type = ?", models.PlanTypeAuto).
		Count(&count).Error)
	s.Zero(count, "no plan should be synthesized while one runs")
}

func (s *SchedulerSuite) TestRunDailySkipsOutsideWindow() {
	sched := s.newScheduler("machine-a")
	sched.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	s.Require().NoError(sched.RunDaily(context.Background()))

	var count int64
	s.Require().NoError(s.db.Model(&models.TestPlan{}).Count(&count).Error)
	s.Zero(count)
}

func (s *SchedulerSuite) TestRunDailyNoOpWhenLockHeldElsewhere() {
	ctx := context.Background()

	other := coordinator.New(s.kv, s.db, "machine-b", "10.0.0.2", 5)
	acquired, err := other.AcquireLock(ctx, "daily_schedule_lock", time.Hour)
	s.Require().NoError(err)
	s.Require().True(acquired)

	sched := s.newScheduler("machine-a")
	s.Require().NoError(sched.RunDaily(ctx))

	var count int64
	s.Require().NoError(s.db.Model(&models.TestPlan{}).Count(&count).Error)
	s.Zero(count, "the daily pass must defer to the lock holder")
}

func (s *SchedulerSuite) TestDistributedPlanFailsWithoutMachines() {
	p := &models.TestPlan{
		ID:          uuid.New(),
		Name:        "distributed",
		PlanType:    models.PlanTypeScheduled,
		Status:      models.PlanStatusPending,
		Distributed: true,
	}
	s.Require().NoError(s.db.Create(p).Error)

	sched := s.newScheduler("machine-a")
	err := sched.RunDaily(context.Background())
	s.ErrorIs(err, coordinator.ErrMachineUnavailable)

	var stored models.TestPlan
	s.Require().NoError(s.db.First(&stored, "id = ?", p.ID).Error)
	s.Equal(models.PlanStatusFailed, stored.Status)
}

func (s *SchedulerSuite) TestDistributedPlanAssignsAcrossMachines() {
	for _, h := range []string{"a", "b", "c", "d"} {
		s.seedCase(h)
	}

	now := time.Now()
	for _, id := range []string{"worker-1", "worker-2"} {
		s.Require().NoError(s.db.Create(&models.MachineStatus{
			MachineID:     id,
			Status:        models.MachineStateOnline,
			LastHeartbeat: now,
			MaxTasks:      5,
		}).Error)
	}

	p := &models.TestPlan{
		ID:          uuid.New(),
		Name:        "distributed",
		PlanType:    models.PlanTypeScheduled,
		Status:      models.PlanStatusPending,
		Distributed: true,
	}
	s.Require().NoError(s.db.Create(p).Error)

	sched := s.newScheduler("machine-a")
	sched.cfg.LivenessWindow = 5 * time.Minute
	s.Require().NoError(sched.RunDaily(context.Background()))

	var assigned int64
	s.Require().NoError(s.db.Model(&models.MachineStatus{}).
		Where("current_tasks > 0").
		Count(&assigned).Error)
	s.Positive(assigned)
}

func (s *SchedulerSuite) TestDailyScorePrefersShortTimeoutThenRecency() {
	now := time.Now()

	short := &models.TestPlan{TimeoutMinutes: 10, CreatedAt: now.Add(-time.Hour)}
	long := &models.TestPlan{TimeoutMinutes: 60, CreatedAt: now}
	s.Greater(dailyScore(short, now), dailyScore(long, now))

	older := &models.TestPlan{TimeoutMinutes: 10, CreatedAt: now.Add(-2 * time.Hour)}
	s.Greater(dailyScore(short, now), dailyScore(older, now))
}

func (s *SchedulerSuite) TestNewRejectsBadCron() {
	coord := coordinator.New(s.kv, s.db, "machine-a", "10.0.0.1", 5)
	sel := selector.New(selector.DefaultWeights(), nil)
	runner := plan.NewRunner(s.db, passExecutor{}, sel)

	_, err := New(s.db, coord, runner, sel, noopRescan{}, Config{DailyCron: "not a cron"})
	s.Error(err)
}
