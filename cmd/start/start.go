package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/gantry-io/gantry/api"
	batchctrl "github.com/gantry-io/gantry/api/rest/controller/batch"
	execctrl "github.com/gantry-io/gantry/api/rest/controller/execution"
	machinectrl "github.com/gantry-io/gantry/api/rest/controller/machine"
	planctrl "github.com/gantry-io/gantry/api/rest/controller/plan"
	casectrl "github.com/gantry-io/gantry/api/rest/controller/testcase"
	batchsvc "github.com/gantry-io/gantry/api/rest/service/batch"
	execsvc "github.com/gantry-io/gantry/api/rest/service/execution"
	machinesvc "github.com/gantry-io/gantry/api/rest/service/machine"
	plansvc "github.com/gantry-io/gantry/api/rest/service/plan"
	casesvc "github.com/gantry-io/gantry/api/rest/service/testcase"
	rest "github.com/gantry-io/gantry/api/rest/v1"
	"github.com/gantry-io/gantry/env"
	"github.com/gantry-io/gantry/internal/batch"
	"github.com/gantry-io/gantry/internal/coordinator"
	"github.com/gantry-io/gantry/internal/executor"
	"github.com/gantry-io/gantry/internal/plan"
	"github.com/gantry-io/gantry/internal/scanner"
	"github.com/gantry-io/gantry/internal/scheduler"
	"github.com/gantry-io/gantry/internal/selector"
	"github.com/gantry-io/gantry/pkg/db"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	usage   = "start"
	short   = "Start a gantry orchestration instance"
	long    = "This command starts a gantry orchestration instance"
	example = "gantry start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "run", "begin"},
		Example:    example,
		RunE:       start,
	}
)

var (
	cancel context.CancelFunc
	server *api.Server
)

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT:
				log.Info("gracefully shutting down due to SIGINT signal")
				shutdown()
				os.Exit(0)
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT)

	var errs = make(chan error)
	ctx, cancelFunc := context.WithCancel(context.Background())
	cancel = cancelFunc

	log.Info("migrating database")
	if err := db.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	vars := env.Variables()
	conn := db.Connection()

	sel := selector.New(selector.Weights{
		NewCase:       vars.WeightNewCase,
		FailedCase:    vars.WeightFailedCase,
		LongInterval:  vars.WeightLongInterval,
		PriorityDir:   vars.WeightPriorityDir,
		ShortDuration: vars.WeightShortDuration,
	}, vars.HighPriorityDirs)

	exec := executor.New(conn, executor.NewHardwareLock(), executor.Config{
		MachineID: vars.MachineID,
		LockWait:  vars.HardwareLockWait,
		Timeout:   vars.TestTimeout,
		Runner: &executor.ProcessRunner{
			Root:    vars.TestRoot,
			Timeout: vars.TestTimeout,
			JavaJar: vars.JavaRunnerJar,
		},
	})

	runner := plan.NewRunner(conn, exec, sel)
	orch := batch.NewOrchestrator(conn, runner)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     vars.RedisAddr,
		Password: vars.RedisPassword,
		DB:       vars.RedisDB,
	})
	coord := coordinator.New(
		coordinator.NewRedisKV(redisClient),
		conn,
		vars.MachineID,
		vars.MachineIP,
		vars.MaxTasks,
	)

	scan := scanner.New(conn, vars.TestRoot)

	sched, err := scheduler.New(conn, coord, runner, sel, scan, scheduler.Config{
		DailyCron:        vars.DailyCron,
		WindowStart:      vars.ScheduleWindowStart,
		WindowEnd:        vars.ScheduleWindowEnd,
		ScanInterval:     vars.ScanInterval,
		WatchdogInterval: vars.WatchdogInterval,
		PlanStaleAfter:   vars.PlanStaleAfter,
		DailyLockTTL:     vars.DailyLockTTL,
		LivenessWindow:   vars.LivenessWindow,
	})
	if err != nil {
		log.Fatal("scheduler configuration failure", "error", err)
	}

	server = api.New(rest.Controllers{
		Case:      casectrl.NewController(casesvc.NewService(conn)),
		Plan:      planctrl.NewController(plansvc.NewService(conn, runner)),
		Batch:     batchctrl.NewController(batchsvc.NewService(conn, orch)),
		Execution: execctrl.NewController(execsvc.NewService(conn)),
		Machine:   machinectrl.NewController(machinesvc.NewService(conn), vars.LivenessWindow),
	})

	go func() {
		log.Info("spinning up api", "port", vars.Port)
		errs <- server.Start()
	}()

	go func() {
		log.Info("launching scheduler")
		errs <- sched.Start(ctx)
	}()

	go func() {
		log.Info("launching heartbeat", "machine_id", vars.MachineID)
		errs <- coord.RunHeartbeat(ctx, vars.HeartbeatInterval, vars.LivenessWindow)
	}()

	defer shutdown()

	return <-errs
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
	if server != nil {
		ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("api shutdown failure", "error", err)
		}
	}
}
