package env

import (
	"os"
	"time"

	"github.com/gantry-io/gantry/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for gantry.
func Process() error {
	if err := envconfig.Process("gantry", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	if variables.MachineID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return errors.Wrap(err, "failed to resolve machine identity")
		}
		variables.MachineID = hostname
	}

	// set the log level
	if err := log.SetLevelFromString(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by gantry.
type Environment struct {
	LogLevel     string `default:"info"`
	Port         int    `default:"8080"`
	DatabaseType string `default:"sqlite"`
	DatabaseDSN  string `default:"gantry.db"`

	// MachineID defaults to the hostname when unset.
	MachineID string `default:""`
	MachineIP string `default:"127.0.0.1"`

	// Bench execution. The bench accepts exactly one case at a time,
	// so there is no concurrency knob here.
	TestRoot         string        `default:"./testcases"`
	TestTimeout      time.Duration `default:"10m"`
	HardwareLockWait time.Duration `default:"60s"`
	JavaRunnerJar    string        `default:"test-runner.jar"`

	// Case priority weights.
	WeightNewCase       float64  `default:"1.0"`
	WeightFailedCase    float64  `default:"0.8"`
	WeightLongInterval  float64  `default:"0.6"`
	WeightPriorityDir   float64  `default:"0.5"`
	WeightShortDuration float64  `default:"0.3"`
	HighPriorityDirs    []string `default:""`

	// Scheduling.
	DailyCron           string        `default:"0 23 * * *"`
	ScheduleWindowStart string        `default:"23:00"`
	ScheduleWindowEnd   string        `default:"08:00"`
	ScanInterval        time.Duration `default:"5m"`
	WatchdogInterval    time.Duration `default:"10m"`
	PlanStaleAfter      time.Duration `default:"6h"`
	DailyLockTTL        time.Duration `default:"10m"`

	// Coordination.
	RedisAddr         string        `default:"localhost:6379"`
	RedisPassword     string        `default:""`
	RedisDB           int           `default:"0"`
	HeartbeatInterval time.Duration `default:"30s"`
	LivenessWindow    time.Duration `default:"5m"`
	MaxTasks          int           `default:"5"`
}
