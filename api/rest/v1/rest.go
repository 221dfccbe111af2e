package rest

import (
	batchctrl "github.com/gantry-io/gantry/api/rest/controller/batch"
	execctrl "github.com/gantry-io/gantry/api/rest/controller/execution"
	machinectrl "github.com/gantry-io/gantry/api/rest/controller/machine"
	planctrl "github.com/gantry-io/gantry/api/rest/controller/plan"
	casectrl "github.com/gantry-io/gantry/api/rest/controller/testcase"
	"github.com/labstack/echo/v4"
)

// Controllers bundles the REST controllers bound under one version
// group.
type Controllers struct {
	Case      *casectrl.Controller
	Plan      *planctrl.Controller
	Batch     *batchctrl.Controller
	Execution *execctrl.Controller
	Machine   *machinectrl.Controller
}

// Bind the REST endpoints to the versioned endpoint group.
func Bind(group *echo.Group, ctrl Controllers) {
	group.GET("/test-cases", ctrl.Case.List)
	group.GET("/test-cases/stats", ctrl.Case.Stats)
	group.GET("/test-cases/:hash", ctrl.Case.Get)
	group.PUT("/test-cases/:hash", ctrl.Case.Put)

	group.POST("/test-plans", ctrl.Plan.Post)
	group.GET("/test-plans", ctrl.Plan.List)
	group.GET("/test-plans/:id", ctrl.Plan.Get)
	group.DELETE("/test-plans/:id", ctrl.Plan.Delete)
	group.POST("/test-plans/:id/run", ctrl.Plan.Run)
	group.POST("/test-plans/:id/pause", ctrl.Plan.Pause)
	group.POST("/test-plans/:id/resume", ctrl.Plan.Resume)

	group.POST("/batch-executions", ctrl.Batch.Post)
	group.GET("/batch-executions", ctrl.Batch.List)
	group.GET("/batch-executions/:id", ctrl.Batch.Get)

	group.GET("/executions", ctrl.Execution.List)

	group.GET("/machines", ctrl.Machine.List)
}
