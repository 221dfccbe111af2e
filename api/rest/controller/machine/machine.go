// Package machine binds machine liveness endpoints.
package machine

import (
	"net/http"
	"time"

	machinesvc "github.com/gantry-io/gantry/api/rest/service/machine"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	svc    *machinesvc.Service
	window time.Duration
}

func NewController(svc *machinesvc.Service, livenessWindow time.Duration) *Controller {
	return &Controller{svc: svc, window: livenessWindow}
}

func (ctrl *Controller) List(c echo.Context) error {
	req := &machinesvc.ListRequest{
		Status: c.QueryParam("status"),
	}

	machines, err := ctrl.svc.List(c.Request().Context(), req, ctrl.window)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, machines)
}
