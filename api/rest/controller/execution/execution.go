// Package execution binds execution-history endpoints.
package execution

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	execsvc "github.com/gantry-io/gantry/api/rest/service/execution"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	svc *execsvc.Service
}

func NewController(svc *execsvc.Service) *Controller {
	return &Controller{svc: svc}
}

func (ctrl *Controller) List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	executions, err := ctrl.svc.List(c.Request().Context(), req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, executions)
}

func parseListRequest(c echo.Context) (req *execsvc.ListRequest, err error) {
	req = &execsvc.ListRequest{
		CaseHash: c.QueryParam("case_hash"),
		PlanID:   c.QueryParam("plan_id"),
	}

	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, err
		}
		req.Since = &t
	}

	if until := c.QueryParam("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return nil, err
		}
		req.Until = &t
	}

	if limit := c.QueryParam("limit"); limit != "" {
		if req.Limit, err = strconv.ParseUint(limit, 10, 64); err != nil {
			return nil, err
		}
	}

	if offset := c.QueryParam("offset"); offset != "" {
		if req.Offset, err = strconv.ParseUint(offset, 10, 64); err != nil {
			return nil, err
		}
	}

	if orderBy := c.QueryParam("order_by"); orderBy != "" {
		req.OrderBy = strings.Split(orderBy, ",")
	}

	return
}
