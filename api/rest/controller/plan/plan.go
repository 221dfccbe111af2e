// Package plan binds test-plan endpoints to the plan service.
package plan

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	plansvc "github.com/gantry-io/gantry/api/rest/service/plan"
	planstate "github.com/gantry-io/gantry/internal/plan"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type Controller struct {
	svc *plansvc.Service
}

func NewController(svc *plansvc.Service) *Controller {
	return &Controller{svc: svc}
}

func (ctrl *Controller) Post(c echo.Context) error {
	req := &plansvc.CreateRequest{}

	if err := c.Bind(req); err != nil {
		return err
	}

	if req.Name == "" {
		return echo.ErrBadRequest.SetInternal(errors.New("name is required"))
	}

	log.Info("creating test plan", "name", req.Name, "type", req.PlanType)

	p, err := ctrl.svc.Create(c.Request().Context(), req)
	if err != nil {
		log.Error("failed to create test plan", "error", err)
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, p)
}

func (ctrl *Controller) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	p, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.ErrNotFound
		}

		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, p)
}

func (ctrl *Controller) List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	plans, err := ctrl.svc.List(c.Request().Context(), req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, plans)
}

func (ctrl *Controller) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	if err := ctrl.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (ctrl *Controller) Run(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	log.Info("triggering test plan", "plan_id", id)

	if err := ctrl.svc.Run(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return echo.ErrNotFound
		case errors.Is(err, plansvc.ErrRunBusy):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.ErrInternalServerError.SetInternal(err)
		}
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (ctrl *Controller) Pause(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	if err := ctrl.svc.Pause(c.Request().Context(), id); err != nil {
		if errors.Is(err, planstate.ErrPlanConflict) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}

		return echo.ErrInternalServerError.SetInternal(err)
	}

	p, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, p)
}

// Resume re-dispatches a paused plan; like Run, the response only
// acknowledges acceptance.
func (ctrl *Controller) Resume(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	log.Info("resuming test plan", "plan_id", id)

	if err := ctrl.svc.Resume(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return echo.ErrNotFound
		case errors.Is(err, planstate.ErrPlanConflict), errors.Is(err, plansvc.ErrRunBusy):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.ErrInternalServerError.SetInternal(err)
		}
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

func parseListRequest(c echo.Context) (req *plansvc.ListRequest, err error) {
	req = &plansvc.ListRequest{
		Status:   c.QueryParam("status"),
		PlanType: c.QueryParam("plan_type"),
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
