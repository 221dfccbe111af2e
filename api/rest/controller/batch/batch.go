// Package batch binds batch-execution endpoints to the batch service.
package batch

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	batchsvc "github.com/gantry-io/gantry/api/rest/service/batch"
	"github.com/gantry-io/gantry/internal/batch"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type Controller struct {
	svc *batchsvc.Service
}

func NewController(svc *batchsvc.Service) *Controller {
	return &Controller{svc: svc}
}

func (ctrl *Controller) Post(c echo.Context) error {
	req := &batchsvc.SubmitRequest{}

	if err := c.Bind(req); err != nil {
		return err
	}

	log.Info("submitting batch",
		"name", req.Name, "plans", len(req.PlanIDs), "policy", req.Policy)

	bat, err := ctrl.svc.Submit(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, batch.ErrPlanAlreadyRunning) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}

		log.Error("failed to submit batch", "error", err)
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, bat)
}

func (ctrl *Controller) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	bat, err := ctrl.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.ErrNotFound
		}

		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, bat)
}

func (ctrl *Controller) List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	batches, err := ctrl.svc.List(c.Request().Context(), req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, batches)
}

func parseListRequest(c echo.Context) (req *batchsvc.ListRequest, err error) {
	req = &batchsvc.ListRequest{
		Status: c.QueryParam("status"),
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
