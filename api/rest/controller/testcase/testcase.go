// Package testcase binds the case inventory and manual-verification
// endpoints.
package testcase

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	casesvc "github.com/gantry-io/gantry/api/rest/service/testcase"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type Controller struct {
	svc *casesvc.Service
}

func NewController(svc *casesvc.Service) *Controller {
	return &Controller{svc: svc}
}

func (ctrl *Controller) List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	cases, err := ctrl.svc.List(c.Request().Context(), req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, cases)
}

func (ctrl *Controller) Get(c echo.Context) error {
	tc, err := ctrl.svc.Get(c.Request().Context(), c.Param("hash"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.ErrNotFound
		}

		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, tc)
}

func (ctrl *Controller) Stats(c echo.Context) error {
	stats, err := ctrl.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, stats)
}

// Put applies a manual verification to one case.
func (ctrl *Controller) Put(c echo.Context) error {
	req := &casesvc.UpdateRequest{}

	if err := c.Bind(req); err != nil {
		return err
	}

	hash := c.Param("hash")
	log.Info("manual case update", "case_hash", hash, "user", req.User)

	tc, err := ctrl.svc.Update(c.Request().Context(), hash, req)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return echo.ErrNotFound
		case errors.Is(err, casesvc.ErrUnknownStatus):
			return echo.ErrBadRequest.SetInternal(err)
		default:
			return echo.ErrInternalServerError.SetInternal(err)
		}
	}

	return c.JSON(http.StatusOK, tc)
}

func parseListRequest(c echo.Context) (req *casesvc.ListRequest, err error) {
	req = &casesvc.ListRequest{
		Status: c.QueryParam("status"),
		Path:   c.QueryParam("path"),
		Search: c.QueryParam("search"),
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
