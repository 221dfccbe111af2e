package api

import (
	"context"
	"fmt"

	rest "github.com/gantry-io/gantry/api/rest/v1"
	"github.com/gantry-io/gantry/env"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the HTTP surface: health, metrics and the versioned
// REST API.
type Server struct {
	echo *echo.Echo
}

// New assembles the server around the supplied controllers.
func New(ctrl rest.Controllers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", Health)

	// metrics
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// REST
	rest.Bind(e.Group("/api"), ctrl)

	return &Server{echo: e}
}

// Start launches the API and blocks until it stops.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%v", env.Variables().Port))
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
