//
//  Copyright © Manetu Inc. All rights reserved.
//

package generic

import (
	"context"
	"embed"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/decisionpoint"
	"github.com/manetu/authzengine/pkg/decisionpoint/generic/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = logging.GetLogger("authz.decisionpoint")

const agent = "generic"

//go:embed openapi.yaml
var schema embed.FS

// Server represents a generic decision point server that serves the REST API.
type Server struct {
	echo *echo.Echo
}

type serverOptions struct {
	gatherer prometheus.Gatherer
}

// Option customizes the server.
type Option func(*serverOptions)

// WithGatherer selects the registry served on /metrics.  The default is the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) {
		o.gatherer = g
	}
}

// NewHandler builds the echo instance serving the API, the OpenAPI schema
// and /metrics for m, without starting it.
func NewHandler(m core.AuthorizationManager, opts ...Option) *echo.Echo {
	o := &serverOptions{gatherer: prometheus.DefaultGatherer}
	for _, fn := range opts {
		fn(o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debugf(agent, "request", "%s %s -> %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))

	api.NewServer(m).Register(e)

	e.GET("/openapi.yaml", echo.WrapHandler(http.FileServer(http.FS(schema))))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	return e
}

// CreateServer creates and starts a new generic decision point server on port.
func CreateServer(m core.AuthorizationManager, port int, opts ...Option) (decisionpoint.Server, error) {
	e := NewHandler(m, opts...)

	// Start server in goroutine since e.Start() blocks
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			logger.Errorf(agent, "start", "decision point stopped: %+v", err)
		}
	}()

	logger.Infof(agent, "start", "decision point listening on :%d", port)
	return &Server{
		echo: e,
	}, nil
}

// Stop gracefully stops the Server by shutting down the Echo HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
