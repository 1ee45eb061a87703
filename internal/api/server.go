// Package api exposes the HTTP control surface.
//
// Routes:
//   - GET  /api/status         scheduler state and run history
//   - POST /api/schedule       enable or disable the daily schedule
//   - POST /api/run/:workflow  run a workflow now
//   - GET  /api/settings       read the settings document
//   - POST /api/settings       replace the settings document
//   - GET  /api/ips            external and VPN addresses
//   - GET  /healthz            liveness
//   - GET  /metrics            Prometheus metrics
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/metrics"
	"sessionrotor/internal/scheduler"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/workflow"
)

// Scheduler is the scheduler control surface used by the handlers.
// [scheduler.Scheduler] implements this interface.
type Scheduler interface {
	Activate(timeOfDay string, jitterMinutes int) error
	Deactivate()
	Status() scheduler.Status
	Apply(snap settings.Snapshot) error
}

// Runner executes workflows by name. [workflow.Runner] implements this interface.
type Runner interface {
	Run(ctx context.Context, name string) (workflow.Report, error)
}

// Detector reports the external and VPN addresses. [ipdetect.Detector]
// implements this interface.
type Detector interface {
	Detect(ctx context.Context, logPath string) ipdetect.Addresses
}

// Deps are the collaborators served by the API.
type Deps struct {
	Scheduler Scheduler
	Runner    Runner
	Settings  *settings.Store
	Detector  Detector

	// Registry, when set, is served on /metrics and receives HTTP metrics.
	Registry *prometheus.Registry
}

// Server is the HTTP control surface.
type Server struct {
	echo     *echo.Echo
	sched    Scheduler
	runner   Runner
	settings *settings.Store
	detector Detector
	log      logrus.FieldLogger
}

// NewServer creates the server and registers its routes.
func NewServer(deps Deps, log logrus.FieldLogger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method": v.Method,
				"uri":    v.URI,
				"status": v.Status,
			}).Debug("HTTP request")
			return nil
		},
	}))

	if deps.Registry != nil {
		e.Use(metrics.NewHTTPMetrics(deps.Registry).Middleware())
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(deps.Registry)))
	}

	s := &Server{
		echo:     e,
		sched:    deps.Scheduler,
		runner:   deps.Runner,
		settings: deps.Settings,
		detector: deps.Detector,
		log:      log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/schedule", s.handleSchedule)
	api.POST("/run/:workflow", s.handleRun)
	api.GET("/settings", s.handleGetSettings)
	api.POST("/settings", s.handleSaveSettings)
	api.GET("/ips", s.handleIPs)
	// Path used by the original front end.
	api.GET("/get_ips", s.handleIPs)
}

// ServeHTTP lets the server be used as an http.Handler, mostly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until the server stops. It returns nil
// after a graceful [Server.Shutdown].
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("HTTP server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting up to timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
