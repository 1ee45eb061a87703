package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sessionrotor/internal/scheduler"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/workflow"
)

// scheduleRequest is the body of POST /api/schedule. Absent fields fall back
// to the stored settings, then to the defaults.
type scheduleRequest struct {
	Enabled       bool    `json:"enabled"`
	Time          *string `json:"time"`
	JitterMinutes *int    `json:"jitter_minutes"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.Status())
}

func (s *Server) handleSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if !req.Enabled {
		s.sched.Deactivate()
		if err := s.settings.Update(map[string]any{settings.KeyScheduleEnabled: false}); err != nil {
			s.log.WithError(err).Error("Failed to persist schedule")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
		}
		return c.JSON(http.StatusOK, s.sched.Status())
	}

	snap := s.settings.Snapshot()
	timeOfDay := snap.String(settings.KeyScheduledRunTime, settings.DefaultScheduledRunTime)
	if req.Time != nil {
		timeOfDay = *req.Time
	}
	jitter := snap.Int(settings.KeyJitterMinutes, settings.DefaultJitterMinutes)
	if req.JitterMinutes != nil {
		jitter = *req.JitterMinutes
	}

	if err := s.sched.Activate(timeOfDay, jitter); err != nil {
		if errors.Is(err, scheduler.ErrInvalidTimeOfDay) || errors.Is(err, scheduler.ErrInvalidJitter) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := s.settings.Update(map[string]any{
		settings.KeyScheduleEnabled:  true,
		settings.KeyScheduledRunTime: timeOfDay,
		settings.KeyJitterMinutes:    jitter,
	}); err != nil {
		s.log.WithError(err).Error("Failed to persist schedule")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}
	return c.JSON(http.StatusOK, s.sched.Status())
}

func (s *Server) handleRun(c echo.Context) error {
	name := c.Param("workflow")

	// A started run proceeds to completion even if the client disconnects.
	ctx := context.WithoutCancel(c.Request().Context())
	report, err := s.runner.Run(ctx, name)
	switch {
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrRunInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.settings.Snapshot().Map())
}

func (s *Server) handleSaveSettings(c echo.Context) error {
	doc := map[string]any{}
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "settings must be a JSON object")
	}
	if err := s.settings.Replace(doc); err != nil {
		s.log.WithError(err).Error("Failed to save settings")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}

	// The schedule keys may have changed with the document.
	if err := s.sched.Apply(s.settings.Snapshot()); err != nil {
		s.log.WithError(err).Warn("Saved settings contain an invalid schedule")
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIPs(c echo.Context) error {
	logPath := s.settings.Snapshot().String(settings.KeyVPNLogPath, settings.DefaultVPNLogPath)
	return c.JSON(http.StatusOK, s.detector.Detect(c.Request().Context(), logPath))
}
