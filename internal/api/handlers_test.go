package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionrotor/internal/history"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/metrics"
	"sessionrotor/internal/scheduler"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/workflow"
)

type mockScheduler struct {
	active      bool
	timeOfDay   string
	jitter      int
	activateErr error
	applied     []settings.Snapshot
}

func (m *mockScheduler) Activate(timeOfDay string, jitter int) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.active, m.timeOfDay, m.jitter = true, timeOfDay, jitter
	return nil
}

func (m *mockScheduler) Deactivate() { m.active = false }

func (m *mockScheduler) Status() scheduler.Status {
	return scheduler.Status{Active: m.active, TimeOfDay: m.timeOfDay, JitterMinutes: m.jitter, History: []history.RunRecord{}}
}

func (m *mockScheduler) Apply(snap settings.Snapshot) error {
	m.applied = append(m.applied, snap)
	return nil
}

type mockRunner struct {
	report workflow.Report
	err    error
	names  []string
	ctxErr error
}

func (m *mockRunner) Run(ctx context.Context, name string) (workflow.Report, error) {
	m.names = append(m.names, name)
	m.ctxErr = ctx.Err()
	return m.report, m.err
}

type mockDetector struct {
	addrs   ipdetect.Addresses
	logPath string
}

func (m *mockDetector) Detect(_ context.Context, logPath string) ipdetect.Addresses {
	m.logPath = logPath
	return m.addrs
}

type fixture struct {
	server   *Server
	sched    *mockScheduler
	runner   *mockRunner
	detector *mockDetector
	store    *settings.Store
}

func newFixture(t *testing.T, initial map[string]any) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &fixture{
		sched:    &mockScheduler{},
		runner:   &mockRunner{},
		detector: &mockDetector{},
		store:    settings.NewMemory(initial),
	}
	f.server = NewServer(Deps{
		Scheduler: f.sched,
		Runner:    f.runner,
		Settings:  f.store,
		Detector:  f.detector,
		Registry:  metrics.NewRegistry(),
	}, log)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.sched.active = true
	f.sched.timeOfDay = "03:30"

	rec := f.do(t, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "03:30", body["time"])
}

func TestSchedule_EnablePersistsSettings(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/schedule", `{"enabled":true,"time":"04:15","jitter_minutes":5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sched.active)
	assert.Equal(t, "04:15", f.sched.timeOfDay)
	assert.Equal(t, 5, f.sched.jitter)

	snap := f.store.Snapshot()
	assert.True(t, snap.Bool(settings.KeyScheduleEnabled, false))
	assert.Equal(t, "04:15", snap.String(settings.KeyScheduledRunTime, ""))
	assert.Equal(t, 5, snap.Int(settings.KeyJitterMinutes, 0))
}

func TestSchedule_EnableFallsBackToStoredSettings(t *testing.T) {
	f := newFixture(t, map[string]any{settings.KeyScheduledRunTime: "05:00"})

	rec := f.do(t, http.MethodPost, "/api/schedule", `{"enabled":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "05:00", f.sched.timeOfDay)
	assert.Equal(t, settings.DefaultJitterMinutes, f.sched.jitter)
}

func TestSchedule_Disable(t *testing.T) {
	f := newFixture(t, map[string]any{settings.KeyScheduleEnabled: true})
	f.sched.active = true

	rec := f.do(t, http.MethodPost, "/api/schedule", `{"enabled":false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.sched.active)
	assert.False(t, f.store.Snapshot().Bool(settings.KeyScheduleEnabled, true))
}

func TestSchedule_InvalidInputIsBadRequest(t *testing.T) {
	f := newFixture(t, nil)
	f.sched.activateErr = scheduler.ErrInvalidTimeOfDay

	rec := f.do(t, http.MethodPost, "/api/schedule", `{"enabled":true,"time":"25:99"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, f.store.Snapshot().Bool(settings.KeyScheduleEnabled, false))
}

func TestSchedule_MalformedBody(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/schedule", `{"enabled":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRun(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.report = workflow.Report{ID: "run-1", Workflow: workflow.RotateAll, Overall: history.StatusSuccess}

	rec := f.do(t, http.MethodPost, "/api/run/rotate-all", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"rotate-all"}, f.runner.names)
	assert.NoError(t, f.runner.ctxErr)
	assert.Contains(t, rec.Body.String(), "run-1")
}

func TestRun_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown workflow", workflow.ErrUnknownWorkflow, http.StatusNotFound},
		{"run in progress", workflow.ErrRunInProgress, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.runner.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/run/whatever", "")

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSettings_GetAndReplace(t *testing.T) {
	f := newFixture(t, map[string]any{"old_key": "x"})

	rec := f.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x", decode(t, rec)["old_key"])

	rec = f.do(t, http.MethodPost, "/api/settings", `{"schedule_enabled":true,"tracker_username":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	snap := f.store.Snapshot()
	assert.Equal(t, "alice", snap.String("tracker_username", ""))
	assert.Equal(t, "", snap.String("old_key", ""))

	require.Len(t, f.sched.applied, 1)
	assert.True(t, f.sched.applied[0].Bool(settings.KeyScheduleEnabled, false))
}

func TestSettings_RejectsNonObject(t *testing.T) {
	f := newFixture(t, map[string]any{"keep": "me"})

	rec := f.do(t, http.MethodPost, "/api/settings", `[1,2,3]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "me", f.store.Snapshot().String("keep", ""))
}

func TestIPs(t *testing.T) {
	f := newFixture(t, map[string]any{settings.KeyVPNLogPath: "/logs/q.log"})
	f.detector.addrs = ipdetect.Addresses{External: "203.0.113.7", VPN: "10.2.2.2"}

	for _, path := range []string{"/api/ips", "/api/get_ips"} {
		rec := f.do(t, http.MethodGet, path, "")

		require.Equal(t, http.StatusOK, rec.Code, path)
		body := decode(t, rec)
		assert.Equal(t, "203.0.113.7", body["external_ip"])
		assert.Equal(t, "10.2.2.2", body["vpn_ip"])
	}
	assert.Equal(t, "/logs/q.log", f.detector.logPath)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/status", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessionrotor_http_requests_total")
}
