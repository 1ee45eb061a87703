package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"sessionrotor/internal/config"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/output"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/workflow"
)

// MockWorkflowRunner records the workflows it is asked to run.
type MockWorkflowRunner struct {
	// ExecutedWorkflows records every requested workflow in order.
	ExecutedWorkflows []string
	// Report is returned for every run.
	Report workflow.Report
	// Err, when set, is returned instead of Report.
	Err error
	// Definitions backs Catalog.
	Definitions *workflow.Catalog
}

func (m *MockWorkflowRunner) Run(ctx context.Context, name string) (workflow.Report, error) {
	m.ExecutedWorkflows = append(m.ExecutedWorkflows, name)
	if m.Err != nil {
		return workflow.Report{}, m.Err
	}
	r := m.Report
	r.Workflow = name
	return r, nil
}

func (m *MockWorkflowRunner) Catalog() *workflow.Catalog {
	return m.Definitions
}

// MockDetector returns fixed addresses and records the log path it was given.
type MockDetector struct {
	Addresses ipdetect.Addresses
	LogPath   string
}

func (m *MockDetector) Detect(ctx context.Context, logPath string) ipdetect.Addresses {
	m.LogPath = logPath
	return m.Addresses
}

// MockServer is an HTTPServer whose Start blocks until Shutdown, or returns
// StartErr immediately when set.
type MockServer struct {
	StartErr error

	mu       sync.Mutex
	Addr     string
	Stopped  bool
	done     chan struct{}
	stopOnce sync.Once
}

func NewMockServer() *MockServer {
	return &MockServer{done: make(chan struct{})}
}

func (m *MockServer) Start(addr string) error {
	m.mu.Lock()
	m.Addr = addr
	m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	<-m.done
	return nil
}

func (m *MockServer) Shutdown(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	m.Stopped = true
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// MockScheduler records Apply and Close calls.
type MockScheduler struct {
	Applied []settings.Snapshot
	Closed  bool
}

func (m *MockScheduler) Apply(snap settings.Snapshot) error {
	m.Applied = append(m.Applied, snap)
	return nil
}

func (m *MockScheduler) Close() { m.Closed = true }

// newTestApp builds an App around mocks, returning it with the printer buffer.
func newTestApp(t *testing.T, values map[string]any) (*App, *bytes.Buffer) {
	t.Helper()
	log, _ := test.NewNullLogger()
	buf := &bytes.Buffer{}
	return &App{
		Config:   config.DefaultConfig(),
		Log:      log,
		Printer:  output.NewPrinterWithWriter(buf),
		Settings: settings.NewMemory(values),
		Runner:   &MockWorkflowRunner{},
		Detector: &MockDetector{},
	}, buf
}

// execute runs the root command with args and returns the command output.
func execute(t *testing.T, app *App, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCommand(app)
	outBuf := &bytes.Buffer{}
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(outBuf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return outBuf.String(), err
}
