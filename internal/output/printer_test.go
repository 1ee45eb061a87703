package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionrotor/internal/history"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/step"
	"sessionrotor/internal/workflow"
)

func TestPrinter_Report(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.Report(workflow.Report{
		Workflow: "rotate-all",
		Steps: []step.Result{
			{Name: "clear-credential/tracker", Status: step.StatusSuccess, Message: "credential invalidated", Duration: 3 * time.Millisecond},
			{Name: "restart-container", Status: step.StatusError, Message: "daemon unreachable"},
		},
		Overall: history.StatusFailed,
		Halted:  true,
		Total:   5,
	})

	out := buf.String()
	assert.Contains(t, out, "Workflow rotate-all")
	assert.Contains(t, out, "Success")
	assert.Contains(t, out, "daemon unreachable")
	assert.Contains(t, out, "3 step(s) skipped after critical failure")
	assert.Contains(t, out, "Failed 1/5 steps succeeded")
}

func TestPrinter_StepStart(t *testing.T) {
	buf := &bytes.Buffer{}

	NewPrinterWithWriter(buf).StepStart(2, 7, "restart-container")

	assert.Equal(t, "[2/7] restart-container\n", buf.String())
}

func TestPrinter_Workflows(t *testing.T) {
	noop := step.ActionFunc(nil)
	def, err := workflow.NewDefinition("rotate-indexer",
		step.Step{Name: "clear-credential/indexer", Action: noop},
		step.Step{Name: "acquire-session/indexer", Critical: true, Action: noop},
	)
	require.NoError(t, err)
	c, err := workflow.NewCatalog(def)
	require.NoError(t, err)
	buf := &bytes.Buffer{}

	NewPrinterWithWriter(buf).Workflows(c)

	assert.Contains(t, buf.String(), "rotate-indexer")
	assert.Contains(t, buf.String(), "1. clear-credential/indexer\n")
	assert.Contains(t, buf.String(), "2. acquire-session/indexer (critical)")
}

func TestPrinter_Addresses(t *testing.T) {
	buf := &bytes.Buffer{}

	NewPrinterWithWriter(buf).Addresses(ipdetect.Addresses{External: "203.0.113.7", VPN: "203.0.113.7"})

	assert.Contains(t, buf.String(), "External IP: 203.0.113.7")
	assert.Contains(t, buf.String(), "VPN IP:      203.0.113.7")
	assert.Contains(t, buf.String(), "Warning")
}
