// Package output renders workflow progress and reports for the terminal.
//
// The [Printer] writes through a lipgloss renderer bound to its writer, so
// colors are emitted only when the writer is a terminal. Tests use
// [NewPrinterWithWriter] with a buffer and get plain text.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sessionrotor/internal/history"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/step"
	"sessionrotor/internal/workflow"
)

// Printer writes formatted output.
type Printer struct {
	out io.Writer

	header  lipgloss.Style
	success lipgloss.Style
	failed  lipgloss.Style
	errored lipgloss.Style
	muted   lipgloss.Style
}

// NewPrinter creates a printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a printer writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		out:     w,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		success: r.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		failed:  r.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
		errored: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#A0AEC0")),
	}
}

// StepStart announces a step. It matches [workflow.ProgressCallback].
func (p *Printer) StepStart(stepIndex, totalSteps int, name string) {
	fmt.Fprintf(p.out, "%s %s\n", p.muted.Render(fmt.Sprintf("[%d/%d]", stepIndex, totalSteps)), name)
}

// Report prints every step result followed by the overall outcome.
func (p *Printer) Report(r workflow.Report) {
	fmt.Fprintln(p.out, p.header.Render(fmt.Sprintf("Workflow %s", r.Workflow)))

	width := 0
	for _, res := range r.Steps {
		if len(res.Name) > width {
			width = len(res.Name)
		}
	}
	for _, res := range r.Steps {
		fmt.Fprintf(p.out, "  %s  %-*s  %s %s\n",
			p.stepStatus(res.Status),
			width, res.Name,
			res.Message,
			p.muted.Render("("+res.Duration.Round(time.Millisecond).String()+")"),
		)
	}
	if r.Halted && len(r.Steps) < r.Total {
		fmt.Fprintln(p.out, p.muted.Render(fmt.Sprintf("  %d step(s) skipped after critical failure", r.Total-len(r.Steps))))
	}

	fmt.Fprintf(p.out, "%s %s\n", p.overallStatus(r.Overall), r.Details())
}

// Workflows lists workflow names with their steps.
func (p *Printer) Workflows(c *workflow.Catalog) {
	for _, name := range c.Names() {
		def, _ := c.Get(name)
		fmt.Fprintln(p.out, p.header.Render(name))
		for i, s := range def.Steps {
			marker := ""
			if s.Critical {
				marker = " " + p.errored.Render("(critical)")
			}
			fmt.Fprintf(p.out, "  %d. %s%s\n", i+1, s.Name, marker)
		}
	}
}

// Addresses prints the detected external and VPN addresses.
func (p *Printer) Addresses(a ipdetect.Addresses) {
	fmt.Fprintf(p.out, "External IP: %s\n", p.address(a.External, ipdetect.ExternalUnavailable))
	fmt.Fprintf(p.out, "VPN IP:      %s\n", p.address(a.VPN, ipdetect.VPNNotFound))
	if a.VPN == a.External && a.VPN != ipdetect.VPNNotFound {
		fmt.Fprintln(p.out, p.failed.Render("Warning: VPN address equals external address"))
	}
}

// Error prints an error message.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.out, p.errored.Render("Error: "+strings.TrimSpace(msg)))
}

func (p *Printer) address(value, sentinel string) string {
	if value == sentinel {
		return p.errored.Render(value)
	}
	return p.success.Render(value)
}

func (p *Printer) stepStatus(s step.Status) string {
	label := fmt.Sprintf("%-7s", s)
	switch s {
	case step.StatusSuccess:
		return p.success.Render(label)
	case step.StatusFailed:
		return p.failed.Render(label)
	default:
		return p.errored.Render(label)
	}
}

func (p *Printer) overallStatus(s history.Status) string {
	switch s {
	case history.StatusSuccess:
		return p.success.Render(string(s))
	case history.StatusPartial:
		return p.failed.Render(string(s))
	default:
		return p.errored.Render(string(s))
	}
}
