package monitor

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/report"
)

var (
	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")) // Bright green

	criticalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Bright red
			Bold(true)

	highStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")) // Orange

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")) // Yellow

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // Dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Blue
)

// Console prints the human-facing monitor output. The loop and the
// investigation worker share it, so writes are serialized.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a console writing to out. A nil out discards output.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// Status prints a tick's status line colored by health.
func (c *Console) Status(h detector.Health, line string) {
	style := warningStyle
	switch {
	case h.Healthy:
		style = healthyStyle
	case h.CriticalIssues > 0:
		style = criticalStyle
	case h.HighIssues > 0:
		style = highStyle
	}
	c.println(style.Render(line))
}

// Failure prints a failed tick.
func (c *Console) Failure(line string) {
	c.println(criticalStyle.Render(line))
}

// Issues prints the trigger banner and the top issues.
func (c *Console) Issues(issues []models.Issue, triggering bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if triggering {
		fmt.Fprintln(c.out, headerStyle.Render("\n🚨 ISSUES DETECTED! Triggering autonomous investigation..."))
	} else {
		fmt.Fprintln(c.out, headerStyle.Render("\n🚨 ISSUES DETECTED!"))
	}
	fmt.Fprintf(c.out, "   📊 %d total issues found:\n", len(issues))
	for _, line := range IssueLines(issues) {
		fmt.Fprintf(c.out, "   %s\n", line)
	}
}

// Info prints a dim informational line.
func (c *Console) Info(line string) {
	c.println(dimStyle.Render(line))
}

// InvestigationDone prints the outcome of a run.
func (c *Console) InvestigationDone(r *report.Report, reportFile string, runErr error) {
	if r == nil || runErr != nil {
		msg := "❌ Investigation failed or incomplete"
		if runErr != nil {
			msg += ": " + runErr.Error()
		}
		c.println(criticalStyle.Render(msg))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, healthyStyle.Render(fmt.Sprintf("✅ Investigation complete! %d findings identified", len(r.Findings))))
	fmt.Fprintf(c.out, "   Status: %s\n", r.Status)
	if reportFile != "" {
		fmt.Fprintf(c.out, "   📄 Report saved: %s\n", reportFile)
	}
}
