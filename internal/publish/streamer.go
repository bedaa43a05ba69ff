package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/report"
)

// Log sources shown by the dashboard.
const (
	SourceMonitor      = "autonomous_monitor"
	SourceInvestigator = "investigator"
)

// Streamer turns monitor events into log entries and status updates.
type Streamer struct {
	pub     Publisher
	agentID string
	now     func() time.Time
}

// NewStreamer returns a streamer publishing as agentID (DefaultAgentID when
// empty).
func NewStreamer(pub Publisher, agentID string, now func() time.Time) *Streamer {
	if pub == nil {
		pub = Nop{}
	}
	if agentID == "" {
		agentID = DefaultAgentID
	}
	if now == nil {
		now = time.Now
	}
	return &Streamer{pub: pub, agentID: agentID, now: now}
}

func (s *Streamer) log(ctx context.Context, level, source, message string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return s.pub.PublishLog(ctx, LogEntry{
		Timestamp: s.now().UTC(),
		AgentID:   s.agentID,
		Level:     level,
		Message:   message,
		Source:    source,
		Details:   details,
	})
}

// HealthStatus publishes the status snapshot and the console line for a tick.
func (s *Streamer) HealthStatus(ctx context.Context, h detector.Health, line string) error {
	statusErr := s.pub.PublishStatus(ctx, StatusUpdate{
		AgentID:     s.agentID,
		Status:      h.Status(),
		IssuesCount: h.IssueCount,
		NodesReady:  h.ReadyNodes,
		NodesTotal:  h.TotalNodes,
		PodsRunning: h.RunningPods,
		PodsTotal:   h.TotalPods,
		LastUpdate:  s.now().UTC(),
	})

	level := LevelInfo
	switch {
	case h.CriticalIssues > 0:
		level = LevelError
	case h.HighIssues > 0:
		level = LevelWarn
	}
	logErr := s.log(ctx, level, SourceMonitor, line, map[string]any{
		"nodes_ready":     h.ReadyNodes,
		"nodes_total":     h.TotalNodes,
		"pods_running":    h.RunningPods,
		"pods_total":      h.TotalPods,
		"total_issues":    h.IssueCount,
		"critical_issues": h.CriticalIssues,
		"high_issues":     h.HighIssues,
	})

	if statusErr != nil {
		return statusErr
	}
	return logErr
}

// HealthCheckFailed publishes a zeroed status after a failed tick.
func (s *Streamer) HealthCheckFailed(ctx context.Context, line string, err error) error {
	_ = s.pub.PublishStatus(ctx, StatusUpdate{
		AgentID:    s.agentID,
		Status:     "error",
		LastUpdate: s.now().UTC(),
	})
	return s.log(ctx, LevelError, SourceMonitor, line, map[string]any{"error": err.Error()})
}

// IssuesDetected announces that an investigation is being triggered.
func (s *Streamer) IssuesDetected(ctx context.Context, issues []models.Issue) error {
	top := models.TopIssues(issues, 3)
	summary := make([]string, len(top))
	for i, is := range top {
		summary[i] = is.String()
	}
	return s.log(ctx, LevelWarn, SourceMonitor,
		fmt.Sprintf("🚨 ISSUES DETECTED! Triggering autonomous investigation... %d total issues found", len(issues)),
		map[string]any{"issues_count": len(issues), "issues_summary": summary})
}

// InvestigationStarted announces a run.
func (s *Streamer) InvestigationStarted(ctx context.Context, mode string) error {
	return s.log(ctx, LevelInfo, SourceInvestigator,
		fmt.Sprintf("🤖 Starting %s investigation...", mode),
		map[string]any{"mode": mode})
}

// StepRecorded publishes one pipeline step record.
func (s *Streamer) StepRecorded(ctx context.Context, step report.InvestigationStep) error {
	level := LevelInfo
	msg := fmt.Sprintf("%s Step %d: %s", step.Status.Icon(), step.StepNumber, step.Action)
	if step.OutputSummary != "" {
		msg += " - " + step.OutputSummary
	}
	if step.Status == report.StepFailed {
		level = LevelWarn
		msg += " - " + step.ErrorMessage
	}
	return s.log(ctx, level, SourceInvestigator, msg, map[string]any{
		"step":     step.StepNumber,
		"action":   step.Action,
		"tool":     step.ToolUsed,
		"status":   string(step.Status),
		"duration": step.DurationSeconds,
	})
}

// InvestigationComplete reports the outcome. r may be nil when the run
// failed outright.
func (s *Streamer) InvestigationComplete(ctx context.Context, r *report.Report, reportFile string, runErr error) error {
	if r == nil || runErr != nil {
		msg := "❌ Investigation failed or incomplete"
		if runErr != nil {
			msg += ": " + runErr.Error()
		}
		return s.log(ctx, LevelError, SourceInvestigator, msg, map[string]any{"findings_count": 0})
	}
	return s.log(ctx, LevelInfo, SourceInvestigator,
		fmt.Sprintf("✅ Investigation complete! %d findings identified (%s)", len(r.Findings), strings.ToLower(r.Status)),
		map[string]any{
			"findings_count": len(r.Findings),
			"run_id":         r.RunID,
			"status":         r.Status,
			"report_file":    reportFile,
		})
}
