package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(runID string, ts time.Time, sev models.Severity) *Report {
	b := NewBuilder(runID, "deterministic", fakeClock(ts))
	b.AddFinding(CategoryPodFailures, sev, "Container crash loop", "web is restarting", []string{"default/web"}, []string{"Check container logs"}, []string{"restarts: 7"}, "kubectl")
	b.AddStep(InvestigationStep{StepNumber: 1, Action: "overview", ToolUsed: "kubectl", Status: StepCompleted, DurationSeconds: 0.12, OutputSummary: "v1.30.0"})
	b.AddStep(InvestigationStep{StepNumber: 2, Action: "resources", ToolUsed: "metrics-server", Status: StepFailed, ErrorMessage: "boom"})
	b.SetSummary(ClusterSummary{TotalNodes: 3, ReadyNodes: 3, TotalPods: 2, RunningPods: 2})
	b.SetMetadata(Metadata{
		Initiator: &cluster.Identity{OSUser: "ops", Machine: "box", Source: "os"},
		TriggerIssues: []models.Issue{
			{Severity: models.SeverityHigh, Reason: "CrashLoopBackOff", Resource: "default/web", Message: "back-off 5m"},
		},
	})
	return b.GenerateReport()
}

func TestFileBase(t *testing.T) {
	r := &Report{RunID: "3f2a9c1e-aaaa-4000-8000-000000000001", Timestamp: time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)}
	assert.Equal(t, "report_20250615T143000Z_3f2a9c1e", FileBase(r))
}

func TestRenderText_Sections(t *testing.T) {
	text := Text(sampleReport("abc", start, models.SeverityHigh))

	assert.Contains(t, text, "TRIGGER ISSUES DETECTED:")
	assert.Contains(t, text, "🟠 HIGH: CrashLoopBackOff")
	assert.Contains(t, text, "   Resource: default/web")
	assert.Contains(t, text, "   Details: back-off 5m")
	assert.Contains(t, text, "EXECUTIVE SUMMARY:")
	assert.Contains(t, text, StatusHigh)
	assert.Contains(t, text, "INVESTIGATION FINDINGS:")
	assert.Contains(t, text, "• [HIGH] Container crash loop")
	assert.Contains(t, text, "RECOMMENDATIONS:")
	assert.Contains(t, text, "1. Check container logs")
	assert.Contains(t, text, "overview")
	assert.Contains(t, text, "boom")
	assert.Contains(t, text, "Initiated by: ops@box (os)")
	assert.True(t, strings.HasSuffix(text, "End of Report\n"))
}

func TestStore_SaveListLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "reports"))

	first := sampleReport("11111111-0000-4000-8000-000000000000", start, models.SeverityHigh)
	saved, err := store.Save(first)
	require.NoError(t, err)
	assert.FileExists(t, saved.TextPath)
	assert.FileExists(t, saved.JSONPath)
	assert.FileExists(t, saved.YAMLPath)
	assert.Empty(t, saved.DiffPath)

	second := sampleReport("22222222-0000-4000-8000-000000000000", start.Add(time.Minute), models.SeverityCritical)
	saved2, err := store.Save(second)
	require.NoError(t, err)
	require.NotEmpty(t, saved2.DiffPath)

	diff, err := os.ReadFile(saved2.DiffPath)
	require.NoError(t, err)
	assert.Contains(t, string(diff), "--- "+FileBase(first)+".txt")
	assert.Contains(t, string(diff), "+"+StatusCritical)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.RunID, entries[0].RunID)
	assert.Equal(t, StatusCritical, entries[1].Status)
	assert.Equal(t, 1, entries[1].Findings)

	latest, err := store.Load("latest")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)

	byPrefix, err := store.Load("1111")
	require.NoError(t, err)
	assert.Equal(t, first.RunID, byPrefix.RunID)
	assert.Equal(t, 1, byPrefix.SeverityCounts[models.SeverityHigh])

	byBase, err := store.Load(FileBase(second))
	require.NoError(t, err)
	assert.Equal(t, second.RunID, byBase.RunID)

	_, err = store.Load("nope")
	assert.Error(t, err)
}

func TestStore_SameSecondRunsDoNotCollide(t *testing.T) {
	store := NewStore(t.TempDir())
	a := sampleReport("aaaaaaaa-0000-4000-8000-000000000000", start, models.SeverityHigh)
	b := sampleReport("bbbbbbbb-0000-4000-8000-000000000000", start, models.SeverityHigh)

	_, err := store.Save(a)
	require.NoError(t, err)
	_, err = store.Save(b)
	require.NoError(t, err)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_LoadEmpty(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load("latest")
	assert.Error(t, err)
}
