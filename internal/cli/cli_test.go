package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/investigate"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/report"
	"github.com/ppiankov/kubesentry/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func savedReport(t *testing.T, store *report.Store, runID string, at time.Time) *report.Report {
	t.Helper()
	b := report.NewBuilder(runID, investigate.TypeDeterministic, func() time.Time { return at })
	b.AddFinding("pod_failures", models.SeverityHigh, "Pod default/web failing", "CrashLoopBackOff",
		[]string{"default/web"}, []string{"Check pod logs"}, nil, "kube-api")
	r := b.GenerateReport()
	_, err := store.Save(r)
	require.NoError(t, err)
	return r
}

func TestListReports_Empty(t *testing.T) {
	var out bytes.Buffer
	store := report.NewStore(t.TempDir())
	require.NoError(t, listReports(&out, store))
	assert.Contains(t, out.String(), "No reports in")
}

func TestListAndShowReports(t *testing.T) {
	store := report.NewStore(t.TempDir())
	first := savedReport(t, store, "11111111-aaaa-4aaa-8aaa-aaaaaaaaaaaa", time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC))
	second := savedReport(t, store, "22222222-bbbb-4bbb-8bbb-bbbbbbbbbbbb", time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC))

	var out bytes.Buffer
	require.NoError(t, listReports(&out, store))
	assert.Contains(t, out.String(), "11111111")
	assert.Contains(t, out.String(), "22222222")
	assert.Contains(t, out.String(), report.StatusHigh)

	out.Reset()
	require.NoError(t, showReport(&out, store, "latest", "json"))
	var got report.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, second.RunID, got.RunID)

	out.Reset()
	require.NoError(t, showReport(&out, store, "1111", "text"))
	assert.Contains(t, out.String(), first.RunID)

	out.Reset()
	require.NoError(t, showReport(&out, store, "1111", "yaml"))
	assert.Contains(t, out.String(), "run_id: "+first.RunID)

	assert.ErrorIs(t, showReport(&out, store, "latest", "xml"), util.ErrInvalidInput)
	assert.Error(t, showReport(&out, store, "9999", "text"))
}

func TestSelectInvestigator(t *testing.T) {
	cfg := investigate.Config{Collector: &cluster.Static{}, Generator: stubGenerator{}}

	assert.Equal(t, investigate.TypeDeterministic, selectInvestigator(true, cfg).Type())
	assert.Equal(t, investigate.TypeAdaptive, selectInvestigator(false, cfg).Type())

	cfg.Generator = nil
	assert.Equal(t, investigate.TypeDeterministic, selectInvestigator(false, cfg).Type())
}

func TestHasUrgentFindings(t *testing.T) {
	assert.True(t, hasUrgentFindings(&report.Report{Status: report.StatusCritical}))
	assert.True(t, hasUrgentFindings(&report.Report{Status: report.StatusHigh}))
	assert.False(t, hasUrgentFindings(&report.Report{Status: report.StatusMinor}))
	assert.False(t, hasUrgentFindings(&report.Report{Status: report.StatusHealthy}))
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["monitor"])
	assert.True(t, names["investigate"])
	assert.True(t, names["reports"])

	for _, flag := range []string{"kubeconfig", "namespace", "safe-mode", "llm-endpoint", "reports-dir", "prometheus-service"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
	for _, flag := range []string{"check-interval", "auto-investigate", "backend-url", "agent-id", "metrics-addr"} {
		assert.NotNil(t, monitorCmd.Flags().Lookup(flag), flag)
	}
}
