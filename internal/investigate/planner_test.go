package investigate

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/kubesentry/internal/knowledge"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []StepID
		wantErr bool
	}{
		{name: "finalize appended", in: []string{"pods", "events"}, want: []StepID{StepPods, StepEvents, StepFinalize}},
		{name: "finalize moved last", in: []string{"finalize", "nodes"}, want: []StepID{StepNodes, StepFinalize}},
		{name: "whitespace tolerated", in: []string{" issue_scan "}, want: []StepID{StepIssueScan, StepFinalize}},
		{name: "unknown step", in: []string{"pods", "drain_nodes"}, wantErr: true},
		{name: "duplicate step", in: []string{"pods", "pods"}, wantErr: true},
		{name: "empty", in: nil, wantErr: true},
		{name: "only finalize", in: []string{"finalize"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePlan(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlan(t *testing.T) {
	names, err := ParsePlan("```json\n[\"overview\", \"finalize\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"overview", "finalize"}, names)

	_, err = ParsePlan("run everything please")
	assert.Error(t, err)
}

func TestModelPlanner_WrapsGeneratorError(t *testing.T) {
	p := NewModelPlanner(&scriptedModel{err: errors.New("503")})
	_, err := p.Plan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrReasoningUnavailable)
}

func TestParseStepID(t *testing.T) {
	for _, id := range DeterministicOrder {
		got, ok := ParseStepID(string(id))
		assert.True(t, ok)
		assert.Equal(t, id, got)
	}
	_, ok := ParseStepID("kubectl_delete")
	assert.False(t, ok)
}

func TestParseNumbered(t *testing.T) {
	in := "Steps:\n1. Check logs\n2) Restart pod\n- Scale up\n\n* Open ticket\nnot a step"
	assert.Equal(t, []string{"Check logs", "Restart pod", "Scale up", "Open ticket"}, parseNumbered(in))
}

func TestRuleClassify(t *testing.T) {
	tests := []struct {
		issue    models.Issue
		typ      string
		category string
	}{
		{models.Issue{Kind: models.KindPodWaiting, Reason: "ImagePullBackOff", Severity: models.SeverityMedium}, "ImagePullError", "image"},
		{models.Issue{Kind: models.KindPodWaiting, Reason: "ErrImagePull", Severity: models.SeverityMedium}, "ImagePullError", "image"},
		{models.Issue{Kind: models.KindPodWaiting, Reason: "CrashLoopBackOff", Severity: models.SeverityHigh}, "CrashLoopBackOff", "resource"},
		{models.Issue{Kind: models.KindPodStuckPending, Reason: "Pending", Severity: models.SeverityMedium}, "PodPending", "resource"},
		{models.Issue{Kind: models.KindNodeNotReady, Reason: "NodeNotReady", Severity: models.SeverityCritical}, "NodeNotReady", "resource"},
		{models.Issue{Kind: models.KindWarningEvent, Reason: "FailedMount", Severity: models.SeverityMedium}, "ConfigurationError", "config"},
		{models.Issue{Kind: models.KindWarningEvent, Reason: "Weird", Severity: models.SeverityMedium}, "UnknownIssue", "config"},
	}
	for _, tt := range tests {
		t.Run(tt.issue.Reason, func(t *testing.T) {
			cls := RuleClassify(tt.issue)
			assert.Equal(t, tt.typ, cls.Type)
			assert.Equal(t, tt.category, cls.RootCauseCategory)
			assert.Equal(t, string(tt.issue.Severity), cls.Severity)
			assert.NotEmpty(t, RuleSolutions(tt.issue, cls))
		})
	}
}

type recordingKnowledge struct{ queries []knowledge.Query }

func (k *recordingKnowledge) Lookup(q knowledge.Query) string {
	k.queries = append(k.queries, q)
	return "## Image pull failures\nCheck the registry."
}

func TestAnalyzer_ModelPathUsesKnowledge(t *testing.T) {
	kb := &recordingKnowledge{}
	model := &scriptedModel{
		classify: `noise {"type":"ImagePullError","severity":"bogus","components":["web"],"root_cause_category":"image"} trailing`,
		solve:    "1. Fix the tag",
	}
	a := NewAnalyzer(model, kb, nil)

	issue := models.Issue{Kind: models.KindPodWaiting, Reason: "ErrImagePull", Resource: "default/web", Severity: models.SeverityMedium}
	out, err := a.Analyze(context.Background(), issue, true)
	require.NoError(t, err)

	assert.True(t, out.ByModel)
	assert.True(t, out.Knowledge)
	assert.Equal(t, "medium", out.Classification.Severity)
	assert.Equal(t, []string{"Fix the tag"}, out.Solutions)
	require.Len(t, kb.queries, 1)
	assert.Equal(t, "image", kb.queries[0].Category)
	assert.Contains(t, kb.queries[0].Components, "ErrImagePull")
}

func TestAnalyzer_FallbackOnBadJSON(t *testing.T) {
	a := NewAnalyzer(&scriptedModel{classify: "I think it is broken"}, nil, nil)
	issue := models.Issue{Kind: models.KindPodWaiting, Reason: "CrashLoopBackOff", Resource: "default/web", Severity: models.SeverityHigh}

	out, err := a.Analyze(context.Background(), issue, true)
	assert.ErrorIs(t, err, ErrReasoningUnavailable)
	assert.False(t, out.ByModel)
	assert.Equal(t, "CrashLoopBackOff", out.Classification.Type)
	assert.NotEmpty(t, out.Solutions)
}
