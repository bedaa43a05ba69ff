package investigate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/report"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
)

// StepID names one member of the closed set of investigation steps.
type StepID string

const (
	StepOverview  StepID = "overview"
	StepNodes     StepID = "nodes"
	StepPods      StepID = "pods"
	StepResources StepID = "resources"
	StepEvents    StepID = "events"
	StepIssueScan StepID = "issue_scan"
	StepWorkloads StepID = "workloads"
	StepNetwork   StepID = "network"
	StepFinalize  StepID = "finalize"
)

// DeterministicOrder is the fixed nine-step sequence.
var DeterministicOrder = []StepID{
	StepOverview,
	StepNodes,
	StepPods,
	StepResources,
	StepEvents,
	StepIssueScan,
	StepWorkloads,
	StepNetwork,
	StepFinalize,
}

// ParseStepID accepts only members of the closed set.
func ParseStepID(s string) (StepID, bool) {
	for _, id := range DeterministicOrder {
		if string(id) == s {
			return id, true
		}
	}
	return "", false
}

// Tool names recorded on steps and findings.
const (
	ToolKube    = "kube-api"
	ToolMetrics = "metrics-server"
	ToolRules   = "rules"
	ToolAI      = report.ToolAI
	ToolReport  = "report"
)

var (
	// ErrSkipped marks a step that decided not to run. Wrap it with Skip.
	ErrSkipped = errors.New("step skipped")

	// ErrReasoningUnavailable wraps text-generation failures that triggered
	// the rule-based fallback.
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
)

// Skip returns an ErrSkipped carrying the reason shown in the report.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Step is one stage of the pipeline. Run returns a one-line summary.
type Step interface {
	ID() StepID
	Tool() string
	Run(ctx context.Context, run *Run) (string, error)
}

// Run is the state shared by the steps of one investigation. Steps execute
// sequentially so no locking is needed.
type Run struct {
	ID        string
	Namespace string
	Collector cluster.Collector
	Report    *report.Builder
	Logger    *zap.Logger
	Now       func() time.Time

	// TriggerIssues are the issues that caused the run (may be empty for
	// manual investigations).
	TriggerIssues []models.Issue

	// Gathered while running; nil means not fetched yet.
	Version      string
	Namespaces   int
	Nodes        []corev1.Node
	Pods         []corev1.Pod
	Events       []corev1.Event
	Deployments  int
	Services     int
	ResourceNote string

	nodesFetched  bool
	podsFetched   bool
	eventsFetched bool
}

// EnsureNodes fetches nodes once per run.
func (r *Run) EnsureNodes(ctx context.Context) ([]corev1.Node, error) {
	if r.nodesFetched {
		return r.Nodes, nil
	}
	nodes, err := r.Collector.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	r.Nodes, r.nodesFetched = nodes, true
	return nodes, nil
}

// EnsurePods fetches pods once per run.
func (r *Run) EnsurePods(ctx context.Context) ([]corev1.Pod, error) {
	if r.podsFetched {
		return r.Pods, nil
	}
	pods, err := r.Collector.Pods(ctx, r.Namespace)
	if err != nil {
		return nil, err
	}
	r.Pods, r.podsFetched = pods, true
	return pods, nil
}

// EnsureEvents fetches events once per run.
func (r *Run) EnsureEvents(ctx context.Context) ([]corev1.Event, error) {
	if r.eventsFetched {
		return r.Events, nil
	}
	events, err := r.Collector.Events(ctx, r.Namespace)
	if err != nil {
		return nil, err
	}
	r.Events, r.eventsFetched = events, true
	return events, nil
}
