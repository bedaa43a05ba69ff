// Package investigate runs the multi-step cluster investigation and turns
// its observations into a report.
package investigate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/metrics"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/report"
	"go.uber.org/zap"
)

// Investigation types recorded on reports.
const (
	TypeDeterministic = "deterministic"
	TypeAdaptive      = "adaptive"
)

// Config wires an investigator. Only Collector is required.
type Config struct {
	Collector   cluster.Collector
	Generator   TextGenerator     // nil: rule-based analysis only
	Knowledge   KnowledgeSource   // nil: no runbook lookups
	Utilization UtilizationSource // nil: metrics-server only
	Logger      *zap.Logger
	Observer    StepObserver
	Now         func() time.Time
	NewRunID    func() string
}

// Request describes one investigation.
type Request struct {
	Namespace     string // empty means all namespaces
	TriggerIssues []models.Issue
	Initiator     *cluster.Identity
}

// Investigator produces a report for a request. It never fails: step
// errors are recorded in the report.
type Investigator struct {
	kind     string
	cfg      Config
	pipeline *Pipeline
	planner  Planner
}

// NewDeterministic returns the safe-mode investigator: fixed step order and
// no text-generation calls.
func NewDeterministic(cfg Config) *Investigator {
	cfg.Generator = nil
	return newInvestigator(TypeDeterministic, cfg, nil)
}

// NewAdaptive returns an investigator that lets the model plan the step
// order and analyze issues. Without a generator it behaves like
// NewDeterministic.
func NewAdaptive(cfg Config) *Investigator {
	if cfg.Generator == nil {
		return NewDeterministic(cfg)
	}
	return newInvestigator(TypeAdaptive, cfg, NewModelPlanner(cfg.Generator))
}

func newInvestigator(kind string, cfg Config, planner Planner) *Investigator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}

	steps := clusterSteps(cfg.Utilization)
	steps = append(steps, issueScan{analyzer: NewAnalyzer(cfg.Generator, cfg.Knowledge, cfg.Logger)})

	// the step set is built right here, so a failure is a programming error
	pipeline, err := NewPipeline(steps, cfg.Observer)
	if err != nil {
		panic(err)
	}
	return &Investigator{kind: kind, cfg: cfg, pipeline: pipeline, planner: planner}
}

// WithPlanner replaces the planner. Used to plug in a custom strategy.
func (inv *Investigator) WithPlanner(p Planner) *Investigator {
	inv.planner = p
	return inv
}

// Type returns "deterministic" or "adaptive".
func (inv *Investigator) Type() string {
	return inv.kind
}

// Investigate runs the pipeline and returns the finalized report.
func (inv *Investigator) Investigate(ctx context.Context, req Request) *report.Report {
	runID := inv.cfg.NewRunID()
	logger := inv.cfg.Logger.With(zap.String("run_id", runID), zap.String("type", inv.kind))

	b := report.NewBuilder(runID, inv.kind, inv.cfg.Now)
	run := &Run{
		ID:            runID,
		Namespace:     req.Namespace,
		Collector:     inv.cfg.Collector,
		Report:        b,
		Logger:        logger,
		Now:           inv.cfg.Now,
		TriggerIssues: req.TriggerIssues,
	}

	order := inv.plan(ctx, req, logger)
	plan := make([]string, len(order))
	for i, id := range order {
		plan[i] = string(id)
	}
	b.SetMetadata(report.Metadata{
		Namespace:     req.Namespace,
		Mode:          inv.kind,
		Initiator:     req.Initiator,
		TriggerIssues: req.TriggerIssues,
		Plan:          plan,
	})

	logger.Info("investigation started", zap.Strings("plan", plan), zap.Int("trigger_issues", len(req.TriggerIssues)))
	r := inv.pipeline.Execute(ctx, run, order)
	logger.Info("investigation finished",
		zap.String("status", r.Status),
		zap.Int("findings", len(r.Findings)),
		zap.Float64("duration_seconds", r.DurationSeconds))

	metrics.InvestigationsTotal.WithLabelValues(inv.kind, r.Status).Inc()
	return r
}

// plan returns the validated model plan, or the deterministic order when
// there is no planner or its plan is unusable.
func (inv *Investigator) plan(ctx context.Context, req Request, logger *zap.Logger) []StepID {
	if inv.planner == nil {
		return DeterministicOrder
	}
	names, err := inv.planner.Plan(ctx, req.TriggerIssues)
	if err != nil {
		logger.Warn("planner failed, using deterministic order", zap.Error(err))
		return DeterministicOrder
	}
	order, err := ValidatePlan(names)
	if err != nil {
		logger.Warn("planner returned an invalid plan, using deterministic order", zap.Strings("plan", names), zap.Error(err))
		return DeterministicOrder
	}
	return order
}
