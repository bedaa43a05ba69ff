package investigate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ppiankov/kubesentry/internal/metrics"
	"github.com/ppiankov/kubesentry/internal/report"
	"go.uber.org/zap"
)

// StepObserver is told about every step record as soon as it is written.
type StepObserver func(report.InvestigationStep)

// Pipeline runs steps sequentially. A failing or panicking step is recorded
// as failed and the pipeline moves on.
type Pipeline struct {
	steps    map[StepID]Step
	observer StepObserver
}

// NewPipeline indexes steps by their ID. Every member of the closed set must
// be present.
func NewPipeline(steps []Step, observer StepObserver) (*Pipeline, error) {
	p := &Pipeline{steps: make(map[StepID]Step, len(steps)), observer: observer}
	for _, s := range steps {
		if _, ok := ParseStepID(string(s.ID())); !ok {
			return nil, fmt.Errorf("step %q is not a known step", s.ID())
		}
		p.steps[s.ID()] = s
	}
	for _, id := range DeterministicOrder {
		if _, ok := p.steps[id]; !ok {
			return nil, fmt.Errorf("missing step %q", id)
		}
	}
	return p, nil
}

// Execute runs the steps of order, records every step of the closed set
// not in order as skipped, always finishes with finalize, and returns the
// finalized report.
func (p *Pipeline) Execute(ctx context.Context, run *Run, order []StepID) *report.Report {
	included := make(map[StepID]bool, len(order))
	num := 0

	for _, id := range order {
		if id == StepFinalize || included[id] {
			continue
		}
		included[id] = true
		num++
		p.runStep(ctx, run, num, p.steps[id])
	}

	for _, id := range DeterministicOrder {
		if id == StepFinalize || included[id] {
			continue
		}
		num++
		p.record(run, report.InvestigationStep{
			StepNumber:    num,
			Action:        string(id),
			ToolUsed:      p.steps[id].Tool(),
			Status:        report.StepSkipped,
			OutputSummary: "not selected by plan",
		})
	}

	num++
	// finalize still summarises what was gathered after a timeout
	p.runStep(context.WithoutCancel(ctx), run, num, p.steps[StepFinalize])

	return run.Report.GenerateReport()
}

func (p *Pipeline) runStep(ctx context.Context, run *Run, num int, step Step) {
	start := run.Now()
	run.Logger.Debug("step started", zap.Int("step", num), zap.String("action", string(step.ID())))

	summary, err := safeRun(ctx, step, run)

	rec := report.InvestigationStep{
		StepNumber:      num,
		Action:          string(step.ID()),
		ToolUsed:        step.Tool(),
		DurationSeconds: run.Now().Sub(start).Seconds(),
		OutputSummary:   summary,
	}
	switch {
	case err == nil:
		rec.Status = report.StepCompleted
	case errors.Is(err, ErrSkipped):
		rec.Status = report.StepSkipped
		if rec.OutputSummary == "" {
			rec.OutputSummary = err.Error()
		}
	default:
		rec.Status = report.StepFailed
		rec.ErrorMessage = err.Error()
		run.Logger.Warn("step failed", zap.String("action", string(step.ID())), zap.Error(err))
	}

	metrics.StepDuration.WithLabelValues(rec.Action, string(rec.Status)).Observe(rec.DurationSeconds)
	p.record(run, rec)
}

func (p *Pipeline) record(run *Run, rec report.InvestigationStep) {
	run.Report.AddStep(rec)
	if p.observer != nil {
		p.observer(rec)
	}
}

func safeRun(ctx context.Context, step Step, run *Run) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			run.Logger.Error("step panicked",
				zap.String("action", string(step.ID())),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			summary, err = "", fmt.Errorf("step panicked: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("investigation cancelled: %w", err)
	}
	return step.Run(ctx, run)
}
