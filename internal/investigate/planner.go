package investigate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/prompt"
)

// Planner proposes which steps to run and in which order.
type Planner interface {
	Plan(ctx context.Context, issues []models.Issue) ([]string, error)
}

// ModelPlanner asks a text generator for a plan.
type ModelPlanner struct {
	gen TextGenerator
}

// NewModelPlanner returns a planner backed by gen.
func NewModelPlanner(gen TextGenerator) *ModelPlanner {
	return &ModelPlanner{gen: gen}
}

// Plan returns the raw step names proposed by the model. Callers validate
// them with ValidatePlan.
func (p *ModelPlanner) Plan(ctx context.Context, issues []models.Issue) ([]string, error) {
	lines := make([]string, 0, len(issues))
	for _, is := range models.TopIssues(issues, MaxAnalyzedIssues) {
		lines = append(lines, "- "+is.String()+": "+is.Message)
	}
	steps := make([]string, 0, len(DeterministicOrder))
	for _, id := range DeterministicOrder {
		steps = append(steps, "- "+string(id))
	}

	system, user, err := prompt.Render(prompt.Plan, map[string]string{
		"ISSUES": strings.Join(lines, "\n"),
		"STEPS":  strings.Join(steps, "\n"),
	})
	if err != nil {
		return nil, err
	}

	raw, err := p.gen.Generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}
	return ParsePlan(raw)
}

// ParsePlan decodes a JSON array of step names, tolerating text around it.
func ParsePlan(raw string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(extractJSON(raw, '[', ']')), &names); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return names, nil
}

// ValidatePlan checks names against the closed step set. Unknown or
// duplicated names reject the whole plan. finalize is moved to the end, or
// appended when missing.
func ValidatePlan(names []string) ([]StepID, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty plan")
	}

	seen := make(map[StepID]bool, len(names))
	plan := make([]StepID, 0, len(names)+1)
	for _, name := range names {
		id, ok := ParseStepID(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown step %q", name)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate step %q", name)
		}
		seen[id] = true
		if id != StepFinalize {
			plan = append(plan, id)
		}
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("plan selects no steps")
	}
	return append(plan, StepFinalize), nil
}
