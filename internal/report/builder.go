package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/kubesentry/internal/models"
)

// Status labels, in precedence order.
const (
	StatusCritical = "CRITICAL ISSUES DETECTED"
	StatusHigh     = "HIGH PRIORITY ISSUES DETECTED"
	StatusMinor    = "MINOR ISSUES DETECTED"
	StatusHealthy  = "CLUSTER HEALTHY"
)

// MaxRecommendations caps the report-level recommendation list.
const MaxRecommendations = 10

// Builder accumulates findings and step records for one run.
// Safe for concurrent use.
type Builder struct {
	mu sync.Mutex

	runID             string
	investigationType string
	startedAt         time.Time
	finalizedAt       time.Time
	now               func() time.Time

	findings []Finding
	steps    []InvestigationStep
	summary  *ClusterSummary
	metadata Metadata
}

// NewBuilder starts a run. now may be nil (time.Now).
func NewBuilder(runID, investigationType string, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		runID:             runID,
		investigationType: investigationType,
		startedAt:         now(),
		now:               now,
	}
}

// RunID returns the run identifier.
func (b *Builder) RunID() string {
	return b.runID
}

// AddFinding appends a finding stamped with the builder clock. Slices are
// copied. Severities outside the reportable set are recorded as info.
func (b *Builder) AddFinding(category string, severity models.Severity, title, description string, affected, recommendations, evidence []string, sourceTool string) Finding {
	if !severity.Valid() {
		severity = models.SeverityInfo
	}
	f := Finding{
		Category:          category,
		Severity:          severity,
		Title:             title,
		Description:       description,
		AffectedResources: cloneStrings(affected),
		Recommendations:   cloneStrings(recommendations),
		Evidence:          cloneStrings(evidence),
		SourceTool:        sourceTool,
		Timestamp:         b.now(),
	}

	b.mu.Lock()
	b.findings = append(b.findings, f)
	b.mu.Unlock()
	return f
}

// AddStep appends a step record.
func (b *Builder) AddStep(step InvestigationStep) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, step)
}

// SetSummary records the cluster summary.
func (b *Builder) SetSummary(s ClusterSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = &s
}

// SetMetadata replaces the report metadata.
func (b *Builder) SetMetadata(m Metadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metadata = m
}

// FindingCount returns the number of findings so far.
func (b *Builder) FindingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.findings)
}

// Findings returns a copy of the findings so far.
func (b *Builder) Findings() []Finding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Finding(nil), b.findings...)
}

// SeverityCounts always has all five reportable keys.
func (b *Builder) SeverityCounts() map[models.Severity]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return severityCounts(b.findings)
}

// FindingsByCategory groups findings preserving insertion order.
func (b *Builder) FindingsByCategory() map[string][]Finding {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]Finding)
	for _, f := range b.findings {
		out[f.Category] = append(out[f.Category], f)
	}
	return out
}

// StatusLabel applies the strict precedence critical > high > any > none.
func (b *Builder) StatusLabel() string {
	return statusLabel(b.SeverityCounts(), b.FindingCount())
}

// ExecutiveSummary starts with the status label.
func (b *Builder) ExecutiveSummary() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return executiveSummary(b.findings, b.summary, b.investigationType, b.durationLocked())
}

// GenerateReport builds the report. The finalized timestamp is captured on
// the first call only; repeated calls return equal reports.
func (b *Builder) GenerateReport() *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalizedAt.IsZero() {
		b.finalizedAt = b.now()
	}

	counts := severityCounts(b.findings)
	categories := make(map[string]int)
	for _, f := range b.findings {
		categories[f.Category]++
	}

	r := &Report{
		RunID:             b.runID,
		InvestigationType: b.investigationType,
		Timestamp:         b.startedAt,
		FinalizedAt:       b.finalizedAt,
		DurationSeconds:   b.durationLocked().Seconds(),
		Findings:          cloneFindings(b.findings),
		Steps:             append([]InvestigationStep(nil), b.steps...),
		SeverityCounts:    counts,
		CategoryCounts:    categories,
		Status:            statusLabel(counts, len(b.findings)),
		ExecutiveSummary:  executiveSummary(b.findings, b.summary, b.investigationType, b.durationLocked()),
		Recommendations:   recommendations(b.findings),
		NextActions:       nextActions(counts, b.steps),
		Metadata:          b.metadata,
	}
	if b.summary != nil {
		s := *b.summary
		r.Summary = &s
	}
	return r
}

func (b *Builder) durationLocked() time.Duration {
	end := b.finalizedAt
	if end.IsZero() {
		end = b.now()
	}
	return end.Sub(b.startedAt)
}

func severityCounts(findings []Finding) map[models.Severity]int {
	counts := make(map[models.Severity]int, len(models.Severities))
	for _, s := range models.Severities {
		counts[s] = 0
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

func statusLabel(counts map[models.Severity]int, total int) string {
	switch {
	case counts[models.SeverityCritical] > 0:
		return StatusCritical
	case counts[models.SeverityHigh] > 0:
		return StatusHigh
	case total > 0:
		return StatusMinor
	default:
		return StatusHealthy
	}
}

func executiveSummary(findings []Finding, summary *ClusterSummary, investigationType string, duration time.Duration) string {
	counts := severityCounts(findings)

	var sb strings.Builder
	sb.WriteString(statusLabel(counts, len(findings)))
	sb.WriteString("\n\n")

	if summary == nil {
		sb.WriteString("Cluster summary unavailable.\n")
	} else {
		sb.WriteString("Cluster Overview:\n")
		fmt.Fprintf(&sb, "- Nodes: %d (Ready: %d)\n", summary.TotalNodes, summary.ReadyNodes)
		fmt.Fprintf(&sb, "- Pods: %d (Running: %d, Failed: %d, Pending: %d)\n",
			summary.TotalPods, summary.RunningPods, summary.FailedPods, summary.PendingPods)
		fmt.Fprintf(&sb, "- Namespaces: %d\n", summary.TotalNamespaces)
		fmt.Fprintf(&sb, "- Deployments: %d\n", summary.TotalDeployments)
		fmt.Fprintf(&sb, "- Services: %d\n", summary.TotalServices)
		if summary.ResourceNote != "" {
			fmt.Fprintf(&sb, "- Resources: %s\n", summary.ResourceNote)
		}
	}

	sb.WriteString("\nIssues Found:\n")
	for _, s := range models.Severities {
		fmt.Fprintf(&sb, "- %s: %d\n", capitalize(string(s)), counts[s])
	}

	fmt.Fprintf(&sb, "\nInvestigation Duration: %.2f seconds\n", duration.Seconds())
	if investigationType == "" {
		investigationType = "unknown"
	}
	fmt.Fprintf(&sb, "Investigation Type: %s", investigationType)
	return sb.String()
}

// recommendations collects finding recommendations, most severe finding
// first, dropping duplicates, capped at MaxRecommendations.
func recommendations(findings []Finding) []string {
	ordered := append([]Finding(nil), findings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity.Rank() < ordered[j].Severity.Rank()
	})

	seen := make(map[string]bool)
	out := make([]string, 0, MaxRecommendations)
	for _, f := range ordered {
		for _, rec := range f.Recommendations {
			if rec == "" || seen[rec] {
				continue
			}
			seen[rec] = true
			out = append(out, rec)
			if len(out) == MaxRecommendations {
				return out
			}
		}
	}
	return out
}

func nextActions(counts map[models.Severity]int, steps []InvestigationStep) []string {
	var actions []string
	switch {
	case counts[models.SeverityCritical] > 0:
		actions = append(actions,
			fmt.Sprintf("Address %d critical issues immediately", counts[models.SeverityCritical]),
			"Set up continuous monitoring for critical components",
			"Prepare incident response plan",
		)
	case counts[models.SeverityHigh] > 0:
		actions = append(actions,
			fmt.Sprintf("Schedule resolution of %d high priority issues", counts[models.SeverityHigh]),
			"Review resource allocation and scaling policies",
		)
	default:
		actions = append(actions,
			"Continue regular monitoring and maintenance",
			"Review and optimize resource utilization",
		)
	}

	for _, s := range steps {
		if s.ToolUsed == ToolAI && s.Status == StepCompleted {
			actions = append(actions, "Review AI analysis recommendations")
			break
		}
	}
	return actions
}

// ToolAI marks steps and findings produced with the text-generation service.
const ToolAI = "llm"

// cloneFindings copies findings together with their slices, so a generated
// report shares no memory with the builder or earlier reports.
func cloneFindings(in []Finding) []Finding {
	if in == nil {
		return nil
	}
	out := make([]Finding, len(in))
	for i, f := range in {
		f.AffectedResources = cloneStrings(f.AffectedResources)
		f.Recommendations = cloneStrings(f.Recommendations)
		f.Evidence = cloneStrings(f.Evidence)
		out[i] = f
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
