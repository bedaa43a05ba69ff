package investigate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/knowledge"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/prompt"
	"github.com/ppiankov/kubesentry/internal/report"
	"go.uber.org/zap"
)

// MaxAnalyzedIssues caps how many issues one issue_scan sends to the model.
// The rest are handled by rules.
const MaxAnalyzedIssues = 10

// TextGenerator produces a completion for a system and user prompt.
// *llm.Client implements it.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// KnowledgeSource answers runbook text for a classified issue.
// *knowledge.Engine implements it.
type KnowledgeSource interface {
	Lookup(q knowledge.Query) string
}

// Classification is the structured view of one issue.
type Classification struct {
	Type                  string   `json:"type"`
	Severity              string   `json:"severity"`
	Components            []string `json:"components"`
	RootCauseCategory     string   `json:"root_cause_category"`
	InvestigationPriority int      `json:"investigation_priority"`
	ImmediateActionNeeded bool     `json:"immediate_action_needed"`
	Impact                string   `json:"impact"`
}

// Analysis is the outcome for one issue.
type Analysis struct {
	Issue          models.Issue
	Classification Classification
	Solutions      []string
	Knowledge      bool // runbook text was found
	ByModel        bool // classification and solutions came from the model
}

// Analyzer classifies issues and proposes solutions. With a nil generator
// only rules are used.
type Analyzer struct {
	gen    TextGenerator
	kb     KnowledgeSource
	logger *zap.Logger
}

// NewAnalyzer returns an analyzer; gen and kb may be nil.
func NewAnalyzer(gen TextGenerator, kb KnowledgeSource, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{gen: gen, kb: kb, logger: logger}
}

// Analyze handles one issue. When the model fails the rule-based result is
// returned together with an error wrapping ErrReasoningUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, issue models.Issue, useModel bool) (Analysis, error) {
	out := Analysis{Issue: issue}

	if a.gen == nil || !useModel {
		out.Classification = RuleClassify(issue)
		out.Knowledge = a.lookup(issue, out.Classification) != ""
		out.Solutions = RuleSolutions(issue, out.Classification)
		return out, nil
	}

	cls, err := a.classify(ctx, issue)
	if err != nil {
		out.Classification = RuleClassify(issue)
		out.Solutions = RuleSolutions(issue, out.Classification)
		out.Knowledge = a.lookup(issue, out.Classification) != ""
		return out, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}
	out.Classification = cls

	kb := a.lookup(issue, cls)
	out.Knowledge = kb != ""

	solutions, err := a.solve(ctx, issue, cls, kb)
	if err != nil {
		out.Solutions = RuleSolutions(issue, cls)
		return out, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}
	out.Solutions = solutions
	out.ByModel = true
	return out, nil
}

func (a *Analyzer) lookup(issue models.Issue, cls Classification) string {
	if a.kb == nil {
		return ""
	}
	return a.kb.Lookup(knowledge.Query{
		Type:       cls.Type,
		Severity:   cls.Severity,
		Category:   cls.RootCauseCategory,
		Components: append([]string{issue.Reason}, cls.Components...),
	})
}

func (a *Analyzer) classify(ctx context.Context, issue models.Issue) (Classification, error) {
	system, user, err := prompt.Render(prompt.Classify, map[string]string{
		"KIND":     string(issue.Kind),
		"RESOURCE": issue.Resource,
		"REASON":   issue.Reason,
		"SEVERITY": string(issue.Severity),
		"MESSAGE":  issue.Message,
	})
	if err != nil {
		return Classification{}, err
	}

	raw, err := a.gen.Generate(ctx, system, user)
	if err != nil {
		return Classification{}, err
	}

	var cls Classification
	if err := json.Unmarshal([]byte(extractJSON(raw, '{', '}')), &cls); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if cls.Type == "" {
		return Classification{}, fmt.Errorf("classification has no type")
	}
	if !models.ParseSeverity(cls.Severity).Valid() {
		cls.Severity = string(issue.Severity)
	}
	return cls, nil
}

func (a *Analyzer) solve(ctx context.Context, issue models.Issue, cls Classification, kb string) ([]string, error) {
	namespace := ""
	if ns, _, ok := strings.Cut(issue.Resource, "/"); ok {
		namespace = ns
	}
	system, user, err := prompt.Render(prompt.Solve, map[string]string{
		"KNOWLEDGE": kb,
		"RESOURCE":  issue.Resource,
		"NAMESPACE": namespace,
		"TYPE":      cls.Type,
		"SEVERITY":  cls.Severity,
		"CATEGORY":  cls.RootCauseCategory,
		"MESSAGE":   issue.Message,
	})
	if err != nil {
		return nil, err
	}

	raw, err := a.gen.Generate(ctx, system, user)
	if err != nil {
		return nil, err
	}
	steps := parseNumbered(raw)
	if len(steps) == 0 {
		return nil, fmt.Errorf("no solution steps in response")
	}
	return steps, nil
}

// RuleClassify is the fallback classification. Severity follows the detector.
func RuleClassify(issue models.Issue) Classification {
	cls := Classification{
		Severity:              string(issue.Severity),
		Components:            []string{issue.Resource},
		InvestigationPriority: 5,
		Impact:                "moderate",
	}
	reason := issue.Reason
	switch {
	case strings.Contains(reason, "ImagePull") || reason == "InvalidImageName":
		cls.Type, cls.RootCauseCategory, cls.InvestigationPriority = "ImagePullError", "image", 7
	case reason == "CrashLoopBackOff":
		cls.Type, cls.RootCauseCategory, cls.InvestigationPriority = "CrashLoopBackOff", "resource", 8
		cls.ImmediateActionNeeded = true
		cls.Impact = "significant"
	case issue.Kind == models.KindPodStuckPending || reason == "FailedScheduling":
		cls.Type, cls.RootCauseCategory = "PodPending", "resource"
	case issue.Kind == models.KindNodeNotReady:
		cls.Type, cls.RootCauseCategory, cls.InvestigationPriority = "NodeNotReady", "resource", 9
		cls.ImmediateActionNeeded = true
		cls.Impact = "severe"
	case issue.Kind == models.KindNodePressure:
		cls.Type, cls.RootCauseCategory, cls.InvestigationPriority = "NodePressure", "resource", 7
	case strings.Contains(reason, "Mount") || reason == "CreateContainerConfigError":
		cls.Type, cls.RootCauseCategory = "ConfigurationError", "config"
	default:
		cls.Type, cls.RootCauseCategory = "UnknownIssue", "config"
	}
	return cls
}

// RuleSolutions is the fallback list of resolution steps.
func RuleSolutions(issue models.Issue, cls Classification) []string {
	target := issue.Resource
	switch cls.RootCauseCategory {
	case "image":
		return []string{
			fmt.Sprintf("Describe %s and check the image reference", target),
			"Verify the image tag exists in the registry",
			"Check image pull secrets and registry credentials",
		}
	case "resource":
		if cls.Type == "CrashLoopBackOff" {
			return []string{
				fmt.Sprintf("Read the previous container logs of %s", target),
				"Compare memory and CPU limits with actual usage",
				"Roll back the latest deployment change if the crash is new",
			}
		}
		return []string{
			fmt.Sprintf("Describe %s and review its conditions", target),
			"Check node capacity and resource requests",
			"Review recent scheduling events",
		}
	default:
		return []string{
			fmt.Sprintf("Describe %s and review recent events", target),
			"Check referenced ConfigMaps, Secrets and volumes",
			"Compare the configuration with the last working version",
		}
	}
}

// issueScan classifies detected issues and emits a single ai_analysis
// finding. It is skipped when there is nothing to analyze.
type issueScan struct {
	analyzer *Analyzer
}

func (s issueScan) ID() StepID { return StepIssueScan }

func (s issueScan) Tool() string {
	if s.analyzer.gen != nil {
		return ToolAI
	}
	return ToolRules
}

func (s issueScan) Run(ctx context.Context, run *Run) (string, error) {
	issues := s.collectIssues(ctx, run)
	if len(issues) == 0 {
		return "", Skip("no issues detected")
	}
	issues = models.SortIssues(issues)

	var (
		analyses   []Analysis
		modelErr   error
		modelCalls int
	)
	for i, issue := range issues {
		useModel := i < MaxAnalyzedIssues && modelErr == nil
		a, err := s.analyzer.Analyze(ctx, issue, useModel)
		if useModel {
			modelCalls++
		}
		if err != nil {
			modelErr = err
			run.Logger.Warn("falling back to rule-based analysis", zap.Error(err))
		}
		analyses = append(analyses, a)
	}

	var evidence, recs, affected []string
	byModel := 0
	for _, a := range analyses {
		if a.ByModel {
			byModel++
		}
		evidence = append(evidence, fmt.Sprintf("%s %s: type=%s severity=%s category=%s priority=%d",
			a.Issue.Resource, a.Issue.Reason, a.Classification.Type, a.Classification.Severity,
			a.Classification.RootCauseCategory, a.Classification.InvestigationPriority))
		affected = append(affected, a.Issue.Resource)
		if len(a.Solutions) > 0 {
			recs = append(recs, a.Solutions[0])
		}
	}

	run.Report.AddFinding(report.CategoryAIAnalysis, models.SeverityMedium,
		fmt.Sprintf("Issue analysis identified %d issues", len(issues)),
		fmt.Sprintf("%d of %d issues analyzed by the model, the rest by rules", byModel, len(issues)),
		dedupe(affected),
		dedupe(recs),
		evidence,
		s.Tool())

	if modelErr != nil {
		run.Report.AddFinding(report.CategoryToolAvailability, models.SeverityLow,
			"Reasoning service unavailable",
			"Issue analysis fell back to rule-based classification",
			nil,
			[]string{"Check the LLM endpoint and credentials"},
			[]string{modelErr.Error()},
			ToolAI)
	}

	return fmt.Sprintf("Analyzed %d issues (%d by model, %d model calls)", len(issues), byModel, modelCalls), nil
}

// collectIssues prefers a fresh detection over the gathered data and falls
// back to the trigger issues.
func (s issueScan) collectIssues(ctx context.Context, run *Run) []models.Issue {
	var issues []models.Issue
	now := run.Now()

	if pods, err := run.EnsurePods(ctx); err == nil {
		issues = append(issues, detector.DetectPods(pods, now)...)
	}
	if nodes, err := run.EnsureNodes(ctx); err == nil {
		issues = append(issues, detector.DetectNodes(nodes, now)...)
	}
	if events, err := run.EnsureEvents(ctx); err == nil {
		issues = append(issues, detector.DetectEvents(events, now)...)
	}

	if len(issues) == 0 {
		issues = append(issues, run.TriggerIssues...)
	}
	return issues
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// extractJSON returns the outermost open..close span of s, or s unchanged.
func extractJSON(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// parseNumbered extracts "1. step" or "- step" lines from a model response.
func parseNumbered(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, "0123456789")
		switch {
		case trimmed != line && (strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, ")")):
			line = strings.TrimSpace(trimmed[1:])
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			line = strings.TrimSpace(line[2:])
		default:
			continue
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
