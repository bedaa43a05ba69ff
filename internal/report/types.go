package report

import (
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/models"
)

// Finding categories emitted by the investigation steps.
const (
	CategoryNodeHealth       = "node_health"
	CategoryNodePressure     = "node_pressure"
	CategoryPodFailures      = "pod_failures"
	CategoryPodScheduling    = "pod_scheduling"
	CategoryResourcePressure = "resource_pressure"
	CategoryMonitoring       = "monitoring"
	CategoryClusterEvents    = "cluster_events"
	CategoryAIAnalysis       = "ai_analysis"
	CategoryToolAvailability = "tool_availability"
	CategoryWorkloadHealth   = "workload_health"
	CategoryNetwork          = "network"
)

// Finding is one structured result of an investigation. Never mutated after
// the Builder creates it.
type Finding struct {
	Category          string          `json:"category" yaml:"category"`
	Severity          models.Severity `json:"severity" yaml:"severity"`
	Title             string          `json:"title" yaml:"title"`
	Description       string          `json:"description" yaml:"description"`
	AffectedResources []string        `json:"affected_resources" yaml:"affected_resources"`
	Recommendations   []string        `json:"recommendations" yaml:"recommendations"`
	Evidence          []string        `json:"evidence" yaml:"evidence"`
	SourceTool        string          `json:"source_tool" yaml:"source_tool"`
	Timestamp         time.Time       `json:"timestamp" yaml:"timestamp"`
}

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Icon returns the marker used in text reports.
func (s StepStatus) Icon() string {
	switch s {
	case StepCompleted:
		return "✅"
	case StepFailed:
		return "❌"
	default:
		return "⏭️"
	}
}

// InvestigationStep is the execution record of one pipeline step.
type InvestigationStep struct {
	StepNumber      int        `json:"step_number" yaml:"step_number"`
	Action          string     `json:"action" yaml:"action"`
	ToolUsed        string     `json:"tool_used" yaml:"tool_used"`
	Status          StepStatus `json:"status" yaml:"status"`
	DurationSeconds float64    `json:"duration_seconds" yaml:"duration_seconds"`
	OutputSummary   string     `json:"output_summary" yaml:"output_summary"`
	ErrorMessage    string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// ClusterSummary is the rollup computed once at the end of a run.
// RunningPods+FailedPods+PendingPods+SucceededPods+UnknownPods == TotalPods.
type ClusterSummary struct {
	TotalNodes       int    `json:"total_nodes" yaml:"total_nodes"`
	ReadyNodes       int    `json:"ready_nodes" yaml:"ready_nodes"`
	TotalPods        int    `json:"total_pods" yaml:"total_pods"`
	RunningPods      int    `json:"running_pods" yaml:"running_pods"`
	FailedPods       int    `json:"failed_pods" yaml:"failed_pods"`
	PendingPods      int    `json:"pending_pods" yaml:"pending_pods"`
	SucceededPods    int    `json:"succeeded_pods" yaml:"succeeded_pods"`
	UnknownPods      int    `json:"unknown_pods" yaml:"unknown_pods"`
	HealthyPods      int    `json:"healthy_pods" yaml:"healthy_pods"`
	TotalNamespaces  int    `json:"total_namespaces" yaml:"total_namespaces"`
	TotalDeployments int    `json:"total_deployments" yaml:"total_deployments"`
	TotalServices    int    `json:"total_services" yaml:"total_services"`
	ServerVersion    string `json:"server_version,omitempty" yaml:"server_version,omitempty"`
	ResourceNote     string `json:"resource_utilization" yaml:"resource_utilization"`
}

// Metadata is context attached to a report by whoever started the run.
type Metadata struct {
	Namespace     string            `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Mode          string            `json:"mode,omitempty" yaml:"mode,omitempty"`
	Initiator     *cluster.Identity `json:"initiator,omitempty" yaml:"initiator,omitempty"`
	TriggerIssues []models.Issue    `json:"trigger_issues,omitempty" yaml:"trigger_issues,omitempty"`
	Plan          []string          `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// Report is the terminal artifact of one investigation run.
type Report struct {
	RunID             string                  `json:"run_id" yaml:"run_id"`
	InvestigationType string                  `json:"investigation_type" yaml:"investigation_type"`
	Timestamp         time.Time               `json:"timestamp" yaml:"timestamp"`
	FinalizedAt       time.Time               `json:"finalized_at" yaml:"finalized_at"`
	DurationSeconds   float64                 `json:"duration_seconds" yaml:"duration_seconds"`
	Summary           *ClusterSummary         `json:"cluster_summary,omitempty" yaml:"cluster_summary,omitempty"`
	Findings          []Finding               `json:"findings" yaml:"findings"`
	Steps             []InvestigationStep     `json:"investigation_steps" yaml:"investigation_steps"`
	SeverityCounts    map[models.Severity]int `json:"severity_counts" yaml:"severity_counts"`
	CategoryCounts    map[string]int          `json:"category_counts" yaml:"category_counts"`
	Status            string                  `json:"status" yaml:"status"`
	ExecutiveSummary  string                  `json:"executive_summary" yaml:"executive_summary"`
	Recommendations   []string                `json:"recommendations" yaml:"recommendations"`
	NextActions       []string                `json:"next_actions" yaml:"next_actions"`
	Metadata          Metadata                `json:"metadata" yaml:"metadata"`
}
