package investigate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/report"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
)

// ResourcePressureThreshold is the node utilisation ratio above which a
// resource_pressure finding is raised.
const ResourcePressureThreshold = 0.90

// UtilizationSource answers cluster-wide CPU and memory utilisation as
// fractions in [0,1]. Prometheus implements it.
type UtilizationSource interface {
	ClusterUtilization(ctx context.Context) (cpu, memory float64, err error)
}

// stepFunc adapts a function to the Step interface.
type stepFunc struct {
	id   StepID
	tool string
	fn   func(ctx context.Context, run *Run) (string, error)
}

func (s stepFunc) ID() StepID   { return s.id }
func (s stepFunc) Tool() string { return s.tool }
func (s stepFunc) Run(ctx context.Context, run *Run) (string, error) {
	return s.fn(ctx, run)
}

// clusterSteps returns every step except issue_scan.
func clusterSteps(util UtilizationSource) []Step {
	return []Step{
		stepFunc{StepOverview, ToolKube, overview},
		stepFunc{StepNodes, ToolKube, nodeAnalysis},
		stepFunc{StepPods, ToolKube, podAnalysis},
		stepFunc{StepResources, ToolMetrics, func(ctx context.Context, run *Run) (string, error) {
			return resourceAnalysis(ctx, run, util)
		}},
		stepFunc{StepEvents, ToolKube, eventAnalysis},
		stepFunc{StepWorkloads, ToolKube, workloadAnalysis},
		stepFunc{StepNetwork, ToolKube, networkAnalysis},
		stepFunc{StepFinalize, ToolReport, finalize},
	}
}

func overview(ctx context.Context, run *Run) (string, error) {
	var errs []error

	version, err := run.Collector.ServerVersion(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		run.Version = version
	}

	namespaces, err := run.Collector.Namespaces(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		run.Namespaces = len(namespaces)
	}

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return fmt.Sprintf("Kubernetes %s, %d namespaces", run.Version, run.Namespaces), nil
}

func nodeAnalysis(ctx context.Context, run *Run) (string, error) {
	nodes, err := run.EnsureNodes(ctx)
	if err != nil {
		return "", err
	}

	ready := 0
	for i := range nodes {
		if detector.NodeReady(&nodes[i]) {
			ready++
			continue
		}
		run.Report.AddFinding(report.CategoryNodeHealth, models.SeverityHigh,
			fmt.Sprintf("Node %s not ready", nodes[i].Name),
			fmt.Sprintf("Node %s is not in ready state", nodes[i].Name),
			[]string{nodes[i].Name},
			[]string{"Check node logs", "Verify node connectivity", "Check kubelet status"},
			nodeConditionEvidence(&nodes[i]),
			ToolKube)
	}

	for _, issue := range detector.DetectNodes(nodes, run.Now()) {
		if issue.Kind != models.KindNodePressure {
			continue
		}
		run.Report.AddFinding(report.CategoryNodePressure, issue.Severity,
			fmt.Sprintf("Node %s has %s", issue.Resource, issue.Reason),
			issue.Message,
			[]string{issue.Resource},
			[]string{"Review resource requests on the node", "Evict or reschedule heavy workloads", "Consider adding capacity"},
			nil,
			ToolKube)
	}

	return fmt.Sprintf("%d/%d nodes ready", ready, len(nodes)), nil
}

func nodeConditionEvidence(node *corev1.Node) []string {
	var out []string
	for _, c := range node.Status.Conditions {
		out = append(out, fmt.Sprintf("%s=%s %s", c.Type, c.Status, c.Message))
	}
	return out
}

func podAnalysis(ctx context.Context, run *Run) (string, error) {
	pods, err := run.EnsurePods(ctx)
	if err != nil {
		return "", err
	}

	failedPods := make(map[string]bool)
	var failed, pending int
	for i := range pods {
		pod := &pods[i]
		resource := pod.Namespace + "/" + pod.Name
		switch pod.Status.Phase {
		case corev1.PodFailed:
			failed++
			failedPods[resource] = true
			run.Report.AddFinding(report.CategoryPodFailures, models.SeverityHigh,
				fmt.Sprintf("Pod %s failed", pod.Name),
				fmt.Sprintf("Pod %s in namespace %s is in failed state", pod.Name, pod.Namespace),
				[]string{resource},
				[]string{"Check pod logs", "Review pod events", "Verify resource limits", "Check image availability"},
				podEvidence(pod),
				ToolKube)
		case corev1.PodPending:
			pending++
			run.Report.AddFinding(report.CategoryPodScheduling, models.SeverityMedium,
				fmt.Sprintf("Pod %s pending", pod.Name),
				fmt.Sprintf("Pod %s in namespace %s is pending", pod.Name, pod.Namespace),
				[]string{resource},
				[]string{"Check node resources", "Verify pod scheduling constraints", "Review events"},
				podEvidence(pod),
				ToolKube)
		}
	}

	containerIssues := 0
	for _, issue := range detector.DetectPods(pods, run.Now()) {
		if issue.Kind == models.KindPodStuckPending {
			continue
		}
		if issue.Kind == models.KindPodTerminatedNonZero && failedPods[issue.Resource] {
			continue
		}
		containerIssues++
		run.Report.AddFinding(report.CategoryPodFailures, issue.Severity,
			fmt.Sprintf("Container %s in %s: %s", issue.Container, issue.Resource, issue.Reason),
			issue.Message,
			[]string{issue.Resource},
			containerRecommendations(issue.Reason),
			[]string{fmt.Sprintf("reason: %s", issue.Reason)},
			ToolKube)
	}

	return fmt.Sprintf("%d pods: %d failed, %d pending, %d container issues", len(pods), failed, pending, containerIssues), nil
}

func podEvidence(pod *corev1.Pod) []string {
	var out []string
	if pod.Status.Reason != "" {
		out = append(out, "reason: "+pod.Status.Reason)
	}
	if pod.Status.Message != "" {
		out = append(out, "message: "+pod.Status.Message)
	}
	return out
}

func containerRecommendations(reason string) []string {
	switch reason {
	case "CrashLoopBackOff":
		return []string{"Check container logs", "Review recent image or config changes", "Verify resource limits"}
	case "ImagePullBackOff", "ErrImagePull", "InvalidImageName":
		return []string{"Verify image name and tag", "Check registry credentials", "Review image pull secrets"}
	case "CreateContainerConfigError":
		return []string{"Check referenced ConfigMaps and Secrets", "Review container environment"}
	default:
		return []string{"Check container logs", "Review container exit code", "Review pod events"}
	}
}

func resourceAnalysis(ctx context.Context, run *Run, util UtilizationSource) (string, error) {
	var notes []string

	usage, metricsErr := run.Collector.NodeMetrics(ctx)
	if metricsErr == nil {
		nodes, err := run.EnsureNodes(ctx)
		if err != nil {
			return "", err
		}
		notes = append(notes, nodeUtilization(run, nodes, usage))
	}

	if util != nil {
		cpu, mem, err := util.ClusterUtilization(ctx)
		if err != nil {
			run.Logger.Debug("prometheus utilisation unavailable", zap.Error(err))
		} else {
			notes = append(notes, fmt.Sprintf("prometheus: CPU %.1f%%, memory %.1f%%", cpu*100, mem*100))
		}
	}

	if len(notes) > 0 {
		run.ResourceNote = strings.Join(notes, "; ")
		return run.ResourceNote, nil
	}

	run.ResourceNote = "metrics unavailable"
	if errors.Is(metricsErr, cluster.ErrUnsupported) {
		return "", Skip("metrics unavailable")
	}
	run.Report.AddFinding(report.CategoryMonitoring, models.SeverityLow,
		"Resource metrics query failed",
		"Node metrics could not be retrieved",
		nil,
		[]string{"Check metrics-server health"},
		[]string{metricsErr.Error()},
		ToolMetrics)
	return "", metricsErr
}

func nodeUtilization(run *Run, nodes []corev1.Node, usage []metricsv1beta1.NodeMetrics) string {
	alloc := make(map[string]corev1.ResourceList, len(nodes))
	for i := range nodes {
		alloc[nodes[i].Name] = nodes[i].Status.Allocatable
	}

	var cpuSum, memSum float64
	measured := 0
	for _, m := range usage {
		a, ok := alloc[m.Name]
		if !ok {
			continue
		}
		cpuAlloc, memAlloc := a.Cpu().MilliValue(), a.Memory().Value()
		if cpuAlloc == 0 || memAlloc == 0 {
			continue
		}
		cpu := float64(m.Usage.Cpu().MilliValue()) / float64(cpuAlloc)
		mem := float64(m.Usage.Memory().Value()) / float64(memAlloc)
		cpuSum += cpu
		memSum += mem
		measured++

		for _, r := range []struct {
			name  string
			ratio float64
		}{{"CPU", cpu}, {"memory", mem}} {
			if r.ratio <= ResourcePressureThreshold {
				continue
			}
			run.Report.AddFinding(report.CategoryResourcePressure, models.SeverityMedium,
				fmt.Sprintf("High %s usage on node %s", r.name, m.Name),
				fmt.Sprintf("Node %s is using %.0f%% of allocatable %s", m.Name, r.ratio*100, r.name),
				[]string{m.Name},
				[]string{"Review pod resource requests", "Rebalance workloads", "Consider adding capacity"},
				[]string{fmt.Sprintf("%s usage: %.1f%%", r.name, r.ratio*100)},
				ToolMetrics)
		}
	}

	if measured == 0 {
		return "no node metrics matched"
	}
	return fmt.Sprintf("avg CPU %.1f%%, avg memory %.1f%% across %d nodes",
		cpuSum/float64(measured)*100, memSum/float64(measured)*100, measured)
}

// eventReasons are the warning reasons that become findings.
var eventReasons = map[string]models.Severity{
	"Failed":             models.SeverityHigh,
	"ErrImagePull":       models.SeverityHigh,
	"ImagePullBackOff":   models.SeverityHigh,
	"FailedScheduling":   models.SeverityMedium,
	"Unhealthy":          models.SeverityMedium,
	"FailedMount":        models.SeverityMedium,
	"FailedAttachVolume": models.SeverityMedium,
}

func eventRecommendations(reason string) []string {
	switch reason {
	case "Failed":
		return []string{"Check pod logs", "Verify image availability", "Check resource limits"}
	case "FailedScheduling":
		return []string{"Check node resources", "Verify node selectors", "Review pod constraints"}
	case "ErrImagePull":
		return []string{"Verify image name and tag", "Check registry credentials", "Verify network connectivity"}
	case "ImagePullBackOff":
		return []string{"Check image repository access", "Verify authentication", "Review image pull secrets"}
	case "Unhealthy":
		return []string{"Check readiness/liveness probes", "Verify application health", "Review resource usage"}
	case "FailedMount", "FailedAttachVolume":
		return []string{"Check volume configuration", "Verify PVC status", "Check storage class"}
	default:
		return []string{"Review event details", "Check related resources", "Verify configuration"}
	}
}

func eventAnalysis(ctx context.Context, run *Run) (string, error) {
	events, err := run.EnsureEvents(ctx)
	if err != nil {
		return "", err
	}

	type group struct {
		reason, object, message string
		count                   int
	}
	groups := make(map[string]*group)
	var order []string
	warnings := 0

	for _, ev := range events {
		if ev.Type != corev1.EventTypeWarning {
			continue
		}
		warnings++
		if _, ok := eventReasons[ev.Reason]; !ok {
			continue
		}
		obj := ev.InvolvedObject.Kind + "/" + ev.InvolvedObject.Name
		if ev.InvolvedObject.Namespace != "" {
			obj = ev.InvolvedObject.Namespace + "/" + obj
		}
		key := ev.Reason + "|" + obj
		g, ok := groups[key]
		if !ok {
			g = &group{reason: ev.Reason, object: obj}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		g.message = ev.Message
	}

	for _, key := range order {
		g := groups[key]
		run.Report.AddFinding(report.CategoryClusterEvents, eventReasons[g.reason],
			fmt.Sprintf("Warning event: %s", g.reason),
			g.message,
			[]string{g.object},
			eventRecommendations(g.reason),
			[]string{fmt.Sprintf("occurrences: %d", g.count)},
			ToolKube)
	}

	return fmt.Sprintf("%d events, %d warnings, %d notable", len(events), warnings, len(order)), nil
}

func workloadAnalysis(ctx context.Context, run *Run) (string, error) {
	var errs []error

	deployments, err := run.Collector.Deployments(ctx, run.Namespace)
	if err != nil {
		errs = append(errs, err)
	}
	run.Deployments = len(deployments)

	unready := 0
	for _, d := range deployments {
		desired := d.Status.Replicas
		if d.Spec.Replicas != nil && *d.Spec.Replicas > desired {
			desired = *d.Spec.Replicas
		}
		if d.Status.ReadyReplicas >= desired {
			continue
		}
		unready++
		run.Report.AddFinding(report.CategoryWorkloadHealth, models.SeverityMedium,
			fmt.Sprintf("Deployment %s not fully ready", d.Name),
			fmt.Sprintf("Deployment %s has %d/%d ready replicas", d.Name, d.Status.ReadyReplicas, desired),
			[]string{d.Namespace + "/" + d.Name},
			[]string{"Check pod status", "Review deployment events", "Verify resource availability"},
			nil,
			ToolKube)
	}

	services, err := run.Collector.Services(ctx, run.Namespace)
	if err != nil {
		errs = append(errs, err)
	}
	run.Services = len(services)

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return fmt.Sprintf("%d deployments (%d not ready), %d services", len(deployments), unready, len(services)), nil
}

func networkAnalysis(ctx context.Context, run *Run) (string, error) {
	policies, err := run.Collector.NetworkPolicies(ctx, run.Namespace)
	if err != nil {
		return "", err
	}
	ingresses, err := run.Collector.Ingresses(ctx, run.Namespace)
	if err != nil {
		return "", err
	}

	hosts := make(map[string]bool)
	for _, ing := range ingresses {
		for _, rule := range ing.Spec.Rules {
			if rule.Host != "" {
				hosts[rule.Host] = true
			}
		}
	}
	names := make([]string, 0, len(hosts))
	for h := range hosts {
		names = append(names, h)
	}
	sort.Strings(names)

	summary := fmt.Sprintf("%d network policies, %d ingresses", len(policies), len(ingresses))
	if len(names) > 0 {
		summary += " (hosts: " + strings.Join(names, ", ") + ")"
	}
	return summary, nil
}

func finalize(ctx context.Context, run *Run) (string, error) {
	nodes, err := run.EnsureNodes(ctx)
	if err != nil {
		run.Logger.Debug("finalize: nodes unavailable", zap.Error(err))
	}
	pods, err := run.EnsurePods(ctx)
	if err != nil {
		run.Logger.Debug("finalize: pods unavailable", zap.Error(err))
	}

	h := detector.Assess(pods, nodes, nil)
	healthy := 0
	for i := range pods {
		if podHealthy(&pods[i]) {
			healthy++
		}
	}

	run.Report.SetSummary(report.ClusterSummary{
		TotalNodes:       h.TotalNodes,
		ReadyNodes:       h.ReadyNodes,
		TotalPods:        h.TotalPods,
		RunningPods:      h.RunningPods,
		FailedPods:       h.FailedPods,
		PendingPods:      h.PendingPods,
		SucceededPods:    h.SucceededPods,
		UnknownPods:      h.UnknownPods,
		HealthyPods:      healthy,
		TotalNamespaces:  run.Namespaces,
		TotalDeployments: run.Deployments,
		TotalServices:    run.Services,
		ServerVersion:    run.Version,
		ResourceNote:     run.ResourceNote,
	})

	return fmt.Sprintf("Generated report with %d findings", run.Report.FindingCount()), nil
}

// podHealthy is a running pod whose containers are all ready.
func podHealthy(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}
