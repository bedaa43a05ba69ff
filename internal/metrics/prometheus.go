package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// ErrNoData is returned when no query in a fallback chain produced a sample.
var ErrNoData = errors.New("no utilisation data in prometheus")

// Config configures the Prometheus client.
type Config struct {
	PrometheusURL string
	Timeout       time.Duration
}

// Utilisation queries, tried in order. node-exporter first, then
// cAdvisor over kube-state-metrics allocatable.
var (
	cpuQueries = []string{
		`1 - avg(rate(node_cpu_seconds_total{mode="idle"}[5m]))`,
		`sum(rate(container_cpu_usage_seconds_total{container!="",container!="POD"}[5m])) / sum(kube_node_status_allocatable{resource="cpu"})`,
	}
	memoryQueries = []string{
		`1 - sum(node_memory_MemAvailable_bytes) / sum(node_memory_MemTotal_bytes)`,
		`sum(container_memory_working_set_bytes{container!="",container!="POD"}) / sum(kube_node_status_allocatable{resource="memory"})`,
	}
)

// PrometheusClient answers cluster utilisation from Prometheus.
type PrometheusClient struct {
	api     v1.API
	timeout time.Duration
	logger  *zap.Logger
}

// NewPrometheusClient creates a new Prometheus client
func NewPrometheusClient(config Config, logger *zap.Logger) (*PrometheusClient, error) {
	if config.PrometheusURL == "" {
		return nil, fmt.Errorf("prometheus URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := api.NewClient(api.Config{
		Address: config.PrometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusClient{
		api:     v1.NewAPI(client),
		timeout: config.Timeout,
		logger:  logger,
	}, nil
}

// QueryInstant executes an instant query
func (p *PrometheusClient) QueryInstant(ctx context.Context, query string, ts time.Time) (model.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, warnings, err := p.api.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("instant query failed: %w", err)
	}
	if len(warnings) > 0 {
		p.logger.Debug("prometheus warnings", zap.Strings("warnings", warnings))
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}
	return vector, nil
}

// ClusterUtilization returns cluster CPU and memory utilisation as fractions.
func (p *PrometheusClient) ClusterUtilization(ctx context.Context) (cpu, memory float64, err error) {
	now := time.Now()
	cpu, err = p.firstSample(ctx, cpuQueries, now)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu utilisation: %w", err)
	}
	memory, err = p.firstSample(ctx, memoryQueries, now)
	if err != nil {
		return 0, 0, fmt.Errorf("memory utilisation: %w", err)
	}
	return cpu, memory, nil
}

// firstSample returns the first sample of the first query that has one.
func (p *PrometheusClient) firstSample(ctx context.Context, queries []string, ts time.Time) (float64, error) {
	var lastErr error
	for _, q := range queries {
		vec, err := p.QueryInstant(ctx, q, ts)
		if err != nil {
			lastErr = err
			continue
		}
		if len(vec) > 0 {
			return float64(vec[0].Value), nil
		}
	}
	if lastErr != nil {
		return 0, lastErr
	}
	return 0, ErrNoData
}
