package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/investigate"
	"github.com/ppiankov/kubesentry/internal/knowledge"
	"github.com/ppiankov/kubesentry/internal/llm"
	"github.com/ppiankov/kubesentry/internal/logging"
	"github.com/ppiankov/kubesentry/internal/metrics"
	"github.com/ppiankov/kubesentry/internal/util"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// session holds what every command that talks to the cluster needs.
type session struct {
	logger    *zap.Logger
	clients   *util.Clients
	collector *cluster.KubeCollector
	identity  cluster.Identity

	generator   investigate.TextGenerator
	knowledge   investigate.KnowledgeSource
	utilization investigate.UtilizationSource

	forward *util.ServiceForward
}

// newLogger builds the process logger from log-level, log-file and verbose.
func newLogger() (*zap.Logger, error) {
	cfg := logging.DefaultConfig()
	cfg.Level = viper.GetString("log-level")
	if IsVerbose() {
		cfg.Level = "debug"
	}
	cfg.File = viper.GetString("log-file")
	return logging.New(cfg)
}

// newSession connects to the cluster and wires the optional collaborators.
// Optional pieces that fail to initialise are logged and left out.
func newSession(ctx context.Context) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}

	logger.Debug("building kubernetes clients", zap.String("kubeconfig", GetKubeconfig()))
	clients, err := util.BuildClients(GetKubeconfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build Kubernetes client: %w", err)
	}

	s := &session{
		logger:    logger,
		clients:   clients,
		collector: cluster.NewKubeCollector(clients.Kube, clients.Metrics, cluster.DefaultQueryTimeout),
	}
	s.identity = cluster.ResolveIdentity(ctx, clients.Kube, GetKubeconfig())

	if !viper.GetBool("safe-mode") {
		s.generator = newGenerator(logger)
	}
	s.knowledge = newKnowledge(logger)
	s.utilization = s.newUtilization(ctx)
	return s, nil
}

func newGenerator(logger *zap.Logger) investigate.TextGenerator {
	endpoint, model := viper.GetString("llm-endpoint"), viper.GetString("llm-model")
	if endpoint == "" || model == "" {
		logger.Info("no language model configured, using rule-based analysis")
		return nil
	}
	client, err := llm.NewClient(llm.Config{
		Endpoint:          endpoint,
		Model:             model,
		APIKey:            viper.GetString("llm-api-key"),
		RequestsPerSecond: viper.GetFloat64("llm-rps"),
	})
	if err != nil {
		logger.Warn("language model disabled", zap.Error(err))
		return nil
	}
	logger.Info("language model configured", zap.String("endpoint", endpoint), zap.String("model", model))
	return client
}

func newKnowledge(logger *zap.Logger) investigate.KnowledgeSource {
	dir := viper.GetString("knowledge-dir")
	if dir == "" {
		return nil
	}
	engine, err := knowledge.Load(dir)
	if err != nil {
		logger.Warn("knowledge base disabled", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	logger.Info("knowledge base loaded", zap.String("dir", dir), zap.Int("sections", engine.Len()))
	return engine
}

func (s *session) newUtilization(ctx context.Context) investigate.UtilizationSource {
	url := viper.GetString("prometheus-url")
	if svc := viper.GetString("prometheus-service"); url == "" && svc != "" {
		target, err := util.ParseForwardTarget(svc)
		if err != nil {
			s.logger.Warn("invalid prometheus service", zap.Error(err))
			return nil
		}
		fw := util.NewServiceForward(s.clients, target)
		url, err = fw.Start(ctx)
		if err != nil {
			s.logger.Warn("prometheus port-forward failed", zap.String("service", target.String()), zap.Error(err))
			return nil
		}
		s.forward = fw
		s.logger.Info("prometheus port-forward ready", zap.String("service", target.String()), zap.String("pod", fw.Pod()), zap.String("url", url))
	}
	if url == "" {
		return nil
	}

	prom, err := metrics.NewPrometheusClient(metrics.Config{PrometheusURL: url}, s.logger)
	if err != nil {
		s.logger.Warn("prometheus disabled", zap.Error(err))
		return nil
	}
	return prom
}

// investigatorConfig wires an investigator to the runtime.
func (s *session) investigatorConfig(observer investigate.StepObserver) investigate.Config {
	return investigate.Config{
		Collector:   s.collector,
		Generator:   s.generator,
		Knowledge:   s.knowledge,
		Utilization: s.utilization,
		Logger:      s.logger.With(zap.String("component", "investigator")),
		Observer:    observer,
	}
}

// newInvestigator picks the investigator for the configured mode.
func (s *session) newInvestigator(observer investigate.StepObserver) *investigate.Investigator {
	return selectInvestigator(viper.GetBool("safe-mode"), s.investigatorConfig(observer))
}

// selectInvestigator: safe mode always gets the deterministic investigator;
// otherwise the adaptive one, which itself degrades without a generator.
func selectInvestigator(safeMode bool, cfg investigate.Config) *investigate.Investigator {
	if safeMode {
		return investigate.NewDeterministic(cfg)
	}
	return investigate.NewAdaptive(cfg)
}

func (s *session) Close() {
	if s.forward != nil {
		s.forward.Stop()
	}
	_ = s.logger.Sync()
}
