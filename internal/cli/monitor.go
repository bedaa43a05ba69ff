package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/kubesentry/internal/investigate"
	"github.com/ppiankov/kubesentry/internal/monitor"
	"github.com/ppiankov/kubesentry/internal/publish"
	"github.com/ppiankov/kubesentry/internal/report"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch cluster health and investigate automatically when it degrades",
	Long: `Monitor polls the cluster every --check-interval and prints one status line per check.

Detected issues:
  • CrashLoopBackOff, ImagePullBackOff and other stuck containers
  • Containers terminated with a non-zero exit code
  • Pods pending for more than 30 seconds
  • NotReady nodes and node pressure conditions
  • Warning events (FailedScheduling, FailedMount, Unhealthy, ...)

When the cluster is unhealthy and --auto-investigate is on, an investigation
runs in the background (at most one at a time, at most one every 30s) and
its report is saved to --reports-dir.

Examples:
  # Monitor all namespaces every 30s
  kubesentry monitor

  # Deterministic investigations only
  kubesentry monitor --safe-mode

  # AI-assisted analysis with a local model, streamed to a dashboard
  kubesentry monitor --llm-endpoint http://localhost:11434/v1 --llm-model mixtral:8x22b \
    --backend-url http://localhost:8001

  # Expose Prometheus metrics
  kubesentry monitor --metrics-addr :9102`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	f := monitorCmd.Flags()
	f.Duration("check-interval", monitor.DefaultCheckInterval, "time between health checks")
	f.Bool("auto-investigate", true, "launch an investigation when the cluster is unhealthy")
	f.String("backend-url", "", "dashboard backend for logs and status (http(s):// or ws(s)://)")
	f.String("agent-id", publish.DefaultAgentID, "agent id reported to the dashboard")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
	bindFlags(f)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	logger := sess.logger

	pub, err := publish.New(viper.GetString("backend-url"), publish.DefaultTimeout, logger.With(zap.String("component", "publisher")))
	if err != nil {
		return err
	}
	defer pub.Close()
	streamer := publish.NewStreamer(pub, viper.GetString("agent-id"), nil)

	// steps are published as they finish, without holding up the pipeline
	observer := func(step report.InvestigationStep) {
		pctx, cancel := context.WithTimeout(context.Background(), publish.DefaultTimeout)
		defer cancel()
		_ = streamer.StepRecorded(pctx, step)
	}
	inv := sess.newInvestigator(observer)

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	m, err := monitor.New(monitor.Config{
		Collector:       sess.collector,
		Investigator:    inv,
		Store:           report.NewStore(viper.GetString("reports-dir")),
		Streamer:        streamer,
		Out:             cmd.OutOrStdout(),
		Logger:          logger,
		Initiator:       &sess.identity,
		Namespace:       GetNamespace(),
		CheckInterval:   viper.GetDuration("check-interval"),
		AutoInvestigate: viper.GetBool("auto-investigate"),
		SafeMode:        viper.GetBool("safe-mode"),
	})
	if err != nil {
		return err
	}

	printBanner(cmd, inv)
	if err := m.Run(ctx); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if n := pub.Pending(); n > 0 {
		logger.Warn("undelivered log entries dropped at exit", zap.Int("pending", n))
	}
	return nil
}

func printBanner(cmd *cobra.Command, inv *investigate.Investigator) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🤖 kubesentry autonomous monitor")
	fmt.Fprintf(out, "   Investigator: %s\n", inv.Type())
	ns := GetNamespace()
	if ns == "" {
		ns = "all namespaces"
	}
	fmt.Fprintf(out, "   Namespace:    %s\n", ns)
	fmt.Fprintf(out, "   Reports:      %s\n", viper.GetString("reports-dir"))
	if url := viper.GetString("backend-url"); url != "" {
		fmt.Fprintf(out, "   Streaming to: %s\n", url)
	}
	fmt.Fprintln(out, "   Press Ctrl+C to stop")
	fmt.Fprintln(out)
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
