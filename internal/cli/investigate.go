package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/investigate"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/monitor"
	"github.com/ppiankov/kubesentry/internal/report"
	"github.com/ppiankov/kubesentry/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var investigateConfig struct {
	noSave   bool
	exitCode bool
}

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Run one investigation now and print the report",
	Long: `Investigate takes a health snapshot, then runs the full investigation pipeline
once, regardless of cluster health, and prints the text report.

Examples:
  # Deterministic investigation of one namespace
  kubesentry investigate --safe-mode -n production

  # Let a model plan the steps and analyze issues
  kubesentry investigate --llm-endpoint http://localhost:11434/v1 --llm-model mixtral:8x22b

  # Fail CI when critical or high findings exist
  kubesentry investigate --exit-code`,
	RunE: runInvestigate,
}

func init() {
	rootCmd.AddCommand(investigateCmd)

	investigateCmd.Flags().BoolVar(&investigateConfig.noSave, "no-save", false, "print the report without saving it")
	investigateCmd.Flags().BoolVar(&investigateConfig.exitCode, "exit-code", false, "exit 1 when the report has critical or high findings")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, monitor.DefaultInvestigationTimeout)
	defer cancel()

	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	observer := func(step report.InvestigationStep) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Step %d: %s (%.2fs)\n", step.Status.Icon(), step.StepNumber, step.Action, step.DurationSeconds)
	}
	inv := sess.newInvestigator(observer)

	triggers := triggerIssues(ctx, sess.collector, sess.logger)
	fmt.Fprintf(cmd.ErrOrStderr(), "🔎 Starting %s investigation (%d issues detected)\n", inv.Type(), len(triggers))

	r := inv.Investigate(ctx, investigate.Request{
		Namespace:     GetNamespace(),
		TriggerIssues: triggers,
		Initiator:     &sess.identity,
	})

	if !investigateConfig.noSave {
		saved, err := report.NewStore(viper.GetString("reports-dir")).Save(r)
		if err != nil {
			sess.logger.Error("report not saved", zap.Error(err))
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "📄 Report saved: %s\n", saved.TextPath)
		}
	}

	if err := report.RenderText(out, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if investigateConfig.exitCode && hasUrgentFindings(r) {
		sess.Close()
		util.Exit(util.ExitIssuesFound)
	}
	return nil
}

// triggerIssues runs one detection pass so the report lists what prompted
// it. A failed snapshot is not fatal: the pipeline records its own errors.
func triggerIssues(ctx context.Context, c cluster.Collector, logger *zap.Logger) []models.Issue {
	qctx, cancel := context.WithTimeout(ctx, cluster.DefaultQueryTimeout)
	defer cancel()
	snap, err := cluster.TakeSnapshot(qctx, c, GetNamespace(), time.Now())
	if err != nil {
		logger.Warn("health snapshot failed", zap.Error(err))
		return nil
	}
	return detector.Detect(snap)
}

func hasUrgentFindings(r *report.Report) bool {
	return r.Status == report.StatusCritical || r.Status == report.StatusHigh
}
