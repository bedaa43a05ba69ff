package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/ppiankov/kubesentry/internal/report"
	"github.com/ppiankov/kubesentry/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var reportsFormat string

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List and show saved investigation reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listReports(cmd.OutOrStdout(), report.NewStore(viper.GetString("reports-dir")))
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [latest|run-id|file]",
	Short: "Print a saved report (default: latest)",
	Long: `Show prints one saved report. The reference may be "latest", a run id,
a unique run id prefix, or a report file name without extension.

Examples:
  kubesentry reports show
  kubesentry reports show 3f2a9c1e
  kubesentry reports show latest --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := "latest"
		if len(args) == 1 {
			ref = args[0]
		}
		return showReport(cmd.OutOrStdout(), report.NewStore(viper.GetString("reports-dir")), ref, reportsFormat)
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd)
	reportsShowCmd.Flags().StringVar(&reportsFormat, "format", "text", "output format: text|json|yaml")
}

func listReports(w io.Writer, store *report.Store) error {
	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(w, "No reports in %s\n", store.Dir)
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Run ID", "Time (UTC)", "Status", "Findings", "File"})
	for _, e := range entries {
		id := e.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		table.Append([]string{
			id,
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			e.Status,
			fmt.Sprintf("%d", e.Findings),
			e.Base,
		})
	}
	table.Render()
	return nil
}

func showReport(w io.Writer, store *report.Store, ref, format string) error {
	r, err := store.Load(ref)
	if err != nil {
		return err
	}

	switch format {
	case "text", "":
		return report.RenderText(w, r)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	default:
		return fmt.Errorf("%w: --format must be text, json or yaml", util.ErrInvalidInput)
	}
}
