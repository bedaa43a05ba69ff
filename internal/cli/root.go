package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/kubesentry/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "0.2.0"

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kubesentry",
	Short: "Autonomous Kubernetes health monitor with multi-step investigations",
	Long: `kubesentry watches a Kubernetes cluster and investigates when it turns unhealthy:

• Health loop: polls pods, nodes and events, detects issues, prints a status line
• Investigations: a 9-step pipeline that gathers evidence and writes a report
• Safe mode: deterministic steps only, no calls to a language model
• Streaming: status and log entries pushed to a dashboard over HTTP or WebSocket

Commands:
  monitor      run the health loop with automatic investigations
  investigate  run one investigation now and print the report
  reports      list and show saved reports`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Disable default completion command
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kubesentry.yaml)")
	pf.String("kubeconfig", "", "path to kubeconfig file (default is $KUBECONFIG, in-cluster, then $HOME/.kube/config)")
	pf.StringP("namespace", "n", "", "kubernetes namespace to watch (default is all namespaces)")
	pf.BoolP("verbose", "v", false, "debug logging (same as --log-level debug)")
	pf.String("log-level", "info", "log level: debug|info|warn|error")
	pf.String("log-file", "", "also write JSON logs to this file (rotated)")
	pf.String("reports-dir", "reports", "directory for investigation reports")

	// Investigation settings shared by monitor and investigate
	pf.Bool("safe-mode", false, "deterministic investigations only, never call the language model")
	pf.String("llm-endpoint", "", "OpenAI-compatible endpoint (e.g., http://localhost:11434/v1); empty disables AI analysis")
	pf.String("llm-model", "", "model name (e.g., mixtral:8x22b, gpt-4.1-mini)")
	pf.String("llm-api-key", "", "LLM API key (optional for local models; falls back to $OPENAI_API_KEY)")
	pf.Float64("llm-rps", 1, "max LLM requests per second (0 disables throttling)")
	pf.String("knowledge-dir", "", "directory of markdown runbooks used during analysis")
	pf.String("prometheus-url", "", "Prometheus base URL for cluster utilisation")
	pf.String("prometheus-service", "", "reach Prometheus by port-forwarding to namespace/service:port")

	bindFlags(pf)
}

// bindFlags binds every flag to the viper key of the same name.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = viper.BindPFlag(f.Name, f)
	})
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".kubesentry" (without extension)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kubesentry")
	}

	// KUBESENTRY_CHECK_INTERVAL=10s and friends
	viper.SetEnvPrefix("KUBESENTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && IsVerbose() {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// GetKubeconfig returns the kubeconfig path from flags, env or config file
func GetKubeconfig() string {
	return viper.GetString("kubeconfig")
}

// GetNamespace returns the namespace from flags, env or config file
func GetNamespace() string {
	return viper.GetString("namespace")
}

// IsVerbose returns the verbose flag value
func IsVerbose() bool {
	return viper.GetBool("verbose")
}
