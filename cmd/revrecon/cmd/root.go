// Package cmd wires the revrecon command tree: serve runs the HTTP API,
// reconcile runs one session end to end from CSV files, generate emits the
// synthetic demo dataset, and template prints the table skeletons.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"revenue-reconciliation-service/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "revrecon",
	Short: "Revenue reconciliation service",
	Long: `Revrecon reconciles CRM accounts against billing data: it links the two
entity populations, slices subscriptions into monthly revenue segments,
allocates invoices and credit notes onto them, classifies every variance,
and scores the structural integrity of the book.

Examples:
  revrecon serve --addr :8080
  revrecon reconcile --accounts accounts.csv --customers customers.csv \
    --subscriptions subs.csv --invoices invoices.csv --payments payments.csv
  revrecon generate --output-dir ./demo
  revrecon template subscriptions`,
	Version: versionString(),
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return handleError(err)
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("REVRECON")
	viper.AutomaticEnv()

	if viper.GetBool("verbose") {
		if log, err := logger.NewLogger(logger.DebugConfig()); err == nil {
			logger.SetGlobalLogger(log)
		}
	}
}

// SetVersionInfo stamps build metadata onto the root command.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = versionString()
}

func versionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
