package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "hathor",
	Short: "CI failure triage and repository health guardian",
	Long: `Hathor watches your repositories from two directions.

Reactively, it receives workflow_run webhooks, files exactly one tracking
issue per distinct failure fingerprint, and attempts safe automated fixes.

Proactively, its guardian angel performs periodic checkups: oracles divine
health signals from run history, interventions quarantine flaky tests and
file dependency reports, and every failure becomes a lesson the team can
query later.

Start with 'hathor init' to write a configuration file, then 'hathor serve'
for the webhook receiver or 'hathor angel' for the checkup loop.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hathor version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hathor %s (%s)\n", version, runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hathor.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and detailed output")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
