package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write the default configuration to the path given by --config.

The file documents every setting. Secrets are referenced by environment
variable name and never stored in the file itself.

Example:
  hathor init
  hathor init --config /etc/hathor/hathor.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(configPath); err == nil && !initForce {
			fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", configPath)
			os.Exit(1)
		}

		if err := config.SaveDefault(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote %s\n", green("✓"), configPath)
		fmt.Println("\nNext steps:")
		fmt.Println("  1. Export HATHOR_WEBHOOK_SECRET and GITHUB_TOKEN (or the App private key)")
		fmt.Println("  2. Point a workflow_run webhook at POST /webhook")
		fmt.Println("  3. Run 'hathor serve'")
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
	rootCmd.AddCommand(initCmd)
}
