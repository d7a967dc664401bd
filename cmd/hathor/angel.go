package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/angel"
	"github.com/redinc23/hathor-red/internal/config"
)

var angelCmd = &cobra.Command{
	Use:   "angel owner/repo [owner/repo...]",
	Short: "Run the periodic checkup loop",
	Long: `Run the guardian angel over one or more repositories.

The first checkup happens immediately; later passes follow
angel.checkup_interval. Between passes the runner purges expired ledger
records, tunable through the HATHOR_CLEANUP_* and HATHOR_EVENT_*
environment variables.

Example:
  hathor angel acme/widgets acme/gadgets`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		targets := make([]angel.Target, 0, len(args))
		for _, arg := range args {
			owner, repo, err := parseRepoArg(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			targets = append(targets, angel.Target{Owner: owner, Repo: repo})
		}

		retention, err := config.RetentionConfigFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg := mustConfig()
		logger := newLogger()
		ctx := context.Background()

		st := buildStack(ctx, cfg, logger)
		defer st.Close()

		runner, err := angel.NewRunner(st.angel, st.store, st.bus, targets,
			cfg.Angel.CheckupIntervalDuration, retention, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := runner.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		fmt.Printf("Angel watching %d repositories. Press Ctrl+C to stop.\n", len(targets))

		<-sigCh
		fmt.Println("\nStopping angel...")
		runner.Stop()
		fmt.Println("Angel stopped.")
	},
}

func init() {
	rootCmd.AddCommand(angelCmd)
}
