package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/events"
)

var activityLimit int

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent guardian events",
	Long: `Display the audit feed: triage outcomes, filed issues, proposed
remediations, checkups, interventions, lessons, and cleanup passes.

Examples:
  hathor activity
  hathor activity -n 50`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		ctx := context.Background()

		store, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening state store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		eventList, err := store.RecentEvents(ctx, activityLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
			os.Exit(1)
		}

		if len(eventList) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No guardian events recorded yet\n\n", yellow("ⓘ"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Recent Activity (%d events):\n\n", cyan("▶"), len(eventList))

		// Oldest first, so the feed reads top to bottom.
		for i := len(eventList) - 1; i >= 0; i-- {
			displayEvent(eventList[i])
		}
		fmt.Println()
	},
}

func init() {
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "n", 20, "Number of recent events to show")
	rootCmd.AddCommand(activityCmd)
}

func displayEvent(event *events.GuardianEvent) {
	severityColor := color.New(color.FgHiBlack)
	icon := "·"
	switch event.Severity {
	case events.SeverityWarning:
		severityColor = color.New(color.FgYellow)
		icon = "!"
	case events.SeverityError:
		severityColor = color.New(color.FgRed)
		icon = "✗"
	}

	repo := ""
	if event.Owner != "" {
		repo = color.New(color.FgGreen).Sprintf(" %s/%s", event.Owner, event.Repo)
	}
	eventType := color.New(color.FgMagenta).Sprint(event.Type)

	fmt.Printf("%s [%s]%s %s: %s\n",
		severityColor.Sprint(icon),
		event.Timestamp.Format("15:04:05"),
		repo,
		eventType,
		truncateString(event.Message, 80),
	)
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
