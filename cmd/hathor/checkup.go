package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/types"
)

var checkupCmd = &cobra.Command{
	Use:   "checkup owner/repo",
	Short: "Run a one-shot repository checkup",
	Long: `Assess one repository right now and print the health report.

The checkup fetches recent run history, divines health signals and
prophecies, executes interventions for severe signals, and prints the
scored result. Exits non-zero when the repository is unhealthy, so the
command works as a CI gate.

Examples:
  hathor checkup acme/widgets
  hathor checkup acme/widgets --verbose`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner, repo, err := parseRepoArg(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg := mustConfig()
		logger := newLogger()
		ctx := context.Background()

		st := buildStack(ctx, cfg, logger)
		defer st.Close()

		health, err := st.angel.PerformCheckup(ctx, owner, repo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printHealthReport(health)

		if !health.Healthy {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkupCmd)
}

func printHealthReport(h *types.RepositoryHealth) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Repository Health: %s/%s ===", h.Owner, h.Repo)))

	scoreColor := green
	switch {
	case h.Score < 50:
		scoreColor = red
	case h.Score <= 80:
		scoreColor = yellow
	}
	status := green("● healthy")
	if !h.Healthy {
		status = red("● needs attention")
	}
	fmt.Printf("Score:   %s  %s\n", scoreColor(fmt.Sprintf("%.1f/100", h.Score)), status)
	fmt.Printf("Branch:  %s\n", h.DefaultBranch)
	fmt.Printf("Checked: %s\n", h.CheckedAt.Format("2006-01-02 15:04:05"))

	fmt.Printf("\n%s\n", yellow("Signals:"))
	if len(h.Signals) == 0 {
		fmt.Printf("  %s No signals detected\n", green("✓"))
	}
	for _, sig := range h.Signals {
		icon := yellow("!")
		if sig.IsCritical() {
			icon = red("✗")
		}
		fmt.Printf("  %s [%s] severity %.2f, confidence %.2f\n",
			icon, sig.Dimension, sig.Severity, sig.Confidence)
		fmt.Printf("    %s\n", sig.Description)
		if sig.SuggestedAction != "" {
			fmt.Printf("    %s\n", gray("suggested: "+sig.SuggestedAction))
		}
		if verbose {
			keys := make([]string, 0, len(sig.Evidence))
			for k := range sig.Evidence {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("    %s\n", gray(fmt.Sprintf("%s: %s", k, sig.Evidence[k])))
			}
		}
	}

	if len(h.Prophecies) > 0 {
		fmt.Printf("\n%s\n", yellow("Prophecies:"))
		for _, p := range h.Prophecies {
			fmt.Printf("  %s [%s] %.0f%% within %d days\n",
				yellow("⚠"), p.Dimension, p.Probability*100, p.HorizonDays)
			fmt.Printf("    %s\n", p.Prediction)
			if verbose {
				for _, step := range p.PreventionSteps {
					fmt.Printf("    %s\n", gray("- "+step))
				}
				if p.Precedent != "" {
					fmt.Printf("    %s\n", gray("precedent: "+p.Precedent))
				}
			}
		}
	}

	if len(h.Trends) > 0 {
		fmt.Printf("\n%s\n", yellow("Trends (daily mean severity):"))
		dims := make([]string, 0, len(h.Trends))
		for dim := range h.Trends {
			dims = append(dims, string(dim))
		}
		sort.Strings(dims)
		for _, dim := range dims {
			points := h.Trends[types.HealthDimension(dim)]
			parts := make([]string, len(points))
			for i, pt := range points {
				parts[i] = fmt.Sprintf("%s %.2f", pt.Day.Format("01-02"), pt.Severity)
			}
			fmt.Printf("  %-22s %s\n", dim, strings.Join(parts, "  "))
		}
	}

	fmt.Println()
}
