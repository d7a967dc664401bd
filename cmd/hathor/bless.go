package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/types"
)

var blessCmd = &cobra.Command{
	Use:   "bless owner/repo number",
	Short: "Assess a pull request before merge",
	Long: `Run the pre-merge blessing over one pull request.

Concerns are raised for oversized diffs, changes touching silo-owned
files, and code changes without accompanying tests. A clean change earns
praise and auto-approval. Exits non-zero when concerns were raised, so
the command works as a merge gate.

Example:
  hathor bless acme/widgets 128`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		owner, repo, err := parseRepoArg(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		number, err := strconv.Atoi(args[1])
		if err != nil || number <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid pull request number %q\n", args[1])
			os.Exit(1)
		}

		cfg := mustConfig()
		logger := newLogger()
		ctx := context.Background()

		st := buildStack(ctx, cfg, logger)
		defer st.Close()

		blessing, err := st.angel.BlessPR(ctx, owner, repo, number)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printBlessing(blessing)

		if len(blessing.Concerns) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(blessCmd)
}

func printBlessing(b *types.Blessing) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Blessing: %s/%s#%d ===", b.Owner, b.Repo, b.Number)))

	riskColor := green
	switch {
	case b.Risk >= 0.7:
		riskColor = red
	case b.Risk >= 0.3:
		riskColor = yellow
	}
	fmt.Printf("Risk: %s\n", riskColor(fmt.Sprintf("%.2f", b.Risk)))
	if b.AutoApproved {
		fmt.Printf("%s Auto-approved\n", green("✓"))
	}

	for _, praise := range b.Praises {
		fmt.Printf("%s %s\n", green("✓"), praise.Message)
	}

	if len(b.Concerns) > 0 {
		fmt.Printf("\n%s\n", yellow("Concerns:"))
		for _, concern := range b.Concerns {
			icon := yellow("!")
			if concern.Severity == "high" {
				icon = red("✗")
			}
			fmt.Printf("  %s [%s] %s\n", icon, concern.Kind, concern.Message)
			if concern.Suggestion != "" {
				fmt.Printf("    %s\n", gray(concern.Suggestion))
			}
		}
	}
	fmt.Println()
}
