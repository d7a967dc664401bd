package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var curriculumCmd = &cobra.Command{
	Use:   "curriculum team-id",
	Short: "Generate a learning curriculum from a team's failure history",
	Long: `Cluster the team's recent failures by root cause and print one
learning module per cluster, sized by how often that cause recurred.

Lessons accumulate in the vector index as the guardian triages failures,
so the curriculum improves the longer hathor runs.

Example:
  hathor curriculum platform`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logger := newLogger()
		engine := buildTeach(cfg, logger)

		curriculum, err := engine.GenerateCurriculum(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Curriculum for %s ===", curriculum.TeamID)))

		if len(curriculum.Modules) == 0 {
			fmt.Printf("%s No failure history indexed for this team yet.\n", gray("ⓘ"))
			return
		}

		for i, module := range curriculum.Modules {
			fmt.Printf("%s %s\n", yellow(fmt.Sprintf("%d.", i+1)), module.Title)
			fmt.Printf("   %s\n", gray(module.Description))
			for _, exercise := range module.Exercises {
				fmt.Printf("   - %s\n", exercise)
			}
			fmt.Printf("   %s\n\n", gray(fmt.Sprintf("estimated %.1f hours", module.EstimatedHours)))
		}

		fmt.Printf("Total: %.1f hours across %d modules\n",
			curriculum.TotalHours(), len(curriculum.Modules))
	},
}

func init() {
	rootCmd.AddCommand(curriculumCmd)
}
