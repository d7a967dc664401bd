package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/teach"
	"github.com/redinc23/hathor-red/internal/types"
)

var askRepo string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question answered from indexed lessons",
	Long: `Ask a question and get an answer grounded in the lessons the
guardian has learned from past failures.

With a question argument the answer prints once. Without one, an
interactive console opens.

Examples:
  hathor ask "why does the release workflow keep timing out?"
  hathor ask --repo acme/widgets "which tests are flaky?"
  hathor ask`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logger := newLogger()
		engine := buildTeach(cfg, logger)
		ctx := context.Background()

		if len(args) > 0 {
			askOnce(ctx, engine, strings.Join(args, " "))
			return
		}
		askConsole(ctx, engine)
	},
}

func init() {
	askCmd.Flags().StringVar(&askRepo, "repo", "", "Scope answers to one owner/repo (default: all repositories)")
	rootCmd.AddCommand(askCmd)
}

func askOnce(ctx context.Context, engine *teach.Engine, question string) {
	answer, err := engine.AnswerQuestion(ctx, askRepo, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printAnswer(answer)
}

func askConsole(ctx context.Context, engine *teach.Engine) {
	cyan := color.New(color.FgCyan).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("hathor> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create console: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("Ask about past failures. Type 'exit' or Ctrl+D to leave.")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		answer, err := engine.AnswerQuestion(ctx, askRepo, line)
		if err != nil {
			fmt.Printf("%s %v\n", red("Error:"), err)
			continue
		}
		printAnswer(answer)
	}
}

func printAnswer(answer *types.Answer) {
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", answer.Text)

	confColor := color.New(color.FgGreen).SprintFunc()
	switch {
	case answer.Confidence < 0.3:
		confColor = color.New(color.FgRed).SprintFunc()
	case answer.Confidence < 0.7:
		confColor = color.New(color.FgYellow).SprintFunc()
	}
	fmt.Printf("%s %s\n", gray("confidence:"), confColor(fmt.Sprintf("%.0f%%", answer.Confidence*100)))

	if len(answer.Sources) > 0 {
		fmt.Printf("%s %s\n", gray("sources:"), gray(strings.Join(answer.Sources, ", ")))
	}
	fmt.Println()
}
