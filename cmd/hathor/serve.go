package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redinc23/hathor-red/internal/remedy"
	"github.com/redinc23/hathor-red/internal/triage"
	"github.com/redinc23/hathor-red/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver",
	Long: `Run the HTTP server that receives workflow_run deliveries.

Routes:
  POST /webhook   signed GitHub deliveries
  GET  /health    liveness probe

Failed runs are triaged into tracking issues, optionally remediated, and
turned into lessons. Deliveries are acknowledged with 200 even when triage
fails, so GitHub's redelivery drives the retry.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logger := newLogger()
		ctx := context.Background()

		st := buildStack(ctx, cfg, logger)
		defer st.Close()

		registry := remedy.NewRegistry(cfg.Guardian.AutofixConfidenceThreshold, logger,
			remedy.Defaults(st.completer)...)

		svc, err := triage.NewService(st.github, st.store, registry, st.bus,
			cfg.Guardian, cfg.State.TTLDuration, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: building triage service: %v\n", err)
			os.Exit(1)
		}
		svc.SetTeacher(st.angel)

		handler, err := webhook.NewHandler(svc, string(cfg.Server.WebhookSecret()), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Make sure %s is set in your environment\n", cfg.Server.WebhookSecretEnv)
			os.Exit(1)
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		fmt.Printf("Webhook receiver listening on %s. Press Ctrl+C to stop.\n", cfg.Server.Addr)

		select {
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "Error: server failed: %v\n", err)
			os.Exit(1)
		case <-sigCh:
			fmt.Println("\nShutting down...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		fmt.Println("Server stopped.")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
