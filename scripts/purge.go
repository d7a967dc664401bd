// scripts/purge.go - Manual expired-record purge tool
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redinc23/hathor-red/internal/config"
	"github.com/redinc23/hathor-red/internal/state/sqlite"
)

func main() {
	ctx := context.Background()

	retention, err := config.RetentionConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading retention config: %v\n", err)
		os.Exit(1)
	}

	// Default to the sqlite path the service uses
	dbPath := "hathor.db"
	if p := os.Getenv("HATHOR_DB_PATH"); p != "" {
		dbPath = p
	}

	fmt.Printf("Connecting to database: %s\n", dbPath)

	store, err := sqlite.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Printf("Running purge (%s)...\n", retention)

	purged, err := store.PurgeExpired(ctx, retention.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error purging expired records: %v\n", err)
		os.Exit(1)
	}

	aged, err := store.CleanupEventsByAge(ctx, retention.EventRetentionDays, retention.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting old events: %v\n", err)
		os.Exit(1)
	}

	capped, err := store.CleanupEventsByGlobalLimit(ctx, retention.GlobalLimitEvents, retention.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error enforcing event limit: %v\n", err)
		os.Exit(1)
	}

	total := purged + aged + capped
	if total > 0 {
		fmt.Printf("✓ Removed %d expired record(s) and %d audit event(s)\n", purged, aged+capped)
	} else {
		fmt.Println("✓ Nothing to purge")
	}
}
