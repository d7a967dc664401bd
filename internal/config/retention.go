package config

import (
	"fmt"
	"os"
	"strconv"
)

// RetentionConfig holds configuration for guardian-event retention and the
// expired-record purge that runs alongside checkups.
type RetentionConfig struct {
	// EventRetentionDays is how long guardian audit events are kept.
	// Events older than this are eligible for deletion.
	// Default: 30, Range: 1-365
	EventRetentionDays int

	// GlobalLimitEvents caps the total number of audit events kept.
	// A safety limit against database bloat.
	// Default: 100000, Range: 1000-1000000
	GlobalLimitEvents int

	// CleanupIntervalHours is how often the purge runs.
	// Default: 24, Range: 1-168
	CleanupIntervalHours int

	// CleanupBatchSize is the number of rows deleted per transaction.
	// Larger batches are faster but hold locks longer.
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int

	// CleanupEnabled controls whether the purge runs at all.
	// Default: true
	CleanupEnabled bool
}

// DefaultRetentionConfig returns the default retention configuration.
//
// The defaults keep a month of audit history for incident review while
// bounding database growth on busy repositories.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		EventRetentionDays:   30,
		GlobalLimitEvents:    100000,
		CleanupIntervalHours: 24,
		CleanupBatchSize:     1000,
		CleanupEnabled:       true,
	}
}

// Validate checks if the configuration has valid values
func (c RetentionConfig) Validate() error {
	if c.EventRetentionDays < 1 || c.EventRetentionDays > 365 {
		return fmt.Errorf("event_retention_days must be between 1 and 365 (got %d)", c.EventRetentionDays)
	}

	if c.GlobalLimitEvents < 1000 {
		return fmt.Errorf("global_limit_events must be at least 1000 (got %d)", c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events too large (got %d, max 1000000)", c.GlobalLimitEvents)
	}

	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("cleanup_interval_hours must be at least 1 (got %d)", c.CleanupIntervalHours)
	}
	if c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours too large (got %d, max 168)", c.CleanupIntervalHours)
	}

	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)", c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)", c.CleanupBatchSize)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c RetentionConfig) String() string {
	return fmt.Sprintf(
		"RetentionConfig{EventRetentionDays: %d, GlobalLimit: %d, CleanupInterval: %dh, BatchSize: %d, Enabled: %t}",
		c.EventRetentionDays, c.GlobalLimitEvents, c.CleanupIntervalHours,
		c.CleanupBatchSize, c.CleanupEnabled,
	)
}

// RetentionConfigFromEnv creates a RetentionConfig from environment
// variables, falling back to defaults.
//
// Environment variables:
//   - HATHOR_EVENT_RETENTION_DAYS: Retention period for audit events in days (default: 30)
//   - HATHOR_EVENT_GLOBAL_LIMIT: Maximum total audit events (default: 100000)
//   - HATHOR_CLEANUP_INTERVAL_HOURS: How often to run the purge in hours (default: 24)
//   - HATHOR_CLEANUP_BATCH_SIZE: Rows to delete per transaction (default: 1000)
//   - HATHOR_CLEANUP_ENABLED: Enable automatic cleanup (default: true)
//
// Returns an error if any environment variable has an invalid value.
func RetentionConfigFromEnv() (RetentionConfig, error) {
	cfg := DefaultRetentionConfig()

	if err := parseEnvInt("HATHOR_EVENT_RETENTION_DAYS", &cfg.EventRetentionDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("HATHOR_EVENT_GLOBAL_LIMIT", &cfg.GlobalLimitEvents); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("HATHOR_CLEANUP_INTERVAL_HOURS", &cfg.CleanupIntervalHours); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("HATHOR_CLEANUP_BATCH_SIZE", &cfg.CleanupBatchSize); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("HATHOR_CLEANUP_ENABLED", &cfg.CleanupEnabled); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid retention configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
