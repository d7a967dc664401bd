package config

import (
	"strings"
	"testing"
)

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()

	if cfg.EventRetentionDays != 30 {
		t.Errorf("Expected EventRetentionDays to be 30, got %d", cfg.EventRetentionDays)
	}
	if cfg.GlobalLimitEvents != 100000 {
		t.Errorf("Expected GlobalLimitEvents to be 100000, got %d", cfg.GlobalLimitEvents)
	}
	if cfg.CleanupIntervalHours != 24 {
		t.Errorf("Expected CleanupIntervalHours to be 24, got %d", cfg.CleanupIntervalHours)
	}
	if cfg.CleanupBatchSize != 1000 {
		t.Errorf("Expected CleanupBatchSize to be 1000, got %d", cfg.CleanupBatchSize)
	}
	if !cfg.CleanupEnabled {
		t.Error("Expected CleanupEnabled to be true")
	}
}

func TestRetentionConfigValidate(t *testing.T) {
	valid := DefaultRetentionConfig()

	tests := []struct {
		name    string
		mutate  func(*RetentionConfig)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			mutate:  func(c *RetentionConfig) {},
			wantErr: false,
		},
		{
			name: "valid config at minimum bounds",
			mutate: func(c *RetentionConfig) {
				c.EventRetentionDays = 1
				c.GlobalLimitEvents = 1000
				c.CleanupIntervalHours = 1
				c.CleanupBatchSize = 100
			},
			wantErr: false,
		},
		{
			name: "valid config at maximum bounds",
			mutate: func(c *RetentionConfig) {
				c.EventRetentionDays = 365
				c.GlobalLimitEvents = 1000000
				c.CleanupIntervalHours = 168
				c.CleanupBatchSize = 10000
			},
			wantErr: false,
		},
		{
			name:    "retention days zero",
			mutate:  func(c *RetentionConfig) { c.EventRetentionDays = 0 },
			wantErr: true,
		},
		{
			name:    "retention days too high",
			mutate:  func(c *RetentionConfig) { c.EventRetentionDays = 366 },
			wantErr: true,
		},
		{
			name:    "global limit too low",
			mutate:  func(c *RetentionConfig) { c.GlobalLimitEvents = 999 },
			wantErr: true,
		},
		{
			name:    "global limit too high",
			mutate:  func(c *RetentionConfig) { c.GlobalLimitEvents = 1000001 },
			wantErr: true,
		},
		{
			name:    "interval zero",
			mutate:  func(c *RetentionConfig) { c.CleanupIntervalHours = 0 },
			wantErr: true,
		},
		{
			name:    "interval too high",
			mutate:  func(c *RetentionConfig) { c.CleanupIntervalHours = 169 },
			wantErr: true,
		},
		{
			name:    "batch size too small",
			mutate:  func(c *RetentionConfig) { c.CleanupBatchSize = 99 },
			wantErr: true,
		},
		{
			name:    "batch size too large",
			mutate:  func(c *RetentionConfig) { c.CleanupBatchSize = 10001 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetentionConfigString(t *testing.T) {
	str := DefaultRetentionConfig().String()
	expected := "RetentionConfig{EventRetentionDays: 30, GlobalLimit: 100000, CleanupInterval: 24h, BatchSize: 1000, Enabled: true}"
	if str != expected {
		t.Errorf("Expected String() to return %q, got %q", expected, str)
	}
}

func TestRetentionConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    RetentionConfig
		wantErr string
	}{
		{
			name: "defaults when no env vars",
			env:  map[string]string{},
			want: DefaultRetentionConfig(),
		},
		{
			name: "custom valid values",
			env: map[string]string{
				"HATHOR_EVENT_RETENTION_DAYS":   "7",
				"HATHOR_EVENT_GLOBAL_LIMIT":     "5000",
				"HATHOR_CLEANUP_INTERVAL_HOURS": "6",
				"HATHOR_CLEANUP_BATCH_SIZE":     "500",
				"HATHOR_CLEANUP_ENABLED":        "false",
			},
			want: RetentionConfig{
				EventRetentionDays:   7,
				GlobalLimitEvents:    5000,
				CleanupIntervalHours: 6,
				CleanupBatchSize:     500,
				CleanupEnabled:       false,
			},
		},
		{
			name: "non-numeric value",
			env: map[string]string{
				"HATHOR_EVENT_RETENTION_DAYS": "soon",
			},
			wantErr: "HATHOR_EVENT_RETENTION_DAYS",
		},
		{
			name: "invalid bool",
			env: map[string]string{
				"HATHOR_CLEANUP_ENABLED": "yes please",
			},
			wantErr: "HATHOR_CLEANUP_ENABLED",
		},
		{
			name: "out of range value fails validation",
			env: map[string]string{
				"HATHOR_EVENT_RETENTION_DAYS": "9999",
			},
			wantErr: "invalid retention configuration",
		},
	}

	keys := []string{
		"HATHOR_EVENT_RETENTION_DAYS",
		"HATHOR_EVENT_GLOBAL_LIMIT",
		"HATHOR_CLEANUP_INTERVAL_HOURS",
		"HATHOR_CLEANUP_BATCH_SIZE",
		"HATHOR_CLEANUP_ENABLED",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range keys {
				t.Setenv(key, "")
			}
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg, err := RetentionConfigFromEnv()
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected an error mentioning %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg != tt.want {
				t.Errorf("RetentionConfigFromEnv() = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}
