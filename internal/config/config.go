// Package config loads the YAML configuration for the hathor service.
// Secrets never live in the file itself: config fields name the
// environment variables that hold them, and the accessors resolve those
// at construction time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from hathor.yaml.
type Config struct {
	Guardian GuardianConfig `yaml:"guardian"`
	GitHub   GitHubConfig   `yaml:"github"`
	Server   ServerConfig   `yaml:"server"`
	State    StateConfig    `yaml:"state"`
	Angel    AngelConfig    `yaml:"angel"`
	ML       MLConfig       `yaml:"ml"`
	Notify   NotifyConfig   `yaml:"notify"`
	Vector   VectorConfig   `yaml:"vector"`
}

// GuardianConfig configures the reactive triage pipeline.
type GuardianConfig struct {
	// IssuePrefix is prepended to every tracking issue title.
	IssuePrefix string `yaml:"issue_prefix"`

	// IssueHeader is the first line of every tracking issue body.
	IssueHeader string `yaml:"issue_header"`

	// IssueLabels are applied to every tracking issue.
	IssueLabels []string `yaml:"issue_labels"`

	// AutofixEnabled turns on the remediation pass after issue filing.
	AutofixEnabled bool `yaml:"autofix_enabled"`

	// AutofixConfidenceThreshold is the minimum confidence a remediation
	// must report before it is applied automatically.
	AutofixConfidenceThreshold float64 `yaml:"autofix_confidence_threshold"`
}

// GitHubConfig configures the GitHub App identity and client behavior.
type GitHubConfig struct {
	// AppID is the GitHub App identifier used to mint installation tokens.
	AppID int64 `yaml:"app_id"`

	// PrivateKeyEnv names the environment variable holding the PEM-encoded
	// App private key.
	PrivateKeyEnv string `yaml:"private_key_env"`

	// TokenEnv names the environment variable holding a personal access
	// token, used instead of App auth when AppID is zero.
	TokenEnv string `yaml:"token_env"`

	// BaseURL is the API root, overridable for GitHub Enterprise.
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds every outbound API call, e.g. "30s".
	RequestTimeout string `yaml:"request_timeout"`

	// RequestsPerSecond caps the sustained API call rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	RequestTimeoutDuration time.Duration `yaml:"-"`
}

// PrivateKey resolves the App private key from the environment.
func (c *GitHubConfig) PrivateKey() []byte {
	if c.PrivateKeyEnv == "" {
		return nil
	}
	return []byte(os.Getenv(c.PrivateKeyEnv))
}

// Token resolves the personal access token from the environment.
func (c *GitHubConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// WebhookSecretEnv names the environment variable holding the shared
	// webhook secret used for signature verification.
	WebhookSecretEnv string `yaml:"webhook_secret_env"`
}

// WebhookSecret resolves the shared webhook secret from the environment.
func (c *ServerConfig) WebhookSecret() []byte {
	if c.WebhookSecretEnv == "" {
		return nil
	}
	return []byte(os.Getenv(c.WebhookSecretEnv))
}

// StateConfig selects and configures the state store backend.
type StateConfig struct {
	// Backend is "sqlite", "postgres", or "memory".
	Backend string `yaml:"backend"`

	// Path is the database file for the sqlite backend.
	Path string `yaml:"path,omitempty"`

	// DSNEnv names the environment variable holding the Postgres
	// connection string.
	DSNEnv string `yaml:"dsn_env,omitempty"`

	// TTL bounds how long idempotency and fingerprint records live,
	// e.g. "30d".
	TTL string `yaml:"ttl"`

	TTLDuration time.Duration `yaml:"-"`
}

// DSN resolves the Postgres connection string from the environment.
func (c *StateConfig) DSN() string {
	if c.DSNEnv == "" {
		return ""
	}
	return os.Getenv(c.DSNEnv)
}

// AngelConfig configures the proactive checkup loop.
type AngelConfig struct {
	// CheckupInterval is the period between checkups, e.g. "24h".
	CheckupInterval string `yaml:"checkup_interval"`

	// HistoryDays bounds how far back the run history window reaches.
	HistoryDays int `yaml:"history_days"`

	// MaxRuns caps the number of runs fetched per checkup.
	MaxRuns int `yaml:"max_runs"`

	// MaxCheckSHAs caps how many distinct head commits are queried for
	// check-run outcomes per checkup.
	MaxCheckSHAs int `yaml:"max_check_shas"`

	// InterventionWindow is how long an executed intervention suppresses
	// repeats for the same signal, e.g. "7d".
	InterventionWindow string `yaml:"intervention_window"`

	// MaxConcurrentOracles bounds oracle parallelism within one checkup.
	MaxConcurrentOracles int `yaml:"max_concurrent_oracles"`

	CheckupIntervalDuration    time.Duration `yaml:"-"`
	InterventionWindowDuration time.Duration `yaml:"-"`
}

// MLConfig selects and configures the ML engine.
type MLConfig struct {
	// Provider is "anthropic" or "heuristic".
	Provider string `yaml:"provider"`

	// Model is the Anthropic model identifier.
	Model string `yaml:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// MaxTokens caps completion length.
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// APIKey resolves the Anthropic API key from the environment.
func (c *MLConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// NotifyConfig selects and configures the notification backend.
type NotifyConfig struct {
	// Backend is "slack", "memory", or "none".
	Backend string `yaml:"backend"`

	// WebhookURLEnv names the environment variable holding the Slack
	// incoming-webhook URL.
	WebhookURLEnv string `yaml:"webhook_url_env,omitempty"`

	// Channel is the default channel for team-wide notifications.
	Channel string `yaml:"channel"`
}

// WebhookURL resolves the Slack webhook URL from the environment.
func (c *NotifyConfig) WebhookURL() string {
	if c.WebhookURLEnv == "" {
		return ""
	}
	return os.Getenv(c.WebhookURLEnv)
}

// VectorConfig selects and configures the lesson/failure index.
type VectorConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the database file for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// Load reads, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks field values and resolves duration strings. It must be
// called before the typed duration fields are read.
func (c *Config) Validate() error {
	if c.Guardian.AutofixConfidenceThreshold < 0 || c.Guardian.AutofixConfidenceThreshold > 1 {
		return fmt.Errorf("guardian.autofix_confidence_threshold must be between 0 and 1 (got %g)",
			c.Guardian.AutofixConfidenceThreshold)
	}

	switch c.State.Backend {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown state backend: %q", c.State.Backend)
	}
	switch c.ML.Provider {
	case "anthropic", "heuristic":
	default:
		return fmt.Errorf("unknown ml provider: %q", c.ML.Provider)
	}
	switch c.Notify.Backend {
	case "slack", "memory", "none":
	default:
		return fmt.Errorf("unknown notify backend: %q", c.Notify.Backend)
	}
	switch c.Vector.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown vector backend: %q", c.Vector.Backend)
	}

	var err error
	if c.GitHub.RequestTimeoutDuration, err = parseDuration(c.GitHub.RequestTimeout); err != nil {
		return fmt.Errorf("invalid github.request_timeout %q: %w", c.GitHub.RequestTimeout, err)
	}
	if c.State.TTLDuration, err = parseDuration(c.State.TTL); err != nil {
		return fmt.Errorf("invalid state.ttl %q: %w", c.State.TTL, err)
	}
	if c.Angel.CheckupIntervalDuration, err = parseDuration(c.Angel.CheckupInterval); err != nil {
		return fmt.Errorf("invalid angel.checkup_interval %q: %w", c.Angel.CheckupInterval, err)
	}
	if c.Angel.InterventionWindowDuration, err = parseDuration(c.Angel.InterventionWindow); err != nil {
		return fmt.Errorf("invalid angel.intervention_window %q: %w", c.Angel.InterventionWindow, err)
	}

	if c.Angel.HistoryDays <= 0 {
		return fmt.Errorf("angel.history_days must be positive (got %d)", c.Angel.HistoryDays)
	}
	if c.Angel.MaxConcurrentOracles <= 0 {
		return fmt.Errorf("angel.max_concurrent_oracles must be positive (got %d)", c.Angel.MaxConcurrentOracles)
	}
	return nil
}

// parseDuration extends time.ParseDuration to support days and weeks.
func parseDuration(s string) (time.Duration, error) {
	var days int
	if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	var weeks int
	if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

// DefaultConfig returns the configuration used when a field is absent from
// the file.
func DefaultConfig() *Config {
	return &Config{
		Guardian: GuardianConfig{
			IssuePrefix:                "[Hathor] ",
			IssueHeader:                "Automated CI triage",
			IssueLabels:                []string{"ci-failure", "automated"},
			AutofixEnabled:             false,
			AutofixConfidenceThreshold: 0.9,
		},
		GitHub: GitHubConfig{
			PrivateKeyEnv:     "HATHOR_GITHUB_PRIVATE_KEY",
			TokenEnv:          "GITHUB_TOKEN",
			BaseURL:           "https://api.github.com",
			RequestTimeout:    "30s",
			RequestsPerSecond: 5,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			WebhookSecretEnv: "HATHOR_WEBHOOK_SECRET",
		},
		State: StateConfig{
			Backend: "sqlite",
			Path:    "hathor.db",
			DSNEnv:  "HATHOR_POSTGRES_DSN",
			TTL:     "30d",
		},
		Angel: AngelConfig{
			CheckupInterval:      "24h",
			HistoryDays:          90,
			MaxRuns:              200,
			MaxCheckSHAs:         20,
			InterventionWindow:   "7d",
			MaxConcurrentOracles: 4,
		},
		ML: MLConfig{
			Provider:  "heuristic",
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 4096,
		},
		Notify: NotifyConfig{
			Backend:       "none",
			WebhookURLEnv: "HATHOR_SLACK_WEBHOOK_URL",
			Channel:       "#ci-alerts",
		},
		Vector: VectorConfig{
			Backend: "sqlite",
			Path:    "hathor-vectors.db",
		},
	}
}

// SaveDefault writes the default configuration to a file, for bootstrapping
// a new deployment.
func SaveDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
