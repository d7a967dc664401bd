package ml

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/redinc23/hathor-red/internal/config"
)

// DefaultModel is the model used when the config names none.
const DefaultModel = "claude-sonnet-4-5"

// defaultMaxTokens caps completions when the caller passes no budget.
const defaultMaxTokens = 4096

// Anthropic scores and synthesizes through the Claude API. All calls go
// through the retry loop and share one circuit breaker, so a failing
// upstream degrades every caller at once instead of one at a time.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	retry     RetryConfig
	circuit   *CircuitBreaker
	sem       *semaphore.Weighted
	log       *slog.Logger
}

var (
	_ Engine    = (*Anthropic)(nil)
	_ Completer = (*Anthropic)(nil)
)

// NewAnthropic builds the production engine. The API key comes from the
// environment variable named in cfg, falling back to ANTHROPIC_API_KEY.
func NewAnthropic(cfg *config.MLConfig, logger *slog.Logger) (*Anthropic, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	retry := DefaultRetryConfig()

	var circuit *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuit = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, logger)
	}

	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Anthropic{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		retry:     retry,
		circuit:   circuit,
		sem:       sem,
		log:       logger,
	}, nil
}

// HealthCheck fails while the circuit breaker is open, letting callers
// skip model-dependent work instead of queueing doomed calls.
func (a *Anthropic) HealthCheck(context.Context) error {
	if a.circuit == nil {
		return nil
	}
	state, failures, _ := a.circuit.GetMetrics()
	switch state {
	case CircuitOpen:
		return fmt.Errorf("model engine unavailable: %w (failures=%d, retry in %v)",
			ErrCircuitOpen, failures, a.retry.OpenTimeout)
	case CircuitHalfOpen:
		a.log.Info("model engine half-open, probing for recovery")
	}
	return nil
}

// PredictFailureProbability asks the model for a single probability given
// the feature bag. The response must be a bare decimal; anything else is
// an error after a best-effort token scan.
func (a *Anthropic) PredictFailureProbability(ctx context.Context, features map[string]float64) (float64, error) {
	prompt := buildPredictionPrompt(features)

	text, err := a.message(ctx, "failure-prediction", prompt, 64)
	if err != nil {
		return 0, err
	}

	p, err := parseProbability(text)
	if err != nil {
		return 0, fmt.Errorf("parsing model probability: %w", err)
	}
	return p, nil
}

// Complete returns the model's text for the prompt.
func (a *Anthropic) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	return a.message(ctx, "completion", prompt, maxTokens)
}

// message runs one Messages call under the retry loop and joins the text
// blocks of the response.
func (a *Anthropic) message(ctx context.Context, operation, prompt string, maxTokens int) (string, error) {
	var response *anthropic.Message
	err := a.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// buildPredictionPrompt renders the feature bag with sorted keys so the
// same features always produce the same prompt.
func buildPredictionPrompt(features map[string]float64) string {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("You are a CI reliability model. Given numeric features describing a repository's recent workflow runs, estimate the probability that the next run fails.\n\nFeatures:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %.4f\n", k, features[k])
	}
	b.WriteString("\nRULES:\n1. Respond with ONLY a single decimal number between 0 and 1.\n2. No explanation, no units, no markdown.\n")
	return b.String()
}

// parseProbability accepts a bare decimal, scanning the tokens when the
// model padded the number with prose. The result is clamped to [0, 1].
func parseProbability(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if p, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return clamp01(p), nil
	}
	for _, field := range strings.Fields(trimmed) {
		field = strings.Trim(field, ".,:;%")
		if p, err := strconv.ParseFloat(field, 64); err == nil {
			return clamp01(p), nil
		}
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200] + "... (truncated)"
	}
	return 0, fmt.Errorf("no number in response: %q", trimmed)
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
