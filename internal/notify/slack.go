package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redinc23/hathor-red/internal/config"
)

const slackTimeout = 10 * time.Second

// Slack posts messages to an incoming webhook. The webhook is bound to a
// workspace at install time; the channel field in the payload routes
// within it.
type Slack struct {
	url     string
	channel string
	client  *http.Client
}

var _ Notifier = (*Slack)(nil)

// NewSlack builds the webhook sender. The URL comes from the environment
// variable named in cfg.
func NewSlack(cfg *config.NotifyConfig) (*Slack, error) {
	url := cfg.WebhookURL()
	if url == "" {
		return nil, fmt.Errorf("slack webhook url is not set")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "#ci-alerts"
	}
	return &Slack{
		url:     url,
		channel: channel,
		client:  &http.Client{Timeout: slackTimeout},
	}, nil
}

// SendPersonal mentions the recipient in the default channel. Incoming
// webhooks cannot open direct messages.
func (s *Slack) SendPersonal(ctx context.Context, to, subject, body string) error {
	text := fmt.Sprintf("@%s *%s*\n%s", to, subject, body)
	return s.post(ctx, s.channel, text)
}

// SendChannel posts to the named channel, falling back to the default.
func (s *Slack) SendChannel(ctx context.Context, channel, message string) error {
	if channel == "" {
		channel = s.channel
	}
	return s.post(ctx, channel, message)
}

func (s *Slack) post(ctx context.Context, channel, text string) error {
	body, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
