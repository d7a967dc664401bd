package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redinc23/hathor-red/internal/config"
)

func slackTestConfig(t *testing.T, url string) *config.NotifyConfig {
	t.Helper()
	t.Setenv("TEST_SLACK_WEBHOOK", url)
	return &config.NotifyConfig{
		Backend:       "slack",
		WebhookURLEnv: "TEST_SLACK_WEBHOOK",
		Channel:       "#ci-alerts",
	}
}

func TestSlackSendChannel(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	slack, err := NewSlack(slackTestConfig(t, server.URL))
	require.NoError(t, err)

	err = slack.SendChannel(context.Background(), "#deploys", "release shipped")
	require.NoError(t, err)
	assert.Equal(t, "#deploys", got["channel"])
	assert.Equal(t, "release shipped", got["text"])
}

func TestSlackSendChannelDefaultsChannel(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	slack, err := NewSlack(slackTestConfig(t, server.URL))
	require.NoError(t, err)

	require.NoError(t, slack.SendChannel(context.Background(), "", "hello"))
	assert.Equal(t, "#ci-alerts", got["channel"])
}

func TestSlackSendPersonalMentionsRecipient(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	slack, err := NewSlack(slackTestConfig(t, server.URL))
	require.NoError(t, err)

	err = slack.SendPersonal(context.Background(), "rivera", "Lesson from CI", "The lint failure teaches us patience.")
	require.NoError(t, err)
	assert.Equal(t, "#ci-alerts", got["channel"])
	assert.Contains(t, got["text"], "@rivera")
	assert.Contains(t, got["text"], "*Lesson from CI*")
	assert.Contains(t, got["text"], "patience")
}

func TestSlackSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	slack, err := NewSlack(slackTestConfig(t, server.URL))
	require.NoError(t, err)

	err = slack.SendChannel(context.Background(), "#x", "boom")
	assert.ErrorContains(t, err, "HTTP 400")
}

func TestNewSlackRequiresURL(t *testing.T) {
	_, err := NewSlack(&config.NotifyConfig{Backend: "slack"})
	assert.ErrorContains(t, err, "webhook url")
}

func TestMemoryRecords(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.SendChannel(context.Background(), "#ci-alerts", "first"))
	require.NoError(t, m.SendPersonal(context.Background(), "kim", "subject", "body"))

	require.Len(t, m.Channel, 1)
	assert.Equal(t, ChannelMessage{Channel: "#ci-alerts", Message: "first"}, m.Channel[0])
	require.Len(t, m.Personal, 1)
	assert.Equal(t, PersonalMessage{To: "kim", Subject: "subject", Body: "body"}, m.Personal[0])
}

func TestMemoryErrInjection(t *testing.T) {
	m := NewMemory()
	m.Err = assert.AnError

	assert.ErrorIs(t, m.SendChannel(context.Background(), "#x", "y"), assert.AnError)
	assert.Empty(t, m.Channel)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		n, err := New(&config.NotifyConfig{Backend: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, n)
	})

	t.Run("none", func(t *testing.T) {
		n, err := New(&config.NotifyConfig{Backend: "none"})
		require.NoError(t, err)
		assert.IsType(t, Nop{}, n)
		assert.NoError(t, n.SendChannel(context.Background(), "#x", "dropped"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(&config.NotifyConfig{Backend: "carrier-pigeon"})
		assert.ErrorContains(t, err, "unknown notify backend")
	})
}
