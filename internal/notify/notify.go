// Package notify delivers guardian messages to humans. The slack backend
// posts to an incoming webhook; memory records for tests; none drops
// everything so the guardian can run without a workspace configured.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/redinc23/hathor-red/internal/config"
)

// Notifier sends messages to a person or a channel.
type Notifier interface {
	// SendPersonal delivers a message addressed to one person.
	SendPersonal(ctx context.Context, to, subject, body string) error

	// SendChannel delivers a message to a team channel. An empty channel
	// means the configured default.
	SendChannel(ctx context.Context, channel, message string) error
}

// New builds the backend named by cfg.
func New(cfg *config.NotifyConfig) (Notifier, error) {
	switch cfg.Backend {
	case "slack":
		return NewSlack(cfg)
	case "memory":
		return NewMemory(), nil
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown notify backend: %q", cfg.Backend)
	}
}

// Nop drops every message.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) SendPersonal(context.Context, string, string, string) error { return nil }
func (Nop) SendChannel(context.Context, string, string) error          { return nil }

// PersonalMessage is one recorded SendPersonal call.
type PersonalMessage struct {
	To      string
	Subject string
	Body    string
}

// ChannelMessage is one recorded SendChannel call.
type ChannelMessage struct {
	Channel string
	Message string
}

// Memory records messages for test assertions.
type Memory struct {
	mu sync.Mutex

	Personal []PersonalMessage
	Channel  []ChannelMessage

	// Err, when set, is returned by every send.
	Err error
}

var _ Notifier = (*Memory)(nil)

// NewMemory returns an empty recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SendPersonal(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Personal = append(m.Personal, PersonalMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (m *Memory) SendChannel(_ context.Context, channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Channel = append(m.Channel, ChannelMessage{Channel: channel, Message: message})
	return nil
}
