// Package notify delivers outbound chat messages and feedback emails.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Messenger delivers a text message to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// WebhookConfig configures delivery through the chat gateway.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// WebhookMessenger posts messages as JSON to the chat gateway.
type WebhookMessenger struct {
	client *http.Client
	url    string
	token  string
}

type webhookMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewWebhookMessenger builds a WebhookMessenger.
func NewWebhookMessenger(cfg WebhookConfig) (*WebhookMessenger, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, errors.New("messenger webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookMessenger{
		client: &http.Client{Timeout: timeout},
		url:    target,
		token:  strings.TrimSpace(cfg.Token),
	}, nil
}

// Send posts one HTML-formatted message.
func (m *WebhookMessenger) Send(ctx context.Context, chatID, text string) error {
	body, err := sonic.Marshal(webhookMessage{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send chat message: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// LogMessenger writes messages to the log instead of delivering them.
type LogMessenger struct {
	logger *zap.Logger
}

// NewLogMessenger returns a LogMessenger.
func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMessenger{logger: logger.Named("messenger")}
}

// Send logs the message.
func (m *LogMessenger) Send(_ context.Context, chatID, text string) error {
	m.logger.Info("chat message", zap.String("chat_id", chatID), zap.String("text", text))
	return nil
}

// SentMessage captures one Send call.
type SentMessage struct {
	ChatID string
	Text   string
}

// MemoryMessenger records messages for inspection.
type MemoryMessenger struct {
	mu       sync.RWMutex
	messages []SentMessage
}

// NewMemoryMessenger returns an empty MemoryMessenger.
func NewMemoryMessenger() *MemoryMessenger {
	return &MemoryMessenger{}
}

// Send records the message.
func (m *MemoryMessenger) Send(_ context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, SentMessage{ChatID: chatID, Text: text})
	return nil
}

// Messages returns the recorded messages.
func (m *MemoryMessenger) Messages() []SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SentMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
