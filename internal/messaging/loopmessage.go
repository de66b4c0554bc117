package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jymapp/jym/internal/models"
)

// DefaultLoopBaseURL is the LoopMessage send API endpoint.
const DefaultLoopBaseURL = "https://server.loopmessage.com/api/v1"

// LoopOpts holds configuration for the LoopMessage iMessage client.
type LoopOpts struct {
	AuthKey    string
	SecretKey  string
	SenderName string
	BaseURL    string
	HTTP       *http.Client
}

// LoopOption configures the LoopMessage client.
type LoopOption func(*LoopOpts)

// WithLoopAuthKey sets the API authorization key.
func WithLoopAuthKey(key string) LoopOption {
	return func(o *LoopOpts) { o.AuthKey = key }
}

// WithLoopSecretKey sets the API secret key.
func WithLoopSecretKey(key string) LoopOption {
	return func(o *LoopOpts) { o.SecretKey = key }
}

// WithLoopSenderName sets the dedicated sender name.
func WithLoopSenderName(name string) LoopOption {
	return func(o *LoopOpts) { o.SenderName = name }
}

// WithLoopBaseURL overrides the API endpoint, mainly for tests.
func WithLoopBaseURL(url string) LoopOption {
	return func(o *LoopOpts) { o.BaseURL = url }
}

// WithLoopHTTPClient injects the HTTP client.
func WithLoopHTTPClient(c *http.Client) LoopOption {
	return func(o *LoopOpts) { o.HTTP = c }
}

// LoopMessageClient sends iMessages through the LoopMessage gateway.
// Inbound messages arrive via webhook and are enqueued with EnqueueWebhook.
type LoopMessageClient struct {
	http       *http.Client
	baseURL    string
	authKey    string
	secretKey  string
	senderName string
	responses  chan models.InboundMessage
}

// NewLoopMessageClient creates a LoopMessage client.
func NewLoopMessageClient(opts ...LoopOption) (*LoopMessageClient, error) {
	var cfg LoopOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AuthKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("loopmessage auth key and secret key must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLoopBaseURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	return &LoopMessageClient{
		http:       cfg.HTTP,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authKey:    cfg.AuthKey,
		secretKey:  cfg.SecretKey,
		senderName: cfg.SenderName,
		responses:  make(chan models.InboundMessage, responseChannelBuffer),
	}, nil
}

// Channel identifies this service as the iMessage channel.
func (c *LoopMessageClient) Channel() models.Channel { return models.ChannelIMessage }

// ValidateAndCanonicalizeRecipient accepts a phone number or an email, the
// two contact forms iMessage addresses.
func (c *LoopMessageClient) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	trimmed := strings.TrimSpace(recipient)
	if trimmed == "" {
		return "", models.ErrEmptyRecipient
	}
	if strings.Contains(trimmed, "@") || strings.HasPrefix(trimmed, "+") {
		return trimmed, nil
	}
	return "", fmt.Errorf("imessage recipient %q must be a phone number or email", recipient)
}

// SendMessage sends an iMessage through the gateway.
func (c *LoopMessageClient) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := c.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{"recipient": canonical, "text": body}
	if c.senderName != "" {
		payload["sender_name"] = c.senderName
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message/send/", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authKey)
	req.Header.Set("Loop-Secret-Key", c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("LoopMessageClient.SendMessage failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("LoopMessageClient.SendMessage: gateway rejected message", "status", resp.StatusCode, "to", canonical)
		return fmt.Errorf("loopmessage send http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	slog.Debug("LoopMessageClient.SendMessage: sent", "to", canonical, "length", len(body))
	return nil
}

// SendTypingIndicator is a no-op; the gateway offers no typing control.
func (c *LoopMessageClient) SendTypingIndicator(ctx context.Context, to string) error {
	return nil
}

// EnqueueWebhook queues a webhook alert for the router. Only
// message_inbound alerts carry a user turn; other alert types are logged
// and dropped.
func (c *LoopMessageClient) EnqueueWebhook(hook models.LoopMessageWebhook) {
	if hook.AlertType != models.LoopAlertMessageInbound {
		slog.Debug("LoopMessageClient.EnqueueWebhook: ignoring alert", "alertType", hook.AlertType, "recipient", hook.Recipient)
		return
	}
	if hook.Recipient == "" || hook.Text == "" {
		slog.Warn("LoopMessageClient.EnqueueWebhook: incomplete inbound alert, dropping", "recipient", hook.Recipient)
		return
	}
	msg := models.InboundMessage{
		Channel:   models.ChannelIMessage,
		From:      hook.Recipient,
		ChatID:    hook.Recipient,
		Text:      hook.Text,
		MessageID: hook.MessageID,
		Time:      time.Now(),
	}
	select {
	case c.responses <- msg:
	default:
		slog.Warn("LoopMessageClient.EnqueueWebhook: response channel full, dropping message", "messageID", hook.MessageID)
	}
}

// Start is a no-op; inbound traffic arrives via webhook.
func (c *LoopMessageClient) Start(ctx context.Context) error { return nil }

// Stop closes the response channel.
func (c *LoopMessageClient) Stop() error {
	close(c.responses)
	return nil
}

// Responses returns the channel of inbound user messages.
func (c *LoopMessageClient) Responses() <-chan models.InboundMessage { return c.responses }
