package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jymapp/jym/internal/models"
)

// DefaultTelegramBaseURL is the Telegram Bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// TelegramOpts holds configuration for the Telegram client.
type TelegramOpts struct {
	BotToken string
	BaseURL  string
	HTTP     *http.Client
}

// TelegramOption configures the Telegram client.
type TelegramOption func(*TelegramOpts)

// WithTelegramToken sets the bot token.
func WithTelegramToken(token string) TelegramOption {
	return func(o *TelegramOpts) { o.BotToken = token }
}

// WithTelegramBaseURL overrides the API endpoint, mainly for tests.
func WithTelegramBaseURL(url string) TelegramOption {
	return func(o *TelegramOpts) { o.BaseURL = url }
}

// WithTelegramHTTPClient injects the HTTP client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(o *TelegramOpts) { o.HTTP = c }
}

// TelegramClient talks to the Telegram Bot API over plain HTTP. Inbound
// updates arrive via webhook and are enqueued with EnqueueUpdate.
type TelegramClient struct {
	http      *http.Client
	baseURL   string
	token     string
	responses chan models.InboundMessage
}

// NewTelegramClient creates a Telegram client.
func NewTelegramClient(opts ...TelegramOption) (*TelegramClient, error) {
	var cfg TelegramOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramBaseURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	return &TelegramClient{
		http:      cfg.HTTP,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.BotToken,
		responses: make(chan models.InboundMessage, responseChannelBuffer),
	}, nil
}

// Channel identifies this service as the Telegram channel.
func (c *TelegramClient) Channel() models.Channel { return models.ChannelTelegram }

// ValidateAndCanonicalizeRecipient requires a numeric chat id.
func (c *TelegramClient) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	trimmed := strings.TrimSpace(recipient)
	if trimmed == "" {
		return "", models.ErrEmptyRecipient
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
		return "", fmt.Errorf("telegram recipient must be a numeric chat id, got %q", recipient)
	}
	return trimmed, nil
}

type telegramAPIResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func (c *TelegramClient) call(ctx context.Context, method string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out telegramAPIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("telegram %s: bad response: %w", method, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram %s: %s", method, out.Description)
	}
	return nil
}

// SendMessage sends a text message to a chat.
func (c *TelegramClient) SendMessage(ctx context.Context, to string, body string) error {
	chatID, err := c.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := c.call(ctx, "sendMessage", map[string]interface{}{"chat_id": chatID, "text": body}); err != nil {
		slog.Error("TelegramClient.SendMessage failed", "error", err, "chatID", chatID)
		return err
	}
	slog.Debug("TelegramClient.SendMessage: sent", "chatID", chatID, "length", len(body))
	return nil
}

// SendTypingIndicator shows the "typing..." status in the chat.
func (c *TelegramClient) SendTypingIndicator(ctx context.Context, to string) error {
	chatID, err := c.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return c.call(ctx, "sendChatAction", map[string]interface{}{"chat_id": chatID, "action": "typing"})
}

// EnqueueUpdate converts a webhook update into an inbound message and
// queues it for the router. Updates without a text message are dropped.
func (c *TelegramClient) EnqueueUpdate(update models.TelegramUpdate) {
	if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
		slog.Debug("TelegramClient.EnqueueUpdate: ignoring non-text update", "updateID", update.UpdateID)
		return
	}
	msg := models.InboundMessage{
		Channel:   models.ChannelTelegram,
		From:      strconv.FormatInt(update.Message.From.ID, 10),
		ChatID:    strconv.FormatInt(update.Message.Chat.ID, 10),
		Text:      update.Message.Text,
		MessageID: strconv.FormatInt(update.Message.MessageID, 10),
		Time:      time.Now(),
	}
	select {
	case c.responses <- msg:
	default:
		slog.Warn("TelegramClient.EnqueueUpdate: response channel full, dropping update", "updateID", update.UpdateID)
	}
}

// Start is a no-op; inbound traffic arrives via webhook.
func (c *TelegramClient) Start(ctx context.Context) error { return nil }

// Stop closes the response channel.
func (c *TelegramClient) Stop() error {
	close(c.responses)
	return nil
}

// Responses returns the channel of inbound user messages.
func (c *TelegramClient) Responses() <-chan models.InboundMessage { return c.responses }
