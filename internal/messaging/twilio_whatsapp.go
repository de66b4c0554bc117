package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/jymapp/jym/internal/models"
)

// TwilioOpts holds configuration for the Twilio WhatsApp client.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// TwilioOption configures the Twilio WhatsApp client.
type TwilioOption func(*TwilioOpts)

// WithTwilioAccountSID sets the account SID.
func WithTwilioAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithTwilioAuthToken sets the auth token.
func WithTwilioAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithTwilioFromNumber sets the sending WhatsApp number, with or without
// the "whatsapp:" prefix.
func WithTwilioFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// TwilioWhatsAppClient sends WhatsApp messages through the Twilio REST
// API. Inbound messages arrive via webhook and are enqueued with
// EnqueueInbound.
type TwilioWhatsAppClient struct {
	client    *twilio.RestClient
	fromWhats string
	responses chan models.InboundMessage
}

// NewTwilioWhatsAppClient creates a Twilio WhatsApp client. Credentials
// fall back to the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and
// TWILIO_FROM_NUMBER environment variables.
func NewTwilioWhatsAppClient(opts ...TwilioOption) (*TwilioWhatsAppClient, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if !strings.HasPrefix(cfg.FromWhats, "whatsapp:") {
		cfg.FromWhats = "whatsapp:" + cfg.FromWhats
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioWhatsAppClient{
		client:    client,
		fromWhats: cfg.FromWhats,
		responses: make(chan models.InboundMessage, responseChannelBuffer),
	}, nil
}

// Channel identifies this service as the WhatsApp channel.
func (c *TwilioWhatsAppClient) Channel() models.Channel { return models.ChannelWhatsApp }

// ValidateAndCanonicalizeRecipient accepts E.164-ish phone numbers and
// strips any "whatsapp:" prefix.
func (c *TwilioWhatsAppClient) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(recipient, "whatsapp:"))
	if trimmed == "" {
		return "", models.ErrEmptyRecipient
	}
	digits := strings.TrimPrefix(trimmed, "+")
	if digits == "" {
		return "", fmt.Errorf("whatsapp recipient %q has no digits", recipient)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("whatsapp recipient %q is not a phone number", recipient)
		}
	}
	if !strings.HasPrefix(trimmed, "+") {
		trimmed = "+" + trimmed
	}
	return trimmed, nil
}

// SendMessage sends a WhatsApp message through Twilio.
func (c *TwilioWhatsAppClient) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := c.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + canonical)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioWhatsAppClient.SendMessage failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TwilioWhatsAppClient.SendMessage: sent", "to", canonical, "length", len(body))
	return nil
}

// SendTypingIndicator is a no-op; the Twilio WhatsApp API has no typing
// indicator. Pacing alone carries the natural-delivery effect here.
func (c *TwilioWhatsAppClient) SendTypingIndicator(ctx context.Context, to string) error {
	return nil
}

// EnqueueInbound queues a webhook-received message for the router.
func (c *TwilioWhatsAppClient) EnqueueInbound(from, body, messageSID string) {
	canonical, err := c.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("TwilioWhatsAppClient.EnqueueInbound: invalid sender, dropping", "error", err)
		return
	}
	msg := models.InboundMessage{
		Channel:   models.ChannelWhatsApp,
		From:      canonical,
		ChatID:    canonical,
		Text:      body,
		MessageID: messageSID,
		Time:      time.Now(),
	}
	select {
	case c.responses <- msg:
	default:
		slog.Warn("TwilioWhatsAppClient.EnqueueInbound: response channel full, dropping message", "messageSID", messageSID)
	}
}

// Start is a no-op; inbound traffic arrives via webhook.
func (c *TwilioWhatsAppClient) Start(ctx context.Context) error { return nil }

// Stop closes the response channel.
func (c *TwilioWhatsAppClient) Stop() error {
	close(c.responses)
	return nil
}

// Responses returns the channel of inbound user messages.
func (c *TwilioWhatsAppClient) Responses() <-chan models.InboundMessage { return c.responses }
