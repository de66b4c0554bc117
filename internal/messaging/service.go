// Package messaging provides the channel clients (Telegram, Twilio
// WhatsApp, LoopMessage iMessage), the hub that paces outbound replies, and
// the router that drives flows from inbound messages.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jymapp/jym/internal/delivery"
	"github.com/jymapp/jym/internal/models"
)

// responseChannelBuffer sizes each client's inbound queue. Webhook
// handlers drop with a warning rather than block when it fills.
const responseChannelBuffer = 100

// Service defines a pluggable messaging channel.
type Service interface {
	// Channel identifies which channel this service serves.
	Channel() models.Channel

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier per the channel's addressing rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a single message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendTypingIndicator shows a typing indicator where the channel
	// supports one; otherwise it is a no-op.
	SendTypingIndicator(ctx context.Context, to string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns the channel of inbound user messages.
	Responses() <-chan models.InboundMessage
}

// Hub holds the registered channel services and delivers replies through
// each channel's paced sender.
type Hub struct {
	services map[models.Channel]Service
	senders  map[models.Channel]*delivery.Sender
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		services: make(map[models.Channel]Service),
		senders:  make(map[models.Channel]*delivery.Sender),
	}
}

// Register adds a channel service with its default typing profile.
func (h *Hub) Register(svc Service) {
	ch := svc.Channel()
	h.services[ch] = svc
	h.senders[ch] = delivery.NewSender(svc, delivery.ProfileFor(ch))
	slog.Info("Hub.Register: channel registered", "channel", ch)
}

// Service returns the registered service for a channel, or nil.
func (h *Hub) Service(ch models.Channel) Service {
	return h.services[ch]
}

// Services returns all registered services.
func (h *Hub) Services() []Service {
	out := make([]Service, 0, len(h.services))
	for _, svc := range h.services {
		out = append(out, svc)
	}
	return out
}

// Deliver splits a reply into units and sends them in order with typing
// pacing. Individual send failures are logged by the sender and do not
// fail delivery; only an unregistered channel is an error.
func (h *Hub) Deliver(ctx context.Context, ch models.Channel, to, reply string) error {
	sender, ok := h.senders[ch]
	if !ok {
		return fmt.Errorf("no service registered for channel %s", ch)
	}
	sent := sender.Deliver(ctx, to, reply)
	slog.Debug("Hub.Deliver: reply delivered", "channel", ch, "to", to, "unitsSent", sent)
	return nil
}
