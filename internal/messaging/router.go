package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jymapp/jym/internal/flow"
	"github.com/jymapp/jym/internal/models"
)

// routerFallbackReply is the last-resort line when a flow errors out
// entirely. Matches the chat flow's in-character tone.
const routerFallbackReply = "ugh, something broke on my end. give me a sec and try again?"

// Router consumes inbound messages from every registered channel and
// drives the right flow: onboarding until the profile is complete, the
// coaching chat afterward. A turn never raises; every failure ends in a
// logged fallback reply.
type Router struct {
	hub        *Hub
	onboarding *flow.OnboardingEngine
	chat       *flow.ChatFlow
	profiles   flow.ProfileStore

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRouter creates a router over the hub and flows.
func NewRouter(hub *Hub, onboarding *flow.OnboardingEngine, chat *flow.ChatFlow, profiles flow.ProfileStore) *Router {
	return &Router{hub: hub, onboarding: onboarding, chat: chat, profiles: profiles}
}

// Start launches one consumer goroutine per registered channel service.
func (r *Router) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, svc := range r.hub.Services() {
		r.wg.Add(1)
		go func(svc Service) {
			defer r.wg.Done()
			r.consume(ctx, svc)
		}(svc)
	}
	slog.Info("Router.Start: consumers running", "channels", len(r.hub.Services()))
}

// Stop cancels the consumers and waits for them to drain.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Router) consume(ctx context.Context, svc Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-svc.Responses():
			if !ok {
				return
			}
			r.HandleInbound(ctx, msg)
		}
	}
}

// OwnerID builds the channel-scoped user key.
func OwnerID(channel models.Channel, from string) string {
	return string(channel) + ":" + from
}

// HandleInbound runs one full turn for an inbound message. Malformed
// messages are dropped; flow failures degrade to a fallback reply.
func (r *Router) HandleInbound(ctx context.Context, msg models.InboundMessage) {
	if err := msg.Validate(); err != nil {
		slog.Warn("Router.HandleInbound: dropping invalid message", "error", err, "channel", msg.Channel)
		return
	}
	ownerID := OwnerID(msg.Channel, msg.From)
	slog.Debug("Router.HandleInbound: message received", "ownerID", ownerID, "channel", msg.Channel, "length", len(msg.Text))

	if r.isOnboarded(ownerID) {
		r.handleChat(ctx, ownerID, msg)
		return
	}
	r.handleOnboarding(ctx, ownerID, msg)
}

func (r *Router) isOnboarded(ownerID string) bool {
	profile, err := r.profiles.GetUserProfile(ownerID)
	if err != nil {
		slog.Error("Router.isOnboarded: profile lookup failed, assuming not onboarded", "error", err, "ownerID", ownerID)
		return false
	}
	return profile != nil && profile.Onboarded
}

func (r *Router) handleOnboarding(ctx context.Context, ownerID string, msg models.InboundMessage) {
	started, err := r.onboarding.Started(ctx, ownerID)
	if err != nil {
		slog.Error("Router.handleOnboarding: state lookup failed", "error", err, "ownerID", ownerID)
		r.deliver(ctx, msg, routerFallbackReply)
		return
	}

	if !started {
		intro, err := r.onboarding.Begin(ctx, ownerID)
		if err != nil {
			slog.Error("Router.handleOnboarding: begin failed", "error", err, "ownerID", ownerID)
			r.deliver(ctx, msg, routerFallbackReply)
			return
		}
		r.deliver(ctx, msg, intro)
		return
	}

	reply, err := r.onboarding.ProcessResponse(ctx, ownerID, msg.Text)
	if err != nil {
		slog.Error("Router.handleOnboarding: process failed", "error", err, "ownerID", ownerID)
		r.deliver(ctx, msg, routerFallbackReply)
		return
	}
	r.deliver(ctx, msg, reply)

	// The answer to the last question completes intake; the welcome is a
	// separate message generated on the spot.
	complete, err := r.onboarding.IsComplete(ctx, ownerID)
	if err != nil {
		slog.Error("Router.handleOnboarding: completion check failed", "error", err, "ownerID", ownerID)
		return
	}
	if complete {
		welcome, err := r.onboarding.GetNextQuestion(ctx, ownerID)
		if err != nil {
			slog.Error("Router.handleOnboarding: welcome generation failed", "error", err, "ownerID", ownerID)
			return
		}
		r.deliver(ctx, msg, welcome)
		slog.Info("Router.handleOnboarding: intake complete", "ownerID", ownerID)
	}
}

func (r *Router) handleChat(ctx context.Context, ownerID string, msg models.InboundMessage) {
	reply, err := r.chat.ProcessMessage(ctx, ownerID, msg)
	if err != nil {
		slog.Error("Router.handleChat: turn failed", "error", err, "ownerID", ownerID)
		reply = routerFallbackReply
	}
	r.deliver(ctx, msg, reply)
}

func (r *Router) deliver(ctx context.Context, msg models.InboundMessage, reply string) {
	replyTo := msg.ChatID
	if replyTo == "" {
		replyTo = msg.From
	}
	if err := r.hub.Deliver(ctx, msg.Channel, replyTo, reply); err != nil {
		slog.Error("Router.deliver: delivery failed", "error", err, "channel", msg.Channel, "to", replyTo)
	}
}
