package delivery

import (
	"context"
	"log/slog"
	"time"
)

// ChannelSender is the outbound surface a Sender paces messages onto.
// Implemented by the messaging clients.
type ChannelSender interface {
	SendMessage(ctx context.Context, to, body string) error
	SendTypingIndicator(ctx context.Context, to string) error
}

// Sender delivers a reply as paced units over one channel. Sends are
// strictly in order: each unit's delay and send complete before the next
// begins. Send failures are logged and delivery continues with the
// remaining units.
type Sender struct {
	svc     ChannelSender
	profile TypingProfile
	sleep   func(ctx context.Context, d time.Duration)
}

// NewSender creates a Sender for a channel client and typing profile.
func NewSender(svc ChannelSender, profile TypingProfile) *Sender {
	return &Sender{svc: svc, profile: profile, sleep: contextSleep}
}

// NewSenderWithSleep creates a Sender with an injected sleep function.
func NewSenderWithSleep(svc ChannelSender, profile TypingProfile, sleep func(ctx context.Context, d time.Duration)) *Sender {
	return &Sender{svc: svc, profile: profile, sleep: sleep}
}

func contextSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Deliver splits the reply and sends each unit with a typing delay. The
// first unit goes out immediately after its typing indicator; each later
// unit waits the inter-unit pause plus a delay sized to the unit just
// sent, as if it were being typed while the user reads. Returns the number
// of units successfully sent and never returns an error; outbound failures
// are logged, not raised.
func (s *Sender) Deliver(ctx context.Context, to, reply string) int {
	units := Split(reply)
	sent := 0
	for i, unit := range units {
		if ctx.Err() != nil {
			slog.Warn("Sender.Deliver: context cancelled mid-delivery", "to", to, "sent", sent, "total", len(units))
			return sent
		}
		if err := s.svc.SendTypingIndicator(ctx, to); err != nil {
			slog.Debug("Sender.Deliver: typing indicator failed", "error", err, "to", to)
		}
		if i > 0 {
			if s.profile.Pause > 0 {
				s.sleep(ctx, s.profile.Pause)
			}
			s.sleep(ctx, s.profile.DelayFor(len(units[i-1])))
		}
		if err := s.svc.SendMessage(ctx, to, unit); err != nil {
			slog.Error("Sender.Deliver: send failed", "error", err, "to", to, "unit", i)
			continue
		}
		sent++
	}
	return sent
}
