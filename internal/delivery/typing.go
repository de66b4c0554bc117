package delivery

import (
	"time"

	"github.com/jymapp/jym/internal/models"
)

// TypingProfile simulates human typing speed for one channel. The delay
// before a unit is proportional to the length of the unit, clamped to the
// profile's bounds, plus a fixed pause between consecutive units.
type TypingProfile struct {
	PerChar  time.Duration
	MinDelay time.Duration
	MaxDelay time.Duration
	Pause    time.Duration
}

// Channel typing profiles. Telegram shows a typing indicator so longer
// pauses read naturally; WhatsApp and iMessage keep pacing short.
var (
	TelegramTyping = TypingProfile{PerChar: 40 * time.Millisecond, MinDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, Pause: 300 * time.Millisecond}
	WhatsAppTyping = TypingProfile{PerChar: 5 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	IMessageTyping = TypingProfile{PerChar: 5 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
)

// ProfileFor returns the typing profile for a channel.
func ProfileFor(channel models.Channel) TypingProfile {
	switch channel {
	case models.ChannelTelegram:
		return TelegramTyping
	case models.ChannelWhatsApp:
		return WhatsAppTyping
	default:
		return IMessageTyping
	}
}

// DelayFor computes the typing delay before sending a unit of the given
// length. The inter-unit pause is applied separately by the sender.
func (p TypingProfile) DelayFor(unitLength int) time.Duration {
	d := time.Duration(unitLength) * p.PerChar
	if d < p.MinDelay {
		d = p.MinDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
