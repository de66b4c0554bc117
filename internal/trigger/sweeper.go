package trigger

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
)

// Sweep defaults. The trigger fires at a random offset so re-engagement
// messages do not land for every user at the same minute.
const (
	DefaultIdleThreshold = 48 * time.Hour
	sweepMinDelay        = 5 * time.Minute
	sweepMaxDelay        = 4 * time.Hour
)

// Sweeper finds users who have gone quiet and schedules a re-engagement
// trigger for each. Intended to run periodically from the cron scheduler.
type Sweeper struct {
	store         store.Store
	scheduler     *Scheduler
	idleThreshold time.Duration
}

// NewSweeper creates a sweeper over the given store and scheduler.
func NewSweeper(st store.Store, scheduler *Scheduler, idleThreshold time.Duration) *Sweeper {
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	return &Sweeper{store: st, scheduler: scheduler, idleThreshold: idleThreshold}
}

// Sweep schedules one re-engagement trigger per idle conversation whose
// owner has nothing pending yet. Per-owner failures are logged and the
// sweep continues.
func (s *Sweeper) Sweep(ctx context.Context) {
	idle, err := s.store.ListIdleConversations(time.Now().Add(-s.idleThreshold))
	if err != nil {
		slog.Error("Sweeper.Sweep: failed to list idle conversations", "error", err)
		return
	}

	scheduled := 0
	for _, c := range idle {
		if c.Type != models.ConversationTypeFitnessChat {
			continue
		}
		if s.hasPendingTrigger(c.OwnerID) {
			continue
		}
		delay := sweepMinDelay + rand.N(sweepMaxDelay-sweepMinDelay)
		_, err := s.scheduler.Create(ctx, models.Trigger{
			OwnerID:     c.OwnerID,
			Recipient:   recipientFromOwnerID(c.OwnerID),
			Channel:     c.Channel,
			Instruction: "The user has not checked in for a while. Reach out warmly, reference what they were working on, and suggest something small to get back into it.",
			ScheduledAt: time.Now().Add(delay),
			ThreadID:    c.ChatID,
			Metadata:    &models.TriggerMetadata{Type: "idle_reengagement"},
		})
		if err != nil {
			slog.Error("Sweeper.Sweep: failed to schedule trigger", "error", err, "ownerID", c.OwnerID)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		slog.Info("Sweeper.Sweep: re-engagement triggers scheduled", "idle", len(idle), "scheduled", scheduled)
	}
}

func (s *Sweeper) hasPendingTrigger(ownerID string) bool {
	triggers, err := s.store.ListTriggersByOwner(ownerID)
	if err != nil {
		slog.Warn("Sweeper.hasPendingTrigger: lookup failed", "error", err, "ownerID", ownerID)
		return true
	}
	for _, t := range triggers {
		if t.Status == models.TriggerStatusPending || t.Status == models.TriggerStatusExecuting {
			return true
		}
	}
	return false
}

// recipientFromOwnerID strips the channel prefix from a channel-scoped
// owner id ("telegram:12345" becomes "12345").
func recipientFromOwnerID(ownerID string) string {
	for i := 0; i < len(ownerID); i++ {
		if ownerID[i] == ':' {
			return ownerID[i+1:]
		}
	}
	return ownerID
}
