// Package trigger schedules and executes one-shot re-engagement messages.
// Triggers are durable rows; the in-process timers that fire them are
// rebuilt from the store on startup.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jymapp/jym/internal/conversation"
	"github.com/jymapp/jym/internal/genai"
	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
	"github.com/jymapp/jym/internal/util"
)

// DefaultExecuteTimeout bounds one trigger execution end to end.
const DefaultExecuteTimeout = 2 * time.Minute

const triggerSystemPrompt = `You are Jym, a personal fitness coach texting with a user you already know.
A scheduled check-in is due. You will get a directive describing why you are reaching out.
Write the message you would send: short, casual, lowercase, picking the conversation back up
naturally. Never quote or mention the directive itself.`

// Deliverer sends a finished reply to a recipient on a channel, with
// natural pacing. Implemented by the messaging hub.
type Deliverer interface {
	Deliver(ctx context.Context, channel models.Channel, to, reply string) error
}

// Scheduler owns the trigger lifecycle: pending, executing, then exactly
// one of completed, failed, or cancelled.
type Scheduler struct {
	store          store.Store
	timer          Timer
	genaiClient    genai.ClientInterface
	deliverer      Deliverer
	executeTimeout time.Duration
}

// NewScheduler creates a trigger scheduler.
func NewScheduler(st store.Store, timer Timer, genaiClient genai.ClientInterface, deliverer Deliverer) *Scheduler {
	return &Scheduler{
		store:          st,
		timer:          timer,
		genaiClient:    genaiClient,
		deliverer:      deliverer,
		executeTimeout: DefaultExecuteTimeout,
	}
}

// Create validates, persists, and arms a trigger. The row is saved before
// the timer is armed so a crash in between is recoverable.
func (s *Scheduler) Create(ctx context.Context, t models.Trigger) (*models.Trigger, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	t.ID = util.GenerateTriggerID()
	t.Status = models.TriggerStatusPending
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.store.SaveTrigger(t); err != nil {
		return nil, fmt.Errorf("failed to persist trigger: %w", err)
	}

	s.arm(&t)
	slog.Info("TriggerScheduler.Create: trigger scheduled", "triggerID", t.ID, "ownerID", t.OwnerID, "scheduledAt", t.ScheduledAt)
	return &t, nil
}

// arm sets the in-process timer for a pending trigger and records the
// timer id best-effort.
func (s *Scheduler) arm(t *models.Trigger) {
	id := t.ID
	timerID, err := s.timer.ScheduleAt(t.ScheduledAt, func() { s.fire(id) })
	if err != nil {
		slog.Error("TriggerScheduler.arm: failed to set timer", "error", err, "triggerID", id)
		return
	}
	if timerID == "" {
		return
	}
	t.TimerID = timerID
	t.UpdatedAt = time.Now()
	if err := s.store.SaveTrigger(*t); err != nil {
		slog.Warn("TriggerScheduler.arm: failed to record timer id", "error", err, "triggerID", id)
	}
}

// CreateFromTool builds a trigger from a model tool call and schedules it.
func (s *Scheduler) CreateFromTool(ctx context.Context, ownerID, recipient string, channel models.Channel, threadID string, params models.CreateTriggerParams) (*models.Trigger, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	t := models.Trigger{
		OwnerID:     ownerID,
		Recipient:   recipient,
		Channel:     channel,
		Instruction: params.Instruction,
		ScheduledAt: time.Now().Add(time.Duration(params.DelayMinutes) * time.Minute),
		ThreadID:    threadID,
	}
	if params.Type != "" || params.Context != "" {
		t.Metadata = &models.TriggerMetadata{Type: params.Type, Context: params.Context}
	}
	return s.Create(ctx, t)
}

// Cancel cancels a pending trigger. Only the owner may cancel, and only
// while the trigger is still pending.
func (s *Scheduler) Cancel(ctx context.Context, ownerID, triggerID string) error {
	t, err := s.store.GetTrigger(triggerID)
	if err != nil {
		return fmt.Errorf("failed to load trigger %s: %w", triggerID, err)
	}
	if t == nil {
		return models.ErrTriggerNotFound
	}
	if t.OwnerID != ownerID {
		return models.ErrTriggerForbidden
	}
	if t.Status != models.TriggerStatusPending {
		return models.ErrTriggerNotPending
	}
	if t.TimerID != "" {
		if err := s.timer.Cancel(t.TimerID); err != nil {
			slog.Warn("TriggerScheduler.Cancel: timer cancel failed", "error", err, "triggerID", triggerID)
		}
	}
	t.Status = models.TriggerStatusCancelled
	t.UpdatedAt = time.Now()
	if err := s.store.SaveTrigger(*t); err != nil {
		return fmt.Errorf("failed to save cancelled trigger: %w", err)
	}
	slog.Info("TriggerScheduler.Cancel: trigger cancelled", "triggerID", triggerID, "ownerID", ownerID)
	return nil
}

// ListByOwner returns all triggers created for the owner.
func (s *Scheduler) ListByOwner(ctx context.Context, ownerID string) ([]models.Trigger, error) {
	return s.store.ListTriggersByOwner(ownerID)
}

// RecoverPending re-arms timers for every pending trigger, typically after
// a restart. Past-due triggers fire immediately.
func (s *Scheduler) RecoverPending(ctx context.Context) error {
	pending, err := s.store.ListTriggersByStatus(models.TriggerStatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending triggers: %w", err)
	}
	for i := range pending {
		s.arm(&pending[i])
	}
	slog.Info("TriggerScheduler.RecoverPending: timers re-armed", "count", len(pending))
	return nil
}

// fire runs when a timer elapses. The trigger is re-fetched and must still
// be pending; anything else means it was cancelled or already handled and
// the fire is a no-op.
func (s *Scheduler) fire(triggerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.executeTimeout)
	defer cancel()

	t, err := s.store.GetTrigger(triggerID)
	if err != nil {
		slog.Error("TriggerScheduler.fire: trigger lookup failed", "error", err, "triggerID", triggerID)
		return
	}
	if t == nil {
		slog.Warn("TriggerScheduler.fire: trigger vanished", "triggerID", triggerID)
		return
	}
	if t.Status != models.TriggerStatusPending {
		slog.Info("TriggerScheduler.fire: trigger no longer pending, skipping", "triggerID", triggerID, "status", t.Status)
		return
	}

	t.Status = models.TriggerStatusExecuting
	t.UpdatedAt = time.Now()
	if err := s.store.SaveTrigger(*t); err != nil {
		slog.Error("TriggerScheduler.fire: failed to mark executing", "error", err, "triggerID", triggerID)
	}

	if err := s.execute(ctx, t); err != nil {
		slog.Error("TriggerScheduler.fire: execution failed", "error", err, "triggerID", triggerID)
		t.Status = models.TriggerStatusFailed
		t.LastError = err.Error()
	} else {
		t.Status = models.TriggerStatusCompleted
		t.LastError = ""
	}
	t.UpdatedAt = time.Now()
	if err := s.store.SaveTrigger(*t); err != nil {
		slog.Error("TriggerScheduler.fire: failed to save final status", "error", err, "triggerID", triggerID, "status", t.Status)
	}
}

// execute generates the re-engagement message in the user's conversation
// and delivers it. Delivery failures are logged, not raised; only a failed
// generation fails the trigger.
func (s *Scheduler) execute(ctx context.Context, t *models.Trigger) error {
	mgr := conversation.NewManager(s.store)
	cctx, err := mgr.Initialize(ctx, t.OwnerID, t.ThreadID, models.ConversationTypeFitnessChat, "")
	if err != nil {
		return fmt.Errorf("failed to initialize conversation: %w", err)
	}

	directive := "Scheduled check-in is due. Directive: " + t.Instruction
	if t.Metadata != nil && t.Metadata.Context != "" {
		directive += "\nContext: " + t.Metadata.Context
	}
	gen, err := s.genaiClient.GenerateWithHistory(ctx, triggerSystemPrompt,
		[]genai.Turn{{Role: "user", Content: directive}}, cctx.LLM.LastResponseID)
	if err != nil {
		return fmt.Errorf("failed to generate re-engagement message: %w", err)
	}
	if gen.Text == "" {
		return fmt.Errorf("re-engagement generation returned empty text")
	}

	if err := mgr.AddMessage(ctx, models.RoleAssistant, gen.Text, nil, nil); err != nil {
		slog.Error("TriggerScheduler.execute: failed to record message", "error", err, "triggerID", t.ID)
	}
	if err := mgr.UpdateResponseID(ctx, gen.ResponseID); err != nil {
		slog.Error("TriggerScheduler.execute: failed to record response id", "error", err, "triggerID", t.ID)
	}

	if err := s.deliverer.Deliver(ctx, t.Channel, t.Recipient, gen.Text); err != nil {
		slog.Error("TriggerScheduler.execute: delivery failed", "error", err, "triggerID", t.ID, "recipient", t.Recipient)
	}
	return nil
}
