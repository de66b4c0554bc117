package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
)

func TestManager_InitializeCreatesAndResumes(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()

	m := NewManager(st)
	created, err := m.Initialize(ctx, "telegram:12345", "12345", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated conversation id")
	}
	if created.Channel != models.ChannelTelegram {
		t.Errorf("expected channel inferred from owner id, got %q", created.Channel)
	}
	if created.Status != models.ConversationStatusActive {
		t.Errorf("expected new conversation active, got %q", created.Status)
	}

	// Same arguments on a fresh manager resume the same conversation.
	m2 := NewManager(st)
	resumed, err := m2.Initialize(ctx, "telegram:12345", "12345", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.ID != created.ID {
		t.Errorf("expected resumed conversation %s, got %s", created.ID, resumed.ID)
	}
}

func TestManager_InitializeExplicitID(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()

	m := NewManager(st)
	created, err := m.Initialize(ctx, "whatsapp:+15551234567", "", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m2 := NewManager(st)
	adopted, err := m2.Initialize(ctx, "whatsapp:+15551234567", "", models.ConversationTypeFitnessChat, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adopted.ID != created.ID {
		t.Errorf("expected explicit id adopted, got %s", adopted.ID)
	}

	// Unknown explicit id falls back to active lookup instead of failing.
	m3 := NewManager(st)
	fallback, err := m3.Initialize(ctx, "whatsapp:+15551234567", "", models.ConversationTypeFitnessChat, "missing-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fallback.ID != created.ID {
		t.Errorf("expected fallback to active conversation, got %s", fallback.ID)
	}
}

func TestManager_InitializeRejectsEmptyOwner(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	if _, err := m.Initialize(context.Background(), "", "", models.ConversationTypeFitnessChat, ""); !errors.Is(err, models.ErrEmptyOwnerID) {
		t.Errorf("expected ErrEmptyOwnerID, got %v", err)
	}
}

func TestManager_OperationsBeforeInitialize(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	ctx := context.Background()

	if _, err := m.Current(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Current: expected ErrNotInitialized, got %v", err)
	}
	if err := m.AddMessage(ctx, models.RoleUser, "hi", nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AddMessage: expected ErrNotInitialized, got %v", err)
	}
	if err := m.UpdateResponseID(ctx, "resp_1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("UpdateResponseID: expected ErrNotInitialized, got %v", err)
	}
	if err := m.Complete(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Complete: expected ErrNotInitialized, got %v", err)
	}
	if _, err := m.IsNewUser(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("IsNewUser: expected ErrNotInitialized, got %v", err)
	}
}

func TestManager_AddMessageCapsWindow(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	if _, err := m.Initialize(ctx, "telegram:777", "777", models.ConversationTypeFitnessChat, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := models.MaxConversationMessages + 10
	for i := 0; i < total; i++ {
		if err := m.AddMessage(ctx, models.RoleUser, fmt.Sprintf("message %d", i), nil, nil); err != nil {
			t.Fatalf("message %d: unexpected error: %v", i, err)
		}
	}

	c, err := m.Current(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.LLM.Messages) != models.MaxConversationMessages {
		t.Fatalf("expected window capped at %d, got %d", models.MaxConversationMessages, len(c.LLM.Messages))
	}
	// Oldest messages evicted, newest retained.
	if c.LLM.Messages[0].Content != "message 10" {
		t.Errorf("expected oldest retained message to be 'message 10', got %q", c.LLM.Messages[0].Content)
	}
	if last := c.LLM.Messages[len(c.LLM.Messages)-1].Content; last != fmt.Sprintf("message %d", total-1) {
		t.Errorf("expected newest message retained, got %q", last)
	}
	if c.Session.MessageCount != total {
		t.Errorf("expected message count %d to survive eviction, got %d", total, c.Session.MessageCount)
	}
}

func TestManager_UpdateResponseID(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	if _, err := m.Initialize(ctx, "telegram:1", "1", models.ConversationTypeFitnessChat, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.UpdateResponseID(ctx, "resp_abc123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := m.Current(ctx)
	if c.LLM.LastResponseID != "resp_abc123" {
		t.Errorf("expected response id stored verbatim, got %q", c.LLM.LastResponseID)
	}
}

func TestManager_UpdateContextMerges(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	if _, err := m.Initialize(ctx, "telegram:2", "2", models.ConversationTypeFitnessChat, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waiting := true
	phase := "mid_workout"
	if err := m.UpdateContext(ctx, ContextUpdate{
		Session: &SessionUpdate{IsWaiting: &waiting, CurrentPhase: &phase},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A later update touching only WaitingFor must not clobber the rest.
	waitingFor := "workout_report"
	if err := m.UpdateContext(ctx, ContextUpdate{
		Session: &SessionUpdate{WaitingFor: &waitingFor},
		Memory:  &models.ConversationMemory{Summary: "did leg day"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := m.Current(ctx)
	if !c.Session.IsWaiting {
		t.Error("expected IsWaiting preserved across partial session update")
	}
	if c.Session.CurrentPhase != "mid_workout" {
		t.Errorf("expected CurrentPhase preserved, got %q", c.Session.CurrentPhase)
	}
	if c.Session.WaitingFor != "workout_report" {
		t.Errorf("expected WaitingFor updated, got %q", c.Session.WaitingFor)
	}
	if c.LLM.Memory == nil || c.LLM.Memory.Summary != "did leg day" {
		t.Errorf("expected memory replaced, got %+v", c.LLM.Memory)
	}
}

func TestManager_CompleteStopsResumption(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	created, err := m.Initialize(ctx, "telegram:3", "3", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Complete(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m2 := NewManager(st)
	next, err := m2.Initialize(ctx, "telegram:3", "3", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID == created.ID {
		t.Error("expected completed conversation not to be resumed")
	}
}

func TestManager_IsNewUser(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	if _, err := m.Initialize(ctx, "imessage:user@example.com", "", models.ConversationTypeFitnessChat, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh, err := m.IsNewUser(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Error("expected fresh conversation to report new user")
	}

	if err := m.AddMessage(ctx, models.RoleUser, "hey", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh, err = m.IsNewUser(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh {
		t.Error("expected conversation with a turn to report returning user")
	}
}

func TestChannelFromOwnerID(t *testing.T) {
	tests := []struct {
		ownerID string
		want    models.Channel
	}{
		{"telegram:12345", models.ChannelTelegram},
		{"whatsapp:+15551234567", models.ChannelWhatsApp},
		{"imessage:user@example.com", models.ChannelIMessage},
		{"user@example.com", models.ChannelIMessage},
		{"+15551234567", models.ChannelIMessage},
	}
	for _, tt := range tests {
		if got := channelFromOwnerID(tt.ownerID); got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.ownerID, tt.want, got)
		}
	}
}

func TestManager_MutationsRefreshLastActivity(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	if _, err := m.Initialize(ctx, "telegram:321", "321", models.ConversationTypeFitnessChat, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lastActivity := func() time.Time {
		c, err := m.Current(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return c.Session.LastActivity
	}

	before := lastActivity()
	time.Sleep(5 * time.Millisecond)
	phase := "checkin"
	if err := m.UpdateContext(ctx, ContextUpdate{Session: &SessionUpdate{CurrentPhase: &phase}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := lastActivity()
	if !after.After(before) {
		t.Errorf("UpdateContext: expected lastActivity to move forward, before=%v after=%v", before, after)
	}

	before = after
	time.Sleep(5 * time.Millisecond)
	if err := m.UpdateResponseID(ctx, "resp_7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after = lastActivity()
	if !after.After(before) {
		t.Errorf("UpdateResponseID: expected lastActivity to move forward, before=%v after=%v", before, after)
	}

	before = after
	time.Sleep(5 * time.Millisecond)
	if err := m.Complete(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after = lastActivity(); !after.After(before) {
		t.Errorf("Complete: expected lastActivity to move forward, before=%v after=%v", before, after)
	}
}

func TestManager_AddMessagePersistsToolTurns(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	m := NewManager(st)
	if _, err := m.Initialize(ctx, "telegram:654", "654", models.ConversationTypeFitnessChat, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := []models.ToolCallRecord{{ID: "call_1", Name: "log_workout", Arguments: `{"workout_type":"run"}`}}
	if err := m.AddMessage(ctx, models.RoleAssistant, "", calls, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := []models.ToolResult{{Success: true, Message: "logged run workout"}}
	if err := m.AddMessage(ctx, models.RoleTool, "", nil, results); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := m.Current(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.LLM.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.LLM.Messages))
	}
	first := c.LLM.Messages[0]
	if first.Role != models.RoleAssistant || len(first.ToolCalls) != 1 || first.ToolCalls[0].ID != "call_1" {
		t.Errorf("expected assistant turn carrying the tool call, got %+v", first)
	}
	second := c.LLM.Messages[1]
	if second.Role != models.RoleTool || len(second.ToolResults) != 1 || !second.ToolResults[0].Success {
		t.Errorf("expected tool turn carrying the result, got %+v", second)
	}
}
