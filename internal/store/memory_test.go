package store

import (
	"testing"
	"time"

	"github.com/jymapp/jym/internal/models"
)

func testConversation(id, ownerID string, updatedAt time.Time) models.ConversationContext {
	return models.ConversationContext{
		ID:        id,
		OwnerID:   ownerID,
		ChatID:    "100",
		Channel:   models.ChannelTelegram,
		Type:      models.ConversationTypeFitnessChat,
		Status:    models.ConversationStatusActive,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestInMemoryStore_ConversationRoundTrip(t *testing.T) {
	st := NewInMemoryStore()

	missing, err := st.GetConversation("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing conversation, got %+v", missing)
	}

	c := testConversation("c1", "telegram:1", time.Now())
	c.LLM.LastResponseID = "resp_1"
	if err := st.SaveConversation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := st.GetConversation("c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.LLM.LastResponseID != "resp_1" {
		t.Errorf("expected round-tripped conversation, got %+v", got)
	}
}

func TestInMemoryStore_GetActiveConversationPicksNewest(t *testing.T) {
	st := NewInMemoryStore()
	now := time.Now()

	older := testConversation("c1", "telegram:1", now.Add(-time.Hour))
	newer := testConversation("c2", "telegram:1", now)
	completed := testConversation("c3", "telegram:1", now.Add(time.Hour))
	completed.Status = models.ConversationStatusCompleted
	for _, c := range []models.ConversationContext{older, newer, completed} {
		if err := st.SaveConversation(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := st.GetActiveConversation("telegram:1", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != "c2" {
		t.Errorf("expected newest active conversation c2, got %+v", got)
	}

	// Narrowing by chat id excludes non-matching conversations.
	got, err = st.GetActiveConversation("telegram:1", models.ConversationTypeFitnessChat, "999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no match for unknown chat id, got %+v", got)
	}
}

func TestInMemoryStore_ListIdleConversations(t *testing.T) {
	st := NewInMemoryStore()
	now := time.Now()

	stale := testConversation("c1", "telegram:1", now.Add(-72*time.Hour))
	fresh := testConversation("c2", "telegram:2", now)
	for _, c := range []models.ConversationContext{stale, fresh} {
		if err := st.SaveConversation(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	idle, err := st.ListIdleConversations(now.Add(-48 * time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idle) != 1 || idle[0].ID != "c1" {
		t.Errorf("expected only the stale conversation, got %+v", idle)
	}
}

func TestInMemoryStore_UserProfileRoundTrip(t *testing.T) {
	st := NewInMemoryStore()

	if err := st.SaveUserProfile(models.UserProfile{}); err == nil {
		t.Error("expected error for profile without owner")
	}

	p := models.UserProfile{OwnerID: "telegram:1", FitnessLevel: "beginner", Onboarded: true}
	if err := st.SaveUserProfile(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := st.GetUserProfile("telegram:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || !got.Onboarded || got.FitnessLevel != "beginner" {
		t.Errorf("expected round-tripped profile, got %+v", got)
	}

	missing, err := st.GetUserProfile("telegram:2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing profile, got %+v", missing)
	}
}

func TestInMemoryStore_TriggerQueries(t *testing.T) {
	st := NewInMemoryStore()
	now := time.Now()

	triggers := []models.Trigger{
		{ID: "t1", OwnerID: "telegram:1", Status: models.TriggerStatusPending, CreatedAt: now},
		{ID: "t2", OwnerID: "telegram:1", Status: models.TriggerStatusCompleted, CreatedAt: now},
		{ID: "t3", OwnerID: "telegram:2", Status: models.TriggerStatusPending, CreatedAt: now},
	}
	for _, tr := range triggers {
		if err := st.SaveTrigger(tr); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	byOwner, err := st.ListTriggersByOwner("telegram:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byOwner) != 2 {
		t.Errorf("expected 2 triggers for owner, got %d", len(byOwner))
	}

	pending, err := st.ListTriggersByStatus(models.TriggerStatusPending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending triggers, got %d", len(pending))
	}
}

func TestInMemoryStore_FlowStateKeying(t *testing.T) {
	st := NewInMemoryStore()

	onboarding := models.FlowState{
		ParticipantID: "telegram:1",
		FlowType:      models.FlowTypeOnboarding,
		CurrentState:  models.StateOnboardingActive,
		StateData:     map[models.DataKey]string{models.DataKeyOnboardingState: `{"question_index":2}`},
	}
	if err := st.SaveFlowState(onboarding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := st.GetFlowState("telegram:1", models.FlowTypeOnboarding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.CurrentState != models.StateOnboardingActive {
		t.Errorf("expected saved flow state, got %+v", got)
	}

	// A different flow type for the same participant is a separate row.
	other, err := st.GetFlowState("telegram:1", models.FlowTypeChat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != nil {
		t.Errorf("expected nil for other flow type, got %+v", other)
	}

	if err := st.DeleteFlowState("telegram:1", models.FlowTypeOnboarding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = st.GetFlowState("telegram:1", models.FlowTypeOnboarding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected flow state deleted, got %+v", got)
	}
}
