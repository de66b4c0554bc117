package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jymapp/jym/internal/genai"
	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
	"github.com/openai/openai-go"
)

// manualTimer captures scheduled callbacks so tests fire them on demand.
type manualTimer struct {
	fns       map[string]func()
	next      int
	cancelled []string
}

func newManualTimer() *manualTimer {
	return &manualTimer{fns: make(map[string]func())}
}

func (m *manualTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	m.next++
	id := string(rune('a' + m.next))
	m.fns[id] = fn
	return id, nil
}

func (m *manualTimer) ScheduleAt(when time.Time, fn func()) (string, error) {
	return m.ScheduleAfter(time.Until(when), fn)
}

func (m *manualTimer) Cancel(id string) error {
	m.cancelled = append(m.cancelled, id)
	delete(m.fns, id)
	return nil
}

func (m *manualTimer) ListActive() []models.TimerInfo { return nil }

func (m *manualTimer) Stop() {}

// fireAll runs every captured callback.
func (m *manualTimer) fireAll() {
	for id, fn := range m.fns {
		delete(m.fns, id)
		fn()
	}
}

type mockGenAIClient struct {
	text       string
	responseID string
	err        error
}

func (m *mockGenAIClient) GeneratePrompt(ctx context.Context, system, user string) (string, error) {
	return m.text, m.err
}

func (m *mockGenAIClient) GenerateWithHistory(ctx context.Context, system string, turns []genai.Turn, previousResponseID string) (*genai.Generation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &genai.Generation{Text: m.text, ResponseID: m.responseID}, nil
}

func (m *mockGenAIClient) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	return &genai.ToolCallResponse{Content: m.text}, m.err
}

type mockDeliverer struct {
	delivered []string
	err       error
}

func (m *mockDeliverer) Deliver(ctx context.Context, channel models.Channel, to, reply string) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, reply)
	return nil
}

func testTrigger() models.Trigger {
	return models.Trigger{
		OwnerID:     "telegram:12345",
		Recipient:   "12345",
		Channel:     models.ChannelTelegram,
		Instruction: "ask how the workout went",
		ScheduledAt: time.Now().Add(time.Hour),
	}
}

func TestScheduler_CreatePersistsAndArms(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := newManualTimer()
	s := NewScheduler(st, timer, &mockGenAIClient{text: "hey"}, &mockDeliverer{})

	created, err := s.Create(context.Background(), testTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" || created.Status != models.TriggerStatusPending {
		t.Errorf("expected pending trigger with generated id, got %+v", created)
	}

	row, err := st.GetTrigger(created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row == nil || row.TimerID == "" {
		t.Errorf("expected persisted trigger with timer id, got %+v", row)
	}
	if len(timer.fns) != 1 {
		t.Errorf("expected one armed timer, got %d", len(timer.fns))
	}
}

func TestScheduler_CreateRejectsInvalid(t *testing.T) {
	s := NewScheduler(store.NewInMemoryStore(), newManualTimer(), &mockGenAIClient{}, &mockDeliverer{})
	ctx := context.Background()

	past := testTrigger()
	past.ScheduledAt = time.Now().Add(-time.Minute)
	if _, err := s.Create(ctx, past); !errors.Is(err, models.ErrScheduledTimeInPast) {
		t.Errorf("expected ErrScheduledTimeInPast, got %v", err)
	}

	blank := testTrigger()
	blank.Instruction = ""
	if _, err := s.Create(ctx, blank); !errors.Is(err, models.ErrEmptyInstruction) {
		t.Errorf("expected ErrEmptyInstruction, got %v", err)
	}
}

func TestScheduler_FireCompletesTrigger(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := newManualTimer()
	deliverer := &mockDeliverer{}
	s := NewScheduler(st, timer, &mockGenAIClient{text: "yo, how'd leg day go?", responseID: "resp_9"}, deliverer)

	created, err := s.Create(context.Background(), testTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	timer.fireAll()

	row, err := st.GetTrigger(created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Status != models.TriggerStatusCompleted {
		t.Errorf("expected completed status, got %q (lastError %q)", row.Status, row.LastError)
	}
	if len(deliverer.delivered) != 1 || deliverer.delivered[0] != "yo, how'd leg day go?" {
		t.Errorf("expected generated message delivered, got %v", deliverer.delivered)
	}

	// The generated message landed in the owner's conversation.
	c, err := st.GetActiveConversation("telegram:12345", models.ConversationTypeFitnessChat, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil || len(c.LLM.Messages) != 1 || c.LLM.Messages[0].Role != models.RoleAssistant {
		t.Errorf("expected assistant turn recorded, got %+v", c)
	}
	if c.LLM.LastResponseID != "resp_9" {
		t.Errorf("expected response id recorded, got %q", c.LLM.LastResponseID)
	}
}

func TestScheduler_FireSkipsCancelledTrigger(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := newManualTimer()
	deliverer := &mockDeliverer{}
	s := NewScheduler(st, timer, &mockGenAIClient{text: "hey"}, deliverer)
	ctx := context.Background()

	created, err := s.Create(ctx, testTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Mark cancelled out from under the timer, then fire anyway.
	row, _ := st.GetTrigger(created.ID)
	row.Status = models.TriggerStatusCancelled
	if err := st.SaveTrigger(*row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.fire(created.ID)

	row, _ = st.GetTrigger(created.ID)
	if row.Status != models.TriggerStatusCancelled {
		t.Errorf("expected status unchanged, got %q", row.Status)
	}
	if len(deliverer.delivered) != 0 {
		t.Errorf("expected no delivery for cancelled trigger, got %v", deliverer.delivered)
	}
}

func TestScheduler_FireMarksFailedOnGenerationError(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := newManualTimer()
	deliverer := &mockDeliverer{}
	s := NewScheduler(st, timer, &mockGenAIClient{err: errors.New("model down")}, deliverer)

	created, err := s.Create(context.Background(), testTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	timer.fireAll()

	row, _ := st.GetTrigger(created.ID)
	if row.Status != models.TriggerStatusFailed {
		t.Errorf("expected failed status, got %q", row.Status)
	}
	if row.LastError == "" {
		t.Error("expected failure reason recorded")
	}
	if len(deliverer.delivered) != 0 {
		t.Errorf("expected no delivery on generation failure, got %v", deliverer.delivered)
	}
}

func TestScheduler_FireToleratesDeliveryFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := newManualTimer()
	s := NewScheduler(st, timer, &mockGenAIClient{text: "hey"}, &mockDeliverer{err: errors.New("network down")})

	created, err := s.Create(context.Background(), testTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	timer.fireAll()

	row, _ := st.GetTrigger(created.ID)
	if row.Status != models.TriggerStatusCompleted {
		t.Errorf("expected completed despite delivery failure, got %q", row.Status)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := newManualTimer()
	s := NewScheduler(st, timer, &mockGenAIClient{text: "hey"}, &mockDeliverer{})
	ctx := context.Background()

	created, err := s.Create(ctx, testTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Cancel(ctx, "telegram:12345", "trg_missing"); !errors.Is(err, models.ErrTriggerNotFound) {
		t.Errorf("unknown id: expected ErrTriggerNotFound, got %v", err)
	}
	if err := s.Cancel(ctx, "telegram:99999", created.ID); !errors.Is(err, models.ErrTriggerForbidden) {
		t.Errorf("wrong owner: expected ErrTriggerForbidden, got %v", err)
	}

	if err := s.Cancel(ctx, "telegram:12345", created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, _ := st.GetTrigger(created.ID)
	if row.Status != models.TriggerStatusCancelled {
		t.Errorf("expected cancelled status, got %q", row.Status)
	}
	if len(timer.cancelled) != 1 {
		t.Errorf("expected in-process timer cancelled, got %v", timer.cancelled)
	}

	// A second cancel fails: the trigger is no longer pending.
	if err := s.Cancel(ctx, "telegram:12345", created.ID); !errors.Is(err, models.ErrTriggerNotPending) {
		t.Errorf("second cancel: expected ErrTriggerNotPending, got %v", err)
	}
}

func TestScheduler_CreateFromTool(t *testing.T) {
	st := store.NewInMemoryStore()
	s := NewScheduler(st, newManualTimer(), &mockGenAIClient{text: "hey"}, &mockDeliverer{})

	params := models.CreateTriggerParams{Instruction: "check in", DelayMinutes: 45, Type: "workout_checkin", Context: "promised a leg day"}
	created, err := s.CreateFromTool(context.Background(), "telegram:12345", "12345", models.ChannelTelegram, "12345", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantAt := time.Now().Add(45 * time.Minute)
	if diff := created.ScheduledAt.Sub(wantAt); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected scheduled roughly 45m out, got %v", created.ScheduledAt)
	}
	if created.Metadata == nil || created.Metadata.Type != "workout_checkin" {
		t.Errorf("expected metadata carried over, got %+v", created.Metadata)
	}

	if _, err := s.CreateFromTool(context.Background(), "telegram:12345", "12345", models.ChannelTelegram, "", models.CreateTriggerParams{Instruction: "x", DelayMinutes: 0}); err == nil {
		t.Error("expected error for non-positive delay")
	}
}

func TestScheduler_RecoverPending(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	pending := testTrigger()
	pending.ID = "trg_pending"
	pending.Status = models.TriggerStatusPending
	pending.CreatedAt = now
	pending.UpdatedAt = now
	done := testTrigger()
	done.ID = "trg_done"
	done.Status = models.TriggerStatusCompleted
	for _, tr := range []models.Trigger{pending, done} {
		if err := st.SaveTrigger(tr); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	timer := newManualTimer()
	s := NewScheduler(st, timer, &mockGenAIClient{text: "hey"}, &mockDeliverer{})
	if err := s.RecoverPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(timer.fns) != 1 {
		t.Errorf("expected only the pending trigger re-armed, got %d timers", len(timer.fns))
	}
}
