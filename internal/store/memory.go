package store

import (
	"sync"
	"time"

	"github.com/jymapp/jym/internal/models"
)

// InMemoryStore is a map-backed Store for tests and ephemeral deployments.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.ConversationContext
	profiles      map[string]models.UserProfile
	triggers      map[string]models.Trigger
	flowStates    map[string]models.FlowState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.ConversationContext),
		profiles:      make(map[string]models.UserProfile),
		triggers:      make(map[string]models.Trigger),
		flowStates:    make(map[string]models.FlowState),
	}
}

func flowStateKey(participantID string, flowType models.FlowType) string {
	return participantID + "|" + string(flowType)
}

// SaveConversation inserts or replaces a conversation context.
func (s *InMemoryStore) SaveConversation(ctx models.ConversationContext) error {
	if err := ctx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[ctx.ID] = ctx
	return nil
}

// GetConversation returns the context with the given id, or nil.
func (s *InMemoryStore) GetConversation(id string) (*models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conversations[id]; ok {
		return &c, nil
	}
	return nil, nil
}

// GetActiveConversation returns the most recently updated active
// conversation for the owner and type, optionally narrowed by chat id.
func (s *InMemoryStore) GetActiveConversation(ownerID string, convType models.ConversationType, chatID string) (*models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.ConversationContext
	for _, c := range s.conversations {
		if c.OwnerID != ownerID || c.Type != convType || c.Status != models.ConversationStatusActive {
			continue
		}
		if chatID != "" && c.ChatID != chatID {
			continue
		}
		c := c
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = &c
		}
	}
	return best, nil
}

// ListIdleConversations returns active conversations not updated since the
// given time.
func (s *InMemoryStore) ListIdleConversations(idleSince time.Time) ([]models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationContext
	for _, c := range s.conversations {
		if c.Status == models.ConversationStatusActive && c.UpdatedAt.Before(idleSince) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SaveUserProfile inserts or replaces a profile.
func (s *InMemoryStore) SaveUserProfile(profile models.UserProfile) error {
	if profile.OwnerID == "" {
		return models.ErrEmptyOwnerID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.OwnerID] = profile
	return nil
}

// GetUserProfile returns the profile for the owner, or nil.
func (s *InMemoryStore) GetUserProfile(ownerID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[ownerID]; ok {
		return &p, nil
	}
	return nil, nil
}

// SaveTrigger inserts or replaces a trigger.
func (s *InMemoryStore) SaveTrigger(trigger models.Trigger) error {
	if trigger.ID == "" {
		return models.ErrTriggerNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[trigger.ID] = trigger
	return nil
}

// GetTrigger returns the trigger with the given id, or nil.
func (s *InMemoryStore) GetTrigger(id string) (*models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.triggers[id]; ok {
		return &t, nil
	}
	return nil, nil
}

// ListTriggersByOwner returns all triggers created for the owner.
func (s *InMemoryStore) ListTriggersByOwner(ownerID string) ([]models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Trigger
	for _, t := range s.triggers {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListTriggersByStatus returns all triggers in the given status.
func (s *InMemoryStore) ListTriggersByStatus(status models.TriggerStatus) ([]models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Trigger
	for _, t := range s.triggers {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// SaveFlowState inserts or replaces flow state for a participant and flow.
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	if state.ParticipantID == "" {
		return models.ErrEmptyOwnerID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowStates[flowStateKey(state.ParticipantID, state.FlowType)] = state
	return nil
}

// GetFlowState returns the flow state for a participant and flow, or nil.
func (s *InMemoryStore) GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.flowStates[flowStateKey(participantID, flowType)]; ok {
		return &st, nil
	}
	return nil, nil
}

// DeleteFlowState removes the flow state for a participant and flow.
func (s *InMemoryStore) DeleteFlowState(participantID string, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, flowStateKey(participantID, flowType))
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
