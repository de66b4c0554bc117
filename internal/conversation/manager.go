// Package conversation manages durable conversation contexts: the rolling
// message window, the provider continuation token, and session flags that
// flows read when building prompts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
)

// ErrNotInitialized is returned when a manager operation runs before
// Initialize has bound the manager to a conversation.
var ErrNotInitialized = errors.New("conversation manager not initialized")

// Manager binds to exactly one conversation context per Initialize call and
// mediates all mutations of it. Mutations are read-modify-write against the
// store so state survives process restarts.
type Manager struct {
	store          store.Store
	conversationID string
}

// NewManager creates a manager over the given store. It is unusable until
// Initialize is called.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// Initialize binds the manager to a conversation context, creating one only
// when no match exists. Lookup order: explicit conversation id first, then
// the active conversation for (owner, type, chat), then a fresh context.
// Calling Initialize twice with the same arguments yields the same context.
func (m *Manager) Initialize(ctx context.Context, ownerID, chatID string, convType models.ConversationType, conversationID string) (*models.ConversationContext, error) {
	if ownerID == "" {
		return nil, models.ErrEmptyOwnerID
	}

	if conversationID != "" {
		existing, err := m.store.GetConversation(conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up conversation %s: %w", conversationID, err)
		}
		if existing != nil {
			m.conversationID = existing.ID
			slog.Debug("ConversationManager.Initialize: adopted existing conversation", "conversationID", existing.ID, "ownerID", ownerID)
			return existing, nil
		}
		slog.Warn("ConversationManager.Initialize: requested conversation not found, falling back to lookup", "conversationID", conversationID, "ownerID", ownerID)
	}

	existing, err := m.store.GetActiveConversation(ownerID, convType, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active conversation: %w", err)
	}
	if existing != nil {
		m.conversationID = existing.ID
		slog.Debug("ConversationManager.Initialize: resumed active conversation", "conversationID", existing.ID, "ownerID", ownerID)
		return existing, nil
	}

	now := time.Now()
	created := models.ConversationContext{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		ChatID:  chatID,
		Channel: channelFromOwnerID(ownerID),
		Type:    convType,
		Status:  models.ConversationStatusActive,
		Session: models.SessionState{
			StartTime:    now,
			LastActivity: now,
		},
		LLM:       models.LLMState{Messages: []models.ConversationMessage{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.SaveConversation(created); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	m.conversationID = created.ID
	slog.Info("ConversationManager.Initialize: created conversation", "conversationID", created.ID, "ownerID", ownerID, "type", convType)
	return &created, nil
}

// channelFromOwnerID recovers the channel from the channel-scoped owner id
// ("telegram:12345"). Unknown prefixes map to iMessage, the only channel
// whose owner ids are raw contact handles.
func channelFromOwnerID(ownerID string) models.Channel {
	for _, ch := range []models.Channel{models.ChannelTelegram, models.ChannelWhatsApp, models.ChannelIMessage} {
		if len(ownerID) > len(ch)+1 && ownerID[:len(ch)] == string(ch) && ownerID[len(ch)] == ':' {
			return ch
		}
	}
	return models.ChannelIMessage
}

// Current returns the bound conversation context.
func (m *Manager) Current(ctx context.Context) (*models.ConversationContext, error) {
	if m.conversationID == "" {
		return nil, ErrNotInitialized
	}
	c, err := m.store.GetConversation(m.conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", m.conversationID, err)
	}
	if c == nil {
		return nil, fmt.Errorf("conversation %s: %w", m.conversationID, models.ErrNotFound)
	}
	return c, nil
}

// AddMessage appends a turn to the rolling window, evicting the oldest
// message once the window holds models.MaxConversationMessages. Tool calls
// and tool results are optional; pass nil for plain text turns.
func (m *Manager) AddMessage(ctx context.Context, role models.MessageRole, content string, toolCalls []models.ToolCallRecord, toolResults []models.ToolResult) error {
	return m.mutate(ctx, func(c *models.ConversationContext) {
		c.LLM.Messages = append(c.LLM.Messages, models.ConversationMessage{
			Role:        role,
			Content:     content,
			ToolCalls:   toolCalls,
			ToolResults: toolResults,
			Timestamp:   time.Now(),
		})
		if len(c.LLM.Messages) > models.MaxConversationMessages {
			c.LLM.Messages = c.LLM.Messages[len(c.LLM.Messages)-models.MaxConversationMessages:]
		}
		c.Session.MessageCount++
	})
}

// UpdateResponseID stores the provider continuation token. The token is
// opaque; it is only ever echoed back to the provider.
func (m *Manager) UpdateResponseID(ctx context.Context, responseID string) error {
	return m.mutate(ctx, func(c *models.ConversationContext) {
		c.LLM.LastResponseID = responseID
	})
}

// SessionUpdate amends individual session fields. Nil fields are left
// untouched.
type SessionUpdate struct {
	IsWaiting    *bool
	WaitingFor   *string
	CurrentPhase *string
}

// ContextUpdate is a partial update applied by UpdateContext. Top-level
// fields replace wholesale; Session merges field by field.
type ContextUpdate struct {
	Status  *models.ConversationStatus
	Session *SessionUpdate
	User    *models.UserState
	Memory  *models.ConversationMemory
}

// UpdateContext applies a partial update to the conversation context.
func (m *Manager) UpdateContext(ctx context.Context, update ContextUpdate) error {
	return m.mutate(ctx, func(c *models.ConversationContext) {
		if update.Status != nil {
			c.Status = *update.Status
		}
		if update.User != nil {
			c.User = *update.User
		}
		if update.Memory != nil {
			c.LLM.Memory = update.Memory
		}
		if update.Session != nil {
			if update.Session.IsWaiting != nil {
				c.Session.IsWaiting = *update.Session.IsWaiting
			}
			if update.Session.WaitingFor != nil {
				c.Session.WaitingFor = *update.Session.WaitingFor
			}
			if update.Session.CurrentPhase != nil {
				c.Session.CurrentPhase = *update.Session.CurrentPhase
			}
		}
	})
}

// Complete marks the conversation completed. Completed conversations are
// never resumed by Initialize.
func (m *Manager) Complete(ctx context.Context) error {
	return m.mutate(ctx, func(c *models.ConversationContext) {
		c.Status = models.ConversationStatusCompleted
	})
}

// IsNewUser reports whether the bound conversation has no recorded turns
// yet. Flows use this to decide whether a first-time greeting is due.
func (m *Manager) IsNewUser(ctx context.Context) (bool, error) {
	c, err := m.Current(ctx)
	if err != nil {
		return false, err
	}
	return c.Session.MessageCount == 0 && len(c.LLM.Messages) == 0, nil
}

// mutate applies a read-modify-write cycle. Every mutation counts as
// conversation activity, so LastActivity moves with UpdatedAt.
func (m *Manager) mutate(ctx context.Context, apply func(*models.ConversationContext)) error {
	c, err := m.Current(ctx)
	if err != nil {
		return err
	}
	apply(c)
	now := time.Now()
	c.UpdatedAt = now
	c.Session.LastActivity = now
	if err := m.store.SaveConversation(*c); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	return nil
}
