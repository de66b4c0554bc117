// Package models defines core data structures and validation for Jym
// conversations, user profiles, triggers, and channel payloads.
package models

import (
	"errors"
	"time"
)

// Validation and lookup errors shared across packages.
var (
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrEmptyMessageText    = errors.New("message text cannot be empty")
	ErrEmptyOwnerID        = errors.New("owner id cannot be empty")
	ErrEmptyInstruction    = errors.New("instruction cannot be empty")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrScheduledTimeInPast = errors.New("scheduled time must be in the future")
	ErrNotFound            = errors.New("record not found")
)

// Channel identifies a messaging surface a user can reach Jym on.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelIMessage Channel = "imessage"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelWhatsApp, ChannelIMessage:
		return true
	}
	return false
}

// ConversationStatus tracks the lifecycle of a conversation context.
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusCompleted ConversationStatus = "completed"
	ConversationStatusCancelled ConversationStatus = "cancelled"
)

// ConversationType distinguishes the coaching surfaces that share the
// conversation store.
type ConversationType string

const (
	ConversationTypeOnboarding     ConversationType = "onboarding"
	ConversationTypeFitnessChat    ConversationType = "fitness_chat"
	ConversationTypeQuickChallenge ConversationType = "quick_challenge"
	ConversationTypeReengagement   ConversationType = "reengagement"
)

// MaxConversationMessages caps the rolling message window kept per
// conversation. Older messages are evicted first-in-first-out.
const MaxConversationMessages = 50

// MessageRole is the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCallRecord is a tool invocation as stored in the message window.
// Arguments stay raw JSON so replayed turns round-trip exactly what the
// model produced.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ConversationMessage is one turn in the rolling LLM window. ToolCalls is
// set on assistant turns that invoked tools; ToolResults on the tool turn
// that answered them.
type ConversationMessage struct {
	Role        MessageRole      `json:"role"`
	Content     string           `json:"content"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	ToolResults []ToolResult     `json:"tool_results,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// LLMState holds everything needed to resume a model conversation:
// the provider continuation token plus a bounded message window.
type LLMState struct {
	LastResponseID string                `json:"last_response_id,omitempty"`
	Messages       []ConversationMessage `json:"messages"`
	Memory         *ConversationMemory   `json:"memory,omitempty"`
}

// ConversationMemory is a compact distillation of the conversation that
// survives window eviction.
type ConversationMemory struct {
	Summary         string   `json:"summary,omitempty"`
	KeyPoints       []string `json:"key_points,omitempty"`
	UserMood        string   `json:"user_mood,omitempty"`
	LastWorkoutType string   `json:"last_workout_type,omitempty"`
}

// SessionState carries transient per-conversation flags.
type SessionState struct {
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	IsWaiting    bool      `json:"is_waiting"`
	WaitingFor   string    `json:"waiting_for,omitempty"`
	CurrentPhase string    `json:"current_phase,omitempty"`
}

// UserState is the slice of the user's profile that rides along inside a
// conversation context so prompts can be built without a profile lookup.
type UserState struct {
	FitnessLevel string   `json:"fitness_level,omitempty"`
	Goals        []string `json:"goals,omitempty"`
	Equipment    string   `json:"equipment,omitempty"`
	Injuries     string   `json:"injuries,omitempty"`
}

// ConversationContext is the durable record of one conversation between a
// user and Jym on a single channel thread.
type ConversationContext struct {
	ID        string             `json:"id"`
	OwnerID   string             `json:"owner_id"`
	ChatID    string             `json:"chat_id"`
	Channel   Channel            `json:"channel"`
	Type      ConversationType   `json:"type"`
	Status    ConversationStatus `json:"status"`
	Session   SessionState       `json:"session"`
	LLM       LLMState           `json:"llm"`
	User      UserState          `json:"user"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Validate checks that the context has the minimum fields required for
// persistence.
func (c *ConversationContext) Validate() error {
	if c.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if !c.Channel.Valid() {
		return ErrInvalidChannel
	}
	return nil
}

// UserProfile is the durable onboarding output for one user, keyed by the
// channel-scoped owner id.
type UserProfile struct {
	OwnerID      string    `json:"owner_id"`
	FitnessLevel string    `json:"fitness_level,omitempty"`
	Goals        string    `json:"goals,omitempty"`
	Equipment    string    `json:"equipment,omitempty"`
	Injuries     string    `json:"injuries,omitempty"`
	Onboarded    bool      `json:"onboarded"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InboundMessage is the canonical form every channel webhook is reduced to
// before routing.
type InboundMessage struct {
	Channel   Channel   `json:"channel"`
	From      string    `json:"from"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	MessageID string    `json:"message_id,omitempty"`
	Time      time.Time `json:"time"`
}

// Validate rejects inbound messages that cannot be routed.
func (m *InboundMessage) Validate() error {
	if m.From == "" {
		return ErrEmptyRecipient
	}
	if m.Text == "" {
		return ErrEmptyMessageText
	}
	if !m.Channel.Valid() {
		return ErrInvalidChannel
	}
	return nil
}
