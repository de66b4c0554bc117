// Package store provides storage backends for Jym conversation contexts,
// user profiles, triggers, and flow state. In-memory, SQLite, and Postgres
// implementations share the Store interface.
package store

import (
	"time"

	"github.com/jymapp/jym/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the connection string: a file path for SQLite, a postgres://
	// URL for Postgres.
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store is the persistence interface shared by all backends. Lookups for
// missing records return (nil, nil) rather than an error.
type Store interface {
	// Conversation contexts.
	SaveConversation(ctx models.ConversationContext) error
	GetConversation(id string) (*models.ConversationContext, error)
	GetActiveConversation(ownerID string, convType models.ConversationType, chatID string) (*models.ConversationContext, error)
	ListIdleConversations(idleSince time.Time) ([]models.ConversationContext, error)

	// User profiles.
	SaveUserProfile(profile models.UserProfile) error
	GetUserProfile(ownerID string) (*models.UserProfile, error)

	// Scheduled triggers.
	SaveTrigger(trigger models.Trigger) error
	GetTrigger(id string) (*models.Trigger, error)
	ListTriggersByOwner(ownerID string) ([]models.Trigger, error)
	ListTriggersByStatus(status models.TriggerStatus) ([]models.Trigger, error)

	// Flow state.
	SaveFlowState(state models.FlowState) error
	GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error)
	DeleteFlowState(participantID string, flowType models.FlowType) error

	Close() error
}
