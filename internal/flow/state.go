// Package flow implements Jym's conversational flows: onboarding and the
// open-ended fitness chat. Flows are stateless between calls; everything
// they need lives in the store.
package flow

import (
	"context"

	"github.com/jymapp/jym/internal/models"
)

// StateManager handles durable per-participant flow state. Implementations
// must return zero values, not errors, for missing state.
type StateManager interface {
	GetCurrentState(ctx context.Context, participantID string, flowType models.FlowType) (models.StateType, error)
	SetCurrentState(ctx context.Context, participantID string, flowType models.FlowType, state models.StateType) error
	GetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey) (string, error)
	SetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey, value string) error
	ResetState(ctx context.Context, participantID string, flowType models.FlowType) error
}

// ProfileStore is the slice of the store flows use for onboarding answers.
type ProfileStore interface {
	GetUserProfile(ownerID string) (*models.UserProfile, error)
	SaveUserProfile(profile models.UserProfile) error
}
