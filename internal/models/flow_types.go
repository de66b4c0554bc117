package models

import "time"

// FlowType identifies a conversational flow family.
type FlowType string

const (
	FlowTypeOnboarding FlowType = "onboarding"
	FlowTypeChat       FlowType = "fitness_chat"
)

// StateType is a flow state machine state.
type StateType string

const (
	StateOnboardingActive   StateType = "ONBOARDING_ACTIVE"
	StateOnboardingComplete StateType = "ONBOARDING_COMPLETE"
)

// DataKey names a slot in a flow's persisted state data.
type DataKey string

const (
	DataKeyOnboardingState DataKey = "onboardingState"
)

// FlowState is the durable per-user record for one flow type.
type FlowState struct {
	ParticipantID string             `json:"participant_id"`
	FlowType      FlowType           `json:"flow_type"`
	CurrentState  StateType          `json:"current_state"`
	StateData     map[DataKey]string `json:"state_data,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
