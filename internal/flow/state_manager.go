package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	return &StoreBasedStateManager{store: st}
}

// GetCurrentState retrieves the current state for a participant in a flow.
// Missing state returns the empty state, not an error.
func (sm *StoreBasedStateManager) GetCurrentState(ctx context.Context, participantID string, flowType models.FlowType) (models.StateType, error) {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager.GetCurrentState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return "", err
	}
	if flowState == nil {
		return "", nil
	}
	return flowState.CurrentState, nil
}

// SetCurrentState updates the current state, creating the flow state record
// if needed.
func (sm *StoreBasedStateManager) SetCurrentState(ctx context.Context, participantID string, flowType models.FlowType, state models.StateType) error {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager.SetCurrentState: lookup failed", "error", err, "participantID", participantID, "flowType", flowType)
		return err
	}

	now := time.Now()
	if flowState == nil {
		flowState = &models.FlowState{
			ParticipantID: participantID,
			FlowType:      flowType,
			CurrentState:  state,
			StateData:     make(map[models.DataKey]string),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	} else {
		flowState.CurrentState = state
		flowState.UpdatedAt = now
	}

	if err := sm.store.SaveFlowState(*flowState); err != nil {
		slog.Error("StateManager.SetCurrentState: save failed", "error", err, "participantID", participantID, "flowType", flowType, "state", state)
		return err
	}
	return nil
}

// GetStateData retrieves a data slot for the participant's flow state.
// Missing slots return the empty string, not an error.
func (sm *StoreBasedStateManager) GetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey) (string, error) {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager.GetStateData failed", "error", err, "participantID", participantID, "flowType", flowType, "key", key)
		return "", err
	}
	if flowState == nil || flowState.StateData == nil {
		return "", nil
	}
	return flowState.StateData[key], nil
}

// SetStateData stores a data slot, creating the flow state record if needed.
func (sm *StoreBasedStateManager) SetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey, value string) error {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager.SetStateData: lookup failed", "error", err, "participantID", participantID, "flowType", flowType, "key", key)
		return err
	}

	now := time.Now()
	if flowState == nil {
		flowState = &models.FlowState{
			ParticipantID: participantID,
			FlowType:      flowType,
			StateData:     make(map[models.DataKey]string),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	if flowState.StateData == nil {
		flowState.StateData = make(map[models.DataKey]string)
	}
	flowState.StateData[key] = value
	flowState.UpdatedAt = now

	if err := sm.store.SaveFlowState(*flowState); err != nil {
		slog.Error("StateManager.SetStateData: save failed", "error", err, "participantID", participantID, "flowType", flowType, "key", key)
		return err
	}
	return nil
}

// ResetState removes all state for the participant's flow.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, participantID string, flowType models.FlowType) error {
	if err := sm.store.DeleteFlowState(participantID, flowType); err != nil {
		slog.Error("StateManager.ResetState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return err
	}
	return nil
}
