package models

import (
	"errors"
	"time"
)

// TriggerStatus is the lifecycle state of a scheduled trigger.
type TriggerStatus string

const (
	TriggerStatusPending   TriggerStatus = "pending"
	TriggerStatusExecuting TriggerStatus = "executing"
	TriggerStatusCompleted TriggerStatus = "completed"
	TriggerStatusFailed    TriggerStatus = "failed"
	TriggerStatusCancelled TriggerStatus = "cancelled"
)

// Trigger-specific errors.
var (
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrTriggerForbidden  = errors.New("trigger belongs to another owner")
	ErrTriggerNotPending = errors.New("trigger is not pending")
)

// TriggerMetadata carries optional hints attached at creation time.
type TriggerMetadata struct {
	Type    string `json:"type,omitempty"`
	Context string `json:"context,omitempty"`
}

// Trigger is a one-shot scheduled re-engagement. The instruction is a
// directive to the model, never shown to the user verbatim.
type Trigger struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Recipient   string           `json:"recipient"`
	Channel     Channel          `json:"channel"`
	Instruction string           `json:"instruction"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	Status      TriggerStatus    `json:"status"`
	ThreadID    string           `json:"thread_id,omitempty"`
	Metadata    *TriggerMetadata `json:"metadata,omitempty"`
	TimerID     string           `json:"timer_id,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Validate checks trigger fields prior to scheduling.
func (t *Trigger) Validate() error {
	if t.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if t.Recipient == "" {
		return ErrEmptyRecipient
	}
	if t.Instruction == "" {
		return ErrEmptyInstruction
	}
	if !t.Channel.Valid() {
		return ErrInvalidChannel
	}
	if t.ScheduledAt.Before(time.Now()) {
		return ErrScheduledTimeInPast
	}
	return nil
}

// TimerInfo describes an active in-process timer.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FiresAt     time.Time `json:"fires_at"`
}
