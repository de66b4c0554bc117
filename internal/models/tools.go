package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ToolName identifies a model-invocable tool. The set is closed; decoding
// an unknown name is an error rather than a silent no-op.
type ToolName string

const (
	ToolCreateTrigger     ToolName = "create_trigger"
	ToolLogWorkout        ToolName = "log_workout"
	ToolGenerateChallenge ToolName = "generate_challenge"
	ToolUpdateProfile     ToolName = "update_profile"
)

// ErrUnknownTool is returned when the model requests a tool outside the
// closed set.
var ErrUnknownTool = errors.New("unknown tool")

// CreateTriggerParams schedules a future re-engagement message.
type CreateTriggerParams struct {
	Instruction  string `json:"instruction"`
	DelayMinutes int    `json:"delay_minutes"`
	Type         string `json:"type,omitempty"`
	Context      string `json:"context,omitempty"`
}

// Validate checks required fields.
func (p *CreateTriggerParams) Validate() error {
	if p.Instruction == "" {
		return ErrEmptyInstruction
	}
	if p.DelayMinutes <= 0 {
		return fmt.Errorf("delay_minutes must be positive, got %d", p.DelayMinutes)
	}
	return nil
}

// LogWorkoutParams records a workout the user reported completing.
type LogWorkoutParams struct {
	WorkoutType     string `json:"workout_type"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Validate checks required fields.
func (p *LogWorkoutParams) Validate() error {
	if p.WorkoutType == "" {
		return errors.New("workout_type cannot be empty")
	}
	return nil
}

// GenerateChallengeParams asks for a quick exercise challenge.
type GenerateChallengeParams struct {
	Difficulty string `json:"difficulty,omitempty"`
	Focus      string `json:"focus,omitempty"`
}

// UpdateProfileParams amends onboarding answers mid-conversation. All
// fields are optional; empty fields are left untouched.
type UpdateProfileParams struct {
	FitnessLevel string `json:"fitness_level,omitempty"`
	Goals        string `json:"goals,omitempty"`
	Equipment    string `json:"equipment,omitempty"`
	Injuries     string `json:"injuries,omitempty"`
}

// ToolInvocation is the decoded, typed form of a model tool call. Exactly
// one of the params fields is non-nil, discriminated by Name.
type ToolInvocation struct {
	Name              ToolName
	CreateTrigger     *CreateTriggerParams
	LogWorkout        *LogWorkoutParams
	GenerateChallenge *GenerateChallengeParams
	UpdateProfile     *UpdateProfileParams
}

// DecodeToolInvocation parses a raw tool call into its typed form.
func DecodeToolInvocation(name string, args []byte) (*ToolInvocation, error) {
	inv := &ToolInvocation{Name: ToolName(name)}
	switch inv.Name {
	case ToolCreateTrigger:
		var p CreateTriggerParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s args: %w", name, err)
		}
		inv.CreateTrigger = &p
	case ToolLogWorkout:
		var p LogWorkoutParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s args: %w", name, err)
		}
		inv.LogWorkout = &p
	case ToolGenerateChallenge:
		var p GenerateChallengeParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", name, err)
		}
		inv.GenerateChallenge = &p
	case ToolUpdateProfile:
		var p UpdateProfileParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", name, err)
		}
		inv.UpdateProfile = &p
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return inv, nil
}

// ToolResult is the outcome of executing one tool invocation, fed back to
// the model as the tool message content.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON renders the result for the tool response message. Marshalling a
// ToolResult cannot fail, so the fallback branch is unreachable in practice.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"result encoding failed"}`
	}
	return string(b)
}
