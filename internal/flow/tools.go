package flow

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/jymapp/jym/internal/models"
)

// chatToolDefinitions returns the tool set exposed to the coaching model.
// The names form a closed set mirrored by models.DecodeToolInvocation.
func chatToolDefinitions() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ToolCreateTrigger),
				Description: openai.String("Schedule a future check-in or reminder for this user. The instruction describes what to say when the time comes; it is not shown to the user."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"instruction": map[string]interface{}{
							"type":        "string",
							"description": "Directive for the future message, e.g. 'ask how the evening run went'",
						},
						"delay_minutes": map[string]interface{}{
							"type":        "integer",
							"minimum":     1,
							"description": "How many minutes from now to send it",
						},
						"type": map[string]interface{}{
							"type":        "string",
							"description": "Optional category, e.g. 'workout_followup' or 'check_in'",
						},
						"context": map[string]interface{}{
							"type":        "string",
							"description": "Optional extra context to carry along",
						},
					},
					"required": []string{"instruction", "delay_minutes"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ToolLogWorkout),
				Description: openai.String("Record a workout the user reports having completed."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"workout_type": map[string]interface{}{
							"type":        "string",
							"description": "What they did, e.g. 'run', 'upper body strength'",
						},
						"duration_minutes": map[string]interface{}{
							"type":        "integer",
							"description": "Duration in minutes if mentioned",
						},
						"notes": map[string]interface{}{
							"type":        "string",
							"description": "Anything notable: how it felt, PRs, pain",
						},
					},
					"required": []string{"workout_type"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ToolGenerateChallenge),
				Description: openai.String("Produce a quick exercise challenge the user can do right now."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"difficulty": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"easy", "medium", "hard"},
							"description": "How demanding the challenge should be",
						},
						"focus": map[string]interface{}{
							"type":        "string",
							"description": "Optional focus area, e.g. 'core', 'legs', 'mobility'",
						},
					},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ToolUpdateProfile),
				Description: openai.String("Update the user's fitness profile when they share new information about their level, goals, equipment, or injuries."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"fitness_level": map[string]interface{}{
							"type":        "string",
							"description": "Updated fitness level note",
						},
						"goals": map[string]interface{}{
							"type":        "string",
							"description": "Updated goals note",
						},
						"equipment": map[string]interface{}{
							"type":        "string",
							"description": "Updated equipment note",
						},
						"injuries": map[string]interface{}{
							"type":        "string",
							"description": "Updated injuries or limitations note",
						},
					},
				},
			},
		},
	}
}
