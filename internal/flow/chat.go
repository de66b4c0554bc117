package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/jymapp/jym/internal/conversation"
	"github.com/jymapp/jym/internal/genai"
	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/store"
)

const chatSystemPrompt = `You are Jym, a personal fitness coach texting with a user you already know.
Keep replies short, casual, lowercase, like texting a friend. Be encouraging but not saccharine.
Suggest concrete workouts matched to their profile. Use your tools when they fit: schedule
check-ins after promising a workout, log workouts they report, update their profile when they
share new info. Wrap any multi-line workout or list in <multiline> and </multiline> markers so
it arrives as one message. Never give medical advice; suggest a professional for pain or injury.`

// chatFallbackReply is sent when generation fails entirely. In-character,
// so an outage reads as a glitch rather than a stack trace.
const chatFallbackReply = "ugh, my brain just glitched for a sec. say that again?"

// TriggerCreator schedules re-engagement triggers on behalf of tool calls.
// Implemented by the trigger scheduler.
type TriggerCreator interface {
	CreateFromTool(ctx context.Context, ownerID, recipient string, channel models.Channel, threadID string, params models.CreateTriggerParams) (*models.Trigger, error)
}

// ChatFlow is the open-ended coaching conversation for onboarded users.
// Each inbound message is one full turn: load context, generate with tools,
// execute any tool calls, persist, reply.
type ChatFlow struct {
	store       store.Store
	genaiClient genai.ClientInterface
	triggers    TriggerCreator
}

// NewChatFlow creates the coaching chat flow.
func NewChatFlow(st store.Store, genaiClient genai.ClientInterface, triggers TriggerCreator) *ChatFlow {
	return &ChatFlow{store: st, genaiClient: genaiClient, triggers: triggers}
}

// ProcessMessage runs one coaching turn and returns the reply text. The
// reply is always non-empty; upstream failures degrade to an in-character
// fallback. Only context initialization failure is returned as an error.
func (f *ChatFlow) ProcessMessage(ctx context.Context, ownerID string, msg models.InboundMessage) (string, error) {
	mgr := conversation.NewManager(f.store)
	cctx, err := mgr.Initialize(ctx, ownerID, msg.ChatID, models.ConversationTypeFitnessChat, "")
	if err != nil {
		return "", fmt.Errorf("failed to initialize conversation: %w", err)
	}

	isNew, err := mgr.IsNewUser(ctx)
	if err != nil {
		slog.Warn("ChatFlow.ProcessMessage: isNewUser check failed", "error", err, "ownerID", ownerID)
	}
	if err := mgr.AddMessage(ctx, models.RoleUser, msg.Text, nil, nil); err != nil {
		slog.Error("ChatFlow.ProcessMessage: failed to record user message", "error", err, "ownerID", ownerID)
	}

	messages := f.buildMessages(cctx, ownerID, msg.Text, isNew)
	tools := chatToolDefinitions()

	resp, err := f.genaiClient.GenerateWithTools(ctx, messages, tools)
	if err != nil {
		slog.Error("ChatFlow.ProcessMessage: generation failed", "error", err, "ownerID", ownerID)
		f.recordReply(ctx, mgr, ownerID, chatFallbackReply, "")
		return chatFallbackReply, nil
	}

	reply := resp.Content
	if len(resp.ToolCalls) > 0 {
		reply = f.handleToolCalls(ctx, mgr, ownerID, msg, resp, messages, tools)
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("ChatFlow.ProcessMessage: empty reply, using fallback", "ownerID", ownerID)
		reply = chatFallbackReply
	}

	f.recordReply(ctx, mgr, ownerID, reply, resp.ResponseID)
	return reply, nil
}

// recordReply persists the assistant turn and continuation token. Failures
// are logged and absorbed; the user still gets the reply.
func (f *ChatFlow) recordReply(ctx context.Context, mgr *conversation.Manager, ownerID, reply, responseID string) {
	if err := mgr.AddMessage(ctx, models.RoleAssistant, reply, nil, nil); err != nil {
		slog.Error("ChatFlow.recordReply: failed to record assistant message", "error", err, "ownerID", ownerID)
	}
	if responseID != "" {
		if err := mgr.UpdateResponseID(ctx, responseID); err != nil {
			slog.Error("ChatFlow.recordReply: failed to record response id", "error", err, "ownerID", ownerID)
		}
	}
}

// buildMessages assembles the completion input: persona, profile
// background, distilled memory, the rolling window, and the new message.
func (f *ChatFlow) buildMessages(cctx *models.ConversationContext, ownerID, latest string, isNew bool) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(chatSystemPrompt)}

	if profile, err := f.store.GetUserProfile(ownerID); err == nil && profile != nil {
		background := fmt.Sprintf("User profile. Fitness level: %s. Goals: %s. Equipment: %s. Injuries or limitations: %s.",
			orNone(profile.FitnessLevel), orNone(profile.Goals), orNone(profile.Equipment), orNone(profile.Injuries))
		messages = append(messages, openai.SystemMessage(background))
	}
	if mem := cctx.LLM.Memory; mem != nil && mem.Summary != "" {
		messages = append(messages, openai.SystemMessage("Conversation memory: "+mem.Summary))
	}
	if isNew {
		messages = append(messages, openai.SystemMessage("This is the user's first coaching chat since finishing intake."))
	}

	for _, m := range cctx.LLM.Messages {
		switch m.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			// Tool-call turns can carry no text; replaying them without
			// their tool results would leave a dangling empty message.
			if m.Content != "" {
				messages = append(messages, openai.AssistantMessage(m.Content))
			}
		}
	}
	return append(messages, openai.UserMessage(latest))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not recorded"
	}
	return s
}

// handleToolCalls executes the model's tool calls and runs a follow-up
// completion so the model can phrase the outcome. The assistant message
// carrying the tool calls must precede the tool result messages, and both
// turns are persisted in the rolling window.
func (f *ChatFlow) handleToolCalls(ctx context.Context, mgr *conversation.Manager, ownerID string, msg models.InboundMessage, toolResponse *genai.ToolCallResponse, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) string {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var callRecords []models.ToolCallRecord
	for _, tc := range toolResponse.ToolCalls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
		callRecords = append(callRecords, models.ToolCallRecord{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	if err := mgr.AddMessage(ctx, models.RoleAssistant, toolResponse.Content, callRecords, nil); err != nil {
		slog.Error("ChatFlow.handleToolCalls: failed to record tool call turn", "error", err, "ownerID", ownerID)
	}
	assistantWithCalls := openai.ChatCompletionAssistantMessageParam{
		Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(toolResponse.Content)},
		ToolCalls: toolCalls,
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantWithCalls})

	var summaries []string
	var results []models.ToolResult
	for _, tc := range toolResponse.ToolCalls {
		result := f.executeToolCall(ctx, ownerID, msg, tc)
		if result.Message != "" {
			summaries = append(summaries, result.Message)
		}
		results = append(results, result)
		messages = append(messages, openai.ToolMessage(result.JSON(), tc.ID))
	}
	if err := mgr.AddMessage(ctx, models.RoleTool, "", nil, results); err != nil {
		slog.Error("ChatFlow.handleToolCalls: failed to record tool results", "error", err, "ownerID", ownerID)
	}

	final, err := f.genaiClient.GenerateWithTools(ctx, messages, tools)
	if err != nil || strings.TrimSpace(final.Content) == "" {
		slog.Warn("ChatFlow.handleToolCalls: follow-up generation failed, summarizing results", "error", err, "ownerID", ownerID)
		if len(summaries) > 0 {
			return strings.Join(summaries, "\n")
		}
		return chatFallbackReply
	}
	return final.Content
}

// executeToolCall dispatches one decoded tool call. The switch over tool
// names is exhaustive; decode rejects anything outside the closed set.
func (f *ChatFlow) executeToolCall(ctx context.Context, ownerID string, msg models.InboundMessage, tc genai.ToolCall) models.ToolResult {
	inv, err := models.DecodeToolInvocation(tc.Name, []byte(tc.Arguments))
	if err != nil {
		slog.Warn("ChatFlow.executeToolCall: bad tool call", "error", err, "toolName", tc.Name, "ownerID", ownerID)
		return models.ToolResult{Error: err.Error()}
	}

	switch inv.Name {
	case models.ToolCreateTrigger:
		return f.execCreateTrigger(ctx, ownerID, msg, *inv.CreateTrigger)
	case models.ToolLogWorkout:
		return f.execLogWorkout(ctx, ownerID, *inv.LogWorkout)
	case models.ToolGenerateChallenge:
		return f.execGenerateChallenge(ctx, ownerID, *inv.GenerateChallenge)
	case models.ToolUpdateProfile:
		return f.execUpdateProfile(ctx, ownerID, *inv.UpdateProfile)
	default:
		// Unreachable: DecodeToolInvocation already rejected unknown names.
		return models.ToolResult{Error: fmt.Sprintf("tool %s not implemented", inv.Name)}
	}
}

func (f *ChatFlow) execCreateTrigger(ctx context.Context, ownerID string, msg models.InboundMessage, params models.CreateTriggerParams) models.ToolResult {
	trigger, err := f.triggers.CreateFromTool(ctx, ownerID, msg.From, msg.Channel, msg.ChatID, params)
	if err != nil {
		slog.Error("ChatFlow.execCreateTrigger failed", "error", err, "ownerID", ownerID)
		return models.ToolResult{Error: "could not schedule the check-in"}
	}
	slog.Info("ChatFlow.execCreateTrigger: trigger scheduled", "triggerID", trigger.ID, "ownerID", ownerID, "scheduledAt", trigger.ScheduledAt)
	return models.ToolResult{Success: true, Message: fmt.Sprintf("check-in scheduled for %s", trigger.ScheduledAt.Format(time.Kitchen))}
}

func (f *ChatFlow) execLogWorkout(ctx context.Context, ownerID string, params models.LogWorkoutParams) models.ToolResult {
	mgr := conversation.NewManager(f.store)
	if _, err := mgr.Initialize(ctx, ownerID, "", models.ConversationTypeFitnessChat, ""); err != nil {
		return models.ToolResult{Error: "could not record the workout"}
	}
	memory := &models.ConversationMemory{LastWorkoutType: params.WorkoutType}
	if params.Notes != "" {
		memory.KeyPoints = []string{params.Notes}
	}
	if err := mgr.UpdateContext(ctx, conversation.ContextUpdate{Memory: memory}); err != nil {
		slog.Error("ChatFlow.execLogWorkout: memory update failed", "error", err, "ownerID", ownerID)
		return models.ToolResult{Error: "could not record the workout"}
	}
	slog.Info("ChatFlow.execLogWorkout: workout recorded", "ownerID", ownerID, "workoutType", params.WorkoutType, "durationMinutes", params.DurationMinutes)
	return models.ToolResult{Success: true, Message: fmt.Sprintf("logged %s workout", params.WorkoutType)}
}

func (f *ChatFlow) execGenerateChallenge(ctx context.Context, ownerID string, params models.GenerateChallengeParams) models.ToolResult {
	difficulty := params.Difficulty
	if difficulty == "" {
		difficulty = "easy"
	}
	prompt := fmt.Sprintf("Give one quick %s fitness challenge the user can do right now.", difficulty)
	if params.Focus != "" {
		prompt += " Focus: " + params.Focus + "."
	}
	challenge, err := f.genaiClient.GeneratePrompt(ctx, chatSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(challenge) == "" {
		slog.Warn("ChatFlow.execGenerateChallenge: generation failed", "error", err, "ownerID", ownerID)
		return models.ToolResult{Success: true, Message: "challenge: 20 bodyweight squats, right now. go."}
	}
	return models.ToolResult{Success: true, Message: challenge}
}

func (f *ChatFlow) execUpdateProfile(ctx context.Context, ownerID string, params models.UpdateProfileParams) models.ToolResult {
	profile, err := f.store.GetUserProfile(ownerID)
	if err != nil {
		return models.ToolResult{Error: "could not update the profile"}
	}
	now := time.Now()
	if profile == nil {
		profile = &models.UserProfile{OwnerID: ownerID, CreatedAt: now}
	}
	var updated []string
	if params.FitnessLevel != "" {
		profile.FitnessLevel = params.FitnessLevel
		updated = append(updated, "fitness level")
	}
	if params.Goals != "" {
		profile.Goals = params.Goals
		updated = append(updated, "goals")
	}
	if params.Equipment != "" {
		profile.Equipment = params.Equipment
		updated = append(updated, "equipment")
	}
	if params.Injuries != "" {
		profile.Injuries = params.Injuries
		updated = append(updated, "injuries")
	}
	if len(updated) == 0 {
		return models.ToolResult{Success: true, Message: "nothing to update"}
	}
	profile.UpdatedAt = now
	if err := f.store.SaveUserProfile(*profile); err != nil {
		slog.Error("ChatFlow.execUpdateProfile: save failed", "error", err, "ownerID", ownerID)
		return models.ToolResult{Error: "could not update the profile"}
	}
	slog.Info("ChatFlow.execUpdateProfile: profile updated", "ownerID", ownerID, "fields", updated)
	return models.ToolResult{Success: true, Message: "updated " + strings.Join(updated, ", ")}
}
