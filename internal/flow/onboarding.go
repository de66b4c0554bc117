package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jymapp/jym/internal/genai"
	"github.com/jymapp/jym/internal/models"
)

// OnboardingQuestion is one step of the fixed onboarding sequence.
type OnboardingQuestion struct {
	Key      string
	Question string
	Hint     string
}

// The onboarding sequence is fixed. Question text is the verbatim fallback;
// normally the model phrases each ask itself using the hint.
var onboardingQuestions = []OnboardingQuestion{
	{
		Key:      "fitnessLevel",
		Question: "how would you describe your fitness level right now? total beginner, somewhat active, or pretty fit?",
		Hint:     "Ask about their current fitness level. Offer rough buckets like beginner, somewhat active, fit.",
	},
	{
		Key:      "goals",
		Question: "what are you hoping to get out of this? building strength, losing weight, more energy, something else?",
		Hint:     "Ask what they want to achieve. Strength, weight loss, energy, habit building are common answers.",
	},
	{
		Key:      "equipment",
		Question: "what do you have to work with? a gym membership, some dumbbells at home, or just bodyweight?",
		Hint:     "Ask what equipment or space they have access to.",
	},
	{
		Key:      "injuries",
		Question: "anything i should know about? injuries, conditions, stuff you want to avoid?",
		Hint:     "Ask about injuries or physical limitations. Make clear it's fine to say none.",
	},
}

// Fixed fallback strings used when generation fails. The flow always moves
// forward even when the model is down.
const (
	onboardingFallbackAck     = "got it, thanks"
	onboardingFallbackIntro   = "hey! i'm jym, your pocket fitness coach. quick warm-up before we start: stand up and do 5 slow shoulder rolls. done? ok. how would you describe your fitness level right now?"
	onboardingFallbackWelcome = "that's everything i need! i'm here whenever you want a workout, a quick challenge, or just a push. what do you feel like doing first?"
)

const onboardingSystemPrompt = `You are Jym, a friendly personal fitness coach chatting over text.
You are walking a new user through a short intake: fitness level, goals, equipment, injuries.
Keep replies short and casual, lowercase, like texting a friend. One short acknowledgment of
what they just said, then ask the next question naturally. Never ask more than one question at once.
Never give medical advice.`

const rewriteSystemPrompt = `Condense the user's answer to an intake question into a short third-person
profile note, keeping every concrete detail. Output only the note, no preamble.
Example: "uh i guess i run sometimes? like once a week" -> "Runs occasionally, about once a week."`

const welcomeSystemPrompt = `You are Jym, a friendly personal fitness coach chatting over text.
The user just finished intake. Using their profile, send a short, warm welcome: reflect their goal
back at them, tell them what you can do (workouts, quick challenges, check-ins), and end with an
inviting question. Lowercase, casual, a few short lines.`

// onboardingState is the durable engine state, stored as one JSON blob in
// the flow state data.
type onboardingState struct {
	QuestionIndex  int          `json:"question_index"`
	History        []genai.Turn `json:"history,omitempty"`
	LastResponseID string       `json:"last_response_id,omitempty"`
}

// OnboardingEngine walks a new user through the fixed intake sequence. The
// question index only ever moves forward; a generation failure degrades the
// reply text, never the state machine.
type OnboardingEngine struct {
	stateManager StateManager
	genaiClient  genai.ClientInterface
	profiles     ProfileStore
}

// NewOnboardingEngine creates an onboarding engine.
func NewOnboardingEngine(stateManager StateManager, genaiClient genai.ClientInterface, profiles ProfileStore) *OnboardingEngine {
	return &OnboardingEngine{stateManager: stateManager, genaiClient: genaiClient, profiles: profiles}
}

func (e *OnboardingEngine) loadState(ctx context.Context, ownerID string) (*onboardingState, error) {
	raw, err := e.stateManager.GetStateData(ctx, ownerID, models.FlowTypeOnboarding, models.DataKeyOnboardingState)
	if err != nil {
		return nil, fmt.Errorf("failed to load onboarding state: %w", err)
	}
	if raw == "" {
		return &onboardingState{}, nil
	}
	var st onboardingState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		slog.Error("OnboardingEngine.loadState: corrupt state, restarting intake", "error", err, "ownerID", ownerID)
		return &onboardingState{}, nil
	}
	return &st, nil
}

func (e *OnboardingEngine) saveState(ctx context.Context, ownerID string, st *onboardingState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode onboarding state: %w", err)
	}
	if err := e.stateManager.SetStateData(ctx, ownerID, models.FlowTypeOnboarding, models.DataKeyOnboardingState, string(raw)); err != nil {
		return fmt.Errorf("failed to save onboarding state: %w", err)
	}
	state := models.StateOnboardingActive
	if st.QuestionIndex >= len(onboardingQuestions) {
		state = models.StateOnboardingComplete
	}
	if err := e.stateManager.SetCurrentState(ctx, ownerID, models.FlowTypeOnboarding, state); err != nil {
		slog.Warn("OnboardingEngine.saveState: state marker update failed", "error", err, "ownerID", ownerID)
	}
	return nil
}

// Started reports whether the owner has an onboarding flow underway or done.
func (e *OnboardingEngine) Started(ctx context.Context, ownerID string) (bool, error) {
	state, err := e.stateManager.GetCurrentState(ctx, ownerID, models.FlowTypeOnboarding)
	if err != nil {
		return false, err
	}
	return state != "", nil
}

// IsComplete reports whether all questions have been answered.
func (e *OnboardingEngine) IsComplete(ctx context.Context, ownerID string) (bool, error) {
	st, err := e.loadState(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return st.QuestionIndex >= len(onboardingQuestions), nil
}

// Begin starts intake for a new user and returns the opening message: a
// short warm-up challenge followed by the first question.
func (e *OnboardingEngine) Begin(ctx context.Context, ownerID string) (string, error) {
	st := &onboardingState{}
	intro := onboardingFallbackIntro
	prompt := fmt.Sprintf("Greet a brand-new user, give them one tiny warm-up challenge they can do right now, then ask: %q", onboardingQuestions[0].Question)
	gen, err := e.genaiClient.GenerateWithHistory(ctx, onboardingSystemPrompt, []genai.Turn{{Role: "user", Content: prompt}}, "")
	if err != nil || gen.Text == "" {
		slog.Warn("OnboardingEngine.Begin: intro generation failed, using fallback", "error", err, "ownerID", ownerID)
	} else {
		intro = gen.Text
		st.LastResponseID = gen.ResponseID
	}
	st.History = append(st.History, genai.Turn{Role: "assistant", Content: intro})
	if err := e.saveState(ctx, ownerID, st); err != nil {
		return "", err
	}
	slog.Info("OnboardingEngine.Begin: intake started", "ownerID", ownerID)
	return intro, nil
}

// GetNextQuestion returns the current prompt without advancing the flow.
// Before any answer it is question 0; after the last answer it is the
// welcome message, regenerated on every call, and the profile's onboarded
// flag is set as a side effect.
func (e *OnboardingEngine) GetNextQuestion(ctx context.Context, ownerID string) (string, error) {
	st, err := e.loadState(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if st.QuestionIndex >= len(onboardingQuestions) {
		return e.completionMessage(ctx, ownerID, st)
	}
	return onboardingQuestions[st.QuestionIndex].Question, nil
}

// completionMessage regenerates the welcome and marks the profile
// onboarded. The flag write is best-effort; a persistence failure never
// blocks the welcome.
func (e *OnboardingEngine) completionMessage(ctx context.Context, ownerID string, st *onboardingState) (string, error) {
	e.markOnboarded(ctx, ownerID)

	welcome := onboardingFallbackWelcome
	profileSummary := e.profileSummary(ownerID)
	gen, err := e.genaiClient.GenerateWithHistory(ctx, welcomeSystemPrompt,
		[]genai.Turn{{Role: "user", Content: "Intake is done. Profile so far:\n" + profileSummary}}, st.LastResponseID)
	if err != nil || gen.Text == "" {
		slog.Warn("OnboardingEngine.completionMessage: welcome generation failed, using fallback", "error", err, "ownerID", ownerID)
		return welcome, nil
	}
	st.LastResponseID = gen.ResponseID
	if err := e.saveState(ctx, ownerID, st); err != nil {
		slog.Warn("OnboardingEngine.completionMessage: state save failed", "error", err, "ownerID", ownerID)
	}
	return gen.Text, nil
}

func (e *OnboardingEngine) markOnboarded(ctx context.Context, ownerID string) {
	profile, err := e.profiles.GetUserProfile(ownerID)
	if err != nil {
		slog.Warn("OnboardingEngine.markOnboarded: profile lookup failed", "error", err, "ownerID", ownerID)
		return
	}
	now := time.Now()
	if profile == nil {
		profile = &models.UserProfile{OwnerID: ownerID, CreatedAt: now}
	}
	if profile.Onboarded {
		return
	}
	profile.Onboarded = true
	profile.UpdatedAt = now
	if err := e.profiles.SaveUserProfile(*profile); err != nil {
		slog.Warn("OnboardingEngine.markOnboarded: profile save failed", "error", err, "ownerID", ownerID)
	}
}

func (e *OnboardingEngine) profileSummary(ownerID string) string {
	profile, err := e.profiles.GetUserProfile(ownerID)
	if err != nil || profile == nil {
		return "(no profile recorded)"
	}
	return fmt.Sprintf("fitness level: %s\ngoals: %s\nequipment: %s\ninjuries: %s",
		profile.FitnessLevel, profile.Goals, profile.Equipment, profile.Injuries)
}

// ProcessResponse handles the user's answer to the current question: the
// answer is condensed and saved to the profile, the index advances, and a
// combined acknowledgment plus next question is generated. Every step but
// the index advance is best-effort.
func (e *OnboardingEngine) ProcessResponse(ctx context.Context, ownerID, response string) (string, error) {
	st, err := e.loadState(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if st.QuestionIndex >= len(onboardingQuestions) {
		// Intake already finished; the router should not be here.
		slog.Warn("OnboardingEngine.ProcessResponse: called after completion", "ownerID", ownerID)
		return e.completionMessage(ctx, ownerID, st)
	}

	q := onboardingQuestions[st.QuestionIndex]
	st.History = append(st.History, genai.Turn{Role: "user", Content: response})

	e.saveAnswer(ctx, ownerID, q, response)

	// The index moves forward no matter what happens below.
	st.QuestionIndex++

	var reply string
	if st.QuestionIndex < len(onboardingQuestions) {
		next := onboardingQuestions[st.QuestionIndex]
		gen, err := e.genaiClient.GenerateWithHistory(ctx, onboardingSystemPrompt, append(st.History,
			genai.Turn{Role: "user", Content: fmt.Sprintf("Acknowledge briefly, then ask the next intake question. %s", next.Hint)}), st.LastResponseID)
		if err != nil || gen.Text == "" {
			slog.Warn("OnboardingEngine.ProcessResponse: generation failed, using fallback ack", "error", err, "ownerID", ownerID, "question", q.Key)
			reply = onboardingFallbackAck
		} else {
			reply = gen.Text
			st.LastResponseID = gen.ResponseID
		}
	} else {
		gen, err := e.genaiClient.GenerateWithHistory(ctx, onboardingSystemPrompt, append(st.History,
			genai.Turn{Role: "user", Content: "That was the last intake question. Acknowledge their answer briefly. Do not ask anything."}), st.LastResponseID)
		if err != nil || gen.Text == "" {
			slog.Warn("OnboardingEngine.ProcessResponse: final ack generation failed, using fallback", "error", err, "ownerID", ownerID)
			reply = onboardingFallbackAck
		} else {
			reply = gen.Text
			st.LastResponseID = gen.ResponseID
		}
	}

	st.History = append(st.History, genai.Turn{Role: "assistant", Content: reply})
	if err := e.saveState(ctx, ownerID, st); err != nil {
		return "", err
	}
	slog.Debug("OnboardingEngine.ProcessResponse: advanced", "ownerID", ownerID, "answered", q.Key, "questionIndex", st.QuestionIndex)
	return reply, nil
}

// saveAnswer condenses the raw answer and writes it to the profile. Both
// the rewrite and the write are best-effort: the raw text is used when the
// rewrite fails, and a failed write is logged and skipped.
func (e *OnboardingEngine) saveAnswer(ctx context.Context, ownerID string, q OnboardingQuestion, response string) {
	condensed, err := e.genaiClient.GeneratePrompt(ctx, rewriteSystemPrompt,
		fmt.Sprintf("Question: %s\nAnswer: %s", q.Question, response))
	if err != nil || condensed == "" {
		slog.Warn("OnboardingEngine.saveAnswer: rewrite failed, storing raw answer", "error", err, "ownerID", ownerID, "question", q.Key)
		condensed = response
	}

	profile, err := e.profiles.GetUserProfile(ownerID)
	if err != nil {
		slog.Warn("OnboardingEngine.saveAnswer: profile lookup failed", "error", err, "ownerID", ownerID)
		return
	}
	now := time.Now()
	if profile == nil {
		profile = &models.UserProfile{OwnerID: ownerID, CreatedAt: now}
	}
	switch q.Key {
	case "fitnessLevel":
		profile.FitnessLevel = condensed
	case "goals":
		profile.Goals = condensed
	case "equipment":
		profile.Equipment = condensed
	case "injuries":
		profile.Injuries = condensed
	}
	profile.UpdatedAt = now
	if err := e.profiles.SaveUserProfile(*profile); err != nil {
		slog.Warn("OnboardingEngine.saveAnswer: profile save failed", "error", err, "ownerID", ownerID, "question", q.Key)
	}
}
