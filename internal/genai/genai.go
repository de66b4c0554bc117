// Package genai wraps the OpenAI client behind a small interface so flows
// can be tested with mocks. Single-shot tool turns go through the Chat
// Completions API; multi-turn coaching goes through the Responses API so a
// previous response ID can chain server-side conversation state.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Turn is one prior exchange passed as generation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generation is the result of a history-aware generation, including the
// provider response ID used to chain the next turn.
type Generation struct {
	Text       string
	ResponseID string
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallResponse is the result of a tools-enabled generation. Either
// Content or ToolCalls (or both) may be populated.
type ToolCallResponse struct {
	Content    string
	ToolCalls  []ToolCall
	ResponseID string
}

// ClientInterface defines the generation operations flows depend on.
type ClientInterface interface {
	// GeneratePrompt runs a single system+user exchange and returns the text.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithHistory continues a conversation. When previousResponseID
	// is set only the latest turn is sent and the provider resumes from its
	// stored state; otherwise the full transcript is replayed.
	GenerateWithHistory(ctx context.Context, systemPrompt string, turns []Turn, previousResponseID string) (*Generation, error)
	// GenerateWithTools runs a tools-enabled completion over explicit messages.
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
}

// Opts holds configuration for the OpenAI client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Option configures the OpenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint, for proxies and compatible servers.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model for all generations.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client is the production OpenAI-backed implementation of ClientInterface.
type Client struct {
	api   openai.Client
	model string
}

// NewClient creates a Client from options. The API key may come from the
// OPENAI_API_KEY environment variable when not set explicitly.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	var reqOpts []option.RequestOption
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	slog.Debug("GenAI.NewClient: initialized", "model", model, "customBaseURL", cfg.BaseURL != "")
	return &Client{api: openai.NewClient(reqOpts...), model: model}, nil
}

// GeneratePrompt runs a one-shot system+user completion.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithHistory continues a conversation through the Responses API.
func (c *Client) GenerateWithHistory(ctx context.Context, systemPrompt string, turns []Turn, previousResponseID string) (*Generation, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(renderInput(turns, previousResponseID != ""))},
	}
	if systemPrompt != "" {
		params.Instructions = openai.String(systemPrompt)
	}
	if previousResponseID != "" {
		params.PreviousResponseID = openai.String(previousResponseID)
	}

	resp, err := c.api.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("response generation failed: %w", err)
	}
	slog.Debug("GenAI.GenerateWithHistory: response received", "responseID", resp.ID, "chained", previousResponseID != "")
	return &Generation{Text: resp.OutputText(), ResponseID: resp.ID}, nil
}

// renderInput produces the Responses API input. When the turn is chained to
// a previous response only the newest user content is needed; otherwise the
// whole transcript is replayed.
func renderInput(turns []Turn, chained bool) string {
	if len(turns) == 0 {
		return ""
	}
	if chained {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Role == "user" {
				return turns[i].Content
			}
		}
		return turns[len(turns)-1].Content
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// GenerateWithTools runs a tools-enabled chat completion.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return nil, fmt.Errorf("tools completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("tools completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &ToolCallResponse{Content: msg.Content, ResponseID: resp.ID}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	slog.Debug("GenAI.GenerateWithTools: completion received", "toolCalls", len(out.ToolCalls), "hasContent", out.Content != "")
	return out, nil
}
