// Package genai provides the LLM gateway for the SAGE assistant: free-text
// generation, intent classification, and entity extraction over the OpenAI
// Chat Completions API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ecsf-gov/sage/internal/models"
)

// Errors returned by the gateway.
var (
	ErrAPIKeyNotSet      = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// Generation parameters. Classification runs cold to keep the output shape
// stable; conversational generation gets a little warmth.
const (
	DefaultModel           = openai.ChatModelGPT4oMini
	generateTemperature    = 0.3
	classifyTemperature    = 0.1
	extractTemperature     = 0.0
	defaultMaxTokens       = 500
	classificationMaxToken = 100
)

// Classification is the result of an intent classification call.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ClientInterface defines the gateway operations the flow engine depends on.
type ClientInterface interface {
	// Generate produces a conversational reply from a system prompt, the
	// windowed history, and the latest user message.
	Generate(ctx context.Context, systemPrompt, userMessage string, history []models.ChatMessage) (string, error)
	// Classify maps a message onto one of the given categories.
	Classify(ctx context.Context, message string, categories []string) (Classification, error)
	// ExtractEntities pulls the given fields out of a message. Fields the
	// message does not mention are absent from the result.
	ExtractEntities(ctx context.Context, message string, fields []models.FieldSpec) (map[string]string, error)
	// Ping checks that the API is reachable.
	Ping(ctx context.Context) error
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openAIChatService adapts the real OpenAI client to chatService.
type openAIChatService struct {
	client openai.Client
}

func (s openAIChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the gateway client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures the gateway client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = openai.ChatModel(model) }
}

// Client is the OpenAI-backed gateway implementation.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a gateway client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("Client.NewClient: gateway client created", "model", cfg.Model)
	return &Client{chat: openAIChatService{client: cli}, model: cfg.Model}, nil
}

// Generate produces a conversational reply.
func (c *Client) Generate(ctx context.Context, systemPrompt, userMessage string, history []models.ChatMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, msg := range history {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage))

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(generateTemperature),
		MaxTokens:   openai.Int(defaultMaxTokens),
	})
	if err != nil {
		slog.Error("Client.Generate: completion failed", "error", err)
		return "", fmt.Errorf("generate failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// Classify maps a message onto one of the given categories. When the model
// reply is not parseable JSON the raw text is scanned for a category name.
func (c *Client) Classify(ctx context.Context, message string, categories []string) (Classification, error) {
	prompt := fmt.Sprintf(
		"Classify the user message into exactly one of these categories: %s.\n"+
			"Respond with only a JSON object: {\"intent\": \"<category>\", \"confidence\": <0..1>}",
		strings.Join(categories, ", "))

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(message),
		},
		Temperature: openai.Float(classifyTemperature),
		MaxTokens:   openai.Int(classificationMaxToken),
	})
	if err != nil {
		slog.Error("Client.Classify: completion failed", "error", err)
		return Classification{}, fmt.Errorf("classify failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Classification{}, ErrNoChoicesReturned
	}

	raw := resp.Choices[0].Message.Content
	var result Classification
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &result); err == nil && result.Intent != "" {
		return result, nil
	}

	// Parsing failed; scan the raw reply for a category name.
	lowered := strings.ToLower(raw)
	for _, cat := range categories {
		if strings.Contains(lowered, strings.ToLower(cat)) {
			slog.Debug("Client.Classify: recovered category from raw text", "category", cat)
			return Classification{Intent: cat, Confidence: 0.5}, nil
		}
	}
	return Classification{}, fmt.Errorf("classify reply not parseable: %q", raw)
}

// ExtractEntities pulls the given fields out of a message.
func (c *Client) ExtractEntities(ctx context.Context, message string, fields []models.FieldSpec) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		names = append(names, fmt.Sprintf("%s (%s)", f.Name, label))
	}
	prompt := fmt.Sprintf(
		"Extract these fields from the user message: %s.\n"+
			"Respond with only a JSON object mapping field names to string values. "+
			"Omit fields the message does not mention.",
		strings.Join(names, ", "))

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(message),
		},
		Temperature: openai.Float(extractTemperature),
		MaxTokens:   openai.Int(defaultMaxTokens),
	})
	if err != nil {
		slog.Error("Client.ExtractEntities: completion failed", "error", err)
		return nil, fmt.Errorf("extract failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}

	var extracted map[string]string
	if err := json.Unmarshal([]byte(ExtractJSONObject(resp.Choices[0].Message.Content)), &extracted); err != nil {
		slog.Debug("Client.ExtractEntities: reply not parseable, returning empty map", "error", err)
		return map[string]string{}, nil
	}
	return extracted, nil
}

// Ping checks API reachability with a minimal completion.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		return fmt.Errorf("gateway ping failed: %w", err)
	}
	return nil
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractJSONObject strips Markdown code fences and returns the outermost
// JSON object embedded in s, or s unchanged when none is found.
func ExtractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if match := jsonObjectPattern.FindString(s); match != "" {
		return match
	}
	return s
}
