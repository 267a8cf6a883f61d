package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/toomja/ilm/internal/provider/resilience"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.GPT4oMini

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the chat model (optional, defaults to DefaultModel).
	Model string

	// BaseURL overrides the API endpoint (optional).
	BaseURL string

	// HTTPClient overrides the HTTP client (optional).
	HTTPClient *http.Client

	// MaxTokens caps the completion length (optional, defaults to 200).
	MaxTokens int
}

// OpenAIBackend generates narratives with the OpenAI chat completion API.
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIBackend creates a new OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200
	}

	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Complete sends one chat completion request.
func (b *OpenAIBackend) Complete(ctx context.Context, system, user string) (Completion, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   b.maxTokens,
		Temperature: 0.8,
	})
	if err != nil {
		return Completion{}, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyCompletion
	}

	model := resp.Model
	if model == "" {
		model = b.model
	}
	c := Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
	}
	if resp.Usage.TotalTokens > 0 {
		tokens := resp.Usage.TotalTokens
		c.TotalTokens = &tokens
	}
	return c, nil
}

// classifyOpenAIError maps the HTTP status of an OpenAI error onto the
// resilience error types so the retry envelope picks the right backoff.
func classifyOpenAIError(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("openai: %w: %w", &resilience.RateLimitError{}, err)
	case status >= 500:
		return fmt.Errorf("openai: %w: %w", &resilience.ServerError{StatusCode: status}, err)
	case status >= 400:
		return fmt.Errorf("openai: %w: %w", &resilience.StatusError{StatusCode: status}, err)
	default:
		return fmt.Errorf("openai: %w", err)
	}
}
