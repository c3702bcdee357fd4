package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/errorsx"
	"github.com/harunnryd/convoy/pkg/resilience"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// ClientConfig selects the chat-completions backend. With a Groq key the
// client talks to Groq's OpenAI-compatible endpoint; otherwise it uses
// OpenAI directly.
type ClientConfig struct {
	GroqAPIKey   string
	GroqModel    string
	OpenAIAPIKey string
	Retry        RetryConfig
}

// Client is an OpenAI-compatible chat-completions oracle. All requests ask
// for JSON-object responses and run inside the bounded retry loop.
type Client struct {
	api     *openai.Client
	model   string
	retry   RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewClient returns the chat-completions oracle, or nil when no API key is
// configured; callers should fall back to the simulated oracle then.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case cfg.GroqAPIKey != "":
		apiCfg := openai.DefaultConfig(cfg.GroqAPIKey)
		apiCfg.BaseURL = groqBaseURL
		model := cfg.GroqModel
		if model == "" {
			model = "llama-3.1-8b-instant"
		}
		return &Client{
			api:     openai.NewClientWithConfig(apiCfg),
			model:   model,
			retry:   cfg.Retry,
			breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
			logger:  logger,
		}
	case cfg.OpenAIAPIKey != "":
		return &Client{
			api:     openai.NewClient(cfg.OpenAIAPIKey),
			model:   "gpt-4o-mini",
			retry:   cfg.Retry,
			breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
			logger:  logger,
		}
	}
	return nil
}

func (c *Client) DecideNextAction(ctx context.Context, callCtx call.Context, lastUtterance string) (Decision, error) {
	content, err := retryCompletion(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.complete(ctx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: renderRealtimePrompt(callCtx, lastUtterance)},
			{Role: openai.ChatMessageRoleUser, Content: renderRealtimeUser(callCtx, lastUtterance)},
		})
	})
	if err != nil {
		return Decision{}, errorsx.Wrap(err, errorsx.ReasonOracleDecide)
	}
	return decodeDecision(content), nil
}

func (c *Client) EmergencyProtocol(ctx context.Context) (Decision, error) {
	content, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: emergencySystemPrompt},
	})
	if err != nil {
		return Decision{}, errorsx.Wrap(err, errorsx.ReasonOracleEmergency)
	}
	return decodeDecision(content), nil
}

func (c *Client) Summarize(ctx context.Context, transcriptText string) (call.StructuredSummary, error) {
	content, err := retryCompletion(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.complete(ctx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcriptText},
		})
	})
	if err != nil {
		return call.StructuredSummary{}, errorsx.Wrap(err, errorsx.ReasonOracleSummarize)
	}
	var summary call.StructuredSummary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		return call.StructuredSummary{}, errorsx.Wrap(err, errorsx.ReasonOracleSummarize)
	}
	return summary, nil
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return "", resilience.ErrCircuitOpen
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		err = classifyRateLimit(err)
		if c.breaker != nil {
			c.breaker.OnError(err)
		}
		c.logger.Warn("oracle completion failed", "model", c.model, "error", err.Error())
		return "", err
	}
	if c.breaker != nil {
		c.breaker.OnSuccess()
	}
	if len(resp.Choices) == 0 {
		return "", errorsx.Wrap(errNoChoices, errorsx.ReasonOracleDecide)
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyRateLimit tags provider 429s so the circuit breaker can count
// them; everything else passes through unchanged.
func classifyRateLimit(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "oracle", Message: apiErr.Message}
	}
	return err
}

var errNoChoices = &emptyCompletionError{}

type emptyCompletionError struct{}

func (*emptyCompletionError) Error() string { return "completion returned no choices" }
