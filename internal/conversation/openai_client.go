package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clearflow/voice-receptionist/pkg/logging"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient adapts the OpenAI chat completions API to LLMClient with a
// bounded-time call contract: each request gets a per-attempt timeout and a
// single retry before the failure surfaces as ErrModelUnavailable.
type OpenAIClient struct {
	client  chatCompleter
	timeout time.Duration
	logger  *logging.Logger
}

// NewOpenAIClient builds a client for the given API key.
func NewOpenAIClient(apiKey string, timeout time.Duration, logger *logging.Logger) *OpenAIClient {
	if apiKey == "" {
		panic("conversation: openai api key cannot be empty")
	}
	return newOpenAIClient(openai.NewClient(apiKey), timeout, logger)
}

func newOpenAIClient(client chatCompleter, timeout time.Duration, logger *logging.Logger) *OpenAIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIClient{client: client, timeout: timeout, logger: logger}
}

// Complete sends the request, retrying once on failure.
func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   int(req.MaxTokens),
		Temperature: req.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := c.completeOnce(ctx, apiReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt == 1 {
			c.logger.Warn("openai completion failed, retrying", "error", err)
		}
	}
	return LLMResponse{}, fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
}

func (c *OpenAIClient) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return LLMResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, fmt.Errorf("openai returned no choices")
	}
	return LLMResponse{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
