package insight

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1/"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1/"

	defaultOpenAIModel     = "gpt-4o-mini"
	defaultOpenRouterModel = "openrouter/auto"
)

// ChatCompletions speaks the OpenAI chat completions protocol, which
// OpenRouter also serves.
type ChatCompletions struct {
	name   string
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *ChatCompletions {
	if model == "" {
		model = defaultOpenAIModel
	}
	return NewChatCompletions("openai", OpenAIBaseURL, apiKey, model)
}

func NewOpenRouter(apiKey, model string) *ChatCompletions {
	if model == "" {
		model = defaultOpenRouterModel
	}
	return NewChatCompletions("openrouter", OpenRouterBaseURL, apiKey, model)
}

// NewChatCompletions builds a provider on the official OpenAI SDK aimed at
// baseURL. The explicit options win over any OPENAI_* environment settings.
func NewChatCompletions(name, baseURL, apiKey, model string) *ChatCompletions {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	)
	return &ChatCompletions{name: name, client: client, model: model}
}

func (c *ChatCompletions) Name() string { return c.name }

func (c *ChatCompletions) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
