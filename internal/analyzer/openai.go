package analyzer

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter implements Completer with the chat completions API.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAICompleter builds a completer; baseURL may point at any
// OpenAI-compatible endpoint and is optional.
func NewOpenAICompleter(apiKey, baseURL, model string, temperature float32) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
