package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"hotelqa/internal/config"
)

// OpenAI generates SQL with an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	topP        float32
}

// NewOpenAI returns a chat completions backend. cfg.BaseURL points it at any
// compatible server.
func NewOpenAI(cfg config.GeneratorConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		topP:        float32(cfg.TopP),
	}
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		TopP:        o.topP,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: chatSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyOutput
	}
	return resp.Choices[0].Message.Content, nil
}
