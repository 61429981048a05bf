package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/go-huggingface"

	"hotelqa/internal/config"
)

// HuggingFace generates SQL with a hosted text-generation model such as
// defog/sqlcoder-7b-2.
type HuggingFace struct {
	client      *huggingface.InferenceClient
	model       string
	maxTokens   int
	temperature float64
	topP        float64
}

// NewHuggingFace returns a Hugging Face inference backend.
func NewHuggingFace(cfg config.GeneratorConfig) *HuggingFace {
	return &HuggingFace{
		client:      huggingface.NewInferenceClient(cfg.APIKey),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}
}

// Generate implements Generator.
func (h *HuggingFace) Generate(ctx context.Context, prompt string) (string, error) {
	fullText := false
	res, err := h.client.TextGeneration(ctx, &huggingface.TextGenerationRequest{
		Inputs: prompt,
		Model:  h.model,
		Parameters: huggingface.TextGenerationParameters{
			MaxNewTokens:   &h.maxTokens,
			Temperature:    &h.temperature,
			TopP:           &h.topP,
			ReturnFullText: &fullText,
		},
	})
	if err != nil {
		return "", fmt.Errorf("text generation error: %w", err)
	}
	if len(res) == 0 || strings.TrimSpace(res[0].GeneratedText) == "" {
		return "", ErrEmptyOutput
	}
	return res[0].GeneratedText, nil
}
