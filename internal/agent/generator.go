// Package agent turns natural-language questions into SQL, runs it and
// collects the answer.
package agent

import (
	"context"
	"errors"
	"fmt"

	"hotelqa/internal/config"
)

var (
	// ErrNoGenerator is returned when the configured backend cannot be built.
	ErrNoGenerator = errors.New("no text-to-SQL generator available")
	// ErrEmptyOutput is returned when a backend answers with no text.
	ErrEmptyOutput = errors.New("model returned no text")
)

// Generator produces raw model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// NewGenerator builds the backend named by cfg.Backend.
func NewGenerator(cfg config.GeneratorConfig) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s backend needs an API key", ErrNoGenerator, cfg.Backend)
	}

	switch cfg.Backend {
	case config.BackendHuggingFace:
		return NewHuggingFace(cfg), nil
	case config.BackendAnthropic:
		return NewAnthropic(cfg), nil
	case config.BackendOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNoGenerator, cfg.Backend)
	}
}

// chatSystemPrompt steers chat models toward a single fenced statement.
const chatSystemPrompt = "You translate questions about a hotel operations database into one SQLite query. " +
	"Use only the tables and columns in the schema. Reply with the query in a ```sql block and nothing else."
