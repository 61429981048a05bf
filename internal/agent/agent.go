package agent

import (
	"context"
	"fmt"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"

	"hotelqa/internal/store"
)

const defaultSystemPrompt = "You are a data analyst for a hotel operations team. " +
	"The database holds properties, staff, payroll, cleaning orders and service requests. " +
	"Call the schema tool before writing SQL, use the query tool to run read-only SQLite queries, " +
	"and answer with the numbers you found."

// ToolAgentConfig holds the configuration for the tool-calling agent.
type ToolAgentConfig struct {
	apiKey       string
	model        string
	systemPrompt string
	maxSteps     int
	exclusions   []string
}

// ToolAgentOption is a functional option for configuring the agent.
type ToolAgentOption func(*ToolAgentConfig) error

// WithAPIKey sets the Anthropic API key.
func WithAPIKey(apiKey string) ToolAgentOption {
	return func(c *ToolAgentConfig) error {
		if apiKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}
		c.apiKey = apiKey
		return nil
	}
}

// WithModel sets the Claude model.
func WithModel(model string) ToolAgentOption {
	return func(c *ToolAgentConfig) error {
		if model == "" {
			return fmt.Errorf("model cannot be empty")
		}
		c.model = model
		return nil
	}
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) ToolAgentOption {
	return func(c *ToolAgentConfig) error {
		c.systemPrompt = prompt
		return nil
	}
}

// WithMaxSteps bounds the number of model turns per question.
func WithMaxSteps(n int) ToolAgentOption {
	return func(c *ToolAgentConfig) error {
		if n < 1 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		c.maxSteps = n
		return nil
	}
}

// WithToolExclusions drops tools by name.
func WithToolExclusions(names ...string) ToolAgentOption {
	return func(c *ToolAgentConfig) error {
		c.exclusions = append(c.exclusions, names...)
		return nil
	}
}

// ToolAgent answers free-form questions by letting Claude call database tools.
type ToolAgent struct {
	agent fantasy.Agent
}

// NewToolAgent creates a Fantasy agent wired to db.
func NewToolAgent(ctx context.Context, db *store.DB, opts ...ToolAgentOption) (*ToolAgent, error) {
	config := &ToolAgentConfig{
		model:        "claude-haiku-4-5-20251001",
		systemPrompt: defaultSystemPrompt,
		maxSteps:     8,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if config.apiKey == "" {
		return nil, fmt.Errorf("%w: the agent needs ANTHROPIC_API_KEY", ErrNoGenerator)
	}

	provider, err := anthropic.New(anthropic.WithAPIKey(config.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}
	model, err := provider.LanguageModel(ctx, config.model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Claude model: %w", err)
	}

	agent := fantasy.NewAgent(
		model,
		fantasy.WithSystemPrompt(config.systemPrompt),
		fantasy.WithTools(Tools(db, config.exclusions...)...),
		fantasy.WithStopConditions(fantasy.StepCountIs(config.maxSteps)),
	)
	return &ToolAgent{agent: agent}, nil
}

// Ask runs one conversation turn and returns the final text.
func (t *ToolAgent) Ask(ctx context.Context, question string) (string, error) {
	result, err := t.agent.Generate(ctx, fantasy.AgentCall{Prompt: question})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return result.Response.Content.Text(), nil
}
