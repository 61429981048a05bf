package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hotelqa/internal/chart"
	"hotelqa/internal/sqlfix"
	"hotelqa/internal/store"
)

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoSQL is returned when nothing could be extracted from the model output.
	ErrNoSQL = errors.New("model output contained no SQL")
)

// QueryError reports a generated statement that failed to run.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("generated query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Answer is everything produced for one question.
type Answer struct {
	Question  string        `json:"question"`
	Prompt    string        `json:"-"`
	Raw       string        `json:"raw_output"`
	SQL       string        `json:"sql"`
	Result    *store.Result `json:"result,omitempty"`
	Chart     *chart.Spec   `json:"chart,omitempty"`
	HistoryID string        `json:"history_id,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Assistant answers questions against one database.
type Assistant struct {
	db      *store.DB
	gen     Generator
	logger  *slog.Logger
	timeout time.Duration
	history bool
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) AssistantOption {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) AssistantOption {
	return func(a *Assistant) {
		a.timeout = d
	}
}

// WithHistory records every question in query_history. The database must be migrated.
func WithHistory(enabled bool) AssistantOption {
	return func(a *Assistant) {
		a.history = enabled
	}
}

// NewAssistant returns an assistant that sends prompts to gen and runs the
// resulting SQL on db.
func NewAssistant(db *store.DB, gen Generator, opts ...AssistantOption) *Assistant {
	a := &Assistant{
		db:     db,
		gen:    gen,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Schema renders the current schema the way prompts show it.
func (a *Assistant) Schema(ctx context.Context) (string, error) {
	tables, err := a.db.Schema(ctx)
	if err != nil {
		return "", err
	}
	return store.RenderSchema(tables), nil
}

// Ask generates SQL for question, runs it once and returns the answer.
//
// When the statement fails, the returned Answer still carries the raw output
// and SQL, and the error is a *QueryError. Failures before a statement exists
// return a nil Answer.
func (a *Assistant) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()

	schema, err := a.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	ans := &Answer{Question: question, Prompt: BuildPrompt(schema, question)}

	genCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ans.Raw, err = a.gen.Generate(genCtx, ans.Prompt)
	if err != nil {
		a.logger.Error("Generation failed", "error", err, "question", question)
		a.record(ctx, ans, err)
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}

	ans.SQL = sqlfix.Prepare(ans.Raw)
	a.logger.Info("Generated SQL", "question", question, "sql", ans.SQL)
	if ans.SQL == "" {
		a.record(ctx, ans, ErrNoSQL)
		return ans, &QueryError{Err: ErrNoSQL}
	}

	ans.Result, err = a.db.Query(ctx, ans.SQL)
	ans.Elapsed = time.Since(start)
	if err != nil {
		a.logger.Warn("Generated SQL failed", "error", err, "sql", ans.SQL)
		a.record(ctx, ans, err)
		return ans, &QueryError{SQL: ans.SQL, Err: err}
	}

	ans.Chart = chart.Pick(ans.Result)
	a.record(ctx, ans, nil)
	a.logger.Info("Answered question", "question", question, "rows", ans.Result.Len(), "elapsed", ans.Elapsed)
	return ans, nil
}

// record stores the outcome in history. Failures are logged, not returned.
func (a *Assistant) record(ctx context.Context, ans *Answer, askErr error) {
	if !a.history {
		return
	}
	entry := store.HistoryEntry{
		Question:  ans.Question,
		RawOutput: ans.Raw,
		SQL:       ans.SQL,
		RowCount:  ans.Result.Len(),
	}
	if askErr != nil {
		entry.Error = askErr.Error()
	}
	id, err := a.db.RecordQuery(ctx, entry)
	if err != nil {
		a.logger.Warn("Failed to record history", "error", err)
		return
	}
	ans.HistoryID = id
}
