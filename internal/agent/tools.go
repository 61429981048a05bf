package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"charm.land/fantasy"

	"hotelqa/internal/sqlfix"
	"hotelqa/internal/store"
)

// maxToolRows caps rows returned to the model per call.
const maxToolRows = 50

type schemaInput struct{}

type queryInput struct {
	SQL string `json:"sql" description:"A single read-only SQLite statement"`
}

type previewInput struct {
	Table string `json:"table" description:"Table name from the schema tool"`
	Limit int    `json:"limit,omitempty" description:"Rows to return, default 10"`
}

// Tools returns the database tools available to the agent, minus exclusions.
func Tools(db *store.DB, exclusions ...string) []fantasy.AgentTool {
	all := []struct {
		name string
		tool fantasy.AgentTool
	}{
		{"schema", fantasy.NewAgentTool("schema",
			"List every table with its columns, one line per table.",
			schemaTool(db))},
		{"query", fantasy.NewAgentTool("query",
			"Run a read-only SQLite query and return up to 50 rows as JSON.",
			queryTool(db))},
		{"preview", fantasy.NewAgentTool("preview",
			"Return the first rows of one table as JSON.",
			previewTool(db))},
	}

	var tools []fantasy.AgentTool
	for _, t := range all {
		if !slices.Contains(exclusions, t.name) {
			tools = append(tools, t.tool)
		}
	}
	return tools
}

func schemaTool(db *store.DB) func(context.Context, schemaInput, fantasy.ToolCall) (fantasy.ToolResponse, error) {
	return func(ctx context.Context, _ schemaInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
		tables, err := db.Schema(ctx)
		if err != nil {
			return fantasy.NewTextErrorResponse(err.Error()), nil
		}
		return fantasy.NewTextResponse(store.RenderSchema(tables)), nil
	}
}

func queryTool(db *store.DB) func(context.Context, queryInput, fantasy.ToolCall) (fantasy.ToolResponse, error) {
	return func(ctx context.Context, input queryInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
		if input.SQL == "" {
			return fantasy.NewTextErrorResponse("sql parameter is required"), nil
		}
		res, err := db.Query(ctx, sqlfix.Normalize(input.SQL))
		if err != nil {
			return fantasy.NewTextErrorResponse(err.Error()), nil
		}
		return resultResponse(res)
	}
}

func previewTool(db *store.DB) func(context.Context, previewInput, fantasy.ToolCall) (fantasy.ToolResponse, error) {
	return func(ctx context.Context, input previewInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
		if input.Table == "" {
			return fantasy.NewTextErrorResponse("table parameter is required"), nil
		}
		limit := input.Limit
		if limit <= 0 || limit > maxToolRows {
			limit = 10
		}
		res, err := db.Preview(ctx, input.Table, limit)
		if err != nil {
			return fantasy.NewTextErrorResponse(err.Error()), nil
		}
		return resultResponse(res)
	}
}

// resultResponse encodes rows as a list of column-keyed objects.
func resultResponse(res *store.Result) (fantasy.ToolResponse, error) {
	rows := res.Rows
	truncated := len(rows) > maxToolRows
	if truncated {
		rows = rows[:maxToolRows]
	}

	objects := make([]map[string]any, len(rows))
	for i, row := range rows {
		obj := make(map[string]any, len(res.Columns))
		for j, col := range res.Columns {
			obj[col] = row[j]
		}
		objects[i] = obj
	}

	payload := map[string]any{"rows": objects, "row_count": res.Len()}
	if truncated {
		payload["note"] = fmt.Sprintf("showing first %d rows", maxToolRows)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fantasy.ToolResponse{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return fantasy.NewTextResponse(string(data)), nil
}
