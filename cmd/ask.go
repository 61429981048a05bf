package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"hotelqa/internal/agent"
	"hotelqa/internal/chart"
)

var (
	askAgent  bool
	askChart  bool
	askFormat string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the hotel data in plain English",
	Long: `Ask a natural language question. The configured model writes a SQL query
for it, which is cleaned up for SQLite and run once against the database.

With --agent, Claude answers instead by calling schema, query and preview
tools itself (requires ANTHROPIC_API_KEY).

Example:
  hotelqa ask "How many cleaning orders failed inspection at Property 1?"
  hotelqa ask --chart "Total gross pay per property"
  hotelqa ask --agent "Which rooms had the most towel requests last month?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		question := strings.Join(args, " ")
		db := openStore(ctx)
		defer db.Close()

		out := cmd.OutOrStdout()
		if askAgent {
			opts := []agent.ToolAgentOption{agent.WithModel(cfg.Agent.Model), agent.WithMaxSteps(cfg.Agent.MaxSteps)}
			if cfg.Agent.APIKey != "" {
				opts = append(opts, agent.WithAPIKey(cfg.Agent.APIKey))
			}
			toolAgent, err := agent.NewToolAgent(ctx, db, opts...)
			if err != nil {
				HandleError(err, "Failed to create agent")
			}
			text, err := toolAgent.Ask(ctx, question)
			if err != nil {
				HandleError(err, "Failed to generate response")
			}
			fmt.Fprintln(out, text)
			return
		}

		gen, err := agent.NewGenerator(cfg.Generator)
		if err != nil {
			HandleError(err, "Failed to create text-to-SQL backend")
		}
		assistant := agent.NewAssistant(db, gen,
			agent.WithLogger(logger),
			agent.WithTimeout(cfg.Generator.Timeout),
			agent.WithHistory(true),
		)

		ans, err := assistant.Ask(ctx, question)
		if ans != nil && ans.SQL != "" {
			fmt.Fprintf(out, "SQL: %s\n\n", ans.SQL)
		}
		if err != nil {
			var qerr *agent.QueryError
			if errors.As(err, &qerr) && ans != nil && ans.SQL == "" {
				fmt.Fprintf(out, "Model output:\n%s\n\n", ans.Raw)
			}
			HandleError(err, "Failed to answer question")
		}

		if err := writeAnswer(out, ans, askFormat, askChart); err != nil {
			HandleError(err, "Failed to write output")
		}
	},
}

// writeAnswer prints the result and, when asked for and possible, a bar chart.
func writeAnswer(w io.Writer, ans *agent.Answer, format string, withChart bool) error {
	if err := writeResult(w, ans.Result, format); err != nil {
		return err
	}
	if withChart && ans.Chart != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, chart.Bars(ans.Chart, 50))
	}
	return nil
}

func init() {
	askCmd.Flags().BoolVar(&askAgent, "agent", false, "Let Claude answer with database tools")
	askCmd.Flags().BoolVar(&askChart, "chart", false, "Draw a bar chart of the result when it has a numeric column")
	askCmd.Flags().StringVarP(&askFormat, "format", "f", formatTable, "Output format: table, json, csv or md")
	rootCmd.AddCommand(askCmd)
}
