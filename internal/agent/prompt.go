package agent

import "fmt"

// BuildPrompt renders the sqlcoder prompt for a rendered schema and a question.
func BuildPrompt(schema, question string) string {
	return fmt.Sprintf(`### Database Schema
%s

### Task
Generate a SQL query to answer the following question according to the schema above:
%s
`, schema, question)
}
