package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"hotelqa/cmd"
	"hotelqa/internal/agent"
	"hotelqa/internal/chart"
	"hotelqa/internal/config"
	"hotelqa/internal/store"
)

const (
	maxResults = 100
	chartWidth = 40
)

var logger *slog.Logger

// renderMarkdown renders markdown content with glamour for beautiful display
func renderMarkdown(content string, width int) (string, error) {
	// Account for borders, padding, and glamour's internal gutter
	const glamourGutter = 2
	const borderWidth = 4 // 2 for border characters, 2 for padding

	renderWidth := width - borderWidth - glamourGutter
	if renderWidth < 40 {
		renderWidth = 40 // Minimum width for readable content
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return "", err
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return "", err
	}

	return rendered, nil
}

type model struct {
	ctx           context.Context
	assistant     *agent.Assistant
	input         textinput.Model
	viewport      viewport.Model
	spinner       spinner.Model
	schema        string
	answer        *agent.Answer
	question      string
	width         int
	height        int
	err           error
	loading       bool
	showSchema    bool
	status        string
	viewportReady bool
}

type answerMsg struct {
	answer *agent.Answer
	err    error
}

type schemaMsg struct {
	schema string
	err    error
}

func askQuestion(ctx context.Context, assistant *agent.Assistant, question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := assistant.Ask(ctx, question)
		return answerMsg{answer: ans, err: err}
	}
}

func loadSchema(ctx context.Context, assistant *agent.Assistant) tea.Cmd {
	return func() tea.Msg {
		schema, err := assistant.Schema(ctx)
		return schemaMsg{schema: schema, err: err}
	}
}

func initialModel(ctx context.Context, assistant *agent.Assistant) model {
	ti := textinput.New()
	ti.Placeholder = "How many cleaning orders failed inspection at Property 1?"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		ctx:       ctx,
		assistant: assistant,
		input:     ti,
		spinner:   sp,
		viewport:  viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, loadSchema(m.ctx, m.assistant))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6

		// Reserve lines for the header, the input box, status and help text
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-9, 3)
		m.viewportReady = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case schemaMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to read schema: %w", msg.err)
			if logger != nil {
				logger.Error("Failed to read schema", "error", msg.err)
			}
			return m, nil
		}
		m.schema = msg.schema
		m.refreshViewport()
		return m, nil

	case answerMsg:
		m.loading = false
		m.answer = msg.answer
		m.err = msg.err
		m.showSchema = false
		if logger != nil {
			if msg.err != nil {
				logger.Warn("Question failed", "error", msg.err, "question", m.question)
			} else {
				logger.Info("Question answered", "question", m.question, "rows", msg.answer.Result.Len())
			}
		}
		m.refreshViewport()
		m.viewport.GotoTop()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyEnter:
		question := strings.TrimSpace(m.input.Value())
		if question == "" || m.loading {
			return m, nil
		}
		m.loading = true
		m.question = question
		m.status = ""
		m.err = nil
		return m, tea.Batch(askQuestion(m.ctx, m.assistant, question), m.spinner.Tick)

	case tea.KeyCtrlT:
		m.showSchema = !m.showSchema
		m.refreshViewport()
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyCtrlY:
		if m.answer == nil || m.answer.SQL == "" {
			m.status = "Nothing to copy yet"
			return m, nil
		}
		if err := clipboard.WriteAll(m.answer.SQL); err != nil {
			m.status = "Failed to copy: " + err.Error()
			if logger != nil {
				logger.Warn("Clipboard copy failed", "error", err)
			}
			return m, nil
		}
		m.status = "Copied SQL to clipboard"
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refreshViewport() {
	if !m.viewportReady {
		return
	}
	m.viewport.SetContent(m.content())
}

// content is what the viewport shows: the schema or the last answer.
func (m model) content() string {
	if m.showSchema {
		return renderSchema(m.schema, m.width)
	}
	if m.answer == nil {
		if m.err != nil {
			return ""
		}
		return "Ask a question about the hotel data and press Enter.\nCtrl+T shows the tables you can ask about."
	}
	return renderAnswer(m.answer, m.width)
}

func renderSchema(schema string, width int) string {
	if schema == "" {
		return "The database has no tables yet. Run `hotelqa load` first."
	}
	md := "## Schema\n\n```\n" + schema + "```\n"
	rendered, err := renderMarkdown(md, width)
	if err != nil {
		return schema
	}
	return rendered
}

// renderAnswer shows the SQL, the result as a markdown table and a bar chart
// when the result has a numeric column.
func renderAnswer(ans *agent.Answer, width int) string {
	var md strings.Builder
	if ans.SQL != "" {
		md.WriteString("```sql\n" + ans.SQL + "\n```\n\n")
	} else {
		md.WriteString("**Model output**\n\n```\n" + ans.Raw + "\n```\n\n")
	}

	if ans.Result != nil {
		md.WriteString(resultMarkdown(ans.Result))
	}

	rendered, err := renderMarkdown(md.String(), width)
	if err != nil {
		rendered = md.String()
	}
	if ans.Chart != nil {
		rendered += "\n" + chart.Bars(ans.Chart, chartWidth) + "\n"
	}
	return rendered
}

func resultMarkdown(res *store.Result) string {
	if res.Len() == 0 {
		return "_No rows._\n"
	}

	t := table.NewWriter()
	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for i, row := range res.Strings() {
		if i == maxResults {
			break
		}
		r := make(table.Row, len(row))
		for j, v := range row {
			r[j] = v
		}
		t.AppendRow(r)
	}

	out := t.RenderMarkdown() + "\n"
	if res.Len() > maxResults {
		out += fmt.Sprintf("\n_Showing %d of %d rows._\n", maxResults, res.Len())
	} else {
		out += fmt.Sprintf("\n_%d rows._\n", res.Len())
	}
	return out
}

func (m model) View() string {
	var b strings.Builder

	// Header
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62"))

	b.WriteString(headerStyle.Render("🏨 hotelqa"))
	b.WriteString("\n\n")

	inputStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1)

	b.WriteString(inputStyle.Render(m.input.View()))
	b.WriteString("\n")

	if m.viewportReady {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}

	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("226")).
		Bold(true)

	if m.loading {
		b.WriteString(statusStyle.Render(m.spinner.View() + " Generating SQL..."))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	// Error display
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		b.WriteString(errorStyle.Render(fmt.Sprintf("❌ Error: %v", m.err)))
		b.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render("Enter: Ask | ↑/↓/PgUp/PgDn: Scroll | Ctrl+T: Schema | Ctrl+Y: Copy SQL | Esc/Ctrl+C: Quit"))

	return b.String()
}

func launchTUI(ctx context.Context, _ *config.Config, _ *store.DB, assistant *agent.Assistant, l *slog.Logger) error {
	logger = l

	p := tea.NewProgram(
		initialModel(ctx, assistant),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func main() {
	// Set up cmd package callbacks
	cmd.LaunchTUI = launchTUI
	cmd.StartServer = startServer

	// Execute the CLI
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
