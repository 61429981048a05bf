// Package chart picks a bar chart for a query result and renders it for the
// terminal and the web UI.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"hotelqa/internal/store"
)

// Spec is one bar per result row.
type Spec struct {
	X      string    `json:"x"`
	Y      string    `json:"y"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Pick chooses the axes for res: x is the first non-numeric column (the first
// numeric one when every column is numeric) and y is the first numeric column.
// It returns nil when res has no rows or no numeric column.
func Pick(res *store.Result) *Spec {
	if res.Len() == 0 {
		return nil
	}

	x, y := -1, -1
	for i := range res.Columns {
		if isNumericColumn(res, i) {
			if y < 0 {
				y = i
			}
		} else if x < 0 {
			x = i
		}
	}
	if y < 0 {
		return nil
	}
	if x < 0 {
		x = y
	}

	spec := &Spec{
		X:      res.Columns[x],
		Y:      res.Columns[y],
		Labels: make([]string, res.Len()),
		Values: make([]float64, res.Len()),
	}
	for i, row := range res.Rows {
		spec.Labels[i] = label(row[x])
		spec.Values[i], _ = number(row[y])
	}
	return spec
}

// isNumericColumn reports whether every non-NULL value in column is a number
// and at least one is present.
func isNumericColumn(res *store.Result, column int) bool {
	seen := false
	for _, row := range res.Rows {
		if row[column] == nil {
			continue
		}
		if _, ok := number(row[column]); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func label(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

const (
	maxLabelWidth = 24
	// MaxBars caps the rows drawn in the terminal.
	MaxBars = 40
)

var (
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

// Bars renders spec as a horizontal bar chart whose bars are at most width cells.
func Bars(spec *Spec, width int) string {
	if spec == nil || len(spec.Values) == 0 {
		return ""
	}
	if width < 1 {
		width = 1
	}

	n := min(len(spec.Values), MaxBars)
	labelWidth := 0
	maxValue := 0.0
	for i := 0; i < n; i++ {
		labelWidth = max(labelWidth, len([]rune(truncate(spec.Labels[i], maxLabelWidth))))
		maxValue = max(maxValue, spec.Values[i])
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(spec.Y + " by " + spec.X))
	b.WriteString("\n")
	for i := 0; i < n; i++ {
		name := truncate(spec.Labels[i], maxLabelWidth)
		pad := strings.Repeat(" ", labelWidth-len([]rune(name)))
		b.WriteString(BarLine(name+pad, spec.Values[i], maxValue, width))
		b.WriteString("\n")
	}
	if rest := len(spec.Values) - n; rest > 0 {
		fmt.Fprintf(&b, "... %d more\n", rest)
	}
	return b.String()
}

// BarLine draws one bar scaled against maxValue. Negative values draw empty.
func BarLine(label string, value, maxValue float64, width int) string {
	if maxValue <= 0 {
		maxValue = math.Max(value, 1)
	}

	ratio := math.Min(math.Max(value/maxValue, 0), 1)
	filled := int(math.Round(float64(width) * ratio))

	return fmt.Sprintf("%s %s%s %s",
		label,
		barStyle.Render(strings.Repeat("█", filled)),
		emptyStyle.Render(strings.Repeat("░", width-filled)),
		formatValue(value),
	)
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Config is a Chart.js bar chart configuration.
type Config struct {
	Type string    `json:"type"`
	Data ChartData `json:"data"`
}

// ChartData holds the labels and datasets of a Config.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is one series.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// JSConfig converts spec for the web UI. It returns nil for a nil spec.
func JSConfig(spec *Spec) *Config {
	if spec == nil {
		return nil
	}
	return &Config{
		Type: "bar",
		Data: ChartData{
			Labels:   spec.Labels,
			Datasets: []Dataset{{Label: spec.Y, Data: spec.Values}},
		},
	}
}
