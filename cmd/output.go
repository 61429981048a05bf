package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"hotelqa/internal/store"
)

// Output formats accepted by --format.
const (
	formatTable    = "table"
	formatJSON     = "json"
	formatCSV      = "csv"
	formatMarkdown = "md"
)

// writeResult renders res to w in the requested format.
func writeResult(w io.Writer, res *store.Result, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, res)
	case formatCSV:
		return store.WriteCSV(w, res)
	case formatTable, formatMarkdown:
		t := resultTable(w, res)
		if format == formatMarkdown {
			t.RenderMarkdown()
		} else {
			t.Render()
		}
		fmt.Fprintf(w, "(%d rows)\n", res.Len())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, json, csv or md)", format)
	}
}

func resultTable(w io.Writer, res *store.Result) table.Writer {
	t := newTable(w)

	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range res.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			if v == nil {
				r[i] = "NULL"
			} else {
				r[i] = v
			}
		}
		t.AppendRow(r)
	}
	return t
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
