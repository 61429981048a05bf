package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// sheet is one parsed CSV export.
type sheet struct {
	File   string
	Header []string // cleaned and unique
	Rows   [][]string
}

// index returns the position of a cleaned column, or -1.
func (s *sheet) index(column string) int {
	for i, h := range s.Header {
		if h == column {
			return i
		}
	}
	return -1
}

func readSheet(path string) (*sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return parseSheet(path, f)
}

func parseSheet(name string, r io.Reader) (*sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	s := &sheet{File: name, Header: cleanHeader(header)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		// Ragged rows are padded or cut to the header width.
		row := make([]string, len(s.Header))
		copy(row, rec)
		s.Rows = append(s.Rows, row)
	}
	return s, nil
}

// nullable maps empty cells to NULL.
func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
