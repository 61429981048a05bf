// Package sqlfix turns raw text-to-SQL model output into a statement SQLite can run.
//
// Both passes are plain pattern matching over the string. They never fail: whatever
// comes out is handed to the database, and the database is what reports bad SQL.
package sqlfix

import (
	"regexp"
	"strings"
)

var (
	fencedSQL  = regexp.MustCompile("(?is)```sql\\b(.*?)```")
	selectSpan = regexp.MustCompile(`(?is)\bSELECT\b.*?;`)
)

// Extract picks a single candidate statement out of generator output.
//
// A ```sql fenced block wins, then the first SELECT ... ; span, then the last
// non-empty line of the text.
func Extract(raw string) string {
	if m := fencedSQL.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	if span := selectSpan.FindString(raw); span != "" {
		return strings.TrimSpace(span)
	}

	return lastNonEmptyLine(raw)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// Prepare runs Extract followed by Normalize.
func Prepare(raw string) string {
	return Normalize(Extract(raw))
}
