package sqlfix

import (
	"regexp"
	"strings"
)

// Column references must be table-qualified; a bare `name LIKE 'x'` is left alone.
// Either part may be double-quoted and the reference may carry a ::DATE cast, since
// rules 5 and 6 would otherwise leave a plain a.b LIKE 'x' for the next pass.
// Doubled quotes inside the literal are kept as part of it.
const columnRef = `((?:\b\w+|"\w+")\.(?:\w+|"\w+"))(?:\s*::\s*DATE)?`

var (
	ilikePattern    = regexp.MustCompile(`(?i)` + columnRef + `\s+ILIKE\s+'((?:[^']|'')*)'`)
	likePattern     = regexp.MustCompile(`(?i)` + columnRef + `\s+LIKE\s+'((?:[^']|'')*)'`)
	dateCastPattern = regexp.MustCompile(`(?i)::\s*DATE\b`)

	extractMonth = regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*MONTH\s+FROM\s+`)
	extractYear  = regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*YEAR\s+FROM\s+`)
)

// Normalize rewrites Postgres-flavored fragments into SQLite equivalents.
//
// Each rule runs exactly once, in order, over the whole string:
//
//  1. a.b ILIKE 'x'           -> LOWER(a.b) LIKE LOWER('%x%')
//  2. a.b LIKE 'x'            -> LOWER(a.b) LIKE LOWER('%x%')
//
// In rules 1 and 2 a.b may also be "a"."b" or a.b::DATE; the cast is dropped.
//
//  3. EXTRACT(MONTH FROM e)   -> CAST(strftime('%m', e) AS INTEGER)
//  4. EXTRACT(YEAR FROM e)    -> CAST(strftime('%Y', e) AS INTEGER)
//  5. e::DATE                 -> e
//  6. every " is removed
//
// The LIKE rewrites force substring matching: any % already in the literal is
// dropped and the value is wrapped in %...%. Rewritten output never matches rule 2
// again, so Normalize(Normalize(s)) == Normalize(s).
//
// There is no tokenizer behind this. A fragment such as x.y LIKE 'z' that sits
// inside some other string literal is rewritten as well; that false positive is a
// known limitation.
func Normalize(sql string) string {
	out := ilikePattern.ReplaceAllStringFunc(sql, func(m string) string {
		return substringMatch(ilikePattern, m)
	})
	out = likePattern.ReplaceAllStringFunc(out, func(m string) string {
		return substringMatch(likePattern, m)
	})
	out = rewriteExtract(out, extractMonth, "%m")
	out = rewriteExtract(out, extractYear, "%Y")
	out = dateCastPattern.ReplaceAllString(out, "")
	return strings.ReplaceAll(out, `"`, "")
}

func substringMatch(re *regexp.Regexp, match string) string {
	parts := re.FindStringSubmatch(match)
	column, literal := parts[1], strings.ReplaceAll(parts[2], "%", "")
	return "LOWER(" + column + ") LIKE LOWER('%" + literal + "%')"
}

// rewriteExtract replaces every EXTRACT(<field> FROM expr) located by start with a
// strftime cast. The expression may hold balanced parentheses and quoted strings.
// An unterminated call is left as it is.
func rewriteExtract(s string, start *regexp.Regexp, format string) string {
	var b strings.Builder
	for {
		loc := start.FindStringIndex(s)
		if loc == nil {
			break
		}
		end := closingParen(s, loc[1])
		if end < 0 {
			break
		}
		b.WriteString(s[:loc[0]])
		b.WriteString("CAST(strftime('")
		b.WriteString(format)
		b.WriteString("', ")
		b.WriteString(strings.TrimSpace(s[loc[1]:end]))
		b.WriteString(") AS INTEGER)")
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}

// closingParen returns the index of the ')' closing a call whose body starts at
// from, or -1.
func closingParen(s string, from int) int {
	depth := 1
	inQuote := false
	for i := from; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
