// Package etl loads hotel operations CSV exports into SQLite.
//
// Two layouts are supported. LoadRaw turns every CSV in a directory into a
// table of its own. LoadNormalized maps a known set of exports onto a curated
// schema through a declarative Mapping.
package etl

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// columnAliases renames cleaned headers that differ between exports.
var columnAliases = map[string]string{
	"credit": "job_weight",
	"room":   "room_number",
}

// CleanColumnName turns a CSV header into a stable snake_case column name.
func CleanColumnName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return ""
	}
	if unicode.IsDigit(rune(s[0])) {
		s = "_" + s
	}
	if alias, ok := columnAliases[s]; ok {
		return alias
	}
	return s
}

// cleanHeader cleans every header and makes the result unique, naming blank
// headers column_N and suffixing repeats with _2, _3, ...
func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := CleanColumnName(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

// TableNameForFile derives a table name from a CSV file name. The co- prefix
// becomes cleaning_, so co-service-type.csv loads as cleaning_service_type.
func TableNameForFile(file string) string {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(name, "co-") {
		name = "cleaning_" + strings.TrimPrefix(name, "co-")
	}
	name = strings.Trim(nonAlnum.ReplaceAllString(name, "_"), "_")
	if name != "" && unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name
}
