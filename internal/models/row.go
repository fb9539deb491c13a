package models

import (
	"regexp"
	"strconv"
	"strings"
)

// Plain decimal notation only; leading zeros mark identifiers such as "007".
var numericCell = regexp.MustCompile(`^-?(?:0|[1-9][0-9]*)(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?$`)

// Column names the annotation jobs read from the input spreadsheet.
const (
	ColumnTitle         = "title"
	ColumnText          = "text"
	ColumnScientistNews = "is_scientist_news"
)

// Row is one spreadsheet record. Index is the zero-based data row position and is the
// only identity a row has.
type Row struct {
	Index  int
	Values map[string]string
}

// Table is a loaded worksheet: header columns in file order plus data rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// Get returns the raw cell value for a column, or "" when absent.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// Title returns the title cell.
func (r Row) Title() string { return r.Get(ColumnTitle) }

// Text returns the body text cell.
func (r Row) Text() string { return r.Get(ColumnText) }

// Flag reports whether a flag column holds a truthy 1/true value.
func (r Row) Flag(column string) bool {
	raw := strings.TrimSpace(r.Get(column))
	if raw == "" {
		return false
	}
	if strings.EqualFold(raw, "true") {
		return true
	}
	v, err := strconv.ParseFloat(raw, 64)
	return err == nil && v == 1
}

// Cells returns the row values ordered by columns, ready for a sheet writer.
// Numeric cells come back as int64 or float64 so they are written as numbers.
func (r Row) Cells(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = cellValue(r.Values[c])
	}
	return out
}

func cellValue(raw string) any {
	if !numericCell.MatchString(raw) {
		return raw
	}
	if !strings.ContainsAny(raw, ".eE") {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Has reports whether the table header contains column.
func (t Table) Has(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Filter returns a table holding only the rows keep accepts. Row indexes are preserved.
func (t Table) Filter(keep func(Row) bool) Table {
	out := Table{Columns: t.Columns, Rows: make([]Row, 0, len(t.Rows))}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Head truncates the table to its first n rows; n <= 0 keeps everything.
func (t Table) Head(n int) Table {
	if n <= 0 || n >= len(t.Rows) {
		return t
	}
	return Table{Columns: t.Columns, Rows: t.Rows[:n]}
}
