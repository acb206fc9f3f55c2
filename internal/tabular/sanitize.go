package tabular

import (
	"strings"
	"unicode"
)

// sanitizeCell strips non-printable control characters and byte-order marks
// from a cell value.  Source registries occasionally carry encoding
// artifacts that corrupt downstream spreadsheet export; this pass removes
// them without touching legitimate text.
func sanitizeCell(v string) string {
	var sb strings.Builder
	sb.Grow(len(v))
	for _, r := range v {
		if r == '\uFEFF' || r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsControl(r) {
			// Newlines and tabs inside cells break tabular export too;
			// collapse them to a single space.
			if r == '\n' || r == '\t' || r == '\r' {
				sb.WriteRune(' ')
			}
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Sanitize returns a copy of t with every string cell cleaned by
// sanitizeCell.  Cells that become empty after cleaning are dropped (null).
func Sanitize(t *Table) *Table {
	out := New(t.Columns...)
	for _, row := range t.Rows {
		clean := make(Row, len(row))
		for col, v := range row {
			if s := sanitizeCell(v); s != "" {
				clean[col] = s
			}
		}
		out.Append(clean)
	}
	return out
}
