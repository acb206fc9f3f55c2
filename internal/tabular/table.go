// Package tabular implements the generic table model the reconciliation
// engine operates on: ordered columns, rows with nullable string cells, and
// the group-and-combine aggregation that enforces key uniqueness.
package tabular

// Row holds the cells of one record keyed by column name.  A key absent from
// the map, or mapped to the empty string, is a null cell.
type Row map[string]string

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsNull reports whether the named cell is null (absent or empty).
func (r Row) IsNull(col string) bool {
	v, ok := r[col]
	return !ok || v == ""
}

// Get returns the cell value and whether it is non-null.
func (r Row) Get(col string) (string, bool) {
	v, ok := r[col]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Table is an ordered collection of rows sharing a column schema.  Column
// order and row order are significant: every operation in this package is
// deterministic given identical input order.
type Table struct {
	Columns []string
	Rows    []Row
}

// New constructs an empty table with the given column schema.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// HasColumn reports whether the schema contains col.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// EnsureColumn appends col to the schema if not already present.
func (t *Table) EnsureColumn(col string) {
	if !t.HasColumn(col) {
		t.Columns = append(t.Columns, col)
	}
}

// Append adds a row.  Cells for columns outside the schema are retained in
// the row but invisible until the column is added via EnsureColumn.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.Columns...)
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.Clone())
	}
	return out
}

// MissingColumns returns the subset of cols absent from the schema, in the
// order given.
func (t *Table) MissingColumns(cols []string) []string {
	var missing []string
	for _, c := range cols {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Concat unions the given tables into one.  The output schema is the union
// of all input schemas in first-seen order; rows from a table lacking a
// column have null cells for it.  A nil or empty input yields an empty table.
func Concat(tables ...*Table) *Table {
	out := New()
	for _, tbl := range tables {
		if tbl == nil {
			continue
		}
		for _, c := range tbl.Columns {
			out.EnsureColumn(c)
		}
		for _, r := range tbl.Rows {
			out.Append(r.Clone())
		}
	}
	return out
}
