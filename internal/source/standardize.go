// Package source adapts raw regulatory registry exports (FDA, EMA, PMDA,
// and peers) into the canonical column schema the engine operates on.
package source

import (
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
)

// Rename maps one source column onto its canonical name.
type Rename struct {
	From string
	To   string
}

// StandardizeColumns selects and renames columns per the given mapping, in
// mapping order; everything else is dropped.  A mapping referencing a column
// the table does not have is a schema error naming every missing column.
func StandardizeColumns(t *tabular.Table, mapping []Rename) (*tabular.Table, error) {
	var missing []string
	for _, m := range mapping {
		if !t.HasColumn(m.From) {
			missing = append(missing, m.From)
		}
	}
	if len(missing) > 0 {
		return nil, errors.SchemaError(missing)
	}

	cols := make([]string, 0, len(mapping))
	for _, m := range mapping {
		cols = append(cols, m.To)
	}
	out := tabular.New(cols...)
	for _, row := range t.Rows {
		renamed := make(tabular.Row, len(mapping))
		for _, m := range mapping {
			if v, ok := row.Get(m.From); ok {
				renamed[m.To] = v
			}
		}
		out.Append(renamed)
	}
	return out, nil
}

// RenameColumns renames the mapped columns in place and keeps everything
// else untouched.  Use this mid-pipeline, where a table has already
// accumulated columns that must survive; StandardizeColumns is for raw
// ingestion where only the mapped columns matter.
func RenameColumns(t *tabular.Table, mapping []Rename) (*tabular.Table, error) {
	var missing []string
	for _, m := range mapping {
		if !t.HasColumn(m.From) {
			missing = append(missing, m.From)
		}
	}
	if len(missing) > 0 {
		return nil, errors.SchemaError(missing)
	}

	names := make(map[string]string, len(mapping))
	for _, m := range mapping {
		names[m.From] = m.To
	}

	out := t.Clone()
	for i, col := range out.Columns {
		if to, ok := names[col]; ok {
			out.Columns[i] = to
		}
	}
	for _, row := range out.Rows {
		for from, to := range names {
			if v, ok := row[from]; ok {
				delete(row, from)
				row[to] = v
			}
		}
	}
	return out, nil
}

// AddConstantColumn sets col to value on every row, e.g. a region approval
// flag on a per-registry table.
func AddConstantColumn(t *tabular.Table, col, value string) *tabular.Table {
	out := t.Clone()
	out.EnsureColumn(col)
	for _, row := range out.Rows {
		row[col] = value
	}
	return out
}

// KeepWhere returns only the rows whose col equals value.  A missing column
// is a schema error.
func KeepWhere(t *tabular.Table, col, value string) (*tabular.Table, error) {
	if !t.HasColumn(col) {
		return nil, errors.SchemaError([]string{col})
	}
	out := tabular.New(t.Columns...)
	for _, row := range t.Rows {
		if v, _ := row.Get(col); v == value {
			out.Append(row.Clone())
		}
	}
	return out, nil
}
