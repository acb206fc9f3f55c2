package resolve

import (
	"context"

	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// CURIESuffix and LabelSuffix name the columns a resolution stage appends
// next to its input column.
const (
	CURIESuffix = "_curie"
	LabelSuffix = "_curie_label"
)

// ResolveColumn resolves every non-null cell of col and appends
// <col>_curie and <col>_curie_label to the schema.  Rows whose lookup fails
// get sentinel cells and a RowError; the stage never aborts on a row.
// A missing input column is a schema error.
func ResolveColumn(ctx context.Context, r NameResolver, t *tabular.Table, col string) (*tabular.Table, []tabular.RowError, error) {
	if !t.HasColumn(col) {
		return nil, nil, errors.SchemaError([]string{col})
	}

	out := t.Clone()
	out.EnsureColumn(col + CURIESuffix)
	out.EnsureColumn(col + LabelSuffix)

	var rowErrs []tabular.RowError
	for i, row := range out.Rows {
		name, ok := row.Get(col)
		if !ok {
			continue
		}
		res, err := r.Resolve(ctx, name)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeInvalidInput) {
				rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: col, Value: name, Err: err})
				continue
			}
			row[col+CURIESuffix] = drug.ErrorSentinel
			row[col+LabelSuffix] = drug.ErrorSentinel
			rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: col, Value: name, Err: err})
			continue
		}
		row[col+CURIESuffix] = res.CURIE
		row[col+LabelSuffix] = res.Label
	}
	return out, rowErrs, nil
}

// ResolveColumns runs ResolveColumn over each named column in order.
func ResolveColumns(ctx context.Context, r NameResolver, t *tabular.Table, cols ...string) (*tabular.Table, []tabular.RowError, error) {
	out := t
	var all []tabular.RowError
	for _, col := range cols {
		next, rowErrs, err := ResolveColumn(ctx, r, out, col)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, rowErrs...)
		out = next
	}
	return out, all, nil
}

// Components resolves a list of component names to typed components.  A
// component that fails resolution carries the Error sentinel as its CURIE;
// downstream consumers treat such components as unresolved and keep going.
func Components(ctx context.Context, r NameResolver, names []string) ([]drug.Component, []error) {
	comps := make([]drug.Component, 0, len(names))
	var errs []error
	for _, name := range names {
		cleaned := CleanName(name)
		if cleaned == "" {
			continue
		}
		res, err := r.Resolve(ctx, cleaned)
		if err != nil {
			comps = append(comps, drug.Component{Name: cleaned, CURIE: drug.ErrorSentinel})
			errs = append(errs, err)
			continue
		}
		comps = append(comps, drug.Component{Name: cleaned, CURIE: res.CURIE, Label: res.Label})
	}
	return comps, errs
}
