package normalize

import (
	"context"
	"strings"

	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// NormSuffix and NormLabelSuffix name the columns a normalization stage
// appends next to its input column.
const (
	NormSuffix      = "_norm"
	NormLabelSuffix = "_norm_label"
)

// alternateIDsSep joins equivalent identifiers in the alternate_ids cell.
const alternateIDsSep = "|"

// NormalizeColumn normalizes every non-null, non-sentinel cell of col and
// appends <col>_norm, <col>_norm_label, and alternate_ids to the schema.
// Sentinel inputs propagate unchanged: an Error CURIE stays an Error
// normalized id so failed rows remain traceable end to end.  Row failures
// are collected, never fatal; a missing input column is a schema error.
func NormalizeColumn(ctx context.Context, n Normalizer, t *tabular.Table, col string) (*tabular.Table, []tabular.RowError, error) {
	if !t.HasColumn(col) {
		return nil, nil, errors.SchemaError([]string{col})
	}

	out := t.Clone()
	out.EnsureColumn(col + NormSuffix)
	out.EnsureColumn(col + NormLabelSuffix)
	out.EnsureColumn(drug.ColAlternateIDs)

	var rowErrs []tabular.RowError
	for i, row := range out.Rows {
		id, ok := row.Get(col)
		if !ok {
			continue
		}
		if drug.IsSentinel(id) {
			row[col+NormSuffix] = id
			row[col+NormLabelSuffix] = id
			continue
		}
		norm, err := n.Normalize(ctx, id)
		if err != nil {
			if norm.Failed() {
				row[col+NormSuffix] = norm.ID
				row[col+NormLabelSuffix] = norm.Label
			}
			rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: col, Value: id, Err: err})
			continue
		}
		row[col+NormSuffix] = norm.ID
		row[col+NormLabelSuffix] = norm.Label
		row[drug.ColAlternateIDs] = strings.Join(norm.AlternateIDs, alternateIDsSep)
	}
	return out, rowErrs, nil
}

// SplitAlternateIDs parses an alternate_ids cell back into identifiers.
func SplitAlternateIDs(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(cell, alternateIDsSep) {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
