// Package merge combines per-source canonical tables into the single
// cross-source drug list.  Tables are concatenated over the union of their
// schemas, grouped on the normalized identifier, and conflicting cells are
// joined rather than discarded so no source's claim is silently lost.
package merge

import (
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// Merger merges canonical per-source tables keyed on a normalized id column.
type Merger struct {
	keyColumn string
	logger    logging.Logger
}

// New builds a merger grouping on keyColumn; empty means the canonical
// normalized-id column.
func New(keyColumn string, log logging.Logger) *Merger {
	if keyColumn == "" {
		keyColumn = drug.ColNormalizedID
	}
	return &Merger{keyColumn: keyColumn, logger: log.Named("merge")}
}

// Merge returns one row per normalized identifier across all inputs.
//
// No input tables is ErrCodeEmptyInput.  A single table passes through
// aggregation and sanitization like any other, so a one-source run produces
// the same shape as a five-source run.  The key column must be present in
// every input; the output is sanitized (control characters and BOMs
// stripped) because source registries leak encoding artifacts into free-text
// cells.
func (m *Merger) Merge(tables ...*tabular.Table) (*tabular.Table, error) {
	nonNil := make([]*tabular.Table, 0, len(tables))
	for _, t := range tables {
		if t != nil {
			nonNil = append(nonNil, t)
		}
	}
	if len(nonNil) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no source tables to merge")
	}

	for _, t := range nonNil {
		if !t.HasColumn(m.keyColumn) {
			return nil, errors.SchemaError([]string{m.keyColumn})
		}
	}

	combined := tabular.Concat(nonNil...)
	merged, err := tabular.Aggregate(combined, []string{m.keyColumn}, tabular.CombineJoin(tabular.DefaultCombineDelimiter))
	if err != nil {
		return nil, err
	}

	m.logger.Info("merged source tables",
		logging.Int("sources", len(nonNil)),
		logging.Int("input_rows", combined.Len()),
		logging.Int("merged_rows", merged.Len()))
	return tabular.Sanitize(merged), nil
}
