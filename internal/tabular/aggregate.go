package tabular

import (
	"strings"

	"github.com/openmedi/medirec/pkg/errors"
)

// DefaultCombineDelimiter joins conflicting values in the canonical
// combine-columns aggregation.
const DefaultCombineDelimiter = "| "

// Combiner reduces the ordered non-null values a group holds for one column
// to a single cell.  ok=false means the combined cell is null.
type Combiner func(values []string) (value string, ok bool)

// CombineJoin returns the canonical conflict-resolution rule: deduplicate
// the group's non-null values preserving first-seen order, then return the
// single survivor, or all survivors joined with delim when more than one
// distinct value remains.
func CombineJoin(delim string) Combiner {
	return func(values []string) (string, bool) {
		distinct := dedupePreserveOrder(values)
		switch len(distinct) {
		case 0:
			return "", false
		case 1:
			return distinct[0], true
		default:
			return strings.Join(distinct, delim), true
		}
	}
}

func dedupePreserveOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// groupKeySep separates key-column values inside the composite group key.
// A unit separator cannot appear in sanitized cell data.
const groupKeySep = "\x1f"

// Aggregate partitions rows into groups sharing identical values across
// keyCols and combines every non-key column with the supplied Combiner.
// Group order in the output is the insertion order of each key's first
// occurrence; the result is byte-identical across runs for identical input.
//
// Returns ErrCodeSchemaError when any key column is absent from the schema.
func Aggregate(t *Table, keyCols []string, combine Combiner) (*Table, error) {
	if missing := t.MissingColumns(keyCols); len(missing) > 0 {
		return nil, errors.SchemaError(missing)
	}
	if combine == nil {
		combine = CombineJoin(DefaultCombineDelimiter)
	}

	keySet := make(map[string]struct{}, len(keyCols))
	for _, k := range keyCols {
		keySet[k] = struct{}{}
	}

	groupIndex := make(map[string]int)
	var groups [][]Row

	for _, row := range t.Rows {
		key := compositeKey(row, keyCols)
		idx, ok := groupIndex[key]
		if !ok {
			idx = len(groups)
			groupIndex[key] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], row)
	}

	out := New(t.Columns...)
	for _, group := range groups {
		combined := make(Row, len(t.Columns))
		first := group[0]
		for _, col := range t.Columns {
			if _, isKey := keySet[col]; isKey {
				if v, ok := first.Get(col); ok {
					combined[col] = v
				}
				continue
			}
			var values []string
			for _, r := range group {
				if v, ok := r.Get(col); ok {
					values = append(values, v)
				}
			}
			if v, ok := combine(values); ok {
				combined[col] = v
			}
		}
		out.Append(combined)
	}
	return out, nil
}

// DropExactDuplicates keeps the first row per distinct key tuple and
// discards the rest.  This light deduplication is used only on freshly
// ingested source tables; the combine-columns Aggregate supersedes it
// everywhere downstream.
func DropExactDuplicates(t *Table, keyCols []string) (*Table, error) {
	if missing := t.MissingColumns(keyCols); len(missing) > 0 {
		return nil, errors.SchemaError(missing)
	}

	seen := make(map[string]struct{}, len(t.Rows))
	out := New(t.Columns...)
	for _, row := range t.Rows {
		key := compositeKey(row, keyCols)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Append(row.Clone())
	}
	return out, nil
}

// compositeKey renders the key-tuple of a row.  Null cells are distinguished
// from empty values by a presence marker so that (null) and ("") never
// collide with a literal cell.
func compositeKey(row Row, keyCols []string) string {
	parts := make([]string, 0, len(keyCols))
	for _, k := range keyCols {
		if v, ok := row.Get(k); ok {
			parts = append(parts, "v"+v)
		} else {
			parts = append(parts, "n")
		}
	}
	return strings.Join(parts, groupKeySep)
}
