// Package expand turns combination-therapy rows into additional single-agent
// rows, one per constituent ingredient not already present in the table.
// The input rows are never removed or reordered; synthesized rows are
// buffered during the scan and appended once at the end.
package expand

import (
	"context"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/resolve"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// Splitter decomposes a combination product name into ingredient names.
type Splitter interface {
	Split(ctx context.Context, productName string) ([]string, error)
}

// Config names the columns the expander reads and writes.  Zero values fall
// back to the canonical schema.
type Config struct {
	NameColumn          string
	IDColumn            string
	LabelColumn         string
	IsCombinationColumn string
	ComponentsColumn    string
}

func (c *Config) applyDefaults() {
	if c.NameColumn == "" {
		c.NameColumn = drug.ColSourceName
	}
	if c.IDColumn == "" {
		c.IDColumn = drug.ColCanonicalID
	}
	if c.LabelColumn == "" {
		c.LabelColumn = drug.ColCanonicalLabel
	}
	if c.IsCombinationColumn == "" {
		c.IsCombinationColumn = drug.ColIsCombination
	}
	if c.ComponentsColumn == "" {
		c.ComponentsColumn = drug.ColComponents
	}
}

// Expander synthesizes single-agent rows from combination rows.
type Expander struct {
	splitter Splitter
	resolver resolve.NameResolver
	cfg      Config
	logger   logging.Logger
}

// New builds an expander.  The resolver's cache is what keeps repeated
// component lookups cheap; the expander holds no lookup state of its own.
func New(splitter Splitter, resolver resolve.NameResolver, cfg Config, log logging.Logger) *Expander {
	cfg.applyDefaults()
	return &Expander{
		splitter: splitter,
		resolver: resolver,
		cfg:      cfg,
		logger:   log.Named("expand"),
	}
}

// Expand scans t for combination rows, splits each into components, and
// appends one synthesized row per component whose identifier is not yet
// present in the table.  The seen-set is seeded from every input row and
// grows as synthesized rows are admitted, so a component shared by two
// combinations is synthesized once.  Components whose resolution failed are
// excluded from the seen-set and never synthesized.  Running Expand on its
// own output adds nothing.
func (e *Expander) Expand(ctx context.Context, t *tabular.Table) (*tabular.Table, []tabular.RowError, error) {
	required := []string{e.cfg.NameColumn, e.cfg.IDColumn, e.cfg.IsCombinationColumn}
	if missing := t.MissingColumns(required); len(missing) > 0 {
		return nil, nil, errors.SchemaError(missing)
	}

	out := t.Clone()
	out.EnsureColumn(e.cfg.LabelColumn)
	out.EnsureColumn(e.cfg.ComponentsColumn)

	seen := drug.NewIDSet()
	for _, row := range out.Rows {
		if id, ok := row.Get(e.cfg.IDColumn); ok {
			seen.Add(id)
		}
	}

	var synthesized []tabular.Row
	var rowErrs []tabular.RowError

	for i, row := range out.Rows {
		if v, _ := row.Get(e.cfg.IsCombinationColumn); v != "true" {
			continue
		}
		name, ok := row.Get(e.cfg.NameColumn)
		if !ok {
			rowErrs = append(rowErrs, tabular.RowError{
				Row:    i,
				Column: e.cfg.NameColumn,
				Err:    errors.InvalidInput("combination row has no product name"),
			})
			continue
		}

		names, err := e.splitter.Split(ctx, name)
		if err != nil {
			rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: e.cfg.NameColumn, Value: name, Err: err})
			continue
		}

		comps, compErrs := resolve.Components(ctx, e.resolver, names)
		for _, cerr := range compErrs {
			rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: e.cfg.ComponentsColumn, Value: name, Err: cerr})
		}
		row[e.cfg.ComponentsColumn] = drug.FormatComponents(comps)

		for _, comp := range comps {
			if drug.IsSentinel(comp.CURIE) || comp.CURIE == "" {
				continue
			}
			if seen.Has(comp.CURIE) {
				continue
			}
			seen.Add(comp.CURIE)
			synthesized = append(synthesized, e.synthesize(row, comp))
		}
	}

	if len(synthesized) > 0 {
		e.logger.Info("expanded combination therapies",
			logging.Int("input_rows", t.Len()),
			logging.Int("synthesized_rows", len(synthesized)))
	}
	out.Rows = append(out.Rows, synthesized...)
	return out, rowErrs, nil
}

// synthesize builds a single-agent row from a parent combination row.  The
// parent's market and provenance cells carry over; identity and combination
// cells are replaced.
func (e *Expander) synthesize(parent tabular.Row, comp drug.Component) tabular.Row {
	child := parent.Clone()
	child[e.cfg.NameColumn] = comp.Name
	child[e.cfg.IDColumn] = comp.CURIE
	label := comp.Label
	if label == "" {
		label = comp.Name
	}
	child[e.cfg.LabelColumn] = label
	child[e.cfg.IsCombinationColumn] = "false"
	delete(child, e.cfg.ComponentsColumn)
	delete(child, drug.ColAlternateIDs)
	return child
}
