package pipeline

import (
	"context"
	"strings"

	"github.com/openmedi/medirec/internal/config"
	"github.com/openmedi/medirec/internal/llm"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// dropFeatures are the tag keys whose true value excludes a row from the
// merged list. The combination tag is handled separately: it drives the
// expander, not a filter.
var dropFeatures = []string{
	llm.FeatureAllergen,
	llm.FeatureVaccine,
	llm.FeatureRadioisotope,
	llm.FeatureNoTherapeuticValue,
}

// tagColumn is the cell a feature verdict lands in.
func tagColumn(feature string) string {
	return "tag_" + feature
}

// tagStage asks the tagger about every row and writes the verdicts as
// columns. The combination verdict lands in is_combination_therapy for the
// expander. Field-level tag failures leave the cell null and are recorded;
// they never fail the row. Without a tagger the stage only guarantees the
// combination column exists, defaulting to false.
func (p *Pipeline) tagStage(ctx context.Context, t *tabular.Table) (*tabular.Table, []tabular.RowError) {
	out := t.Clone()
	out.EnsureColumn(drug.ColIsCombination)
	for _, f := range dropFeatures {
		out.EnsureColumn(tagColumn(f))
	}

	var rowErrs []tabular.RowError
	for i, row := range out.Rows {
		if p.tagger != nil {
			label, ok := row.Get(drug.ColCanonicalLabel)
			if !ok {
				label, ok = row.Get(drug.ColSourceName)
			}
			if ok {
				tags, errs := p.tagger.Tag(ctx, label, llm.DefaultFeatures)
				for _, err := range errs {
					rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: drug.ColIsCombination, Value: label, Err: err})
				}
				for feature, verdict := range tags {
					if feature == llm.FeatureCombination {
						row[drug.ColIsCombination] = verdict
					} else {
						row[tagColumn(feature)] = verdict
					}
				}
			}
		}
		if _, ok := row.Get(drug.ColIsCombination); !ok {
			row[drug.ColIsCombination] = "false"
		}
	}
	return out, rowErrs
}

// filterTagged drops rows any drop feature marked true. Merged cells can
// carry joined verdicts from several sources; one true is enough to drop.
func filterTagged(t *tabular.Table) (*tabular.Table, int) {
	out := tabular.New(t.Columns...)
	dropped := 0
	for _, row := range t.Rows {
		if taggedForDrop(row) {
			dropped++
			continue
		}
		out.Append(row)
	}
	return out, dropped
}

func taggedForDrop(row tabular.Row) bool {
	for _, f := range dropFeatures {
		if v, ok := row.Get(tagColumn(f)); ok && strings.Contains(v, "true") {
			return true
		}
	}
	return false
}

// filterApproved applies the stringent-vs-flexible inclusion rule over the
// per-region approval columns present in the table. Stringent keeps a row
// only when every tracked region approved it; flexible keeps a row any
// region approved. A table with no approval columns passes through.
func filterApproved(t *tabular.Table, mode string) *tabular.Table {
	var regionCols []string
	for _, r := range drug.Regions {
		if col := drug.ApprovedColumn(r); t.HasColumn(col) {
			regionCols = append(regionCols, col)
		}
	}
	if len(regionCols) == 0 {
		return t
	}

	out := tabular.New(t.Columns...)
	for _, row := range t.Rows {
		approvals := 0
		for _, col := range regionCols {
			if v, ok := row.Get(col); ok && strings.Contains(v, "true") {
				approvals++
			}
		}
		keep := approvals > 0
		if mode == config.ModeStringent {
			keep = approvals == len(regionCols)
		}
		if keep {
			out.Append(row)
		}
	}
	return out
}
