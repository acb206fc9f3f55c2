package source

import (
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// MarketingStatusByIngredient folds a per-formulation products table into
// one most-permissive status per ingredient (OTC beats RX beats
// discontinued; anything else is UNSURE).  One ingredient sold both OTC and
// by prescription counts as OTC.
func MarketingStatusByIngredient(products *tabular.Table, ingredientCol, statusCol string) (map[string]drug.MarketingStatus, error) {
	if missing := products.MissingColumns([]string{ingredientCol, statusCol}); len(missing) > 0 {
		return nil, errors.SchemaError(missing)
	}

	byIngredient := make(map[string][]string)
	for _, row := range products.Rows {
		name, ok := row.Get(ingredientCol)
		if !ok {
			continue
		}
		status, _ := row.Get(statusCol)
		byIngredient[name] = append(byIngredient[name], status)
	}

	out := make(map[string]drug.MarketingStatus, len(byIngredient))
	for name, statuses := range byIngredient {
		out[name] = drug.MostPermissiveStatus(statuses)
	}
	return out, nil
}

// ApplyMarketingStatus writes each row's marketing status from the computed
// per-ingredient map.  Rows whose ingredient is absent from the map keep a
// null status cell.
func ApplyMarketingStatus(t *tabular.Table, nameCol string, statuses map[string]drug.MarketingStatus) (*tabular.Table, error) {
	if !t.HasColumn(nameCol) {
		return nil, errors.SchemaError([]string{nameCol})
	}
	out := t.Clone()
	out.EnsureColumn(drug.ColMarketingStatus)
	for _, row := range out.Rows {
		name, ok := row.Get(nameCol)
		if !ok {
			continue
		}
		if status, known := statuses[name]; known {
			row[drug.ColMarketingStatus] = string(status)
		}
	}
	return out, nil
}
