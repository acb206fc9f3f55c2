package source

import (
	"github.com/openmedi/medirec/internal/tabular"
)

// EMA export column names as shipped in the medicines data file.
const (
	emaCategoryCol = "Category"
	emaStatusCol   = "Medicine status"
)

// PreprocessEMA narrows the EMA medicines export to authorised human
// medicines.  Veterinary entries and withdrawn or refused authorisations
// never reach the engine.
func PreprocessEMA(t *tabular.Table) (*tabular.Table, error) {
	human, err := KeepWhere(t, emaCategoryCol, "Human")
	if err != nil {
		return nil, err
	}
	return KeepWhere(human, emaStatusCol, "Authorised")
}
