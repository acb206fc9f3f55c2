package source

import (
	"regexp"
	"strings"

	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
)

// pmdaEnumerator matches the "(1)", "(2)" item markers PMDA embeds in
// multi-ingredient name cells.
var pmdaEnumerator = regexp.MustCompile(`\(\d+\)`)

// CleanPMDAName canonicalizes one ingredient name from the PMDA approvals
// export.  The export writes combination products as enumerated prose
// ("a combination drug of (1) x and (2) y"); cleanup yields an uppercase
// "; "-separated ingredient list the resolver can work with.
func CleanPMDAName(name string) string {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "A COMBINATION DRUG OF", "")
	name = pmdaEnumerator.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, " AND ", "; ")
	name = strings.ReplaceAll(name, "/", "; ")
	name = strings.ReplaceAll(name, ",", "; ")
	name = strings.Join(strings.Fields(name), " ")
	// Re-split and join to collapse empty segments left by the rewrites.
	var parts []string
	for _, p := range strings.Split(name, ";") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "; ")
}

// PreprocessPMDA cleans every name cell of nameCol in place of a copy.  A
// cell that cleans down to nothing becomes null.
func PreprocessPMDA(t *tabular.Table, nameCol string) (*tabular.Table, error) {
	if !t.HasColumn(nameCol) {
		return nil, errors.SchemaError([]string{nameCol})
	}
	out := t.Clone()
	for _, row := range out.Rows {
		v, ok := row.Get(nameCol)
		if !ok {
			continue
		}
		if cleaned := CleanPMDAName(v); cleaned != "" {
			row[nameCol] = cleaned
		} else {
			delete(row, nameCol)
		}
	}
	return out, nil
}
