package source

import (
	"context"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/tabular"
)

// Translator turns registry text into English.  The Russian state registry
// export arrives untranslated; its table goes through TranslateTable before
// column standardization.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// TranslateTable translates the column names and every cell of t.  Each
// distinct string is translated once and reused across the table.  A failed
// translation keeps the original text, so one flaky lookup never loses a
// registry row.
func TranslateTable(ctx context.Context, tr Translator, t *tabular.Table, log logging.Logger) *tabular.Table {
	cache := make(map[string]string)
	translate := func(s string) string {
		if s == "" {
			return s
		}
		if out, ok := cache[s]; ok {
			return out
		}
		out, err := tr.Translate(ctx, s)
		if err != nil || out == "" {
			log.Warn("translation failed, keeping original text",
				logging.String("text", s), logging.Err(err))
			out = s
		}
		cache[s] = out
		return out
	}

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = translate(c)
	}
	out := tabular.New(cols...)
	for _, row := range t.Rows {
		next := make(tabular.Row, len(row))
		for i, c := range t.Columns {
			if v, ok := row.Get(c); ok {
				next[cols[i]] = translate(v)
			}
		}
		out.Append(next)
	}
	return out
}
