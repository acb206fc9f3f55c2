package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// preNineteenEightyTwo is the fixed wording the FDA approvals file uses for
// drugs older than its electronic records.
const preNineteenEightyTwo = "Approved Prior to Jan 1, 1982"

// approvalDateLayouts are the two formats the approvals file actually
// contains.  Parsing is deliberately exhaustive over this list: a date in
// any other shape is a data defect and must surface as an error, not be
// guessed at.
var approvalDateLayouts = []string{"Jan 2, 2006", "02-Jan-06"}

// ApprovalDateFormat is the compact form approval dates are stored in.
const ApprovalDateFormat = "20060102"

// ParseApprovalDate parses one approval date cell.  The pre-1982 wording
// maps to 1982-01-01.
func ParseApprovalDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == preNineteenEightyTwo {
		return time.Date(1982, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range approvalDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// Two-digit years land in the wrong century for pre-1969
			// approvals ("03-Jun-54" parses as 2054).  No approval date is
			// in the future.
			if t.After(time.Now()) {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}
	return time.Time{}, errors.Newf(errors.ErrCodeDateParse, "approval date %q matches no known format", s)
}

// EarliestApprovalDates folds a per-formulation products table into the
// earliest approval date per ingredient, formatted compactly.  An
// unparseable date cell fails the fold; silent fallbacks here would
// misdate drugs in the published list.
func EarliestApprovalDates(products *tabular.Table, ingredientCol, dateCol string) (map[string]string, error) {
	if missing := products.MissingColumns([]string{ingredientCol, dateCol}); len(missing) > 0 {
		return nil, errors.SchemaError(missing)
	}

	earliest := make(map[string]time.Time)
	for i, row := range products.Rows {
		name, ok := row.Get(ingredientCol)
		if !ok {
			continue
		}
		cell, ok := row.Get(dateCol)
		if !ok {
			continue
		}
		t, err := ParseApprovalDate(cell)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDateParse, fmt.Sprintf("row %d of approvals table", i))
		}
		if cur, seen := earliest[name]; !seen || t.Before(cur) {
			earliest[name] = t
		}
	}

	out := make(map[string]string, len(earliest))
	for name, t := range earliest {
		out[name] = t.Format(ApprovalDateFormat)
	}
	return out, nil
}

// ApplyApprovalDates writes each row's earliest approval date from the
// computed per-ingredient map.
func ApplyApprovalDates(t *tabular.Table, nameCol string, dates map[string]string) (*tabular.Table, error) {
	if !t.HasColumn(nameCol) {
		return nil, errors.SchemaError([]string{nameCol})
	}
	out := t.Clone()
	out.EnsureColumn(drug.ColApprovalDate)
	for _, row := range out.Rows {
		name, ok := row.Get(nameCol)
		if !ok {
			continue
		}
		if date, known := dates[name]; known {
			row[drug.ColApprovalDate] = date
		}
	}
	return out, nil
}
