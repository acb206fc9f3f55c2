package tabular

import "strconv"

// RowError records a recoverable per-row failure during a pipeline stage.
// Failed rows stay in the main table with sentinel cells; their errors are
// collected here and emitted as a side table next to the main output.
type RowError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

// ErrorTable renders collected row errors as a table for export.
func ErrorTable(errs []RowError) *Table {
	t := New("row", "column", "value", "error")
	for _, e := range errs {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		t.Append(Row{
			"row":    strconv.Itoa(e.Row),
			"column": e.Column,
			"value":  e.Value,
			"error":  msg,
		})
	}
	return t
}
