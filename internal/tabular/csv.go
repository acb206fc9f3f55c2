package tabular

import (
	"encoding/csv"
	"io"

	"github.com/openmedi/medirec/pkg/errors"
)

// ReadCSV parses a header-first CSV stream into a Table.  Empty fields become
// null cells.  Ragged records are rejected by the underlying reader.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "read csv header")
	}

	t := New(header...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "read csv record")
		}
		row := make(Row, len(header))
		for i, v := range rec {
			if v != "" {
				row[header[i]] = v
			}
		}
		t.Append(row)
	}
	return t, nil
}

// WriteCSV renders the table with a header row.  Null cells are written as
// empty fields, so ReadCSV(WriteCSV(t)) reproduces t.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "write csv header")
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			rec[i] = row[col]
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "write csv record")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "flush csv")
	}
	return nil
}
