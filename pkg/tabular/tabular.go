package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row is one decoded data row keyed by column name.
type Row map[string]string

// Decode reads CSV data where the first line names the columns and returns
// the data rows in file order. Header names and values are trimmed. A file
// with only a header (or nothing at all) decodes to zero rows.
func Decode(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows), err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = strings.TrimSpace(fields[i])
			}
		}
		rows = append(rows, row)
	}
}
