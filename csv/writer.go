package csv

import (
	"encoding/csv"
	"io"

	"hermannm.dev/summarytable/table"
	"hermannm.dev/wrap"
)

type Writer struct {
	inner *csv.Writer
}

func NewWriter(output io.Writer, delimiter rune) *Writer {
	writer := csv.NewWriter(output)
	writer.Comma = delimiter
	return &Writer{inner: writer}
}

// Writes the header row followed by the body rows, and flushes the output.
func (writer *Writer) WriteTable(summaryTable table.Table) error {
	if err := writer.inner.Write(summaryTable.Headers); err != nil {
		return wrap.Error(err, "failed to write CSV header row")
	}

	for i, row := range summaryTable.Rows {
		if err := writer.inner.Write(row); err != nil {
			return wrap.Errorf(err, "failed to write CSV row %d", i+1)
		}
	}

	writer.inner.Flush()
	if err := writer.inner.Error(); err != nil {
		return wrap.Error(err, "failed to flush CSV output")
	}

	return nil
}
