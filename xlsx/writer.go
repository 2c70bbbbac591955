package xlsx

import (
	"io"

	"github.com/xuri/excelize/v2"
	"hermannm.dev/summarytable/table"
	"hermannm.dev/wrap"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Summary"
)

// Writes the table to a single-sheet workbook, with a bold header row that stays frozen when
// scrolling. Cells are written as the rendered display strings, so spreadsheet output matches
// the CSV download.
func WriteTable(output io.Writer, summaryTable table.Table) (returnedErr error) {
	file := excelize.NewFile()
	defer func() {
		if err := file.Close(); err != nil && returnedErr == nil {
			returnedErr = wrap.Error(err, "failed to close spreadsheet")
		}
	}()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return wrap.Error(err, "failed to name spreadsheet sheet")
	}

	if err := writeRow(file, 1, summaryTable.Headers); err != nil {
		return wrap.Error(err, "failed to write spreadsheet header row")
	}
	for i, row := range summaryTable.Rows {
		if err := writeRow(file, i+2, row); err != nil {
			return wrap.Errorf(err, "failed to write spreadsheet row %d", i+1)
		}
	}

	if len(summaryTable.Headers) != 0 {
		if err := styleHeader(file, len(summaryTable.Headers)); err != nil {
			return err
		}
	}

	if err := file.Write(output); err != nil {
		return wrap.Error(err, "failed to write spreadsheet output")
	}
	return nil
}

func writeRow(file *excelize.File, rowNumber int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNumber)
	if err != nil {
		return err
	}
	return file.SetSheetRow(sheetName, cell, &cells)
}

func styleHeader(file *excelize.File, columnCount int) error {
	style, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return wrap.Error(err, "failed to create spreadsheet header style")
	}

	lastCell, err := excelize.CoordinatesToCellName(columnCount, 1)
	if err != nil {
		return wrap.Error(err, "invalid spreadsheet header range")
	}
	if err := file.SetCellStyle(sheetName, "A1", lastCell, style); err != nil {
		return wrap.Error(err, "failed to style spreadsheet header row")
	}

	if err := file.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return wrap.Error(err, "failed to freeze spreadsheet header row")
	}

	return nil
}
