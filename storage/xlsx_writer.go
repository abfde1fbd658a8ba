package storage

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
)

const xlsxSheet = "Umfrage"

// XLSXExporter writes records as a single-sheet spreadsheet.
type XLSXExporter struct {
	catalog *catalog.Catalog
}

// NewXLSXExporter creates an XLSXExporter using the catalog's column headers.
func NewXLSXExporter(cat *catalog.Catalog) *XLSXExporter {
	return &XLSXExporter{catalog: cat}
}

func (x *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (x *XLSXExporter) Extension() string { return "xlsx" }

// Export writes a workbook with a header row and one row per record.
func (x *XLSXExporter) Export(w io.Writer, records []models.SurveyRecord) error {
	header, rows := table(x.catalog, records)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	if err := writeSheetRow(f, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeSheetRow(f, i+2, row); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("xlsx: column name: %w", err)
	}
	if err := f.SetColWidth(xlsxSheet, "A", last, 18); err != nil {
		return fmt.Errorf("xlsx: column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

func writeSheetRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("xlsx: cell name: %w", err)
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
		return fmt.Errorf("xlsx: write row %d: %w", rowNum, err)
	}
	return nil
}
