package storage

import (
	"encoding/csv"
	"fmt"
	"io"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
)

// CSVExporter writes records in the semicolon-delimited questionnaire format,
// so an export can be imported again unchanged.
type CSVExporter struct {
	catalog *catalog.Catalog
}

// NewCSVExporter creates a CSVExporter using the catalog's column headers.
func NewCSVExporter(cat *catalog.Catalog) *CSVExporter {
	return &CSVExporter{catalog: cat}
}

func (c *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

func (c *CSVExporter) Extension() string { return "csv" }

// Export writes the header row followed by one row per record.
func (c *CSVExporter) Export(w io.Writer, records []models.SurveyRecord) error {
	header, rows := table(c.catalog, records)

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
