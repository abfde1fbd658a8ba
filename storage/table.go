package storage

import (
	"survey-dashboard/catalog"
	"survey-dashboard/models"
)

// table lays records out in questionnaire column order: the id column first,
// then every catalog field.
func table(cat *catalog.Catalog, records []models.SurveyRecord) ([]string, [][]string) {
	idField, _ := cat.Field(cat.Roles.ID)

	header := []string{idField.Header}
	keys := make([]string, 0, len(cat.Fields))
	for _, f := range cat.Fields {
		if f.Key == cat.Roles.ID {
			continue
		}
		header = append(header, f.Header)
		keys = append(keys, f.Key)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, 0, len(header))
		row = append(row, rec.ID)
		for _, k := range keys {
			row = append(row, rec.Get(k))
		}
		rows = append(rows, row)
	}
	return header, rows
}
