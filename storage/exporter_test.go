package storage

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
)

func sampleRecords() []models.SurveyRecord {
	return []models.SurveyRecord{
		{ID: "12", Fields: map[string]string{
			"location":       "Siedlungsgebiet",
			"age_group":      "30-49",
			"satisfaction":   "4",
			"future_wishes":  "Mehr Verkehrssicherheit; weniger LKW",
			"future_outlook": "eher optimistisch",
		}},
		{ID: "13", Fields: map[string]string{
			"location":  "Um den U-Bhf. Kaulsdorf-Nord herum",
			"age_group": "18-29",
		}},
	}
}

func TestCSVExporterWritesCatalogColumns(t *testing.T) {
	cat := catalog.MustDefault()
	var buf bytes.Buffer

	exp := NewCSVExporter(cat)
	require.NoError(t, exp.Export(&buf, sampleRecords()))
	assert.Equal(t, "csv", exp.Extension())

	r := csv.NewReader(strings.NewReader(buf.String()))
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.Equal(t, "id. Antwort ID", header[0])
	assert.Len(t, header, len(cat.Fields))

	col := -1
	for i, h := range header {
		if h == "Q010. Was wünschen Sie sich für die Zukunft in Ihrem Kiez?" {
			col = i
		}
	}
	require.NotEqual(t, -1, col)
	assert.Equal(t, "Mehr Verkehrssicherheit; weniger LKW", rows[1][col], "delimiter inside a value must survive quoting")
	assert.Equal(t, "13", rows[2][0])
}

func TestXLSXExporterProducesReadableWorkbook(t *testing.T) {
	cat := catalog.MustDefault()
	var buf bytes.Buffer

	require.NoError(t, NewXLSXExporter(cat).Export(&buf, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id. Antwort ID", rows[0][0])
	assert.Equal(t, "Q00. In welchem Kiez wohnen Sie?", rows[0][1])
	assert.Equal(t, "12", rows[1][0])
	assert.Equal(t, "Siedlungsgebiet", rows[1][1])
}

func TestExportersOnEmptyInput(t *testing.T) {
	cat := catalog.MustDefault()
	for _, exp := range []RecordExporter{NewCSVExporter(cat), NewXLSXExporter(cat)} {
		var buf bytes.Buffer
		require.NoError(t, exp.Export(&buf, nil), exp.Extension())
		assert.NotZero(t, buf.Len(), exp.Extension())
	}
}
