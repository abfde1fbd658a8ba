package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-dashboard/catalog"
	"survey-dashboard/data"
	"survey-dashboard/models"
	"survey-dashboard/utils"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(catalog.MustDefault(), utils.NewNopLogger())
}

// record builds a SurveyRecord from alternating key/value pairs.
func record(id string, kv ...string) models.SurveyRecord {
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return models.SurveyRecord{ID: id, Source: models.SourceCSV, Fields: fields}
}

const shortHeader = "id. Antwort ID;Q00. In welchem Kiez wohnen Sie?;Q001. Wie alt sind Sie?;Q003. Wie zufrieden sind Sie mit dem Leben in Ihrem Kiez?\n"

func TestParseBundledExport(t *testing.T) {
	records, err := newTestNormalizer().Parse(data.Survey())
	require.NoError(t, err)
	require.Len(t, records, 18)

	first := records[0]
	assert.Equal(t, "11", first.ID)
	assert.Equal(t, models.SourceCSV, first.Source)
	assert.Equal(t, "Um den U-Bhf. Kaulsdorf-Nord herum", first.Get("location"))
	assert.Equal(t, "30-49", first.Get("age_group"))
	assert.Equal(t, "3", first.Get("satisfaction"))
	assert.Equal(t, "eher optimistisch", first.Get("future_outlook"))
	assert.Equal(t, "N/A", first.Get("kiezmacher_known"))

	second := records[1]
	assert.Equal(t, "Siedlungsgebiet", second.Get("location"))
	assert.Equal(t, models.Yes, second.Get("topics_housing"))
}

func TestParseKeepsOnlyAnsweredRows(t *testing.T) {
	input := shortHeader +
		"1;Siedlungsgebiet;30-49;4\n" +
		"2;N/A;;3\n" +
		"3;;18-29;\n" +
		"4;;N/A;5\n" +
		"5;Um den U-Bhf. Kienberg herum;N/A;2\n"

	records, err := newTestNormalizer().Parse(strings.NewReader(input))
	require.NoError(t, err)

	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "3", "5"}, ids)
}

func TestParseShortAndLongRows(t *testing.T) {
	input := shortHeader +
		"1;Siedlungsgebiet\n" +
		"2;Siedlungsgebiet;70+;5;extra;columns\n"

	records, err := newTestNormalizer().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "", records[0].Get("age_group"))
	assert.Equal(t, "", records[0].Get("satisfaction"))
	assert.Contains(t, records[0].Fields, "satisfaction")
	assert.Equal(t, "5", records[1].Get("satisfaction"))
	assert.Len(t, records[1].Fields, 3)
}

func TestParseTrimsValuesAndKeepsUnknownColumns(t *testing.T) {
	input := "Q00. In welchem Kiez wohnen Sie?;Q999. Neue Frage\n" +
		"  Siedlungsgebiet  ; ja \n"

	records, err := newTestNormalizer().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "Siedlungsgebiet", records[0].Get("location"))
	assert.Equal(t, "ja", records[0].Get("Q999. Neue Frage"))
	assert.Equal(t, "row-1", records[0].ID, "rows without an id column get a positional id")
}

func TestParseEmptyInput(t *testing.T) {
	n := newTestNormalizer()

	_, err := n.Parse(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoHeader))

	records, err := n.Parse(strings.NewReader(shortHeader))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseUnclosedQuoteStaysOnItsLine(t *testing.T) {
	input := shortHeader +
		"1;Siedlungsgebiet;30-49;\"4\n" +
		"2;Um den U-Bhf. Kienberg herum;50-69;2\n" +
		"3;Siedlungsgebiet;70+;5\n"

	records, err := newTestNormalizer().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "4", records[0].Get("satisfaction"))
	assert.Equal(t, "Um den U-Bhf. Kienberg herum", records[1].Get("location"))
	assert.Equal(t, "2", records[1].Get("satisfaction"))
	assert.Equal(t, "70+", records[2].Get("age_group"))
}

func TestParseStrayQuotesInsideQuotedAnswer(t *testing.T) {
	header := "id. Antwort ID;Q00. In welchem Kiez wohnen Sie?;Q010. Was wünschen Sie sich für die Zukunft in Ihrem Kiez?;Q001. Wie alt sind Sie?\n"
	input := header +
		"1;Siedlungsgebiet;\"Mehr \"Grün\"; weniger Beton\";30-49\n" +
		"2;Siedlungsgebiet;\"Ruhe\";18-29\n"

	records, err := newTestNormalizer().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, `Mehr "Grün"; weniger Beton`, records[0].Get("future_wishes"))
	assert.Equal(t, "30-49", records[0].Get("age_group"))
	assert.Equal(t, "Ruhe", records[1].Get("future_wishes"))
	assert.Equal(t, "18-29", records[1].Get("age_group"))
}

func TestParseQuotedAnswerSpanningLines(t *testing.T) {
	header := "id. Antwort ID;Q00. In welchem Kiez wohnen Sie?;Q010. Was wünschen Sie sich für die Zukunft in Ihrem Kiez?;Q001. Wie alt sind Sie?\r\n"
	input := header +
		"1;Siedlungsgebiet;\"Mehr Bänke\r\nund Bäume\";30-49\r\n" +
		"2;Siedlungsgebiet;;70+\r\n"

	records, err := newTestNormalizer().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Mehr Bänke\nund Bäume", records[0].Get("future_wishes"))
	assert.Equal(t, "30-49", records[0].Get("age_group"))
	assert.Equal(t, "70+", records[1].Get("age_group"))
}

func TestParseRejectsUnusableInput(t *testing.T) {
	n := newTestNormalizer()

	_, err := n.Parse(strings.NewReader(`{"location": "Siedlungsgebiet", "age_group": "30-49"}`))
	assert.ErrorIs(t, err, ErrUnknownLayout)

	latin1 := "Q00. In welchem Kiez wohnen Sie?;Q010. Was w\xfcnschen Sie sich?\nSiedlungsgebiet;Gr\xfcn\n"
	_, err = n.Parse(strings.NewReader(latin1))
	assert.ErrorIs(t, err, ErrNotUTF8)
}

func TestSplitLenient(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"unclosed quote", `1;"abc;def`, []string{"1", "abc", "def"}},
		{"paired stray quotes", `"a "b" c";d`, []string{`a "b" c`, "d"}},
		{"single stray quote", `"a "b;c"x;d`, []string{`a "b`, `c"x`, "d"}},
		{"unclosed with doubled quotes", `"a ""b"" c;d`, []string{`a ""b"" c`, "d"}},
		{"trailing separator", `"a"x;`, []string{`a"x`, ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitLenient(tt.line))
		})
	}
}

func TestFromAPIRow(t *testing.T) {
	n := newTestNormalizer()

	rec := n.FromAPIRow(map[string]any{
		"_id":                "65f0c",
		"location":           "Siedlungsgebiet",
		"age_group":          "30-49",
		"satisfaction":       float64(4),
		"social_media_usage": "Ja",
		"custom_address":     "  Hellersdorfer Str. 5 ",
		"unrelated":          "dropped",
		"no_social_media":    false,
	})

	assert.Equal(t, "65f0c", rec.ID)
	assert.Equal(t, models.SourceStore, rec.Source)
	assert.Equal(t, "4", rec.Get("satisfaction"))
	assert.Equal(t, "Ja", rec.Get("info_source_social"))
	assert.Equal(t, "Hellersdorfer Str. 5", rec.Get("custom_address"))
	assert.Equal(t, models.No, rec.Get("no_social_media"))
	assert.NotContains(t, rec.Fields, "unrelated")
	assert.NotContains(t, rec.Fields, "response_id")
}

func TestFromAPIRowExactNameWinsOverAlias(t *testing.T) {
	rec := newTestNormalizer().FromAPIRow(map[string]any{
		"info_source_social": "Nein",
		"social_media_usage": "Ja",
	})
	assert.Equal(t, "Nein", rec.Get("info_source_social"))

	rec = newTestNormalizer().FromAPIRow(map[string]any{
		"info_source_social": "",
		"social_media_usage": "Ja",
	})
	assert.Equal(t, "Ja", rec.Get("info_source_social"), "alias fills an empty exact field")
}

func TestFromAnswers(t *testing.T) {
	rec := newTestNormalizer().FromAnswers("abc", map[string]string{
		"location":  " Siedlungsgebiet ",
		"age_group": "18-29",
		"bogus":     "x",
	})
	assert.Equal(t, "abc", rec.ID)
	assert.Equal(t, "Siedlungsgebiet", rec.Get("location"))
	assert.NotContains(t, rec.Fields, "bogus")
}

func TestKeep(t *testing.T) {
	n := newTestNormalizer()
	tests := []struct {
		name string
		rec  models.SurveyRecord
		want bool
	}{
		{"location only", record("1", "location", "Siedlungsgebiet"), true},
		{"age only", record("2", "age_group", "70+"), true},
		{"both not answered", record("3", "location", "N/A", "age_group", "N/A"), false},
		{"both empty", record("4", "location", "", "age_group", ""), false},
		{"no fields", record("5"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Keep(tt.rec))
		})
	}
}
