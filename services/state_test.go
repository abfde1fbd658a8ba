package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"survey-dashboard/models"
)

func TestReduceLoadAndAppend(t *testing.T) {
	s := State{Filters: models.FilterSelection{}}

	loaded := Reduce(s, LoadRecords{Records: []models.SurveyRecord{record("1")}})
	assert.Equal(t, []string{"1"}, ids(loaded.Records))
	assert.Empty(t, s.Records, "input state must not change")

	appended := Reduce(loaded, AppendRecords{Records: []models.SurveyRecord{record("2"), record("3")}})
	assert.Equal(t, []string{"1", "2", "3"}, ids(appended.Records))
	assert.Equal(t, []string{"1"}, ids(loaded.Records))
}

func TestReduceLoadCopiesInput(t *testing.T) {
	src := []models.SurveyRecord{record("1"), record("2")}
	s := Reduce(State{}, LoadRecords{Records: src})

	src[0] = record("changed")
	assert.Equal(t, "1", s.Records[0].ID)
}

func TestReduceFilters(t *testing.T) {
	s := State{Filters: models.FilterSelection{"location": "Siedlungsgebiet"}}

	withAge := Reduce(s, SetFilter{Dimension: "ageGroup", Value: "70+"})
	assert.Equal(t, models.FilterSelection{"location": "Siedlungsgebiet", "ageGroup": "70+"}, withAge.Filters)
	assert.Len(t, s.Filters, 1)

	cleared := Reduce(withAge, SetFilter{Dimension: "location"})
	assert.Equal(t, models.FilterSelection{"ageGroup": "70+"}, cleared.Filters)

	reset := Reduce(cleared, ResetFilters{})
	assert.Empty(t, reset.Filters)
	assert.Len(t, cleared.Filters, 1)
}

func TestReduceNilAction(t *testing.T) {
	s := State{Records: []models.SurveyRecord{record("1")}}
	assert.Equal(t, s, Reduce(s, nil))
}
