package services

import "survey-dashboard/models"

// State is the dashboard's input: the record set and the active filters.
type State struct {
	Records []models.SurveyRecord
	Filters models.FilterSelection
}

// Action is a state transition understood by Reduce.
type Action interface {
	apply(State) State
}

// LoadRecords replaces the record set.
type LoadRecords struct {
	Records []models.SurveyRecord
}

// AppendRecords adds records after the current set.
type AppendRecords struct {
	Records []models.SurveyRecord
}

// SetFilter sets one dimension; an empty Value clears it.
type SetFilter struct {
	Dimension string
	Value     string
}

// ResetFilters clears every dimension.
type ResetFilters struct{}

// Reduce returns the state after applying action. The input state is never
// modified; slices and maps in the result are fresh copies where they change.
func Reduce(s State, action Action) State {
	if action == nil {
		return s
	}
	return action.apply(s)
}

func (a LoadRecords) apply(s State) State {
	records := make([]models.SurveyRecord, len(a.Records))
	copy(records, a.Records)
	return State{Records: records, Filters: s.Filters}
}

func (a AppendRecords) apply(s State) State {
	records := make([]models.SurveyRecord, 0, len(s.Records)+len(a.Records))
	records = append(records, s.Records...)
	records = append(records, a.Records...)
	return State{Records: records, Filters: s.Filters}
}

func (a SetFilter) apply(s State) State {
	filters := s.Filters.Clone()
	if a.Value == "" {
		delete(filters, a.Dimension)
	} else {
		filters[a.Dimension] = a.Value
	}
	return State{Records: s.Records, Filters: filters}
}

func (ResetFilters) apply(s State) State {
	return State{Records: s.Records, Filters: models.FilterSelection{}}
}
