package services

import (
	"survey-dashboard/catalog"
	"survey-dashboard/models"
)

// FilterEngine evaluates filter selections against survey records.
type FilterEngine struct {
	catalog *catalog.Catalog
}

// NewFilterEngine creates a FilterEngine over the catalog's dimension table.
func NewFilterEngine(cat *catalog.Catalog) *FilterEngine {
	return &FilterEngine{catalog: cat}
}

// Matches reports whether rec satisfies every active dimension in sel.
// Empty selections, unknown dimensions and unrecognised values of composite
// dimensions impose no constraint.
func (e *FilterEngine) Matches(rec models.SurveyRecord, sel models.FilterSelection) bool {
	for name, value := range sel {
		if value == "" {
			continue
		}
		dim, ok := e.catalog.Dimension(name)
		if !ok {
			continue
		}

		if dim.Composite() {
			field, ok := dim.Resolve(value)
			if !ok {
				continue
			}
			if rec.Get(field) != dim.Match {
				return false
			}
			continue
		}

		if rec.Get(dim.Field) != value {
			return false
		}
	}
	return true
}

// Filter returns the records matching sel as a new slice.
func (e *FilterEngine) Filter(records []models.SurveyRecord, sel models.FilterSelection) []models.SurveyRecord {
	out := make([]models.SurveyRecord, 0, len(records))
	for _, rec := range records {
		if e.Matches(rec, sel) {
			out = append(out, rec)
		}
	}
	return out
}

// Options lists, per simple dimension, the distinct answered values found in
// records in first-seen order. The UI offers these as filter choices.
func (e *FilterEngine) Options(records []models.SurveyRecord) map[string][]string {
	out := make(map[string][]string)
	for _, dim := range e.catalog.SimpleDimensions() {
		seen := make(map[string]struct{})
		values := []string{}
		for _, rec := range records {
			v := rec.Get(dim.Field)
			if !models.IsAnswer(v) {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		out[dim.Name] = values
	}
	for _, dim := range e.catalog.Dimensions {
		if !dim.Composite() {
			continue
		}
		values := make([]string, 0, len(dim.Options))
		for _, o := range dim.Options {
			values = append(values, o.Value)
		}
		out[dim.Name] = values
	}
	return out
}
