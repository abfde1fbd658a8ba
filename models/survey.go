package models

import "time"

// Answer sentinels used by the questionnaire export.
const (
	NotAnswered = "N/A"
	Yes         = "Ja"
	No          = "Nein"
)

// Record sources.
const (
	SourceCSV   = "csv"
	SourceStore = "store"
)

// SurveyRecord is one questionnaire response keyed by stable field key.
// Records are treated as immutable once built.
type SurveyRecord struct {
	ID     string
	Source string
	Fields map[string]string
}

// Get returns the answer stored under key, or "" when the field is absent.
func (r SurveyRecord) Get(key string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[key]
}

// Answered reports whether key holds a real answer (not empty, not "N/A").
func (r SurveyRecord) Answered(key string) bool {
	return IsAnswer(r.Get(key))
}

// IsAnswer reports whether v counts as an answer.
func IsAnswer(v string) bool {
	return v != "" && v != NotAnswered
}

// StoredResponse is a survey row managed through the admin API.
type StoredResponse struct {
	ID        string            `json:"_id"`
	Answers   map[string]string `json:"answers"`
	Source    string            `json:"import_source,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	CreatedBy string            `json:"created_by,omitempty"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
	UpdatedBy string            `json:"updated_by,omitempty"`
}

// FilterSelection maps a filter dimension to its selected value; "" means no constraint.
type FilterSelection map[string]string

// Active returns the dimensions carrying a non-empty selection.
func (f FilterSelection) Active() map[string]string {
	out := make(map[string]string, len(f))
	for dim, v := range f {
		if v != "" {
			out[dim] = v
		}
	}
	return out
}

// Clone returns an independent copy.
func (f FilterSelection) Clone() FilterSelection {
	out := make(FilterSelection, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}
