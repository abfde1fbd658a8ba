package models

// Bucket is one labelled count in a distribution.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LocationStat holds the derived per-location numbers shown on the map.
type LocationStat struct {
	Location          string      `json:"location"`
	Count             int         `json:"count"`
	AvgSatisfaction   float64     `json:"avgSatisfaction"`
	OptimisticPercent float64     `json:"optimisticPercent"`
	Coordinates       Coordinates `json:"coordinates"`
}

// Report holds the aggregates computed over a filtered record set.
type Report struct {
	Total           int            `json:"total"`
	AvgSatisfaction float64        `json:"avgSatisfaction"`
	Satisfaction    []Bucket       `json:"satisfaction"`
	Topics          []Bucket       `json:"topics"`
	TopTopic        string         `json:"topTopic"`
	Ages            []Bucket       `json:"ages"`
	Outlook         []Bucket       `json:"outlook"`
	Locations       []LocationStat `json:"locations"`
	ActiveLocations int            `json:"activeLocations"`
}

// Pin is a map marker for a free-text address. InDistrict is set for
// resolved pins once a district boundary is configured.
type Pin struct {
	RecordID    string      `json:"recordId,omitempty"`
	Address     string      `json:"address,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Resolved    bool        `json:"resolved"`
	InDistrict  *bool       `json:"inDistrict,omitempty"`
}

// AdminStats is the summary returned to the admin view.
type AdminStats struct {
	TotalResponses       int      `json:"total_responses"`
	LocationDistribution []Bucket `json:"location_distribution"`
	AgeDistribution      []Bucket `json:"age_distribution"`
}
