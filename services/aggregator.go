package services

import (
	"sort"
	"strconv"
	"strings"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
	"survey-dashboard/utils"
)

// NoTopicData is reported as top topic when no topic was ticked.
const NoTopicData = "Keine Daten"

var satisfactionLevels = []string{"1", "2", "3", "4", "5"}

// Aggregator computes chart and map aggregates over a record set.
type Aggregator struct {
	catalog *catalog.Catalog
	logger  *utils.Logger
}

// NewAggregator creates an Aggregator for the given questionnaire layout.
func NewAggregator(cat *catalog.Catalog, logger *utils.Logger) *Aggregator {
	return &Aggregator{catalog: cat, logger: logger}
}

// Generate computes every aggregate from scratch. It never mutates records
// and returns identical output for identical input.
func (a *Aggregator) Generate(records []models.SurveyRecord) *models.Report {
	roles := a.catalog.Roles
	report := &models.Report{
		Total:        len(records),
		Satisfaction: make([]models.Bucket, len(satisfactionLevels)),
		Topics:       make([]models.Bucket, len(a.catalog.Topics)),
		Outlook:      make([]models.Bucket, len(a.catalog.OutlookLabels)),
	}
	for i, level := range satisfactionLevels {
		report.Satisfaction[i].Label = level
	}
	for i, t := range a.catalog.Topics {
		report.Topics[i].Label = t.Label
	}
	outlookIdx := make(map[string]int, len(a.catalog.OutlookLabels))
	for i, l := range a.catalog.OutlookLabels {
		report.Outlook[i].Label = l
		outlookIdx[l] = i
	}

	ages := make(map[string]int)
	var satSum, satCount int

	for _, rec := range records {
		if level, ok := parseSatisfaction(rec.Get(roles.Satisfaction)); ok {
			report.Satisfaction[level-1].Count++
			satSum += level
			satCount++
		}

		for i, t := range a.catalog.Topics {
			if rec.Get(t.Field) == models.Yes {
				report.Topics[i].Count++
			}
		}

		if age := rec.Get(roles.Age); models.IsAnswer(age) {
			ages[age]++
		}

		if i, ok := outlookIdx[rec.Get(roles.Outlook)]; ok {
			report.Outlook[i].Count++
		}
	}

	report.AvgSatisfaction = mean(satSum, satCount)
	report.TopTopic = topTopic(report.Topics)
	report.Ages = sortedBuckets(ages)
	report.Locations = a.LocationStats(records)
	for _, l := range report.Locations {
		if l.Count > 0 {
			report.ActiveLocations++
		}
	}

	a.logger.Debug("[aggregator] %d records, %d active locations, avg satisfaction %.2f",
		report.Total, report.ActiveLocations, report.AvgSatisfaction)
	return report
}

// LocationStats returns one entry per known location, in catalog order.
// Locations without records report zero counts.
func (a *Aggregator) LocationStats(records []models.SurveyRecord) []models.LocationStat {
	roles := a.catalog.Roles

	type acc struct {
		count              int
		satSum, satCount   int
		optimistic, answer int
	}
	byLoc := make(map[string]*acc, len(a.catalog.Locations))
	for _, l := range a.catalog.Locations {
		byLoc[l.Name] = &acc{}
	}

	for _, rec := range records {
		s, ok := byLoc[rec.Get(roles.Location)]
		if !ok {
			continue
		}
		s.count++
		if level, ok := parseSatisfaction(rec.Get(roles.Satisfaction)); ok {
			s.satSum += level
			s.satCount++
		}
		if outlook := rec.Get(roles.Outlook); a.catalog.KnownOutlook(outlook) {
			s.answer++
			if strings.Contains(outlook, a.catalog.OptimisticMarker) {
				s.optimistic++
			}
		}
	}

	stats := make([]models.LocationStat, 0, len(a.catalog.Locations))
	for _, l := range a.catalog.Locations {
		s := byLoc[l.Name]
		stats = append(stats, models.LocationStat{
			Location:          l.Name,
			Count:             s.count,
			AvgSatisfaction:   mean(s.satSum, s.satCount),
			OptimisticPercent: percent(s.optimistic, s.answer),
			Coordinates:       l.Coordinates,
		})
	}
	return stats
}

// AdminStats counts responses per location and age group, largest first.
func (a *Aggregator) AdminStats(records []models.SurveyRecord) *models.AdminStats {
	locs := make(map[string]int)
	ages := make(map[string]int)
	for _, rec := range records {
		if l := rec.Get(a.catalog.Roles.Location); models.IsAnswer(l) {
			locs[l]++
		}
		if g := rec.Get(a.catalog.Roles.Age); models.IsAnswer(g) {
			ages[g]++
		}
	}
	return &models.AdminStats{
		TotalResponses:       len(records),
		LocationDistribution: bucketsByCount(locs),
		AgeDistribution:      bucketsByCount(ages),
	}
}

// parseSatisfaction accepts only the integers 1 to 5.
func parseSatisfaction(v string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

func mean(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func topTopic(topics []models.Bucket) string {
	best := -1
	for i, t := range topics {
		if t.Count > 0 && (best < 0 || t.Count > topics[best].Count) {
			best = i
		}
	}
	if best < 0 {
		return NoTopicData
	}
	return topics[best].Label
}

func sortedBuckets(counts map[string]int) []models.Bucket {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := make([]models.Bucket, 0, len(labels))
	for _, l := range labels {
		out = append(out, models.Bucket{Label: l, Count: counts[l]})
	}
	return out
}

func bucketsByCount(counts map[string]int) []models.Bucket {
	out := sortedBuckets(counts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
