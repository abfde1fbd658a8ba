package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"survey-dashboard/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC107"))
	valueStyle   = lipgloss.NewStyle().Bold(true)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4db6ac"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7a89"))
)

const reportWidth = 60

// PrintReport renders a dashboard view as a terminal report.
func PrintReport(w io.Writer, v View) {
	r := v.Report
	sep := strings.Repeat("═", reportWidth)
	thin := strings.Repeat("─", reportWidth)

	fmt.Fprintf(w, "\n%s\n", titleStyle.Render(sep))
	fmt.Fprintf(w, "%s\n", titleStyle.Render("  KIEZ-UMFRAGE DASHBOARD"))
	fmt.Fprintf(w, "%s\n\n", titleStyle.Render(sep))

	fmt.Fprintf(w, "%s\n  %s\n", sectionStyle.Render("  Overview"), thin)
	fmt.Fprintf(w, "  Responses          : %s of %s\n",
		valueStyle.Render(fmt.Sprint(v.Filtered)), valueStyle.Render(fmt.Sprint(v.Total)))
	fmt.Fprintf(w, "  Avg satisfaction   : %s\n", valueStyle.Render(fmt.Sprintf("%.1f", r.AvgSatisfaction)))
	fmt.Fprintf(w, "  Top topic          : %s\n", valueStyle.Render(r.TopTopic))
	fmt.Fprintf(w, "  Active locations   : %s\n", valueStyle.Render(fmt.Sprint(r.ActiveLocations)))
	if len(v.Filters) > 0 {
		for _, dim := range sortedKeys(v.Filters) {
			fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("filter %s = %s", dim, v.Filters[dim])))
		}
	}
	fmt.Fprintln(w)

	printBuckets(w, "Satisfaction (1-5)", r.Satisfaction)
	printBuckets(w, "Topics", r.Topics)
	printBuckets(w, "Age groups", r.Ages)
	printBuckets(w, "Outlook", r.Outlook)

	fmt.Fprintf(w, "%s\n  %s\n", sectionStyle.Render("  Locations"), thin)
	for _, l := range r.Locations {
		fmt.Fprintf(w, "  %-36s %3d  avg %.1f  %3.0f%% optimistic\n",
			truncate(l.Location, 34), l.Count, l.AvgSatisfaction, l.OptimisticPercent)
	}

	fmt.Fprintf(w, "\n%s\n\n", titleStyle.Render(sep))
}

func printBuckets(w io.Writer, title string, buckets []models.Bucket) {
	thin := strings.Repeat("─", reportWidth)
	fmt.Fprintf(w, "%s\n  %s\n", sectionStyle.Render("  "+title), thin)
	if len(buckets) == 0 {
		fmt.Fprintf(w, "  %s\n\n", mutedStyle.Render("No data"))
		return
	}
	for _, b := range buckets {
		bar := barStyle.Render(strings.Repeat("█", b.Count))
		fmt.Fprintf(w, "  %-32s %s (%d)\n", truncate(b.Label, 30), bar, b.Count)
	}
	fmt.Fprintln(w)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
