package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"survey-dashboard/catalog"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate the questionnaire catalog and list its dimensions",
	RunE:  runCatalog,
}

func init() {
	catalogCmd.Flags().StringVar(&catalogFile, "file", "", "catalog YAML to check (default: CATALOG_PATH or the built-in catalog)")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	path := catalogFile
	if path == "" {
		path = cfg.CatalogPath
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}

	head := lipgloss.NewStyle().Bold(true)
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))

	out := os.Stdout
	fmt.Fprintln(out, ok.Render("catalog OK"))
	fmt.Fprintf(out, "%d fields, %d topics, %d locations, %d dimensions\n\n",
		len(cat.Fields), len(cat.Topics), len(cat.Locations), len(cat.Dimensions))

	fmt.Fprintln(out, head.Render("Dimensions"))
	for _, d := range cat.Dimensions {
		if d.Composite() {
			fmt.Fprintf(out, "  %-24s composite, %d options (match %q)\n", d.Name, len(d.Options), d.Match)
			continue
		}
		fmt.Fprintf(out, "  %-24s -> %s\n", d.Name, d.Field)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, head.Render("Locations"))
	for _, l := range cat.Locations {
		fmt.Fprintf(out, "  %-38s %.4f, %.4f\n", l.Name, l.Lat, l.Lon)
	}
	return nil
}
