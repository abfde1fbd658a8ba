package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"survey-dashboard/models"
	"survey-dashboard/services"
)

var (
	reportFilters map[string]string
	reportOffline bool
)

const reportExample = `  survey report --offline
  survey report --filter location=Siedlungsgebiet --filter socialMediaPlatform=TikTok`

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Print the dashboard aggregates to the terminal",
	Example: reportExample,
	RunE:    runReport,
}

func init() {
	reportCmd.Flags().StringToStringVarP(&reportFilters, "filter", "f", nil, "filter as dimension=value (repeatable)")
	reportCmd.Flags().BoolVar(&reportOffline, "offline", false, "use the bundled export only, without the store")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context(), !reportOffline)
	if err != nil {
		return err
	}
	defer a.Close()

	sel := models.FilterSelection{}
	for dim, value := range reportFilters {
		if _, ok := a.catalog.Dimension(dim); !ok {
			return fmt.Errorf("unknown filter dimension %q (known: %s)", dim, strings.Join(dimensionNames(a), ", "))
		}
		sel[dim] = value
	}

	services.PrintReport(os.Stdout, a.dashboard.View(sel))
	return nil
}

func dimensionNames(a *app) []string {
	names := make([]string, 0, len(a.catalog.Dimensions))
	for _, d := range a.catalog.Dimensions {
		names = append(names, d.Name)
	}
	return names
}
