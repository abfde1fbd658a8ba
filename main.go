package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"survey-dashboard/catalog"
	"survey-dashboard/config"
	"survey-dashboard/data"
	"survey-dashboard/services"
	"survey-dashboard/storage"
	"survey-dashboard/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:              "survey",
	Short:            "Neighbourhood survey dashboard",
	Long:             `Serves and reports aggregated results of the Marzahn-Hellersdorf neighbourhood survey.`,
	SilenceUsage:     true,
	SilenceErrors:    true,
	PersistentPreRun: setup,
}

// setup loads configuration and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) {
	cfg = config.Load()
	logger = utils.NewLoggerWithLevel(cfg.LogLevel, !cfg.DevelopmentMode)
	if !cfg.EnvFileLoaded {
		logger.Debug("[config] No .env file found, falling back to system env vars")
	}
}

func main() {
	rootCmd.AddCommand(serveCmd, reportCmd, catalogCmd)

	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the components shared by the commands.
type app struct {
	catalog   *catalog.Catalog
	store     storage.ResponseStore
	geocodes  *services.GeocodeCache
	dashboard *services.Dashboard
}

// bootstrap loads the catalog and bundled data and opens the configured
// store. withStore=false skips the store and serves bundled records only.
func bootstrap(ctx context.Context, withStore bool) (*app, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	base, err := services.NewNormalizer(cat, logger).Parse(data.Survey())
	if err != nil {
		return nil, fmt.Errorf("bundled survey: %w", err)
	}

	var store storage.ResponseStore
	if withStore {
		store, err = openStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	geocodes := services.NewGeocodeCache(services.NewGazetteerGeocoder(cat), cat.Fallback, cfg.GeocodeDelay(), logger)
	dash := services.NewDashboard(cat, base, store, geocodes, logger)
	if err := dash.Refresh(ctx); err != nil {
		logger.Warn("[main] Serving bundled records only: %v", err)
	}
	if err := dash.LoadBoundary(ctx); err != nil {
		logger.Warn("[main] No district boundary on the map: %v", err)
	}

	return &app{catalog: cat, store: store, geocodes: geocodes, dashboard: dash}, nil
}

func openStore(ctx context.Context) (storage.ResponseStore, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Info("[main] Using in-memory store; responses are lost on restart")
		return storage.NewMemoryStore(), nil
	}

	retry := &utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   time.Second,
		Logger:      logger,
	}
	store, err := storage.OpenSQLStore(ctx, cfg.StoreDriver, cfg.DSN(), retry, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return store, nil
}

func (a *app) Close() {
	a.geocodes.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("[main] Closing store: %v", err)
		}
	}
}
