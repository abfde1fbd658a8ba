package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
	"survey-dashboard/storage"
	"survey-dashboard/utils"
)

// View is the dashboard payload for one filter selection.
type View struct {
	Total    int               `json:"total"`
	Filtered int               `json:"filtered"`
	Filters  map[string]string `json:"filters"`
	Report   *models.Report    `json:"report"`
}

// MapView is the map payload for one filter selection.
type MapView struct {
	Locations []models.LocationStat `json:"locations"`
	Pins      []models.Pin          `json:"pins"`
	Pending   int                   `json:"pending"`
}

// Anonymous returns a copy of v whose pins carry only their position.
func (v MapView) Anonymous() MapView {
	pins := make([]models.Pin, len(v.Pins))
	for i, p := range v.Pins {
		pins[i] = models.Pin{Coordinates: p.Coordinates, Resolved: p.Resolved, InDistrict: p.InDistrict}
	}
	v.Pins = pins
	return v
}

// Dashboard owns the record set shown to users: the bundled export plus
// every stored response. Reads are served from memory; Refresh reloads the
// stored part. It also holds the district boundary drawn on the map.
type Dashboard struct {
	catalog    *catalog.Catalog
	normalizer *Normalizer
	filters    *FilterEngine
	aggregator *Aggregator
	geocodes   *GeocodeCache
	store      storage.ResponseStore
	boundaries storage.BoundaryStore
	logger     *utils.Logger

	base []models.SurveyRecord

	// refreshMu orders reloads so an older snapshot never replaces a newer one.
	refreshMu sync.Mutex

	mu       sync.RWMutex
	state    State
	boundary *Boundary
}

// NewDashboard wires the pipeline together. base is the bundled record set;
// store may be nil, in which case only base records are shown. A store that
// also implements storage.BoundaryStore persists the district boundary.
func NewDashboard(
	cat *catalog.Catalog,
	base []models.SurveyRecord,
	store storage.ResponseStore,
	geocodes *GeocodeCache,
	logger *utils.Logger,
) *Dashboard {
	d := &Dashboard{
		catalog:    cat,
		normalizer: NewNormalizer(cat, logger),
		filters:    NewFilterEngine(cat),
		aggregator: NewAggregator(cat, logger),
		geocodes:   geocodes,
		store:      store,
		logger:     logger,
		base:       base,
	}
	if bs, ok := store.(storage.BoundaryStore); ok {
		d.boundaries = bs
	}
	d.state = Reduce(State{Filters: models.FilterSelection{}}, LoadRecords{Records: base})
	return d
}

// Refresh reloads stored responses. On failure the previous record set stays
// in place and the error is returned.
func (d *Dashboard) Refresh(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	rows, err := d.store.List(ctx)
	if err != nil {
		d.logger.Warn("[dashboard] Reload failed, keeping %d records: %v", len(d.Records()), err)
		return fmt.Errorf("dashboard: refresh: %w", err)
	}

	stored := make([]models.SurveyRecord, 0, len(rows))
	for _, r := range rows {
		rec := d.normalizer.FromAnswers(r.ID, r.Answers)
		if !d.normalizer.Keep(rec) {
			continue
		}
		stored = append(stored, rec)
	}

	d.mu.Lock()
	next := Reduce(d.state, LoadRecords{Records: d.base})
	d.state = Reduce(next, AppendRecords{Records: stored})
	total := len(d.state.Records)
	d.mu.Unlock()

	d.logger.Info("[dashboard] Loaded %d records (%d bundled, %d stored)", total, len(d.base), len(stored))
	return nil
}

// Records returns the current record set.
func (d *Dashboard) Records() []models.SurveyRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.Records
}

// View filters the record set by sel and aggregates the result.
func (d *Dashboard) View(sel models.FilterSelection) View {
	records := d.Records()
	filtered := d.filters.Filter(records, sel)

	return View{
		Total:    len(records),
		Filtered: len(filtered),
		Filters:  sel.Active(),
		Report:   d.aggregator.Generate(filtered),
	}
}

// MapView returns per-location stats and address pins for the records
// matching sel. Addresses not yet geocoded are queued and shown at the
// fallback position until resolved. With a district boundary set, resolved
// pins say whether they lie inside it.
func (d *Dashboard) MapView(sel models.FilterSelection) MapView {
	filtered := d.filters.Filter(d.Records(), sel)
	view := MapView{
		Locations: d.aggregator.LocationStats(filtered),
		Pins:      []models.Pin{},
	}
	if d.geocodes == nil {
		return view
	}

	view.Pins = d.geocodes.Pins(filtered, d.catalog.Roles.Address)
	boundary := d.Boundary()
	var unresolved []string
	for i, p := range view.Pins {
		if !p.Resolved {
			unresolved = append(unresolved, p.Address)
			continue
		}
		if boundary != nil {
			inside := boundary.Contains(p.Coordinates)
			view.Pins[i].InDistrict = &inside
		}
	}
	d.geocodes.Enqueue(unresolved)
	view.Pending = d.geocodes.Pending()
	return view
}

// Boundary returns the district outline, or nil when none is configured.
func (d *Dashboard) Boundary() *Boundary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.boundary
}

// SetBoundary stores b and shows it on the map. A nil b removes the outline.
func (d *Dashboard) SetBoundary(ctx context.Context, b *Boundary) error {
	if d.boundaries != nil {
		if err := d.persistBoundary(ctx, b); err != nil {
			return fmt.Errorf("dashboard: save boundary: %w", err)
		}
	}

	d.mu.Lock()
	d.boundary = b
	d.mu.Unlock()

	if b == nil {
		d.logger.Info("[dashboard] District boundary removed")
	} else {
		d.logger.Info("[dashboard] District boundary %q set (%d polygons)", b.Name, b.Polygons())
	}
	return nil
}

func (d *Dashboard) persistBoundary(ctx context.Context, b *Boundary) error {
	if b == nil {
		return d.boundaries.DeleteBoundary(ctx)
	}
	doc, err := b.MarshalJSON()
	if err != nil {
		return err
	}
	return d.boundaries.SaveBoundary(ctx, doc)
}

// LoadBoundary restores the saved district outline. Having none is not an error.
func (d *Dashboard) LoadBoundary(ctx context.Context) error {
	if d.boundaries == nil {
		return nil
	}
	doc, err := d.boundaries.LoadBoundary(ctx)
	if errors.Is(err, storage.ErrNoBoundary) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dashboard: load boundary: %w", err)
	}
	b, err := ParseBoundary(doc)
	if err != nil {
		return fmt.Errorf("dashboard: load boundary: %w", err)
	}

	d.mu.Lock()
	d.boundary = b
	d.mu.Unlock()
	return nil
}

// Options lists the selectable filter values for the current record set.
func (d *Dashboard) Options() map[string][]string {
	return d.filters.Options(d.Records())
}

// Stats summarises the current record set for the admin view.
func (d *Dashboard) Stats() *models.AdminStats {
	return d.aggregator.AdminStats(d.Records())
}
