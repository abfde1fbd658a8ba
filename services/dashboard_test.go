package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"survey-dashboard/catalog"
	"survey-dashboard/data"
	"survey-dashboard/models"
	"survey-dashboard/storage"
	"survey-dashboard/utils"
)

type failingStore struct {
	storage.ResponseStore
}

func (failingStore) List(context.Context) ([]*models.StoredResponse, error) {
	return nil, errors.New("connection refused")
}

// slowListStore snapshots the rows and then waits before returning them,
// one delay per List call.
type slowListStore struct {
	*storage.MemoryStore
	listed chan struct{}

	mu     sync.Mutex
	delays []time.Duration
}

func (s *slowListStore) List(ctx context.Context) ([]*models.StoredResponse, error) {
	rows, err := s.MemoryStore.List(ctx)

	s.mu.Lock()
	var delay time.Duration
	if len(s.delays) > 0 {
		delay, s.delays = s.delays[0], s.delays[1:]
	}
	s.mu.Unlock()

	s.listed <- struct{}{}
	time.Sleep(delay)
	return rows, err
}

func newTestDashboard(t *testing.T, store storage.ResponseStore) *Dashboard {
	t.Helper()
	cat := catalog.MustDefault()
	logger := utils.NewNopLogger()

	base, err := NewNormalizer(cat, logger).Parse(data.Survey())
	require.NoError(t, err)

	geocodes := NewGeocodeCache(NewGazetteerGeocoder(cat), cat.Fallback, 0, logger)
	t.Cleanup(geocodes.Close)
	return NewDashboard(cat, base, store, geocodes, logger)
}

func TestDashboardViewFiltersAndAggregates(t *testing.T) {
	d := newTestDashboard(t, nil)

	all := d.View(nil)
	assert.Equal(t, 18, all.Total)
	assert.Equal(t, 18, all.Filtered)
	assert.Empty(t, all.Filters)

	v := d.View(models.FilterSelection{"location": "Siedlungsgebiet", "ageGroup": ""})
	assert.Equal(t, 18, v.Total)
	assert.Equal(t, 3, v.Filtered)
	assert.Equal(t, map[string]string{"location": "Siedlungsgebiet"}, v.Filters)
	assert.InDelta(t, 4.0, v.Report.AvgSatisfaction, 1e-9)
	assert.Equal(t, 1, v.Report.ActiveLocations)
}

func TestDashboardRefreshMergesStoredResponses(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.StoredResponse{
		Answers: map[string]string{"location": "Siedlungsgebiet", "age_group": "70+", "satisfaction": "1"},
	}))
	require.NoError(t, store.Create(ctx, &models.StoredResponse{
		Answers: map[string]string{"location": "N/A", "age_group": ""},
	}))

	d := newTestDashboard(t, store)
	require.NoError(t, d.Refresh(ctx))

	assert.Len(t, d.Records(), 19, "non-responses from the store are dropped")
	v := d.View(models.FilterSelection{"location": "Siedlungsgebiet"})
	assert.Equal(t, 4, v.Filtered)
	assert.InDelta(t, 13.0/4.0, v.Report.AvgSatisfaction, 1e-9)

	require.NoError(t, d.Refresh(ctx))
	assert.Len(t, d.Records(), 19, "refresh replaces, never duplicates")
}

func TestDashboardRefreshFailureKeepsRecords(t *testing.T) {
	d := newTestDashboard(t, failingStore{})

	err := d.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, d.Records(), 18)
}

func TestDashboardConcurrentRefreshKeepsNewestSnapshot(t *testing.T) {
	store := &slowListStore{
		MemoryStore: storage.NewMemoryStore(),
		listed:      make(chan struct{}, 2),
		delays:      []time.Duration{200 * time.Millisecond, 0},
	}
	d := newTestDashboard(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, d.Refresh(ctx))
	}()
	<-store.listed

	require.NoError(t, store.Create(ctx, &models.StoredResponse{
		Answers: map[string]string{"location": "Siedlungsgebiet", "age_group": "30-49"},
	}))
	require.NoError(t, d.Refresh(ctx))
	wg.Wait()

	assert.Len(t, d.Records(), 19, "the slower reload must not overwrite the newer one")
}

func TestDashboardMapView(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.StoredResponse{
		ID:      "pin-1",
		Answers: map[string]string{"location": "Um den U-Bhf. Kienberg herum", "custom_address": "Am Kienberg 3"},
	}))

	cat := catalog.MustDefault()
	logger := utils.NewNopLogger()
	geocodes := NewGeocodeCache(NewGazetteerGeocoder(cat), cat.Fallback, 0, logger)
	defer geocodes.Close()
	d := NewDashboard(cat, nil, store, geocodes, logger)
	require.NoError(t, d.Refresh(ctx))

	first := d.MapView(nil)
	require.Len(t, first.Pins, 1)
	assert.False(t, first.Pins[0].Resolved)
	assert.Equal(t, cat.Fallback, first.Pins[0].Coordinates)
	assert.Len(t, first.Locations, len(cat.Locations))

	geocodes.Wait()
	second := d.MapView(nil)
	require.Len(t, second.Pins, 1)
	assert.True(t, second.Pins[0].Resolved)
	assert.Equal(t, "pin-1", second.Pins[0].RecordID)
	assert.InDelta(t, 52.528, second.Pins[0].Coordinates.Lat, 0.001)
	assert.Nil(t, second.Pins[0].InDistrict, "no boundary configured")
	assert.Zero(t, second.Pending)

	anon := second.Anonymous()
	require.Len(t, anon.Pins, 1)
	assert.Empty(t, anon.Pins[0].RecordID)
	assert.Empty(t, anon.Pins[0].Address)
	assert.Equal(t, second.Pins[0].Coordinates, anon.Pins[0].Coordinates)
	assert.Equal(t, "pin-1", second.Pins[0].RecordID, "Anonymous must not modify the original")
}

func TestDashboardBoundary(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.StoredResponse{
		ID:      "pin-1",
		Answers: map[string]string{"location": "Um den U-Bhf. Kienberg herum", "custom_address": "Am Kienberg 3"},
	}))

	cat := catalog.MustDefault()
	logger := utils.NewNopLogger()
	geocodes := NewGeocodeCache(NewGazetteerGeocoder(cat), cat.Fallback, 0, logger)
	defer geocodes.Close()
	d := NewDashboard(cat, nil, store, geocodes, logger)
	require.NoError(t, d.Refresh(ctx))
	require.NoError(t, d.LoadBoundary(ctx))
	assert.Nil(t, d.Boundary())

	geocodes.Resolve(ctx, "Am Kienberg 3")

	inner, err := ParseBoundary([]byte(`{"type":"Polygon","coordinates":[` + squareUTM + `]}`))
	require.NoError(t, err)
	require.NoError(t, d.SetBoundary(ctx, inner))
	pins := d.MapView(nil).Pins
	require.Len(t, pins, 1)
	require.NotNil(t, pins[0].InDistrict)
	assert.True(t, *pins[0].InDistrict)

	// a fresh dashboard on the same store restores the saved outline
	restored := NewDashboard(cat, nil, store, geocodes, logger)
	require.NoError(t, restored.LoadBoundary(ctx))
	require.NotNil(t, restored.Boundary())
	assert.Equal(t, DefaultBoundaryName, restored.Boundary().Name)
	assert.True(t, restored.Boundary().Contains(kienberg))

	outer, err := ParseBoundary([]byte(`{"type":"Polygon","coordinates":[[[13.30,52.50],[13.40,52.50],[13.40,52.55],[13.30,52.50]]]}`))
	require.NoError(t, err)
	require.NoError(t, d.SetBoundary(ctx, outer))
	pins = d.MapView(nil).Pins
	require.NotNil(t, pins[0].InDistrict)
	assert.False(t, *pins[0].InDistrict)

	require.NoError(t, d.SetBoundary(ctx, nil))
	assert.Nil(t, d.Boundary())
	_, err = store.LoadBoundary(ctx)
	assert.ErrorIs(t, err, storage.ErrNoBoundary)
}

func TestDashboardOptionsAndStats(t *testing.T) {
	d := newTestDashboard(t, nil)

	opts := d.Options()
	assert.Contains(t, opts["location"], "Siedlungsgebiet")
	assert.Equal(t, []string{"30-49", "18-29", "50-69", "70+"}, opts["ageGroup"])

	stats := d.Stats()
	assert.Equal(t, 18, stats.TotalResponses)
	assert.Equal(t, models.Bucket{Label: "Um den U-/S-Bhf. Wuhletal herum", Count: 6}, stats.LocationDistribution[0])
	assert.Equal(t, models.Bucket{Label: "30-49", Count: 7}, stats.AgeDistribution[0])
}

func TestPrintReport(t *testing.T) {
	d := newTestDashboard(t, nil)
	var buf bytes.Buffer

	PrintReport(&buf, d.View(models.FilterSelection{"location": "Siedlungsgebiet"}))

	out := buf.String()
	assert.Contains(t, out, "KIEZ-UMFRAGE DASHBOARD")
	assert.Contains(t, out, "Responses")
	assert.Contains(t, out, "filter location = Siedlungsgebiet")
	assert.Contains(t, out, "Siedlungsgebiet")
	assert.Contains(t, out, "100% optimistic")
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "Entenbrücke", truncate("Entenbrücke", 11))
	assert.Equal(t, "Enten...", truncate("Entenbrücke", 8))
}
