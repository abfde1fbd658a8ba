package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
	"survey-dashboard/utils"
)

// ErrAddressNotFound is returned by geocoders that cannot place an address.
var ErrAddressNotFound = errors.New("geocode: address not found")

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinates, error)
}

// GazetteerGeocoder places addresses by looking for known location names and
// aliases (station names, landmarks) inside the address text.
type GazetteerGeocoder struct {
	catalog *catalog.Catalog
}

// NewGazetteerGeocoder creates a geocoder backed by the catalog's locations.
func NewGazetteerGeocoder(cat *catalog.Catalog) *GazetteerGeocoder {
	return &GazetteerGeocoder{catalog: cat}
}

func (g *GazetteerGeocoder) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	if l, ok := g.catalog.Location(strings.TrimSpace(address)); ok {
		return l.Coordinates, nil
	}
	text := strings.ToLower(address)
	for _, l := range g.catalog.Locations {
		names := append([]string{l.Name}, l.Aliases...)
		for _, n := range names {
			if n != "" && strings.Contains(text, strings.ToLower(n)) {
				return l.Coordinates, nil
			}
		}
	}
	return models.Coordinates{}, ErrAddressNotFound
}

// GeocodeCache memoises geocoding results by address string. Addresses the
// geocoder reports as not found are remembered too and never looked up
// again. Background lookups run one at a time with a fixed delay between
// requests.
type GeocodeCache struct {
	geocoder Geocoder
	fallback models.Coordinates
	logger   *utils.Logger

	pool   *utils.WorkerPool
	queued *utils.KeySet
	misses *utils.KeySet
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string]models.Coordinates

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGeocodeCache wraps geocoder with a cache. Unresolvable addresses map to
// fallback; delay spaces out background lookups.
func NewGeocodeCache(geocoder Geocoder, fallback models.Coordinates, delay time.Duration, logger *utils.Logger) *GeocodeCache {
	ctx, cancel := context.WithCancel(context.Background())
	return &GeocodeCache{
		geocoder: geocoder,
		fallback: fallback,
		logger:   logger,
		pool:     utils.NewWorkerPool(1, delay),
		queued:   utils.NewKeySet(),
		misses:   utils.NewKeySet(),
		cache:    make(map[string]models.Coordinates),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Lookup returns a cached result without triggering a lookup.
func (c *GeocodeCache) Lookup(address string) (models.Coordinates, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coords, ok := c.cache[address]
	return coords, ok
}

// Unresolvable reports whether the geocoder already failed to place address.
func (c *GeocodeCache) Unresolvable(address string) bool {
	return c.misses.Contains(address)
}

// Resolve returns the coordinates for address, geocoding on a cache miss.
// Concurrent calls for the same address share one lookup. Addresses not
// found return the fallback from then on; other failures are not cached,
// so a later call retries.
func (c *GeocodeCache) Resolve(ctx context.Context, address string) models.Coordinates {
	if strings.TrimSpace(address) == "" || c.Unresolvable(address) {
		return c.fallback
	}
	if coords, ok := c.Lookup(address); ok {
		return coords
	}

	v, err, _ := c.group.Do(address, func() (any, error) {
		coords, err := c.geocoder.Geocode(ctx, address)
		if errors.Is(err, ErrAddressNotFound) {
			c.misses.Add(address)
		}
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[address] = coords
		c.mu.Unlock()
		return coords, nil
	})
	if err != nil {
		c.logger.Warn("[geocode] %q unresolved, using fallback: %v", address, err)
		return c.fallback
	}
	return v.(models.Coordinates)
}

// Enqueue schedules background lookups for addresses that are not cached,
// not known to be unresolvable and not already queued, and returns how many
// were scheduled. It does not block.
func (c *GeocodeCache) Enqueue(addresses []string) int {
	if c.ctx.Err() != nil {
		return 0
	}

	var fresh []string
	for _, a := range addresses {
		if strings.TrimSpace(a) == "" {
			continue
		}
		if _, ok := c.Lookup(a); ok || c.Unresolvable(a) {
			continue
		}
		if c.queued.Add(a) {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return 0
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, a := range fresh {
			if c.ctx.Err() != nil {
				c.queued.Remove(a)
				continue
			}
			address := a
			c.pool.Submit(func() {
				defer c.queued.Remove(address)
				if c.ctx.Err() != nil {
					return
				}
				c.Resolve(c.ctx, address)
			})
		}
	}()

	c.logger.Debug("[geocode] Queued %d addresses", len(fresh))
	return len(fresh)
}

// Pins returns a map pin for every record carrying an address, using cached
// coordinates or the fallback for addresses not yet resolved.
func (c *GeocodeCache) Pins(records []models.SurveyRecord, addressField string) []models.Pin {
	pins := []models.Pin{}
	for _, rec := range records {
		address := strings.TrimSpace(rec.Get(addressField))
		if address == "" {
			continue
		}
		coords, ok := c.Lookup(address)
		if !ok {
			coords = c.fallback
		}
		pins = append(pins, models.Pin{
			RecordID:    rec.ID,
			Address:     address,
			Coordinates: coords,
			Resolved:    ok,
		})
	}
	return pins
}

// Pending reports how many addresses are queued or in flight.
func (c *GeocodeCache) Pending() int {
	return c.queued.Size()
}

// Wait blocks until every queued lookup has finished.
func (c *GeocodeCache) Wait() {
	c.wg.Wait()
	c.pool.Wait()
}

// Close stops scheduling new lookups and waits for in-flight ones.
func (c *GeocodeCache) Close() {
	c.cancel()
	c.Wait()
}
