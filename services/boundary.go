package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"survey-dashboard/models"
)

// DefaultBoundaryName labels an uploaded outline that carries no name property.
const DefaultBoundaryName = "Wahlkreis Marzahn-Hellersdorf 6"

// ErrInvalidBoundary wraps every reason an outline upload is rejected.
var ErrInvalidBoundary = errors.New("boundary: invalid GeoJSON")

// Boundary is the electoral district outline in WGS84 longitude/latitude.
type Boundary struct {
	Name string
	area *geom.MultiPolygon
}

// ParseBoundary reads a GeoJSON FeatureCollection, Feature, Polygon or
// MultiPolygon. Coordinates outside the longitude/latitude range are taken
// as UTM zone 33N (EPSG:25833) eastings and northings and converted.
func ParseBoundary(data []byte) (*Boundary, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
	}

	var (
		shapes []geom.T
		name   string
	)
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
		}
		for _, f := range fc.Features {
			shapes = append(shapes, f.Geometry)
			if name == "" {
				name = featureName(f)
			}
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
		}
		shapes = append(shapes, f.Geometry)
		name = featureName(&f)
	case "Polygon", "MultiPolygon":
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
		}
		shapes = append(shapes, g)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidBoundary)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidBoundary, head.Type)
	}

	var polygons [][][]geom.Coord
	for i, shape := range shapes {
		switch g := shape.(type) {
		case *geom.Polygon:
			polygons = append(polygons, g.Coords())
		case *geom.MultiPolygon:
			polygons = append(polygons, g.Coords()...)
		case nil:
			return nil, fmt.Errorf("%w: feature %d has no geometry", ErrInvalidBoundary, i+1)
		default:
			return nil, fmt.Errorf("%w: feature %d is a %T, want a polygon", ErrInvalidBoundary, i+1, shape)
		}
	}
	if len(polygons) == 0 {
		return nil, fmt.Errorf("%w: no polygons", ErrInvalidBoundary)
	}

	converted, err := toLonLat(polygons)
	if err != nil {
		return nil, err
	}
	area, err := geom.NewMultiPolygon(geom.XY).SetCoords(converted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
	}

	if name == "" {
		name = DefaultBoundaryName
	}
	return &Boundary{Name: name, area: area}, nil
}

func featureName(f *geojson.Feature) string {
	if f == nil {
		return ""
	}
	if name, ok := f.Properties["name"].(string); ok {
		return name
	}
	return ""
}

func toLonLat(polygons [][][]geom.Coord) ([][][]geom.Coord, error) {
	projected := false
	for _, rings := range polygons {
		for _, ring := range rings {
			for _, c := range ring {
				if len(c) >= 2 && (math.Abs(c[0]) > 180 || math.Abs(c[1]) > 90) {
					projected = true
				}
			}
		}
	}

	out := make([][][]geom.Coord, len(polygons))
	for p, rings := range polygons {
		if len(rings) == 0 {
			return nil, fmt.Errorf("%w: polygon %d has no rings", ErrInvalidBoundary, p+1)
		}
		out[p] = make([][]geom.Coord, len(rings))
		for r, ring := range rings {
			if len(ring) < 4 {
				return nil, fmt.Errorf("%w: polygon %d ring %d has %d points, need at least 4",
					ErrInvalidBoundary, p+1, r+1, len(ring))
			}
			if !ring[0].Equal(geom.XY, ring[len(ring)-1]) {
				return nil, fmt.Errorf("%w: polygon %d ring %d is not closed", ErrInvalidBoundary, p+1, r+1)
			}
			coords := make([]geom.Coord, len(ring))
			for i, c := range ring {
				lon, lat := c[0], c[1]
				if projected {
					if !validUTM33(lon, lat) {
						return nil, fmt.Errorf("%w: polygon %d: (%g, %g) is neither longitude/latitude nor UTM zone 33N",
							ErrInvalidBoundary, p+1, c[0], c[1])
					}
					lon, lat = utm33ToLonLat(lon, lat)
				}
				if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lon) > 180 || math.Abs(lat) > 90 {
					return nil, fmt.Errorf("%w: polygon %d: coordinate (%g, %g) out of range", ErrInvalidBoundary, p+1, c[0], c[1])
				}
				coords[i] = geom.Coord{lon, lat}
			}
			out[p][r] = coords
		}
	}
	return out, nil
}

// Contains reports whether c lies inside an outer ring and outside its holes.
func (b *Boundary) Contains(c models.Coordinates) bool {
	p := geom.Coord{c.Lon, c.Lat}
	for i := 0; i < b.area.NumPolygons(); i++ {
		poly := b.area.Polygon(i)
		if !xy.IsPointInRing(geom.XY, p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.IsPointInRing(geom.XY, p, poly.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// Polygons returns the number of polygons in the outline.
func (b *Boundary) Polygons() int {
	return b.area.NumPolygons()
}

// MarshalJSON encodes the outline as a FeatureCollection with one
// MultiPolygon feature in WGS84.
func (b *Boundary) MarshalJSON() ([]byte, error) {
	fc := &geojson.FeatureCollection{
		Features: []*geojson.Feature{{
			Geometry:   b.area,
			Properties: map[string]any{"name": b.Name},
		}},
	}
	return json.Marshal(fc)
}

// Transverse Mercator parameters of UTM zone 33N on the GRS80 ellipsoid.
const (
	utmSemiMajor     = 6378137.0
	utmFlattening    = 1 / 298.257222101
	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmZone33Central = 15.0
)

func validUTM33(easting, northing float64) bool {
	return easting >= 100000 && easting <= 900000 && northing >= 0 && northing <= 9400000
}

// utm33ToLonLat inverts the transverse Mercator projection with the series
// from Snyder, "Map Projections: A Working Manual", pp. 63-64.
func utm33ToLonLat(easting, northing float64) (lon, lat float64) {
	e2 := utmFlattening * (2 - utmFlattening)
	ep2 := e2 / (1 - e2)
	x := easting - utmFalseEasting

	mu := northing / utmScale / (utmSemiMajor * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	n1 := utmSemiMajor / math.Sqrt(1-e2*sin*sin)
	t1 := tan * tan
	c1 := ep2 * cos * cos
	r1 := utmSemiMajor * (1 - e2) / math.Pow(1-e2*sin*sin, 1.5)
	d := x / (n1 * utmScale)

	lat = phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon = (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos

	return utmZone33Central + lon*180/math.Pi, lat * 180 / math.Pi
}
