// Package catalog holds the questionnaire layout: which columns exist, how they
// map to stable field keys, and which fields back topics, filter dimensions
// and map locations. The layout is validated once at startup.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"survey-dashboard/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Field is one questionnaire column.
type Field struct {
	Key     string   `yaml:"key"`
	Header  string   `yaml:"header"`
	Aliases []string `yaml:"aliases"`
}

// Topic is a yes/no column counted in the topic chart.
type Topic struct {
	Label string `yaml:"label"`
	Field string `yaml:"field"`
}

// Option maps one selectable value of a composite dimension to its yes/no field.
type Option struct {
	Value string `yaml:"value"`
	Field string `yaml:"field"`
}

// Dimension is a filter dimension. Simple dimensions compare the selected
// value against Field; composite dimensions resolve the value through Options
// and require the resolved field to equal Match.
type Dimension struct {
	Name    string   `yaml:"name"`
	Field   string   `yaml:"field"`
	Match   string   `yaml:"match"`
	Options []Option `yaml:"options"`
}

// Composite reports whether the dimension resolves through an option table.
func (d Dimension) Composite() bool {
	return len(d.Options) > 0
}

// Resolve returns the field backing value for a composite dimension.
func (d Dimension) Resolve(value string) (string, bool) {
	for _, o := range d.Options {
		if o.Value == value {
			return o.Field, true
		}
	}
	return "", false
}

// Location is a known neighbourhood with fixed map coordinates.
type Location struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`

	models.Coordinates `yaml:",inline"`
}

// Roles names the fields the pipeline reads directly.
type Roles struct {
	ID           string `yaml:"id"`
	Location     string `yaml:"location"`
	Age          string `yaml:"age"`
	Satisfaction string `yaml:"satisfaction"`
	Outlook      string `yaml:"outlook"`
	Address      string `yaml:"address"`
}

// Catalog is the validated questionnaire layout.
type Catalog struct {
	OptimisticMarker string             `yaml:"optimistic_marker"`
	Fallback         models.Coordinates `yaml:"fallback"`
	Roles            Roles              `yaml:"roles"`
	Fields           []Field            `yaml:"fields"`
	Topics           []Topic            `yaml:"topics"`
	OutlookLabels    []string           `yaml:"outlook_labels"`
	Locations        []Location         `yaml:"locations"`
	Dimensions       []Dimension        `yaml:"dimensions"`

	byKey    map[string]Field
	byHeader map[string]string
	byAlias  map[string]string
	dims     map[string]Dimension
	outlook  map[string]struct{}
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for tests and package-level setup.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog from path, or returns the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks internal consistency and builds the lookup indexes.
func (c *Catalog) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	c.byKey = make(map[string]Field, len(c.Fields))
	c.byHeader = make(map[string]string, len(c.Fields))
	c.byAlias = make(map[string]string)
	for _, f := range c.Fields {
		if f.Key == "" || f.Header == "" {
			fail("field %q: key and header are required", f.Key)
			continue
		}
		if _, dup := c.byKey[f.Key]; dup {
			fail("field %q: duplicate key", f.Key)
		}
		c.byKey[f.Key] = f

		h := NormalizeHeader(f.Header)
		if _, dup := c.byHeader[h]; dup {
			fail("field %q: duplicate header %q", f.Key, f.Header)
		}
		c.byHeader[h] = f.Key
	}
	for _, f := range c.Fields {
		for _, a := range f.Aliases {
			if _, clash := c.byKey[a]; clash {
				fail("field %q: alias %q collides with a field key", f.Key, a)
			}
			if _, dup := c.byAlias[a]; dup {
				fail("field %q: duplicate alias %q", f.Key, a)
			}
			c.byAlias[a] = f.Key
		}
	}

	for role, key := range map[string]string{
		"id":           c.Roles.ID,
		"location":     c.Roles.Location,
		"age":          c.Roles.Age,
		"satisfaction": c.Roles.Satisfaction,
		"outlook":      c.Roles.Outlook,
		"address":      c.Roles.Address,
	} {
		if _, ok := c.byKey[key]; !ok {
			fail("role %s: unknown field %q", role, key)
		}
	}

	for _, t := range c.Topics {
		if _, ok := c.byKey[t.Field]; !ok {
			fail("topic %q: unknown field %q", t.Label, t.Field)
		}
	}

	if len(c.OutlookLabels) != 4 {
		fail("outlook_labels: want 4 labels, got %d", len(c.OutlookLabels))
	}
	c.outlook = make(map[string]struct{}, len(c.OutlookLabels))
	for _, l := range c.OutlookLabels {
		c.outlook[l] = struct{}{}
	}
	if strings.TrimSpace(c.OptimisticMarker) == "" {
		fail("optimistic_marker is required")
	}

	seenLoc := make(map[string]struct{}, len(c.Locations))
	for _, l := range c.Locations {
		if _, dup := seenLoc[l.Name]; dup || l.Name == "" {
			fail("location %q: empty or duplicate name", l.Name)
		}
		seenLoc[l.Name] = struct{}{}
		if !validCoordinates(l.Coordinates) {
			fail("location %q: coordinates out of range (%f, %f)", l.Name, l.Lat, l.Lon)
		}
	}
	if !validCoordinates(c.Fallback) {
		fail("fallback coordinates out of range (%f, %f)", c.Fallback.Lat, c.Fallback.Lon)
	}

	c.dims = make(map[string]Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		if _, dup := c.dims[d.Name]; dup || d.Name == "" {
			fail("dimension %q: empty or duplicate name", d.Name)
		}
		switch {
		case d.Composite():
			if d.Match == "" {
				d.Match = models.Yes
				c.Dimensions[i].Match = models.Yes
			}
			for _, o := range d.Options {
				if _, ok := c.byKey[o.Field]; !ok {
					fail("dimension %q option %q: unknown field %q", d.Name, o.Value, o.Field)
				}
			}
		case d.Field == "":
			fail("dimension %q: needs a field or options", d.Name)
		default:
			if _, ok := c.byKey[d.Field]; !ok {
				fail("dimension %q: unknown field %q", d.Name, d.Field)
			}
		}
		c.dims[d.Name] = d
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// Field returns the field registered under key.
func (c *Catalog) Field(key string) (Field, bool) {
	f, ok := c.byKey[key]
	return f, ok
}

// KeyForHeader maps an export column header to its field key.
func (c *Catalog) KeyForHeader(header string) (string, bool) {
	k, ok := c.byHeader[NormalizeHeader(header)]
	return k, ok
}

// KeyForName maps an API field name (key or alias) to its field key.
func (c *Catalog) KeyForName(name string) (string, bool) {
	if _, ok := c.byKey[name]; ok {
		return name, true
	}
	k, ok := c.byAlias[name]
	return k, ok
}

// Dimension looks up a filter dimension by name.
func (c *Catalog) Dimension(name string) (Dimension, bool) {
	d, ok := c.dims[name]
	return d, ok
}

// SimpleDimensions returns the dimensions that compare one field directly,
// in catalog order.
func (c *Catalog) SimpleDimensions() []Dimension {
	out := make([]Dimension, 0, len(c.Dimensions))
	for _, d := range c.Dimensions {
		if !d.Composite() {
			out = append(out, d)
		}
	}
	return out
}

// KnownOutlook reports whether label is one of the fixed outlook answers.
func (c *Catalog) KnownOutlook(label string) bool {
	_, ok := c.outlook[label]
	return ok
}

// Location returns the known location with the given name.
func (c *Catalog) Location(name string) (Location, bool) {
	for _, l := range c.Locations {
		if l.Name == name {
			return l, true
		}
	}
	return Location{}, false
}

// NormalizeHeader makes export headers comparable: strips a byte order mark,
// trims and collapses whitespace and applies Unicode NFC.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.Join(strings.Fields(h), " ")
	return norm.NFC.String(h)
}

func validCoordinates(c models.Coordinates) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
