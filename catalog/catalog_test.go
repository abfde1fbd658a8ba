package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Topics, 6)
	assert.Len(t, c.Locations, 6)
	assert.Equal(t, []string{"sehr pessimistisch", "eher pessimistisch", "eher optimistisch", "sehr optimistisch"}, c.OutlookLabels)

	d, ok := c.Dimension("socialMediaPlatform")
	require.True(t, ok)
	assert.True(t, d.Composite())
	assert.Equal(t, "Ja", d.Match)
	field, ok := d.Resolve("TikTok")
	assert.True(t, ok)
	assert.Equal(t, "tiktok", field)
	_, ok = d.Resolve("MySpace")
	assert.False(t, ok)
}

func TestKeyForHeaderNormalizes(t *testing.T) {
	c := MustDefault()

	k, ok := c.KeyForHeader("\ufeffQ00. In welchem Kiez wohnen Sie?  ")
	require.True(t, ok)
	assert.Equal(t, "location", k)

	// "ä" written as "a" + combining diaeresis
	decomposed := "Q004[SQ002]. Welche Themen bescha\u0308ftigen Sie aktuell am meisten? [Sicherheit]"
	k, ok = c.KeyForHeader(decomposed)
	require.True(t, ok)
	assert.Equal(t, "topics_security", k)

	k, ok = c.KeyForHeader(`Q011. Haben Sie schon einmal etwas von den "Kiezmachern" gehört?`)
	require.True(t, ok)
	assert.Equal(t, "kiezmacher_known", k)

	_, ok = c.KeyForHeader("Q999. Unbekannt")
	assert.False(t, ok)
}

func TestKeyForNameResolvesAliases(t *testing.T) {
	c := MustDefault()

	k, ok := c.KeyForName("social_media_usage")
	require.True(t, ok)
	assert.Equal(t, "info_source_social", k)

	k, ok = c.KeyForName("age_group")
	require.True(t, ok)
	assert.Equal(t, "age_group", k)

	_, ok = c.KeyForName("nope")
	assert.False(t, ok)
}

func TestSimpleDimensionsExcludeComposite(t *testing.T) {
	c := MustDefault()
	for _, d := range c.SimpleDimensions() {
		assert.False(t, d.Composite(), d.Name)
		assert.NotEmpty(t, d.Field, d.Name)
	}
	assert.Len(t, c.SimpleDimensions(), 8)
}

func TestValidateRejectsBrokenCatalogs(t *testing.T) {
	base := string(defaultCatalog)

	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "topic with unknown field",
			mutate:  func(s string) string { return strings.Replace(s, "field: topics_traffic}", "field: topics_trafic}", 1) },
			wantErr: `unknown field "topics_trafic"`,
		},
		{
			name:    "dimension option with unknown field",
			mutate:  func(s string) string { return strings.Replace(s, "field: no_social_media}", "field: none}", 1) },
			wantErr: `option "keine": unknown field "none"`,
		},
		{
			name:    "location off the globe",
			mutate:  func(s string) string { return strings.Replace(s, "lat: 52.5240", "lat: 152.5240", 1) },
			wantErr: `location "Siedlungsgebiet": coordinates out of range`,
		},
		{
			name:    "three outlook labels",
			mutate:  func(s string) string { return strings.Replace(s, "  - sehr optimistisch\n", "", 1) },
			wantErr: "want 4 labels, got 3",
		},
		{
			name:    "duplicate header",
			mutate:  func(s string) string { return strings.Replace(s, `header: "Q001. Wie alt sind Sie?"`, `header: "Q00. In welchem Kiez wohnen Sie?"`, 1) },
			wantErr: "duplicate header",
		},
		{
			name:    "missing marker",
			mutate:  func(s string) string { return strings.Replace(s, "optimistic_marker: optimistisch", "optimistic_marker: ''", 1) },
			wantErr: "optimistic_marker is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(base)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("fields: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: decode")
}
