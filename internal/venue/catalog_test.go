package venue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalogDefaults(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, c.Venues)

	names := make([]string, 0, len(c.Venues))
	for _, v := range c.Venues {
		names = append(names, v.Name)
		assert.Greater(t, v.RateLimitMS, 0, v.Name)
		assert.NotEmpty(t, v.DepthPath, v.Name)
	}
	assert.Contains(t, names, "binance")
	assert.Contains(t, names, "kraken")
}

func TestLoadCatalogMissingFileFallsBack(t *testing.T) {
	c, err := LoadCatalog("/nonexistent/venues.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), c)
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
venues:
  - name: testex
    rest_base_url: https://api.testex.example
    markets_path: /markets
    depth_path: /depth?pair=%s&limit=%d
    maker: 0.0005
    taker: 0.0010
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Venues, 1)

	v := c.Venues[0]
	assert.Equal(t, "testex", v.Name)
	assert.Equal(t, 0.0010, v.Taker)
	assert.Equal(t, 200, v.RateLimitMS, "unset rate limit gets the default")
}

func TestLoadCatalogRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte("venues: [not: {valid"), 0o644))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
