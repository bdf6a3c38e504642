package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
scenarios:
  - code: emberfall
    name: The Emberfall Heist
    min_level: 3
    max_level: 7
    season: 1
  - code: hollow-crown
    name: The Hollow Crown
    min_level: 5
    max_level: 10
    season: 2
`)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	sc, ok := catalog.Lookup("emberfall")
	require.True(t, ok)
	assert.Equal(t, "The Emberfall Heist", sc.Name)
	assert.Equal(t, 3, sc.MinLevel)
	assert.Equal(t, 7, sc.MaxLevel)
	assert.Equal(t, 1, sc.Season)

	_, ok = catalog.Lookup("no-such-scenario")
	assert.False(t, ok)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog("/nonexistent/scenarios.yaml")
	assert.Error(t, err)
}

func TestLoadCatalogInvalidYAML(t *testing.T) {
	path := writeCatalog(t, "scenarios: [not, {valid")
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func TestLoadCatalogRejectsEmptyCode(t *testing.T) {
	path := writeCatalog(t, `
scenarios:
  - name: Nameless
    min_level: 1
    max_level: 4
`)
	_, err := LoadCatalog(path)
	assert.ErrorContains(t, err, "no code")
}

func TestLoadCatalogRejectsDuplicateCodes(t *testing.T) {
	path := writeCatalog(t, `
scenarios:
  - code: emberfall
    min_level: 1
    max_level: 4
  - code: emberfall
    min_level: 5
    max_level: 8
`)
	_, err := LoadCatalog(path)
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadCatalogRejectsInvertedLevelBand(t *testing.T) {
	path := writeCatalog(t, `
scenarios:
  - code: emberfall
    min_level: 8
    max_level: 3
`)
	_, err := LoadCatalog(path)
	assert.ErrorContains(t, err, "min_level")
}

func TestNewCatalog(t *testing.T) {
	catalog := NewCatalog([]Scenario{
		{Code: "emberfall", MinLevel: 3, MaxLevel: 7},
	})
	assert.Equal(t, 1, catalog.Len())
	_, ok := catalog.Lookup("emberfall")
	assert.True(t, ok)
}
