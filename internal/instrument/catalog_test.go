package instrument

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupBuiltin(t *testing.T) {
	c := NewCatalog()
	spec, ok := c.Lookup("mes")
	require.True(t, ok)
	assert.Equal(t, 0.25, spec.TickSize)
	assert.Equal(t, 1.25, spec.TickValue)
}

func TestLookupExpirySuffixFallsBack(t *testing.T) {
	c := NewCatalog()
	spec, ok := c.Lookup("MESZ5")
	require.True(t, ok)
	assert.Equal(t, "MES", spec.Symbol)

	// MNQ 比 M 根更长，取最长前缀
	spec, ok = c.Lookup("MNQH6")
	require.True(t, ok)
	assert.Equal(t, "MNQ", spec.Symbol)

	_, ok = c.Lookup("ZB")
	assert.False(t, ok)
}

func TestLoadCatalogOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instruments:
  - symbol: MES
    name: Micro E-mini S&P 500
    tick_size: 0.25
    tick_value: 2.5
    precision: 2
  - symbol: FDAX
    name: DAX Futures
    tick_size: 0.5
    tick_value: 12.5
    precision: 1
`), 0o644))
	c, err := LoadCatalog(path)
	require.NoError(t, err)

	spec, ok := c.Lookup("MES")
	require.True(t, ok)
	assert.Equal(t, 2.5, spec.TickValue, "目录文件覆盖内置值")

	spec, ok = c.Lookup("FDAX")
	require.True(t, ok)
	assert.Equal(t, 0.5, spec.TickSize)
}

func TestLoadCatalogMissingFileUsesBuiltin(t *testing.T) {
	c, err := LoadCatalog("/nonexistent/instruments.yaml")
	require.NoError(t, err)
	_, ok := c.Lookup("ES")
	assert.True(t, ok)
}

func TestLoadCatalogRejectsInvalidSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instruments:
  - symbol: BAD
    tick_size: 0
    tick_value: 1
`), 0o644))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
