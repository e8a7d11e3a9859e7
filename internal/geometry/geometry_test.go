package geometry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.json")
	doc := `{
  "materials": [
    {
      "id": "1",
      "burnable": true,
      "volume": 0.5,
      "temperature": 293.6,
      "densities": {"U235": 0.01, "O16": 0.04},
      "sab": ["c_H_in_H2O"]
    },
    {"id": "2", "burnable": false, "temperature": 600, "densities": {"H1": 0.06}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	require.Len(t, g.Materials, 2)

	fuel := g.Material("1")
	require.NotNil(t, fuel)
	assert.True(t, fuel.Burnable)
	require.NotNil(t, fuel.Volume)
	assert.Equal(t, 0.5, *fuel.Volume)
	assert.Equal(t, 0.01, fuel.Densities["U235"])
	assert.Equal(t, []string{"c_H_in_H2O"}, fuel.SAB)

	water := g.Material("2")
	require.NotNil(t, water)
	assert.False(t, water.Burnable)
	assert.Nil(t, water.Volume)

	assert.Nil(t, g.Material("99"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
}
