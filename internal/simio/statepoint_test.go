package simio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatepointName(t *testing.T) {
	assert.Equal(t, "statepoint.120.json", StatepointName(120))
}

func TestStatepointRoundTrip(t *testing.T) {
	sp := &Statepoint{
		KCombined: 1.02,
		Materials: []string{"1", "2"},
		Nuclides:  []string{"U235"},
		Scores:    []string{"fission"},
		Results: [][][]float64{
			{{1.5}},
			{{2.5}},
		},
	}
	path := filepath.Join(t.TempDir(), StatepointName(10))
	require.NoError(t, WriteStatepoint(path, sp))

	got, err := ReadStatepoint(path)
	require.NoError(t, err)
	assert.Equal(t, sp, got)
}

func TestReadStatepoint_Errors(t *testing.T) {
	_, err := ReadStatepoint(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = ReadStatepoint(bad)
	require.Error(t, err)

	// Row count must match the material bin table.
	short := filepath.Join(t.TempDir(), "short.json")
	require.NoError(t, os.WriteFile(short, []byte(`{"k_combined":1,"materials":["1","2"],"nuclides":[],"scores":[],"results":[]}`), 0o644))
	_, err = ReadStatepoint(short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "material bins")
}
