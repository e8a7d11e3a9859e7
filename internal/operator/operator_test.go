package operator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"godeplete/internal/comm"
	"godeplete/internal/config"
	"godeplete/internal/geometry"
	"godeplete/internal/history"
	"godeplete/internal/simio"
)

const targetPower = 1.0e6

const chainFixture = `<depletion_chain>
  <nuclide name="U235" fission_energy="200">
    <reaction type="fission"/>
    <reaction type="(n,gamma)"/>
  </nuclide>
  <nuclide name="U238">
    <reaction type="fission"/>
    <reaction type="(n,gamma)"/>
  </nuclide>
</depletion_chain>
`

const crossSectionsFixture = `<cross_sections>
  <library materials="U235 U238 O16"/>
</cross_sections>
`

// stubSimulator stands in for the external transport run: it writes a
// fixed statepoint with uniform per-bin rates and eigenvalue 1.
type stubSimulator struct {
	path string
}

func (s *stubSimulator) Run(ctx context.Context) error {
	sp := &simio.Statepoint{
		KCombined: 1.0,
		Materials: []string{"1", "2", "3"},
		Nuclides:  []string{"U235", "U238"},
		Scores:    []string{"fission", "(n,gamma)"},
	}
	for range sp.Materials {
		// Bins are nuclide-major: U235 fission, U235 (n,gamma),
		// U238 fission, U238 (n,gamma).
		sp.Results = append(sp.Results, [][]float64{{1.0}, {0.5}, {0.25}, {0.1}})
	}
	return simio.WriteStatepoint(s.path, sp)
}

func testSetup(t *testing.T, ranks int) (*config.Config, *geometry.Geometry) {
	t.Helper()
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "chain.xml")
	xsPath := filepath.Join(dir, "cross_sections.xml")
	require.NoError(t, os.WriteFile(chainPath, []byte(chainFixture), 0o644))
	require.NoError(t, os.WriteFile(xsPath, []byte(crossSectionsFixture), 0o644))

	seed := int64(7)
	cfg := &config.Config{
		Run: config.RunConfig{
			Batches:      10,
			Inactive:     2,
			Particles:    100,
			ConstantSeed: &seed,
		},
		Depletion: config.DepletionConfig{Power: targetPower, Ranks: ranks},
		Paths: config.PathsConfig{
			Chain:         chainPath,
			CrossSections: xsPath,
			Output:        dir,
		},
	}

	geom := &geometry.Geometry{}
	for _, id := range []string{"1", "2", "3"} {
		vol := 1.0
		geom.Materials = append(geom.Materials, geometry.Material{
			ID:          id,
			Burnable:    true,
			Volume:      &vol,
			Temperature: 293.6,
			Densities:   map[string]float64{"U235": 0.01},
		})
	}
	return cfg, geom
}

// runGroup builds one operator per rank and runs a single Eval,
// returning the per-rank operators and results.
func runGroup(t *testing.T, cfg *config.Config, geom *geometry.Geometry, hist *history.Store) ([]*Operator, []Result) {
	t.Helper()
	ranks := cfg.Depletion.Ranks
	comms, err := comm.NewLocalGroup(ranks)
	require.NoError(t, err)

	stub := &stubSimulator{path: filepath.Join(cfg.Paths.Output, simio.StatepointName(cfg.Run.Batches))}
	ops := make([]*Operator, ranks)
	results := make([]Result, ranks)

	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			opts := Options{Runner: stub, PollInterval: time.Millisecond}
			if c.Rank() == 0 {
				opts.History = hist
			}
			op, err := New(c, geom, cfg, opts)
			if err != nil {
				return fmt.Errorf("rank %d new: %w", c.Rank(), err)
			}
			res, err := op.Eval(context.Background(), op.InitialCondition())
			if err != nil {
				return fmt.Errorf("rank %d eval: %w", c.Rank(), err)
			}
			ops[c.Rank()] = op
			results[c.Rank()] = res
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return ops, results
}

func TestEval_PowerNormalization(t *testing.T) {
	for _, ranks := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("ranks=%d", ranks), func(t *testing.T) {
			cfg, geom := testSetup(t, ranks)
			ops, results := runGroup(t, cfg, geom, nil)

			// Uniform per-bin rates over 3 materials with 200 MeV per
			// U235 fission measure 600 MeV/s before normalization.
			for r, res := range results {
				assert.Equal(t, 1.0, res.K, "rank %d", r)
				assert.Equal(t, int64(7), res.Seed, "rank %d sees the constant seed", r)
				assert.InDelta(t, 600.0, res.MeasuredPower, 1e-9, "rank %d", r)
				assert.InDelta(t, targetPower/600.0, res.Scale, 1e-9, "rank %d", r)
			}

			// Reconstructed power: sum of fission rate x atom count x
			// fission energy over every owned material equals the
			// target, regardless of rank count.
			total := 0.0
			for r, op := range ops {
				tn := results[r].Rates
				ni := tn.NucIndex["U235"]
				fi := tn.ReactIndex["fission"]
				for row, mat := range op.assign.Burn {
					total += tn.At(row, ni, fi) * op.num.AtomCount(mat, "U235") * 200.0
				}
			}
			assert.InDelta(t, targetPower, total, targetPower*1e-12)
		})
	}
}

func TestEval_RatesReflectLocalDensity(t *testing.T) {
	cfg, geom := testSetup(t, 2)
	ops, results := runGroup(t, cfg, geom, nil)

	atoms := 0.01 * 1.0e24 // 1 cm3 volume
	scale := targetPower / 600.0

	var perMaterial []float64
	for r, op := range ops {
		tn := results[r].Rates
		ni := tn.NucIndex["U235"]
		fi := tn.ReactIndex["fission"]
		for row := range op.assign.Burn {
			perMaterial = append(perMaterial, tn.At(row, ni, fi))
		}
	}
	require.Len(t, perMaterial, 3)
	for i, rate := range perMaterial {
		assert.InDelta(t, scale*1.0/atoms, rate, scale/atoms*1e-9,
			"material %d rate reflects its atom density, not the rank count", i)
	}
}

func TestEval_ZeroAtomNuclideSkipsDivision(t *testing.T) {
	cfg, geom := testSetup(t, 2)
	_, results := runGroup(t, cfg, geom, nil)

	scale := targetPower / 600.0
	for r, res := range results {
		tn := res.Rates
		ni := tn.NucIndex["U238"]
		fi := tn.ReactIndex["fission"]
		for row := 0; row < len(tn.Mats); row++ {
			got := tn.At(row, ni, fi)
			assert.False(t, got != got, "rank %d: rate must be finite", r)
			assert.InDelta(t, 0.25*scale, got, 1e-9,
				"rank %d: zero-atom entries keep the expanded value, scaled but undivided", r)
		}
	}
}

func TestEval_StatepointRemovedAndHistoryRecorded(t *testing.T) {
	cfg, geom := testSetup(t, 2)
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer hist.Close()

	runGroup(t, cfg, geom, hist)

	_, err = os.Stat(filepath.Join(cfg.Paths.Output, simio.StatepointName(cfg.Run.Batches)))
	assert.True(t, os.IsNotExist(err), "coordinator deletes the result artifact after ingestion")

	steps, err := hist.Steps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 1.0, steps[0].K)
	assert.Equal(t, int64(7), steps[0].Seed)
	assert.InDelta(t, 600.0, steps[0].MeasuredPower, 1e-9)
}

func TestNew_MissingVolumeIsFatal(t *testing.T) {
	cfg, geom := testSetup(t, 1)
	geom.Materials[1].Volume = nil

	comms, err := comm.NewLocalGroup(1)
	require.NoError(t, err)
	_, err = New(comms[0], geom, cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volumes required")
	assert.Contains(t, err.Error(), "2")
}

func TestNew_ChainWithoutFission(t *testing.T) {
	cfg, geom := testSetup(t, 1)
	noFission := `<depletion_chain>
  <nuclide name="U235"><reaction type="(n,gamma)"/></nuclide>
</depletion_chain>
`
	require.NoError(t, os.WriteFile(cfg.Paths.Chain, []byte(noFission), 0o644))

	comms, err := comm.NewLocalGroup(1)
	require.NoError(t, err)
	_, err = New(comms[0], geom, cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fission")
}
