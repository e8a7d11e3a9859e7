// Package operator couples the depletion solver to the external
// transport simulator. Each rank constructs one Operator around its
// comm handle; a depletion step pushes the solver's densities into the
// simulator's input documents, runs the simulator, ingests the result
// artifact, and normalizes the reaction rates to the configured
// reactor power.
package operator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"godeplete/internal/chain"
	"godeplete/internal/comm"
	"godeplete/internal/config"
	"godeplete/internal/density"
	"godeplete/internal/geometry"
	"godeplete/internal/history"
	"godeplete/internal/partition"
	"godeplete/internal/rates"
	"godeplete/internal/runner"
	"godeplete/internal/simio"
)

// Message tags for the power reduction and shared-state exchanges.
const (
	tagSeed = 30 + iota
	tagPower
	tagPowerTotal
	tagVolumes
	tagVolumesAll
)

// fissionScore is the reaction whose rates pin absolute power.
const fissionScore = "fission"

// Operator drives the transport coupling for one rank.
type Operator struct {
	comm *comm.Comm
	log  *zap.Logger
	cfg  *config.Config

	chain  *chain.Chain
	part   *chain.Participating
	assign *partition.Assignment

	num    *density.AtomNumber
	tensor *rates.Tensor
	meta   map[string]simio.MaterialMeta

	// fissionEnergy is indexed by the tensor's nuclide axis (MeV per
	// fission).
	fissionEnergy []float64
	fissionIndex  int

	run  runner.Runner
	hist *history.Store
	poll time.Duration
	step int
}

// Options tune an Operator beyond the settings file. Zero values pick
// production behavior.
type Options struct {
	// Runner overrides the exec-based simulator invocation.
	Runner runner.Runner
	// History, when non-nil, receives one ledger row per step on the
	// coordinator.
	History *history.Store
	// PollInterval overrides the completion-wait backoff.
	PollInterval time.Duration
	Log          *zap.Logger
}

// Result is what one coupled step hands back to the depletion solver.
type Result struct {
	// K is the transport eigenvalue.
	K float64
	// Rates is the power-normalized reaction-rate tensor for this
	// rank's burnable materials.
	Rates *rates.Tensor
	// Seed is the simulator seed actually used.
	Seed int64
	// MeasuredPower is the global pre-normalization fission power.
	MeasuredPower float64
	// Scale is the applied normalization factor.
	Scale float64
}

// New builds the rank-local operator: the coordinator decomposes the
// geometry and distributes assignments, every rank extracts its owned
// densities, loads the participating nuclides, and sizes the rate
// tensor. The decomposition is computed once; the shared state is
// immutable afterwards.
func New(c *comm.Comm, geom *geometry.Geometry, cfg *config.Config, opts Options) (*Operator, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Int("rank", c.Rank()))

	ch, err := chain.Load(cfg.Paths.Chain)
	if err != nil {
		return nil, err
	}
	if _, ok := ch.ReactionIndex[fissionScore]; !ok {
		return nil, fmt.Errorf("depletion chain tracks no %s reaction; cannot normalize power", fissionScore)
	}

	var decomp *partition.Decomposition
	if c.Rank() == 0 {
		decomp, err = partition.Decompose(geom, c.Size(), ch)
		if err != nil {
			return nil, err
		}
		log.Info("geometry decomposed",
			zap.Int("ranks", c.Size()),
			zap.Int("burnable", len(decomp.TallyIndex)),
			zap.Int("nuclides", len(decomp.Nuclides.Names)))
	}
	assign, err := partition.Distribute(c, decomp)
	if err != nil {
		return nil, err
	}

	num, err := density.New(assign.Burn, assign.NonBurn, assign.Nuclides.Names, assign.Volumes, len(ch.Nuclides))
	if err != nil {
		return nil, err
	}

	meta := make(map[string]simio.MaterialMeta)
	owned := append(append([]string{}, assign.Burn...), assign.NonBurn...)
	for _, id := range owned {
		mat := geom.Material(id)
		if mat == nil {
			return nil, fmt.Errorf("assigned material %s not present in geometry", id)
		}
		for nuc, d := range mat.Densities {
			// Geometry densities are atoms/b-cm; the container holds atoms/cm3.
			num.SetAtomDensity(id, nuc, d*1.0e24)
		}
		meta[id] = simio.MaterialMeta{Temperature: mat.Temperature, SAB: mat.SAB}
	}

	part, err := ch.LoadParticipating(cfg.Paths.CrossSections)
	if err != nil {
		return nil, err
	}

	tensor := rates.New(assign.Burn, part.BurnList, ch.Reactions)

	run := opts.Runner
	if run == nil {
		run = &runner.ExecRunner{
			Executable: cfg.Simulator.Executable,
			Launcher:   cfg.Simulator.Launcher,
			Dir:        cfg.Paths.Output,
			Log:        log,
		}
	}

	return &Operator{
		comm:          c,
		log:           log,
		cfg:           cfg,
		chain:         ch,
		part:          part,
		assign:        assign,
		num:           num,
		tensor:        tensor,
		meta:          meta,
		fissionEnergy: ch.FissionEnergies(tensor.NucIndex, tensor.NumNuc()),
		fissionIndex:  tensor.ReactIndex[fissionScore],
		run:           run,
		hist:          opts.History,
		poll:          opts.PollInterval,
	}, nil
}

// InitialCondition returns the solver's starting density vectors, one
// per owned burnable material, in assignment order.
func (o *Operator) InitialCondition() [][]float64 {
	vecs := make([][]float64, o.num.BurnMaterials())
	for i := range vecs {
		vecs[i] = o.num.MatSlice(i)
	}
	return vecs
}

// Eval performs one coupled step: install the solver's densities,
// regenerate the input documents, run the simulator, ingest the
// tallies, and normalize to the target power.
func (o *Operator) Eval(ctx context.Context, vecs [][]float64) (Result, error) {
	for i := 0; i < o.num.BurnMaterials() && i < len(vecs); i++ {
		o.num.SetMatSlice(i, vecs[i])
	}

	runID := uuid.NewString()
	out := o.cfg.Paths.Output

	fragment, err := simio.RenderMaterials(o.num, o.meta, o.part, o.cfg.Run.RoundDensities, o.log)
	if err != nil {
		return Result{}, err
	}
	if err := simio.WriteMaterials(o.comm, filepath.Join(out, "materials.xml"), fragment); err != nil {
		return Result{}, err
	}
	if err := simio.WriteTallies(o.comm, filepath.Join(out, "tallies.xml"), o.num, o.part, o.chain, o.assign.Nuclides.Names, o.assign.TallyIndex); err != nil {
		return Result{}, err
	}

	var seed int64
	if o.comm.Rank() == 0 {
		seed, err = simio.WriteSettings(filepath.Join(out, "settings.xml"), simio.RunSettings{
			Batches:          o.cfg.Run.Batches,
			Inactive:         o.cfg.Run.Inactive,
			Particles:        o.cfg.Run.Particles,
			LowerLeft:        o.cfg.Run.LowerLeft,
			UpperRight:       o.cfg.Run.UpperRight,
			EntropyDimension: o.cfg.Run.EntropyDimension,
			ConstantSeed:     o.cfg.Run.ConstantSeed,
		})
		if err != nil {
			return Result{}, err
		}
	}
	bseed, err := o.comm.Bcast(0, tagSeed, seed)
	if err != nil {
		return Result{}, err
	}
	seed = bseed.(int64)

	if o.comm.Rank() == 0 {
		o.log.Info("step inputs written",
			zap.String("run_id", runID),
			zap.Int("step", o.step),
			zap.Int64("seed", seed))
	}

	if err := runner.Coordinate(ctx, o.comm, o.run, o.poll); err != nil {
		return Result{}, err
	}

	spPath := filepath.Join(out, simio.StatepointName(o.cfg.Run.Batches))
	k, partial, err := o.ingest(spPath)
	if err != nil {
		return Result{}, err
	}

	measured, scale, err := o.normalizePower(partial)
	if err != nil {
		return Result{}, err
	}

	if o.comm.Rank() == 0 {
		if err := os.Remove(spPath); err != nil {
			o.log.Warn("could not remove statepoint", zap.String("path", spPath), zap.Error(err))
		}
		if o.hist != nil {
			if err := o.hist.Append(ctx, history.Step{
				Step:          o.step,
				RunID:         runID,
				K:             k,
				Seed:          seed,
				MeasuredPower: measured,
				Scale:         scale,
			}); err != nil {
				return Result{}, err
			}
		}
		o.log.Info("step complete",
			zap.String("run_id", runID),
			zap.Int("step", o.step),
			zap.Float64("k", k),
			zap.Float64("measured_power", measured),
			zap.Float64("scale", scale))
	}
	o.step++

	return Result{K: k, Rates: o.tensor, Seed: seed, MeasuredPower: measured, Scale: scale}, nil
}

// ResultsInfo gathers the burnable-material volumes to the coordinator
// and broadcasts the merged map, so every rank can label results for
// the full material set. Also returns the tensor's nuclide order, this
// rank's burn list, and the global tally index.
func (o *Operator) ResultsInfo() (map[string]float64, []string, []string, map[string]int, error) {
	local := make(map[string]float64, len(o.assign.Burn))
	for i, mat := range o.assign.Burn {
		local[mat] = o.num.Volume(i)
	}

	merged := local
	if o.comm.Rank() == 0 {
		merged = make(map[string]float64, len(o.assign.TallyIndex))
		for mat, vol := range local {
			merged[mat] = vol
		}
		for i := 1; i < o.comm.Size(); i++ {
			payload, err := o.comm.Recv(i, tagVolumes)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			for mat, vol := range payload.(map[string]float64) {
				merged[mat] = vol
			}
		}
	} else {
		if err := o.comm.Send(0, tagVolumes, local); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	all, err := o.comm.Bcast(0, tagVolumesAll, merged)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return all.(map[string]float64), o.tensor.Nucs, o.assign.Burn, o.assign.TallyIndex, nil
}
