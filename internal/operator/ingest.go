package operator

import (
	"fmt"

	"godeplete/internal/simio"
)

// ingest reads the result artifact and expands the tally into the
// rank's rate tensor. The tensor is zeroed first and fully rewritten;
// returns the transport eigenvalue and this rank's partial fission
// power. Every rank opens the artifact concurrently, read-only.
func (o *Operator) ingest(path string) (float64, float64, error) {
	o.tensor.Zero()

	sp, err := simio.ReadStatepoint(path)
	if err != nil {
		return 0, 0, err
	}

	// Remap result bins onto the tensor axes once, not per material.
	nucRemap := make([]int, len(sp.Nuclides))
	for i, name := range sp.Nuclides {
		ni, ok := o.tensor.NucIndex[name]
		if !ok {
			return 0, 0, fmt.Errorf("statepoint nuclide bin %q is not tracked", name)
		}
		nucRemap[i] = ni
	}
	reactRemap := make([]int, len(sp.Scores))
	for i, name := range sp.Scores {
		ri, ok := o.tensor.ReactIndex[name]
		if !ok {
			return 0, 0, fmt.Errorf("statepoint score bin %q is not tracked", name)
		}
		reactRemap[i] = ri
	}

	matBin := make(map[string]int, len(sp.Materials))
	for i, id := range sp.Materials {
		matBin[id] = i
	}

	nNuc, nReact := o.tensor.NumNuc(), o.tensor.NumReact()
	wantBins := len(sp.Nuclides) * len(sp.Scores)
	power := 0.0

	for row, mat := range o.assign.Burn {
		slab, ok := matBin[mat]
		if !ok {
			return 0, 0, fmt.Errorf("statepoint has no material bin for %s", mat)
		}
		res := sp.Results[slab]
		if len(res) != wantBins {
			return 0, 0, fmt.Errorf("statepoint material %s: %d result bins, want %d", mat, len(res), wantBins)
		}

		expanded := make([]float64, nNuc*nReact)
		atoms := make([]float64, nNuc)
		j := 0
		for a, ni := range nucRemap {
			name := sp.Nuclides[a]
			atoms[ni] = o.num.AtomCount(mat, name)
			for _, ri := range reactRemap {
				expanded[ni*nReact+ri] = res[j][0]
				j++
			}
		}

		for ni := 0; ni < nNuc; ni++ {
			power += expanded[ni*nReact+o.fissionIndex] * o.fissionEnergy[ni]
		}

		// Per-atom normalization. Zero-atom nuclides are skipped so
		// the division cannot produce non-finite rates; their entries
		// keep the expanded value.
		for _, ni := range nucRemap {
			if atoms[ni] == 0 {
				continue
			}
			for ri := 0; ri < nReact; ri++ {
				expanded[ni*nReact+ri] /= atoms[ni]
			}
		}

		o.tensor.SetRow(row, expanded)
	}

	return sp.KCombined, power, nil
}

// normalizePower reduces the per-rank partial fission powers to the
// coordinator, broadcasts the global total, and rescales every rank's
// tensor so that total fission power equals the configured target.
// This is the single point where absolute rate magnitude is pinned to
// the reactor power; it must run after every rank has ingested.
func (o *Operator) normalizePower(partial float64) (float64, float64, error) {
	total := partial
	if o.comm.Rank() == 0 {
		for i := 1; i < o.comm.Size(); i++ {
			payload, err := o.comm.Recv(i, tagPower)
			if err != nil {
				return 0, 0, err
			}
			total += payload.(float64)
		}
	} else {
		if err := o.comm.Send(0, tagPower, partial); err != nil {
			return 0, 0, err
		}
	}

	payload, err := o.comm.Bcast(0, tagPowerTotal, total)
	if err != nil {
		return 0, 0, err
	}
	measured := payload.(float64)
	if measured == 0 {
		return 0, 0, fmt.Errorf("measured fission power is zero; cannot normalize to %g", o.cfg.Depletion.Power)
	}

	scale := o.cfg.Depletion.Power / measured
	o.tensor.Scale(scale)
	return measured, scale, nil
}
