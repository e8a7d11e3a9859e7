// Package density stores the per-material atomic densities a rank owns
// between depletion steps. The layout mirrors the exchange with the
// depletion solver: burnable materials occupy the leading rows in
// assignment order, and the leading nuclide columns are the
// chain-tracked nuclides, so a material's solver vector is a contiguous
// slice of the row.
package density

import "fmt"

// AtomNumber is a dense [material x nuclide] density container.
// Densities are stored in atoms/cm3.
type AtomNumber struct {
	mats     []string
	matIndex map[string]int
	nucs     []string
	nucIndex map[string]int

	nBurnMat int
	nBurnNuc int

	// volumes[i] is the volume in cm3 of burnable material i.
	volumes []float64

	data []float64
}

// New builds an AtomNumber for the given burnable and non-burnable
// material ids (burnable first, both in assignment order), the global
// nuclide ordering, per-burnable-material volumes, and the count of
// chain-tracked nuclides occupying the leading columns.
func New(burn, nonBurn, nuclides []string, volumes map[string]float64, burnNuclides int) (*AtomNumber, error) {
	a := &AtomNumber{
		matIndex: make(map[string]int, len(burn)+len(nonBurn)),
		nucIndex: make(map[string]int, len(nuclides)),
		nBurnMat: len(burn),
		nBurnNuc: burnNuclides,
	}
	for _, id := range burn {
		vol, ok := volumes[id]
		if !ok {
			return nil, fmt.Errorf("no volume for burnable material %s", id)
		}
		a.matIndex[id] = len(a.mats)
		a.mats = append(a.mats, id)
		a.volumes = append(a.volumes, vol)
	}
	for _, id := range nonBurn {
		a.matIndex[id] = len(a.mats)
		a.mats = append(a.mats, id)
	}
	for _, n := range nuclides {
		a.nucIndex[n] = len(a.nucs)
		a.nucs = append(a.nucs, n)
	}
	a.data = make([]float64, len(a.mats)*len(a.nucs))
	return a, nil
}

// Materials returns all owned material ids, burnable first.
func (a *AtomNumber) Materials() []string { return a.mats }

// Nuclides returns the global nuclide ordering.
func (a *AtomNumber) Nuclides() []string { return a.nucs }

// BurnMaterials returns the number of owned burnable materials.
func (a *AtomNumber) BurnMaterials() int { return a.nBurnMat }

// Volume returns the volume of burnable material i in cm3.
func (a *AtomNumber) Volume(i int) float64 { return a.volumes[i] }

// VolumeOf returns the volume of a burnable material by id.
func (a *AtomNumber) VolumeOf(mat string) (float64, bool) {
	i, ok := a.matIndex[mat]
	if !ok || i >= a.nBurnMat {
		return 0, false
	}
	return a.volumes[i], true
}

func (a *AtomNumber) offset(mat, nuc string) (int, bool) {
	mi, ok := a.matIndex[mat]
	if !ok {
		return 0, false
	}
	ni, ok := a.nucIndex[nuc]
	if !ok {
		return 0, false
	}
	return mi*len(a.nucs) + ni, true
}

// AtomDensity returns the density of nuc in mat in atoms/cm3, or zero
// if either is unknown here.
func (a *AtomNumber) AtomDensity(mat, nuc string) float64 {
	off, ok := a.offset(mat, nuc)
	if !ok {
		return 0
	}
	return a.data[off]
}

// SetAtomDensity stores the density of nuc in mat in atoms/cm3.
func (a *AtomNumber) SetAtomDensity(mat, nuc string, v float64) {
	if off, ok := a.offset(mat, nuc); ok {
		a.data[off] = v
	}
}

// AtomCount returns the total atoms of nuc in burnable material mat
// (density times volume). Zero for non-burnable or unknown materials.
func (a *AtomNumber) AtomCount(mat, nuc string) float64 {
	mi, ok := a.matIndex[mat]
	if !ok || mi >= a.nBurnMat {
		return 0
	}
	ni, ok := a.nucIndex[nuc]
	if !ok {
		return 0
	}
	return a.data[mi*len(a.nucs)+ni] * a.volumes[mi]
}

// MatSlice returns the solver vector for burnable material i: total
// atoms of every chain-tracked nuclide, in global nuclide order.
func (a *AtomNumber) MatSlice(i int) []float64 {
	out := make([]float64, a.nBurnNuc)
	base := i * len(a.nucs)
	for j := 0; j < a.nBurnNuc; j++ {
		out[j] = a.data[base+j] * a.volumes[i]
	}
	return out
}

// SetMatSlice installs a solver vector produced in the same order as
// MatSlice, converting total atoms back to densities.
func (a *AtomNumber) SetMatSlice(i int, vec []float64) {
	base := i * len(a.nucs)
	for j := 0; j < a.nBurnNuc && j < len(vec); j++ {
		a.data[base+j] = vec[j] / a.volumes[i]
	}
}

// TotalDensity sums the density of nuc across every owned material.
// Used to prune always-zero nuclides from the tally request.
func (a *AtomNumber) TotalDensity(nuc string) float64 {
	ni, ok := a.nucIndex[nuc]
	if !ok {
		return 0
	}
	total := 0.0
	for mi := range a.mats {
		total += a.data[mi*len(a.nucs)+ni]
	}
	return total
}
