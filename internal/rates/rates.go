// Package rates holds the dense reaction-rate tensor filled from each
// transport run. Rows follow the owning rank's burnable-material
// assignment order, which matches the density vectors exchanged with
// the depletion solver.
package rates

// Tensor is a dense [burn material x nuclide x reaction] array with
// the index maps needed to remap result bins into it.
type Tensor struct {
	Mats       []string
	MatIndex   map[string]int
	Nucs       []string
	NucIndex   map[string]int
	Reacts     []string
	ReactIndex map[string]int

	data []float64
}

// New builds a zeroed tensor over the given axes. Slices are used in
// the given order; the maps are derived from them.
func New(mats, nucs, reacts []string) *Tensor {
	t := &Tensor{
		Mats:       mats,
		MatIndex:   indexOf(mats),
		Nucs:       nucs,
		NucIndex:   indexOf(nucs),
		Reacts:     reacts,
		ReactIndex: indexOf(reacts),
	}
	t.data = make([]float64, len(mats)*len(nucs)*len(reacts))
	return t
}

func indexOf(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// NumNuc returns the length of the nuclide axis.
func (t *Tensor) NumNuc() int { return len(t.Nucs) }

// NumReact returns the length of the reaction axis.
func (t *Tensor) NumReact() int { return len(t.Reacts) }

// At returns the entry for (material row, nuclide index, reaction index).
func (t *Tensor) At(mat, nuc, react int) float64 {
	return t.data[(mat*len(t.Nucs)+nuc)*len(t.Reacts)+react]
}

// Set stores the entry for (material row, nuclide index, reaction index).
func (t *Tensor) Set(mat, nuc, react int, v float64) {
	t.data[(mat*len(t.Nucs)+nuc)*len(t.Reacts)+react] = v
}

// SetRow installs a dense [nuclide x reaction] slice as material row mat.
func (t *Tensor) SetRow(mat int, row []float64) {
	copy(t.data[mat*len(t.Nucs)*len(t.Reacts):], row)
}

// Zero resets every entry. Called at the start of every ingestion so
// the tensor is never left partially populated across steps.
func (t *Tensor) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// Scale multiplies every entry by f.
func (t *Tensor) Scale(f float64) {
	for i := range t.data {
		t.data[i] *= f
	}
}
