// Package partition decomposes the material set across the rank group.
// The coordinator scans the geometry once, classifies materials, builds
// the global nuclide ordering, and splits the sorted id lists into
// near-equal contiguous chunks; the result is then distributed so every
// rank holds an identical view.
//
// Determinism rests on an explicit total order: material ids and
// discovered nuclide names are sorted lexicographically, never taken in
// map iteration order.
package partition

import (
	"fmt"
	"sort"
	"strings"

	"godeplete/internal/chain"
	"godeplete/internal/comm"
	"godeplete/internal/geometry"
)

// NuclideIndex is the ordered, deduplicated global nuclide index.
// Chain nuclides occupy the lowest indices in chain order; nuclides
// discovered only in the geometry are appended in sorted order. Built
// once and identical on every rank.
type NuclideIndex struct {
	Names []string
	Index map[string]int
}

// Decomposition is the coordinator's full view of the split.
type Decomposition struct {
	// BurnChunks[i] and NonBurnChunks[i] are rank i's contiguous
	// chunks of the sorted burnable and non-burnable id lists.
	BurnChunks    [][]string
	NonBurnChunks [][]string

	// Volumes holds the volume of every burnable material.
	Volumes map[string]float64

	// TallyIndex maps each burnable id to its position in the full
	// sorted burn list, which is the result artifact's material axis.
	TallyIndex map[string]int

	Nuclides NuclideIndex
}

// Assignment is one rank's share of the decomposition.
type Assignment struct {
	Burn       []string
	NonBurn    []string
	Volumes    map[string]float64
	TallyIndex map[string]int
	Nuclides   NuclideIndex
}

// Decompose scans the geometry and splits it across ranks. It runs on
// the coordinator only. Burnable materials without a volume make the
// decomposition fail, naming every offending id: volumes are required
// for density and rate normalization and there is no safe default.
func Decompose(geom *geometry.Geometry, ranks int, ch *chain.Chain) (*Decomposition, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("decompose: rank count must be positive, got %d", ranks)
	}

	var burn, nonBurn []string
	volumes := make(map[string]float64)
	nucSet := make(map[string]struct{})
	var missing []string

	for i := range geom.Materials {
		mat := &geom.Materials[i]
		for nuc := range mat.Densities {
			nucSet[nuc] = struct{}{}
		}
		if mat.Burnable {
			burn = append(burn, mat.ID)
			if mat.Volume == nil {
				missing = append(missing, mat.ID)
			} else {
				volumes[mat.ID] = *mat.Volume
			}
		} else {
			nonBurn = append(nonBurn, mat.ID)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("volumes required for burnable materials: %s", strings.Join(missing, ", "))
	}

	sort.Strings(burn)
	sort.Strings(nonBurn)

	d := &Decomposition{
		BurnChunks:    chunk(burn, ranks),
		NonBurnChunks: chunk(nonBurn, ranks),
		Volumes:       volumes,
		TallyIndex:    make(map[string]int, len(burn)),
		Nuclides:      mergeNuclides(ch, nucSet),
	}
	for i, id := range burn {
		d.TallyIndex[id] = i
	}
	return d, nil
}

// mergeNuclides builds the global nuclide index: chain nuclides first
// in chain order, then geometry-only nuclides in sorted order.
func mergeNuclides(ch *chain.Chain, discovered map[string]struct{}) NuclideIndex {
	idx := NuclideIndex{Index: make(map[string]int)}
	for _, n := range ch.Nuclides {
		idx.Index[n.Name] = len(idx.Names)
		idx.Names = append(idx.Names, n.Name)
	}
	extra := make([]string, 0, len(discovered))
	for n := range discovered {
		if _, ok := idx.Index[n]; !ok {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	for _, n := range extra {
		idx.Index[n] = len(idx.Names)
		idx.Names = append(idx.Names, n)
	}
	return idx
}

// chunk splits ids into ranks contiguous chunks of size floor(n/r),
// with the first n mod r chunks one element larger. Chunk sizes never
// differ by more than one, and concatenating the chunks in rank order
// reproduces ids exactly.
func chunk(ids []string, ranks int) [][]string {
	size, extra := len(ids)/ranks, len(ids)%ranks
	out := make([][]string, ranks)
	j := 0
	for i := 0; i < ranks; i++ {
		n := size
		if i < extra {
			n++
		}
		out[i] = ids[j : j+n]
		j += n
	}
	return out
}

// Message tags for the assignment exchange.
const (
	tagBurn = iota
	tagNonBurn
	tagNuclides
	tagVolumes
	tagTallyIndex
)

// Distribute delivers the decomposition across the group. The
// coordinator passes the Decomposition it computed; other ranks pass
// nil and block until their share arrives. Every rank returns an
// assignment with identical shared state (volumes, tally index,
// nuclide index) and its own chunk of the material lists.
func Distribute(c *comm.Comm, d *Decomposition) (*Assignment, error) {
	a := &Assignment{}
	if c.Rank() == 0 {
		if d == nil {
			return nil, fmt.Errorf("distribute: coordinator has no decomposition")
		}
		for i := 1; i < c.Size(); i++ {
			if err := c.Send(i, tagBurn, d.BurnChunks[i]); err != nil {
				return nil, err
			}
			if err := c.Send(i, tagNonBurn, d.NonBurnChunks[i]); err != nil {
				return nil, err
			}
			if err := c.Send(i, tagNuclides, d.Nuclides); err != nil {
				return nil, err
			}
		}
		a.Burn = d.BurnChunks[0]
		a.NonBurn = d.NonBurnChunks[0]
		a.Nuclides = d.Nuclides
	} else {
		burn, err := c.Recv(0, tagBurn)
		if err != nil {
			return nil, err
		}
		nonBurn, err := c.Recv(0, tagNonBurn)
		if err != nil {
			return nil, err
		}
		nucs, err := c.Recv(0, tagNuclides)
		if err != nil {
			return nil, err
		}
		a.Burn = burn.([]string)
		a.NonBurn = nonBurn.([]string)
		a.Nuclides = nucs.(NuclideIndex)
	}

	var volumes map[string]float64
	var tallyIndex map[string]int
	if c.Rank() == 0 {
		volumes = d.Volumes
		tallyIndex = d.TallyIndex
	}
	v, err := c.Bcast(0, tagVolumes, volumes)
	if err != nil {
		return nil, err
	}
	ti, err := c.Bcast(0, tagTallyIndex, tallyIndex)
	if err != nil {
		return nil, err
	}
	a.Volumes = v.(map[string]float64)
	a.TallyIndex = ti.(map[string]int)
	return a, nil
}
