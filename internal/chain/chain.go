// Package chain models the depletion chain driving the coupling layer:
// the ordered nuclide set, the reaction list tallied in the transport
// run, and the recoverable fission energy per nuclide.
package chain

import (
	"encoding/xml"
	"fmt"
	"os"
)

// EnvChain names the environment variable holding the depletion chain
// definition file, consulted when the config leaves the path empty.
const EnvChain = "GODEPLETE_CHAIN"

// Nuclide is one entry in the depletion chain.
type Nuclide struct {
	Name string
	// FissionEnergy is the recoverable energy per fission in MeV.
	// Zero for non-fissionable nuclides.
	FissionEnergy float64
}

// Chain is the decoded depletion chain. Nuclide order is the file
// order and fixes the leading block of the global nuclide index;
// reaction order fixes the internal reaction indices.
type Chain struct {
	Nuclides      []Nuclide
	NuclideIndex  map[string]int
	Reactions     []string
	ReactionIndex map[string]int
}

type xmlChain struct {
	XMLName  xml.Name     `xml:"depletion_chain"`
	Nuclides []xmlNuclide `xml:"nuclide"`
}

type xmlNuclide struct {
	Name          string        `xml:"name,attr"`
	FissionEnergy float64       `xml:"fission_energy,attr"`
	Reactions     []xmlReaction `xml:"reaction"`
}

type xmlReaction struct {
	Type string `xml:"type,attr"`
}

// Load reads the depletion chain from path. An empty path falls back
// to the GODEPLETE_CHAIN environment variable.
func Load(path string) (*Chain, error) {
	if path == "" {
		path = os.Getenv(EnvChain)
	}
	if path == "" {
		return nil, fmt.Errorf("no depletion chain specified: set %s or the chain path in the config", EnvChain)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read depletion chain: %w", err)
	}
	var doc xmlChain
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("depletion chain %q is invalid: %w", path, err)
	}

	c := &Chain{
		NuclideIndex:  make(map[string]int),
		ReactionIndex: make(map[string]int),
	}
	for _, n := range doc.Nuclides {
		if _, ok := c.NuclideIndex[n.Name]; ok {
			return nil, fmt.Errorf("depletion chain %q: duplicate nuclide %s", path, n.Name)
		}
		c.NuclideIndex[n.Name] = len(c.Nuclides)
		c.Nuclides = append(c.Nuclides, Nuclide{Name: n.Name, FissionEnergy: n.FissionEnergy})
		for _, r := range n.Reactions {
			if _, ok := c.ReactionIndex[r.Type]; !ok {
				c.ReactionIndex[r.Type] = len(c.Reactions)
				c.Reactions = append(c.Reactions, r.Type)
			}
		}
	}
	if len(c.Nuclides) == 0 {
		return nil, fmt.Errorf("depletion chain %q contains no nuclides", path)
	}
	return c, nil
}

// FissionEnergies returns the per-nuclide fission energy table indexed
// by the given nuclide index map.
func (c *Chain) FissionEnergies(index map[string]int, size int) []float64 {
	table := make([]float64, size)
	for _, n := range c.Nuclides {
		if i, ok := index[n.Name]; ok {
			table[i] = n.FissionEnergy
		}
	}
	return table
}
