package chain

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// EnvCrossSections names the environment variable holding the
// nuclear-data index document (the listing, per data library, of the
// nuclide names it supports).
const EnvCrossSections = "GODEPLETE_CROSS_SECTIONS"

// Participating restricts the coupling layer to nuclides the transport
// simulator has data for. Set holds every participating nuclide name;
// BurnList and BurnIndex cover the chain-tracked subset in the order
// the index document declares them, which fixes the nuclide axis of
// the reaction-rate tensor.
type Participating struct {
	Set       map[string]struct{}
	BurnList  []string
	BurnIndex map[string]int
}

type xmlDataIndex struct {
	XMLName   xml.Name     `xml:"cross_sections"`
	Libraries []xmlLibrary `xml:"library"`
}

type xmlLibrary struct {
	Materials string `xml:"materials,attr"`
}

// LoadParticipating reads the nuclear-data index from path, falling
// back to GODEPLETE_CROSS_SECTIONS when path is empty. Both the unset
// and the unparseable case are fatal to the caller; the errors name
// which of the two happened.
func (c *Chain) LoadParticipating(path string) (*Participating, error) {
	if path == "" {
		path = os.Getenv(EnvCrossSections)
	}
	if path == "" {
		return nil, fmt.Errorf("no nuclear-data index specified: set %s or the cross sections path in the config", EnvCrossSections)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nuclear-data index: %w", err)
	}
	var doc xmlDataIndex
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("nuclear-data index %q is invalid: %w", path, err)
	}

	p := &Participating{
		Set:       make(map[string]struct{}),
		BurnIndex: make(map[string]int),
	}
	for _, lib := range doc.Libraries {
		if lib.Materials == "" {
			continue
		}
		for _, name := range strings.Fields(lib.Materials) {
			if _, seen := p.Set[name]; seen {
				continue
			}
			p.Set[name] = struct{}{}
			if _, inChain := c.NuclideIndex[name]; inChain {
				p.BurnIndex[name] = len(p.BurnList)
				p.BurnList = append(p.BurnList, name)
			}
		}
	}
	return p, nil
}

// Contains reports whether name is a participating nuclide.
func (p *Participating) Contains(name string) bool {
	_, ok := p.Set[name]
	return ok
}
