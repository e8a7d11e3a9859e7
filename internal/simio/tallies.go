package simio

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"godeplete/internal/chain"
	"godeplete/internal/comm"
	"godeplete/internal/density"
)

type xmlTallies struct {
	XMLName xml.Name  `xml:"tallies"`
	Filter  xmlFilter `xml:"filter"`
	Tally   xmlTally  `xml:"tally"`
}

type xmlFilter struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
	Bins string `xml:"bins"`
}

type xmlTally struct {
	ID       string `xml:"id,attr"`
	Filters  string `xml:"filters"`
	Nuclides string `xml:"nuclides"`
	Scores   string `xml:"scores"`
}

// WriteTallies builds the tally request for the next run. Every rank
// contributes the set of participating nuclides it currently holds
// with nonzero total density; the sets are reduced to the coordinator,
// which requests exactly the chain-tracked union over all burnable
// materials and all chain reactions. Recomputing the set every step
// keeps always-zero nuclides out of the tally.
func WriteTallies(c *comm.Comm, path string, num *density.AtomNumber, part *chain.Participating, ch *chain.Chain, nucOrder []string, tallyIndex map[string]int) error {
	local := make(map[string]struct{})
	for _, nuc := range num.Nuclides() {
		if part.Contains(nuc) && num.TotalDensity(nuc) > 0 {
			local[nuc] = struct{}{}
		}
	}

	if c.Rank() != 0 {
		names := make([]string, 0, len(local))
		for nuc := range local {
			names = append(names, nuc)
		}
		return c.Send(0, tagNucSet, names)
	}

	for i := 1; i < c.Size(); i++ {
		payload, err := c.Recv(i, tagNucSet)
		if err != nil {
			return err
		}
		for _, nuc := range payload.([]string) {
			local[nuc] = struct{}{}
		}
	}

	// Order the union by the global nuclide index and keep only
	// chain-tracked entries; these are the bins the ingester remaps.
	var nucList []string
	for _, nuc := range nucOrder {
		if _, ok := local[nuc]; !ok {
			continue
		}
		if _, ok := ch.NuclideIndex[nuc]; ok {
			nucList = append(nucList, nuc)
		}
	}

	bins := make([]string, len(tallyIndex))
	for id, pos := range tallyIndex {
		bins[pos] = id
	}
	if err := checkBins(bins); err != nil {
		return err
	}

	doc := xmlTallies{
		Filter: xmlFilter{ID: "1", Type: "material", Bins: strings.Join(bins, " ")},
		Tally: xmlTally{
			ID:       "1",
			Filters:  "1",
			Nuclides: strings.Join(nucList, " "),
			Scores:   strings.Join(ch.Reactions, " "),
		},
	}
	if err := writeDocument(path, doc); err != nil {
		return fmt.Errorf("write tally document: %w", err)
	}
	return nil
}

func checkBins(bins []string) error {
	var missing []int
	for i, b := range bins {
		if b == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return fmt.Errorf("tally index has gaps at positions %v", missing)
	}
	return nil
}
