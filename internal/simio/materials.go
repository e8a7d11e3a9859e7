// Package simio renders the transport simulator's input documents and
// reads its result artifact.
//
// Input documents are XML with a fixed formatting contract so output
// is byte-stable across runs: two-space indentation, one header line
// of `<?xml version='1.0' encoding='utf-8'?>`, density and coordinate
// values formatted with strconv's shortest 'g' representation.
package simio

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"godeplete/internal/chain"
	"godeplete/internal/comm"
	"godeplete/internal/density"
)

// Message tags used by this package. Held in a range of their own so
// they cannot collide with the startup-distribution or run-signal tags.
const (
	tagFragment = 10
	tagNucSet   = 11
)

// clampTolerance bounds how negative a computed density may be before
// it is worth a warning. The step method that produces the densities
// does not guarantee non-negativity; small negative values are
// numerical noise and are clamped silently.
const clampTolerance = -1e-21

// MaterialMeta carries the per-material fields that live outside the
// density container.
type MaterialMeta struct {
	Temperature float64
	SAB         []string
}

type xmlMaterial struct {
	XMLName     xml.Name   `xml:"material"`
	ID          string     `xml:"id,attr"`
	Density     xmlDensity `xml:"density"`
	Temperature string     `xml:"temperature"`
	Nuclides    []xmlNuclide
	SAB         []xmlSab
}

type xmlDensity struct {
	XMLName xml.Name `xml:"density"`
	Units   string   `xml:"units,attr"`
}

type xmlNuclide struct {
	XMLName xml.Name `xml:"nuclide"`
	AO      string   `xml:"ao,attr"`
	Name    string   `xml:"name,attr"`
}

type xmlSab struct {
	XMLName xml.Name `xml:"sab"`
	Name    string   `xml:"name,attr"`
}

// RenderMaterials renders this rank's owned materials as a document
// fragment. Densities are emitted in atoms/b-cm for every participating
// nuclide whose density is positive; non-positive densities are clamped
// to zero in the container, silently within tolerance and with one
// warning per offender beyond it. When round is set, emitted densities
// are snapped to 8 significant digits for reproducible regression
// comparisons.
func RenderMaterials(num *density.AtomNumber, meta map[string]MaterialMeta, part *chain.Participating, round bool, log *zap.Logger) (string, error) {
	var b strings.Builder
	for _, mat := range num.Materials() {
		m := meta[mat]
		el := xmlMaterial{
			ID:          mat,
			Density:     xmlDensity{Units: "sum"},
			Temperature: formatFloat(m.Temperature),
		}
		for _, nuc := range num.Nuclides() {
			if !part.Contains(nuc) {
				continue
			}
			val := 1.0e-24 * num.AtomDensity(mat, nuc)
			if val > 0 {
				if round {
					val = roundSignificant(val, 8)
				}
				el.Nuclides = append(el.Nuclides, xmlNuclide{AO: formatFloat(val), Name: nuc})
				continue
			}
			if val <= clampTolerance {
				log.Warn("negative density clamped to zero",
					zap.String("nuclide", nuc),
					zap.String("material", mat),
					zap.Float64("density", val))
			}
			num.SetAtomDensity(mat, nuc, 0)
		}
		for _, sab := range m.SAB {
			el.SAB = append(el.SAB, xmlSab{Name: sab})
		}
		frag, err := xml.MarshalIndent(el, "  ", "  ")
		if err != nil {
			return "", fmt.Errorf("render material %s: %w", mat, err)
		}
		b.WriteString("  ")
		b.Write(frag)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// WriteMaterials assembles the materials document. Each rank renders
// only its own fragment; fragments stream to the coordinator, which
// concatenates them in rank order under a single root and writes
// exactly one file. At most two fragments are resident on any rank.
func WriteMaterials(c *comm.Comm, path, fragment string) error {
	if c.Rank() != 0 {
		if err := c.Send(0, tagFragment, fragment); err != nil {
			return err
		}
		c.Barrier()
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create materials document: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("<?xml version='1.0' encoding='utf-8'?>\n<materials>\n"); err != nil {
		return err
	}
	if _, err := f.WriteString(fragment); err != nil {
		return err
	}
	for i := 1; i < c.Size(); i++ {
		payload, err := c.Recv(i, tagFragment)
		if err != nil {
			return err
		}
		if _, err := f.WriteString(payload.(string)); err != nil {
			return err
		}
	}
	if _, err := f.WriteString("</materials>\n"); err != nil {
		return err
	}
	c.Barrier()
	return nil
}

// roundSignificant snaps v to the given number of significant decimal
// digits by extracting the decimal order of magnitude, rounding the
// mantissa, and reconstituting the value.
func roundSignificant(v float64, digits int) float64 {
	if v == 0 {
		return 0
	}
	mag := math.Floor(math.Log10(math.Abs(v)))
	scale := math.Pow(10, float64(digits))
	mantissa := v / math.Pow(10, mag)
	return math.Round(mantissa*scale) / scale * math.Pow(10, mag)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
