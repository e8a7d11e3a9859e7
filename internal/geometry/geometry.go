// Package geometry holds the problem description handed to the
// coupling layer: the set of materials, their compositions, and the
// metadata the transport simulator needs to model them.
package geometry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Material describes one material region.
type Material struct {
	ID       string `json:"id"`
	Burnable bool   `json:"burnable"`

	// Volume in cm3. Required for burnable materials; the partitioner
	// rejects geometries where it is missing.
	Volume *float64 `json:"volume,omitempty"`

	// Temperature in Kelvin.
	Temperature float64 `json:"temperature"`

	// Densities maps nuclide name to atomic density in atoms/b-cm.
	Densities map[string]float64 `json:"densities"`

	// SAB lists thermal scattering law names, emitted verbatim into
	// the materials document.
	SAB []string `json:"sab,omitempty"`
}

// Geometry is the full material set for the problem.
type Geometry struct {
	Materials []Material `json:"materials"`
}

// Load reads a geometry description from a JSON file.
func Load(path string) (*Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	var g Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse geometry %s: %w", path, err)
	}
	return &g, nil
}

// Material returns the material with the given id, or nil.
func (g *Geometry) Material(id string) *Material {
	for i := range g.Materials {
		if g.Materials[i].ID == id {
			return &g.Materials[i]
		}
	}
	return nil
}
