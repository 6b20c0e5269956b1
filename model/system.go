package model

// SystemDefinition is the authoring shape of a system before the hierarchy
// is built. Radius is in kilometres; orbits are in AU relative to the
// enclosing definition.
type SystemDefinition struct {
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	RadiusKm   float64             `json:"radius"`
	Mass       float64             `json:"mass"`
	Orbit      ElementsDefinition  `json:"orbit"`
	Satellites []*SystemDefinition `json:"satellites,omitempty"`
	Crafts     []*CraftDefinition  `json:"crafts,omitempty"`
}

// CraftDefinition describes a free-flying craft in a system definition.
type CraftDefinition struct {
	Name  string             `json:"name"`
	Orbit ElementsDefinition `json:"orbit"`
}

// ElementsDefinition mirrors OrbitalElements with the serialized field
// names used throughout the JSON projection.
type ElementsDefinition struct {
	A      float64 `json:"a"`
	E      float64 `json:"e"`
	Pomega float64 `json:"pomega"`
	M0     float64 `json:"M0"`
	N      float64 `json:"n"`
}

// Elements converts the definition into a value.
func (d ElementsDefinition) Elements() OrbitalElements {
	return OrbitalElements{A: d.A, E: d.E, Pomega: d.Pomega, M0: d.M0, N: d.N}
}

// DefinitionOf is the inverse of Elements.
func DefinitionOf(o OrbitalElements) ElementsDefinition {
	return ElementsDefinition{A: o.A, E: o.E, Pomega: o.Pomega, M0: o.M0, N: o.N}
}
