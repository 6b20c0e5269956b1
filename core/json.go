package core

import "encoding/json"

type jsonOrbit struct {
	A float64 `json:"a"`
	E float64 `json:"e"`
	P float64 `json:"pomega"`
	M float64 `json:"M0"`
	N float64 `json:"n"`
}

type jsonOrbitable struct {
	Name   string    `json:"name"`
	Radius float64   `json:"radius"`
	Mass   float64   `json:"mass"`
	SOI    float64   `json:"soi"`
	Orbit  jsonOrbit `json:"orbit"`
	Sats   []*Node   `json:"satellites,omitempty"`
}

type jsonBody struct {
	Type int `json:"type"`
	jsonOrbitable
}

type jsonCraft struct {
	Name  string    `json:"name"`
	Orbit jsonOrbit `json:"orbit"`
}

func (n *Node) orbitJSON() jsonOrbit {
	return jsonOrbit{
		A: n.orbit.A,
		E: n.orbit.E,
		P: n.orbit.Pomega,
		M: n.orbit.M0,
		N: n.orbit.N,
	}
}

func (n *Node) orbitableJSON() jsonOrbitable {
	return jsonOrbitable{
		Name:   n.name,
		Radius: n.radius,
		Mass:   n.mass,
		SOI:    n.soi,
		Orbit:  n.orbitJSON(),
		Sats:   n.satellites,
	}
}

// MarshalJSON emits the serialization projection of the subtree rooted at
// n. Bodies lead with their integer type tag, barycenters omit it, and
// crafts carry only their name and orbit. Empty satellite lists are omitted.
func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.kind {
	case KindCraft:
		return json.Marshal(jsonCraft{Name: n.name, Orbit: n.orbitJSON()})
	case KindBarycenter:
		return json.Marshal(n.orbitableJSON())
	default:
		return json.Marshal(jsonBody{
			Type:          int(n.btype),
			jsonOrbitable: n.orbitableJSON(),
		})
	}
}
