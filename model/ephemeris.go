package model

// BodyPosition is one node's position within an ephemeris snapshot.
type BodyPosition struct {
	Name     string   `json:"name"`
	Parent   string   `json:"parent,omitempty"`
	Kind     string   `json:"kind"`
	Relative Vector2D `json:"relative"`
	Absolute Vector2D `json:"absolute"`
	Radius   float64  `json:"radius"`
	Period   float64  `json:"period"` // 0 when the orbit has no finite period
}

// Ephemeris is the set of positions of every node of a system at time T.
// Mode names the propagation convention T was interpreted with.
type Ephemeris struct {
	System string         `json:"system"`
	T      float64        `json:"t"`
	Mode   string         `json:"mode"`
	Bodies []BodyPosition `json:"bodies"`
}
