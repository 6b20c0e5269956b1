package model

import "math"

// OrbitalElements describes a closed Keplerian orbit in the reference plane,
// relative to the body being orbited. Values are immutable once created.
type OrbitalElements struct {
	A      float64 // semi-major axis (AU)
	E      float64 // eccentricity, 0 <= e < 1
	Pomega float64 // longitude of periapsis = longitude of ascending node + argument of periapsis (rad)
	M0     float64 // mean anomaly at the reference epoch (rad)
	N      float64 // mean angular motion (rad per time unit, days for physical time)
}

// NewOrbitalElements constructs elements from radians.
func NewOrbitalElements(a, e, pomega, m0, n float64) OrbitalElements {
	return OrbitalElements{A: a, E: e, Pomega: pomega, M0: m0, N: n}
}

// ElementsFromDegrees is a catalog helper taking angles in degrees and the
// orbital period in days instead of a mean motion. A zero period yields n = 0.
func ElementsFromDegrees(a, e, pomegaDeg, m0Deg, periodDays float64) OrbitalElements {
	n := 0.0
	if periodDays != 0 {
		n = 2 * math.Pi / periodDays
	}
	return OrbitalElements{
		A:      a,
		E:      e,
		Pomega: pomegaDeg * math.Pi / 180,
		M0:     m0Deg * math.Pi / 180,
		N:      n,
	}
}

// IsDegenerate reports whether the orbit collapses onto its parent.
func (o OrbitalElements) IsDegenerate() bool { return o.A <= 0 }

// Vector2D is a 2D-cartesian coordinate in AU.
type Vector2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + other.
func (v Vector2D) Add(other Vector2D) Vector2D {
	return Vector2D{X: v.X + other.X, Y: v.Y + other.Y}
}

// Norm returns the distance from the origin.
func (v Vector2D) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}
