package core

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/orrery/model"
)

// J2000 is the Julian Day reference point (January 1, 2000 at approximately 12:00 GMT).
const J2000 = 2451545.0

// keplerIterations is the fixed iteration count of the Kepler solver. There
// is no convergence test.
const keplerIterations = 10

// PropagationMode selects how a time value is turned into a mean anomaly.
type PropagationMode int

const (
	// PhysicalEpoch interprets t as a Julian Day: M = m0 + (t - J2000)·n.
	PhysicalEpoch PropagationMode = iota
	// SimulationClock interprets t as an accumulated simulation-clock scalar:
	// M = -(m0 + t·n), and the polar radius is negated.
	SimulationClock
)

func (m PropagationMode) String() string {
	switch m {
	case PhysicalEpoch:
		return "physical"
	case SimulationClock:
		return "simulation"
	default:
		return fmt.Sprintf("PropagationMode(%d)", int(m))
	}
}

// ParsePropagationMode accepts the names returned by String. An empty string
// selects PhysicalEpoch.
func ParsePropagationMode(s string) (PropagationMode, error) {
	switch s {
	case "", "physical":
		return PhysicalEpoch, nil
	case "simulation":
		return SimulationClock, nil
	default:
		return 0, fmt.Errorf("unknown propagation mode %q", s)
	}
}

// Period returns the orbital period 2π/n, or +Inf when n is zero.
func Period(o model.OrbitalElements) float64 {
	if o.N == 0 {
		return math.Inf(1)
	}
	return 2 * math.Pi / o.N
}

// PositionAt returns the position relative to the parent at time t.
//
// Degenerate orbits (a <= 0) sit at the origin. The function never fails;
// eccentricities at or above 1 propagate NaN instead.
func PositionAt(o model.OrbitalElements, t float64, mode PropagationMode) model.Vector2D {
	if o.A <= 0 {
		return model.Vector2D{}
	}

	var M float64
	switch mode {
	case SimulationClock:
		M = -(o.M0 + t*o.N)
	default:
		M = o.M0 + (t-J2000)*o.N
	}

	E := eccentricAnomaly(M, o.E)

	// Half-angle form avoids the quadrant ambiguity of acos.
	y := math.Sqrt(1-o.E) * math.Cos(E/2)
	x := math.Sqrt(1+o.E) * math.Sin(E/2)

	r := o.A * (1 - o.E*math.Cos(E))
	if mode == SimulationClock {
		r = -r
	}
	theta := o.Pomega + 2*math.Atan2(y, x)

	return model.Vector2D{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
}

// eccentricAnomaly solves E = M + e·sin(E) by fixed-point iteration seeded at M.
func eccentricAnomaly(M, e float64) float64 {
	E := M
	for i := 0; i < keplerIterations; i++ {
		E = M + e*math.Sin(E)
	}
	return E
}

// JulianDay converts a wall-clock time to a Julian Day, keeping sub-second
// precision that go-satellite's integer-second JDay drops.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return jd + float64(t.Nanosecond())/1e9/86400.0
}
