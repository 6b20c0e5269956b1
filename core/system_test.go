package core

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signalsfoundry/orrery/model"
)

func mustPanicWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		perr, ok := r.(*PreconditionError)
		if !ok {
			t.Fatalf("panic value = %#v, want *PreconditionError", r)
		}
		if !errors.Is(perr, target) {
			t.Fatalf("panic error = %v, want %v", perr, target)
		}
	}()
	fn()
}

func satelliteNames(n *Node) []string {
	var names []string
	for _, s := range n.Satellites() {
		names = append(names, s.Name())
	}
	return names
}

func assertSortedTree(t *testing.T, root *Node) {
	t.Helper()
	Walk(root, func(n *Node) bool {
		sats := n.Satellites()
		if !sort.SliceIsSorted(sats, func(i, j int) bool { return sats[i].Orbit().A < sats[j].Orbit().A }) {
			t.Fatalf("satellites of %s not sorted by a: %v", n.Name(), satelliteNames(n))
		}
		for _, s := range sats {
			if s.Parent() != n {
				t.Fatalf("%s lists %s but its parent is %v", n.Name(), s.Name(), s.Parent())
			}
		}
		return true
	})
}

func TestBuildSystemWithoutBarycenter(t *testing.T) {
	central := NewBody(model.Planet, "Central", 1e6, 1e24, model.OrbitalElements{})
	sat := NewBody(model.Moon, "Pebble", 1, 1e18, model.NewOrbitalElements(1, 0.01, 0, 0, 0.1))

	root := BuildSystem(central, []*Node{sat})

	if root != central {
		t.Fatalf("root = %v, want central body", root)
	}
	if got := root.SoiRadius(); got != UnboundedSOI {
		t.Fatalf("root soi = %v, want -1", got)
	}
	if sat.Parent() != central {
		t.Fatalf("satellite parent = %v, want central", sat.Parent())
	}
	if names := satelliteNames(central); len(names) != 1 || names[0] != "Pebble" {
		t.Fatalf("central satellites = %v, want [Pebble]", names)
	}
	if want := math.Pow(1e-6, 0.4); !approxEqual(sat.SoiRadius(), want, 1e-12) {
		t.Fatalf("satellite soi = %v, want %v", sat.SoiRadius(), want)
	}
	if sat.Orbit().A != 1 {
		t.Fatalf("satellite a changed to %v", sat.Orbit().A)
	}
}

func TestBuildSystemWithBarycenter(t *testing.T) {
	centralOrbit := model.NewOrbitalElements(5, 0.05, 0.2, 0.3, 0.001)
	satOrbit := model.NewOrbitalElements(1, 0.02, 1.5, 0.7, 0.2)

	const (
		M = 1e24
		m = 1e23
		R = 1e-5
	)
	central := NewBody(model.Planet, "Alpha", R, M, centralOrbit)
	sat := NewBody(model.Moon, "Beta", R/2, m, satOrbit)

	maxR := satOrbit.A / (1 + M/m)
	if maxR < 0.5*R {
		t.Fatalf("test setup: offset %v below threshold", maxR)
	}
	satSOI := satOrbit.A * math.Pow(m/M, 0.4)

	root := BuildSystem(central, []*Node{sat})

	if root.Kind() != KindBarycenter {
		t.Fatalf("root kind = %v, want barycenter", root.Kind())
	}
	if got, want := root.Name(), "Alpha - Beta Barycenter"; got != want {
		t.Fatalf("barycenter name = %q, want %q", got, want)
	}
	if got := root.SoiRadius(); got != UnboundedSOI {
		t.Fatalf("barycenter soi = %v, want -1", got)
	}
	if !root.IsRoot() {
		t.Fatalf("barycenter should be a root, parent = %v", root.Parent())
	}
	if root.Orbit() != centralOrbit {
		t.Fatalf("barycenter orbit = %+v, want central's original %+v", root.Orbit(), centralOrbit)
	}
	if !approxEqual(root.Radius(), maxR, 1e-12) || root.Mass() != M+m {
		t.Fatalf("barycenter radius/mass = %v/%v, want %v/%v", root.Radius(), root.Mass(), maxR, M+m)
	}
	if names := satelliteNames(root); len(names) != 2 || names[0] != "Alpha" || names[1] != "Beta" {
		t.Fatalf("barycenter satellites = %v, want [Alpha Beta]", names)
	}
	if central.Parent() != root || sat.Parent() != root {
		t.Fatalf("central/satellite parents = %v/%v, want barycenter", central.Parent(), sat.Parent())
	}

	co := central.Orbit()
	if !approxEqual(co.A, maxR, 1e-12) {
		t.Fatalf("central a = %v, want %v", co.A, maxR)
	}
	if !approxEqual(co.M0, satOrbit.M0+math.Pi, 1e-12) {
		t.Fatalf("central m0 = %v, want %v", co.M0, satOrbit.M0+math.Pi)
	}
	if co.E != satOrbit.E || co.Pomega != satOrbit.Pomega || co.N != satOrbit.N {
		t.Fatalf("central orbit = %+v, want dominant's shape %+v", co, satOrbit)
	}
	if !approxEqual(central.SoiRadius(), satOrbit.A-satSOI, 1e-12) {
		t.Fatalf("central soi = %v, want %v", central.SoiRadius(), satOrbit.A-satSOI)
	}
	if !approxEqual(sat.Orbit().A, satOrbit.A-maxR, 1e-12) {
		t.Fatalf("satellite a = %v, want %v", sat.Orbit().A, satOrbit.A-maxR)
	}
	if len(central.Satellites()) != 0 {
		t.Fatalf("central should keep no satellites, got %v", satelliteNames(central))
	}
	assertSortedTree(t, root)
}

func TestBuildSystemPartitionsInnerAndOuterSatellites(t *testing.T) {
	central := NewBody(model.Planet, "Primary", 1e-5, 1e24, model.OrbitalElements{})
	inner := NewBody(model.Moon, "Inner", 1e-7, 1e15, model.NewOrbitalElements(0.05, 0, 0, 0, 1))
	dominant := NewBody(model.Moon, "Dominant", 1e-6, 2e23, model.NewOrbitalElements(1, 0, 0, 0, 0.1))
	outer := NewBody(model.Moon, "Outer", 1e-7, 1e15, model.NewOrbitalElements(3, 0, 0, 0, 0.01))
	voyager := NewCraft("Voyager", model.NewOrbitalElements(0.02, 0.1, 0, 0, 2))

	// Deliberately unsorted.
	root := BuildSystem(central, []*Node{outer, dominant, voyager, inner})

	if root.Kind() != KindBarycenter {
		t.Fatalf("root kind = %v, want barycenter", root.Kind())
	}
	if got := satelliteNames(central); len(got) != 2 || got[0] != "Voyager" || got[1] != "Inner" {
		t.Fatalf("central satellites = %v, want [Voyager Inner]", got)
	}
	if inner.Parent() != central || voyager.Parent() != central {
		t.Fatalf("inner satellites should stay on the central body")
	}
	if got := satelliteNames(root); len(got) != 3 || got[0] != "Primary" || got[1] != "Dominant" || got[2] != "Outer" {
		t.Fatalf("barycenter satellites = %v, want [Primary Dominant Outer]", got)
	}
	if outer.Parent() != root {
		t.Fatalf("outer satellite parent = %v, want barycenter", outer.Parent())
	}
	if voyager.SoiRadius() != UnboundedSOI {
		t.Fatalf("craft soi = %v, want -1", voyager.SoiRadius())
	}
	assertSortedTree(t, root)
}

func TestBuildSystemSortsSatellites(t *testing.T) {
	central := NewBody(model.Star, "Sol", 0.00465, 1.989e30, model.OrbitalElements{})
	var sats []*Node
	for _, a := range []float64{30, 0.39, 5.2, 1, 0.72} {
		sats = append(sats, NewBody(model.Planet, "", 1e-5, 1e24, model.NewOrbitalElements(a, 0, 0, 0, 0.01)))
	}

	root := BuildSystem(central, sats)
	if root != central {
		t.Fatalf("root = %v, want star", root)
	}
	assertSortedTree(t, root)

	// Callers' slices are not reordered.
	if sats[0].Orbit().A != 30 {
		t.Fatalf("input slice was reordered")
	}
}

func TestBuildSystemNestedSubsystems(t *testing.T) {
	earth := NewBody(model.Planet, "Earth", 6371/AUKm, 5.972e24, model.ElementsFromDegrees(1, 0.0167, 102.9, 357.5, 365.256))
	moon := NewBody(model.Moon, "Moon", 1737/AUKm, 7.342e22, model.ElementsFromDegrees(384400/AUKm, 0.0549, 0, 135, 27.32))
	emb := BuildSystem(earth, []*Node{moon})
	if emb.Name() != "Earth - Moon Barycenter" {
		t.Fatalf("Earth subsystem root = %q, want barycenter", emb.Name())
	}

	sun := NewBody(model.Star, "Sun", 695700/AUKm, 1.989e30, model.OrbitalElements{})
	root := BuildSystem(sun, []*Node{emb})
	if root != sun || root.SoiRadius() != UnboundedSOI {
		t.Fatalf("solar root = %v soi %v, want Sun with -1", root, root.SoiRadius())
	}
	if emb.Parent() != sun {
		t.Fatalf("barycenter parent = %v, want Sun", emb.Parent())
	}
	// The outer level computes the barycenter's own sphere of influence.
	if emb.SoiRadius() <= 0 {
		t.Fatalf("barycenter soi at outer level = %v, want positive", emb.SoiRadius())
	}
	if Find(root, "Moon") != moon || Find(root, "Titan") != nil {
		t.Fatalf("Find returned unexpected results")
	}
	counts := Counts(root)
	if counts[KindBody] != 3 || counts[KindBarycenter] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	assertSortedTree(t, root)
}

func TestBuildSystemPreconditions(t *testing.T) {
	orbit := model.NewOrbitalElements(1, 0, 0, 0, 1)

	t.Run("twice", func(t *testing.T) {
		central := NewBody(model.Planet, "P", 1e6, 1e24, model.OrbitalElements{})
		BuildSystem(central, []*Node{NewBody(model.Moon, "m1", 1, 1e18, orbit)})
		mustPanicWith(t, ErrAlreadyConfigured, func() {
			BuildSystem(central, []*Node{NewBody(model.Moon, "m2", 1, 1e18, orbit)})
		})
	})
	t.Run("no satellites", func(t *testing.T) {
		central := NewBody(model.Planet, "P", 1e6, 1e24, model.OrbitalElements{})
		mustPanicWith(t, ErrNoSatellites, func() { BuildSystem(central, nil) })
	})
	t.Run("nil central", func(t *testing.T) {
		mustPanicWith(t, ErrInvalidNode, func() {
			BuildSystem(nil, []*Node{NewBody(model.Moon, "m", 1, 1, orbit)})
		})
	})
	t.Run("craft central", func(t *testing.T) {
		mustPanicWith(t, ErrInvalidNode, func() {
			BuildSystem(NewCraft("c", orbit), []*Node{NewBody(model.Moon, "m", 1, 1, orbit)})
		})
	})
	t.Run("satellite already attached", func(t *testing.T) {
		a := NewBody(model.Planet, "A", 1e6, 1e24, model.OrbitalElements{})
		b := NewBody(model.Planet, "B", 1e6, 1e24, model.OrbitalElements{})
		moon := NewBody(model.Moon, "m", 1, 1e18, orbit)
		BuildSystem(a, []*Node{moon})
		mustPanicWith(t, ErrInvalidNode, func() { BuildSystem(b, []*Node{moon}) })
	})
	t.Run("nil satellite", func(t *testing.T) {
		central := NewBody(model.Planet, "P", 1e6, 1e24, model.OrbitalElements{})
		mustPanicWith(t, ErrInvalidNode, func() { BuildSystem(central, []*Node{nil}) })
	})
	t.Run("self", func(t *testing.T) {
		central := NewBody(model.Planet, "P", 1e6, 1e24, model.OrbitalElements{})
		mustPanicWith(t, ErrInvalidNode, func() { BuildSystem(central, []*Node{central}) })
	})
}

func TestNewSystemMethod(t *testing.T) {
	central := NewBody(model.Planet, "P", 1e6, 1e24, model.OrbitalElements{})
	moon := NewBody(model.Moon, "m", 1, 1e18, model.NewOrbitalElements(1, 0, 0, 0, 1))
	if root := central.NewSystem([]*Node{moon}); root != central {
		t.Fatalf("NewSystem root = %v, want central", root)
	}
}

func TestSatellitesReturnsCopy(t *testing.T) {
	central := NewBody(model.Planet, "P", 1e6, 1e24, model.OrbitalElements{})
	moon := NewBody(model.Moon, "m", 1, 1e18, model.NewOrbitalElements(1, 0, 0, 0, 1))
	BuildSystem(central, []*Node{moon})

	sats := central.Satellites()
	sats[0] = nil
	if central.Satellites()[0] != moon {
		t.Fatalf("mutating the returned slice changed the tree")
	}
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestBuildSystemRecordsSpan(t *testing.T) {
	sr := recordSpans(t)

	plain := BuildSystem(
		NewBody(model.Planet, "Central", 1e6, 1e24, model.OrbitalElements{}),
		[]*Node{NewBody(model.Moon, "Pebble", 1, 1e18, model.NewOrbitalElements(1, 0.01, 0, 0, 0.1))},
	)
	bary := BuildSystem(
		NewBody(model.Planet, "Alpha", 1e-5, 1e24, model.OrbitalElements{}),
		[]*Node{NewBody(model.Moon, "Beta", 5e-6, 1e23, model.NewOrbitalElements(1, 0.02, 1.5, 0.7, 0.2))},
		WithBuildContext(context.Background()),
	)

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "core.BuildSystem" {
			t.Fatalf("span name = %q", s.Name())
		}
	}

	first := spanAttrs(spans[0])
	if first["system.central"].AsString() != "Central" || first["system.root"].AsString() != plain.Name() {
		t.Fatalf("plain build attributes = %v", first)
	}
	if _, ok := first["system.barycenter"]; ok {
		t.Fatalf("plain build should not report a barycenter: %v", first)
	}

	second := spanAttrs(spans[1])
	if second["system.dominant"].AsString() != "Beta" || second["system.barycenter"].AsString() != bary.Name() {
		t.Fatalf("barycenter build attributes = %v", second)
	}
	if second["system.satellites"].AsInt64() != 1 || second["system.root"].AsString() != "Alpha - Beta Barycenter" {
		t.Fatalf("barycenter build attributes = %v", second)
	}
}

func TestBuildSystemPanicsBeforeStartingSpan(t *testing.T) {
	sr := recordSpans(t)
	mustPanicWith(t, ErrNoSatellites, func() {
		BuildSystem(NewBody(model.Star, "Lonely", 1, 1, model.OrbitalElements{}), nil)
	})
	if n := len(sr.Started()); n != 0 {
		t.Fatalf("started spans = %d, want 0", n)
	}
}
