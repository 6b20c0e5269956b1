package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/model"
)

func testSystem(t *testing.T) *core.Node {
	t.Helper()
	star := core.NewBody(model.Star, "Star", 0.001, 2e30, model.OrbitalElements{})
	planet := core.NewBody(model.Planet, "Planet", 0.00004, 6e24, model.NewOrbitalElements(1, 0.01, 0, 0, 0.0172))
	return core.BuildSystem(star, []*core.Node{planet})
}

func TestAddAndGetSystem(t *testing.T) {
	store := NewKnowledgeBase()
	root := testSystem(t)
	if err := store.AddSystem("s1", root); err != nil {
		t.Fatalf("AddSystem error: %v", err)
	}
	got, err := store.GetSystem("s1")
	if err != nil || got != root {
		t.Fatalf("GetSystem returned %v, %v; want %v", got, err, root)
	}
}

func TestAddSystemDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddSystem("s1", testSystem(t)); err != nil {
		t.Fatalf("first AddSystem error: %v", err)
	}
	err := store.AddSystem("s1", testSystem(t))
	if !errors.Is(err, ErrSystemExists) {
		t.Fatalf("duplicate AddSystem err = %v, want ErrSystemExists", err)
	}
}

func TestAddSystemValidation(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddSystem("", testSystem(t)); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := store.AddSystem("s1", nil); err == nil {
		t.Fatalf("expected error for nil root")
	}
}

func TestGetSystemNotFound(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.GetSystem("missing"); !errors.Is(err, ErrSystemNotFound) {
		t.Fatalf("GetSystem err = %v, want ErrSystemNotFound", err)
	}
}

func TestListSystemsSorted(t *testing.T) {
	store := NewKnowledgeBase()
	for _, name := range []string{"c", "a", "b"} {
		if err := store.AddSystem(name, testSystem(t)); err != nil {
			t.Fatalf("AddSystem(%s) error: %v", name, err)
		}
	}
	got := store.ListSystems()
	if fmt.Sprint(got) != "[a b c]" {
		t.Fatalf("ListSystems = %v, want [a b c]", got)
	}
}

func TestUpdateEphemerisAndSubscribe(t *testing.T) {
	store := NewKnowledgeBase()
	root := testSystem(t)
	if err := store.AddSystem("s1", root); err != nil {
		t.Fatalf("AddSystem error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	store.Subscribe(func(e Event) {
		got = e
		wg.Done()
	})

	eph := core.ComputeEphemeris("s1", root, core.J2000, core.PhysicalEpoch)
	if err := store.UpdateEphemeris(eph); err != nil {
		t.Fatalf("UpdateEphemeris error: %v", err)
	}

	wg.Wait()
	if got.Type != EventEphemerisUpdated || got.System != "s1" {
		t.Fatalf("got event %v for %q, want ephemeris-updated for s1", got.Type, got.System)
	}
	if got.Ephemeris == nil || len(got.Ephemeris.Bodies) != len(eph.Bodies) {
		t.Fatalf("event ephemeris = %+v, want %d bodies", got.Ephemeris, len(eph.Bodies))
	}
	latest, ok := store.Latest("s1")
	if !ok || latest.T != core.J2000 {
		t.Fatalf("Latest = %+v, %v", latest, ok)
	}
}

func TestUpdateEphemerisUnknownSystem(t *testing.T) {
	store := NewKnowledgeBase()
	err := store.UpdateEphemeris(model.Ephemeris{System: "nope"})
	if !errors.Is(err, ErrSystemNotFound) {
		t.Fatalf("err = %v, want ErrSystemNotFound", err)
	}
	if _, ok := store.Latest("nope"); ok {
		t.Fatalf("Latest should report no snapshot")
	}
}

func TestUnsubscribe(t *testing.T) {
	store := NewKnowledgeBase()
	calls := map[string]int{}
	unsubA := store.Subscribe(func(Event) { calls["a"]++ })
	store.Subscribe(func(Event) { calls["b"]++ })

	if err := store.AddSystem("s1", testSystem(t)); err != nil {
		t.Fatalf("AddSystem error: %v", err)
	}
	unsubA()
	unsubA()
	if err := store.AddSystem("s2", testSystem(t)); err != nil {
		t.Fatalf("AddSystem error: %v", err)
	}

	if calls["a"] != 1 || calls["b"] != 2 {
		t.Fatalf("calls = %v, want a=1 b=2", calls)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	root := testSystem(t)
	if err := store.AddSystem("s1", root); err != nil {
		t.Fatalf("AddSystem error: %v", err)
	}

	var wg sync.WaitGroup
	// Concurrent readers/writers
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.GetSystem("s1")
			_ = store.ListSystems()
			_, _ = store.Latest("s1")
		}()
		go func() {
			defer wg.Done()
			_ = store.UpdateEphemeris(core.ComputeEphemeris("s1", root, core.J2000+float64(i), core.PhysicalEpoch))
		}()
	}
	wg.Wait()
}
