package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/signalsfoundry/orrery/model"
)

func TestMarshalJSONProjection(t *testing.T) {
	central := NewBody(model.Planet, "Alpha", 1e-5, 1e24, model.NewOrbitalElements(5, 0.05, 0.2, 0.3, 0.001))
	sat := NewBody(model.Moon, "Beta", 1e-6, 1e23, model.NewOrbitalElements(1, 0.02, 1.5, 0.7, 0.2))
	voyager := NewCraft("Voyager", model.NewOrbitalElements(3, 0, 0, 0, 0.05))
	root := BuildSystem(central, []*Node{sat, voyager})

	data, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := got["type"]; ok {
		t.Fatalf("barycenter projection should not carry a type: %s", data)
	}
	if got["name"] != "Alpha - Beta Barycenter" || got["soi"].(float64) != -1 {
		t.Fatalf("unexpected barycenter projection: %s", data)
	}
	orbit := got["orbit"].(map[string]any)
	for _, key := range []string{"a", "e", "pomega", "M0", "n"} {
		if _, ok := orbit[key]; !ok {
			t.Fatalf("orbit missing %q: %s", key, data)
		}
	}

	sats := got["satellites"].([]any)
	if len(sats) != 3 {
		t.Fatalf("barycenter satellites = %d, want 3: %s", len(sats), data)
	}
	alpha := sats[0].(map[string]any)
	if alpha["name"] != "Alpha" || alpha["type"].(float64) != float64(model.Planet) {
		t.Fatalf("first satellite = %v, want Alpha planet", alpha)
	}
	if _, ok := alpha["satellites"]; ok {
		t.Fatalf("empty satellites should be omitted: %v", alpha)
	}

	var craft map[string]any
	for _, s := range sats {
		if m := s.(map[string]any); m["name"] == "Voyager" {
			craft = m
		}
	}
	if craft == nil {
		t.Fatalf("craft missing from projection: %s", data)
	}
	if len(craft) != 2 {
		t.Fatalf("craft projection = %v, want only name and orbit", craft)
	}
}

func TestMarshalJSONBodyTypeLeads(t *testing.T) {
	body := NewBody(model.Comet, "Halley", 5.5/AUKm, 2.2e14, model.NewOrbitalElements(17.8, 0.967, 1.95, 0.67, 0.000228))
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"type":6,"name":"Halley"`) {
		t.Fatalf("projection = %s, want type first", data)
	}
}
