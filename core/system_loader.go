package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/orrery/model"
)

// AUKm is the astronomical unit in kilometres.
const AUKm = 149597870.7

const tracerName = "github.com/signalsfoundry/orrery/core"

// LoadSystem decodes a JSON system definition from r and builds its
// hierarchy bottom-up.
//
// Malformed JSON and invalid definitions are returned as errors. Structural
// violations detected by BuildSystem still panic.
func LoadSystem(ctx context.Context, r io.Reader, opts ...BuildOption) (*Node, error) {
	_, root, err := LoadDefinition(ctx, r, opts...)
	return root, err
}

// LoadDefinition is LoadSystem that also returns the decoded definition.
// Systems are registered under the definition's name, which differs from
// the root's name when a barycenter is inserted.
func LoadDefinition(ctx context.Context, r io.Reader, opts ...BuildOption) (*model.SystemDefinition, *Node, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.LoadSystem")
	defer span.End()

	var def model.SystemDefinition
	if err := json.NewDecoder(r).Decode(&def); err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("LoadSystem: decode failed: %w", err)
	}

	opts = append([]BuildOption{WithBuildContext(ctx)}, opts...)
	root, err := BuildFromDefinition(&def, opts...)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	counts := Counts(root)
	span.SetAttributes(
		attribute.String("system.root", root.Name()),
		attribute.Int("system.bodies", counts[KindBody]),
		attribute.Int("system.barycenters", counts[KindBarycenter]),
		attribute.Int("system.crafts", counts[KindCraft]),
	)
	return &def, root, nil
}

// BuildFromDefinition validates def and builds it. Each nested definition
// that has satellites of its own is built first, so the enclosing level
// sees that subtree's root (body or barycenter) as its satellite.
func BuildFromDefinition(def *model.SystemDefinition, opts ...BuildOption) (*Node, error) {
	if err := validateDefinition(def, ""); err != nil {
		return nil, err
	}
	return buildDefinition(def, opts), nil
}

func buildDefinition(def *model.SystemDefinition, opts []BuildOption) *Node {
	btype, _ := model.ParseBodyType(def.Type)
	node := NewBody(btype, def.Name, def.RadiusKm/AUKm, def.Mass, def.Orbit.Elements())

	children := make([]*Node, 0, len(def.Satellites)+len(def.Crafts))
	for _, sat := range def.Satellites {
		children = append(children, buildDefinition(sat, opts))
	}
	for _, c := range def.Crafts {
		children = append(children, NewCraft(c.Name, c.Orbit.Elements()))
	}
	if len(children) == 0 {
		return node
	}
	return BuildSystem(node, children, opts...)
}

func validateDefinition(def *model.SystemDefinition, path string) error {
	if def == nil {
		return fmt.Errorf("LoadSystem: %snil definition", prefix(path))
	}
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("LoadSystem: %sbody with empty name", prefix(path))
	}
	path = joinPath(path, def.Name)
	if _, err := model.ParseBodyType(def.Type); err != nil {
		return fmt.Errorf("LoadSystem: %s%w", prefix(path), err)
	}
	if def.Mass < 0 || def.RadiusKm < 0 {
		return fmt.Errorf("LoadSystem: %snegative mass or radius", prefix(path))
	}
	// Satellite spheres of influence divide by the central mass.
	if len(def.Satellites) > 0 && def.Mass <= 0 {
		return fmt.Errorf("LoadSystem: %sbody with satellites needs a positive mass", prefix(path))
	}
	if err := validateOrbit(def.Orbit); err != nil {
		return fmt.Errorf("LoadSystem: %s%w", prefix(path), err)
	}
	for _, sat := range def.Satellites {
		if err := validateDefinition(sat, path); err != nil {
			return err
		}
	}
	for _, c := range def.Crafts {
		if c == nil || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("LoadSystem: %scraft with empty name", prefix(path))
		}
		if err := validateOrbit(c.Orbit); err != nil {
			return fmt.Errorf("LoadSystem: %s: %w", joinPath(path, c.Name), err)
		}
	}
	return nil
}

// validateOrbit accepts closed orbits only, 0 <= e < 1.
func validateOrbit(o model.ElementsDefinition) error {
	if o.E < 0 || o.E >= 1 {
		return fmt.Errorf("eccentricity %v outside [0, 1)", o.E)
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}

func prefix(path string) string {
	if path == "" {
		return ""
	}
	return path + ": "
}
