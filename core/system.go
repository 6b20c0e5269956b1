package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orrery/internal/logging"
)

var (
	// ErrAlreadyConfigured indicates BuildSystem ran twice on the same body.
	ErrAlreadyConfigured = errors.New("system already configured")
	// ErrNoSatellites indicates BuildSystem was called without satellites.
	ErrNoSatellites = errors.New("system requires at least one satellite")
	// ErrInvalidNode indicates a nil, misplaced or wrongly-typed node.
	ErrInvalidNode = errors.New("invalid node")
)

// PreconditionError is the panic value raised by BuildSystem when its
// inputs violate the construction contract. It is a programming error in
// static system data, never a runtime condition.
type PreconditionError struct {
	Node string
	Err  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("build system %q: %v", e.Node, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

type buildConfig struct {
	ctx context.Context
	log logging.Logger
}

// BuildOption customises BuildSystem.
type BuildOption func(*buildConfig)

// WithBuildLogger logs every hierarchy decision at debug level.
func WithBuildLogger(log logging.Logger) BuildOption {
	return func(c *buildConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBuildContext sets the context used for log records and as the parent
// of the core.BuildSystem span.
func WithBuildContext(ctx context.Context) BuildOption {
	return func(c *buildConfig) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// NewSystem is BuildSystem with central as the receiver.
func (central *Node) NewSystem(satellites []*Node, opts ...BuildOption) *Node {
	return BuildSystem(central, satellites, opts...)
}

// BuildSystem attaches satellites to central and returns the root of the
// resulting subtree: central itself, or a synthetic barycenter when the
// two-body offset of the dominant satellite is significant compared to the
// central body's radius.
//
// It runs once per central body; violated preconditions panic with a
// *PreconditionError. The nodes must not be observed concurrently while it
// runs and are frozen once it returns.
func BuildSystem(central *Node, satellites []*Node, opts ...BuildOption) *Node {
	cfg := buildConfig{ctx: context.Background(), log: logging.Noop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	checkPreconditions(central, satellites)

	_, span := otel.Tracer(tracerName).Start(cfg.ctx, "core.BuildSystem",
		trace.WithAttributes(
			attribute.String("system.central", central.name),
			attribute.Int("system.satellites", len(satellites)),
		))
	defer span.End()

	sats := make([]*Node, len(satellites))
	copy(sats, satellites)
	sortByA(sats)

	var dominant *Node
	maxR := 0.0
	for _, s := range sats {
		s.parent = central
		s.configured = true
		if s.kind == KindCraft {
			continue
		}

		s.soi = s.orbit.A * math.Pow(s.mass/central.mass, 0.4)

		// Offset of the two-body barycenter from the central body.
		r := s.orbit.A / (1 + central.mass/s.mass)
		if r > maxR {
			maxR = r
			dominant = s
		}
	}
	central.configured = true

	span.SetAttributes(attribute.Float64("system.barycenter_offset", maxR))
	if dominant != nil {
		span.SetAttributes(attribute.String("system.dominant", dominant.name))
	}

	if dominant == nil || maxR < 0.5*central.radius {
		span.SetAttributes(attribute.String("system.root", central.name))
		central.soi = UnboundedSOI
		central.satellites = sats
		cfg.log.Debug(cfg.ctx, "system root is central body",
			logging.String("central", central.name),
			logging.Int("satellites", len(sats)),
			logging.Float64("barycenter_offset", maxR),
		)
		return central
	}

	// The barycenter's radius and mass are approximations.
	bc := &Node{
		kind:       KindBarycenter,
		name:       fmt.Sprintf("%s - %s Barycenter", central.name, dominant.name),
		orbit:      central.orbit,
		radius:     maxR,
		mass:       central.mass + dominant.mass,
		soi:        UnboundedSOI,
		configured: true,
	}

	boundary := dominant.orbit.A - dominant.soi
	inner := []*Node{}
	outer := []*Node{central}
	for _, s := range sats {
		if s.orbit.A < boundary {
			inner = append(inner, s)
		} else {
			outer = append(outer, s)
			s.parent = bc
		}
	}

	dominantOrbit := dominant.orbit

	central.parent = bc
	central.soi = boundary
	central.satellites = inner
	central.orbit = dominantOrbit
	central.orbit.A = maxR
	central.orbit.M0 += math.Pi // opposite side of the barycenter

	dominant.orbit.A -= maxR

	sortByA(outer)
	bc.satellites = outer
	span.SetAttributes(
		attribute.String("system.root", bc.name),
		attribute.String("system.barycenter", bc.name),
		attribute.Int("system.inner", len(inner)),
	)

	cfg.log.Debug(cfg.ctx, "barycenter inserted",
		logging.String("barycenter", bc.name),
		logging.Float64("offset", maxR),
		logging.Float64("central_soi", boundary),
		logging.Int("inner", len(inner)),
		logging.Int("outer", len(outer)),
	)
	return bc
}

func checkPreconditions(central *Node, satellites []*Node) {
	if central == nil {
		panic(&PreconditionError{Err: fmt.Errorf("%w: nil central body", ErrInvalidNode)})
	}
	if central.kind != KindBody {
		panic(&PreconditionError{Node: central.name, Err: fmt.Errorf("%w: central node is a %s", ErrInvalidNode, central.kind)})
	}
	if central.configured || central.satellites != nil {
		panic(&PreconditionError{Node: central.name, Err: ErrAlreadyConfigured})
	}
	if central.parent != nil {
		panic(&PreconditionError{Node: central.name, Err: fmt.Errorf("%w: central body already orbits %q", ErrInvalidNode, central.parent.name)})
	}
	if len(satellites) < 1 {
		panic(&PreconditionError{Node: central.name, Err: ErrNoSatellites})
	}
	seen := make(map[*Node]bool, len(satellites))
	for _, s := range satellites {
		switch {
		case s == nil:
			panic(&PreconditionError{Node: central.name, Err: fmt.Errorf("%w: nil satellite", ErrInvalidNode)})
		case s == central:
			panic(&PreconditionError{Node: central.name, Err: fmt.Errorf("%w: body cannot orbit itself", ErrInvalidNode)})
		case s.parent != nil:
			panic(&PreconditionError{Node: central.name, Err: fmt.Errorf("%w: %q already orbits %q", ErrInvalidNode, s.name, s.parent.name)})
		case seen[s]:
			panic(&PreconditionError{Node: central.name, Err: fmt.Errorf("%w: %q listed twice", ErrInvalidNode, s.name)})
		}
		seen[s] = true
	}
}

func sortByA(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].orbit.A < nodes[j].orbit.A
	})
}
