package core

import (
	"fmt"

	"github.com/signalsfoundry/orrery/model"
)

// G is the gravitational constant (m^3 kg^-1 s^-2).
const G = 6.6740831e-11

// UnboundedSOI marks a sphere of influence that is infinite or not
// applicable: system roots, barycenters and crafts.
const UnboundedSOI = -1.0

// Kind tags the variant of a Node.
type Kind int

const (
	KindBody Kind = iota
	KindBarycenter
	KindCraft
)

func (k Kind) String() string {
	switch k {
	case KindBody:
		return "body"
	case KindBarycenter:
		return "barycenter"
	case KindCraft:
		return "craft"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is an orbiting object in a system tree. Bodies and barycenters can be
// orbited; crafts only orbit.
//
// A Node is provisional until BuildSystem has configured it, and is frozen
// afterwards: only read accessors are exported.
type Node struct {
	kind  Kind
	btype model.BodyType
	name  string
	orbit model.OrbitalElements

	// parent is a non-owning back-reference; the parent owns satellites.
	parent *Node

	satellites []*Node
	radius     float64
	mass       float64
	soi        float64
	configured bool
}

// NewBody creates a provisional Body with the given physical constants and
// an orbit relative to its intended parent. Radius is in AU, mass in kg.
func NewBody(btype model.BodyType, name string, radius, mass float64, orbit model.OrbitalElements) *Node {
	return &Node{
		kind:   KindBody,
		btype:  btype,
		name:   name,
		radius: radius,
		mass:   mass,
		orbit:  orbit,
		soi:    UnboundedSOI,
	}
}

// NewCraft creates a provisional free-flying craft.
func NewCraft(name string, orbit model.OrbitalElements) *Node {
	return &Node{
		kind:  KindCraft,
		name:  name,
		orbit: orbit,
		soi:   UnboundedSOI,
	}
}

func (n *Node) Name() string                 { return n.name }
func (n *Node) Kind() Kind                   { return n.kind }
func (n *Node) Orbit() model.OrbitalElements { return n.orbit }
func (n *Node) Radius() float64              { return n.radius }
func (n *Node) Mass() float64                { return n.mass }
func (n *Node) GM() float64                  { return n.mass * G }

// Type returns the body classification; zero for barycenters and crafts.
func (n *Node) Type() model.BodyType { return n.btype }

// Parent returns the node this one orbits, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// SoiRadius returns the sphere-of-influence radius, or UnboundedSOI.
func (n *Node) SoiRadius() float64 { return n.soi }

// Satellites returns the nodes orbiting n, ordered by semi-major axis.
// The slice is a copy; the nodes themselves are shared.
func (n *Node) Satellites() []*Node {
	if len(n.satellites) == 0 {
		return nil
	}
	out := make([]*Node, len(n.satellites))
	copy(out, n.satellites)
	return out
}

// PositionAt returns the position relative to the parent at Julian Day jd.
func (n *Node) PositionAt(jd float64) model.Vector2D {
	return PositionAt(n.orbit, jd, PhysicalEpoch)
}

// PositionAtMode is PositionAt with an explicit time convention.
func (n *Node) PositionAtMode(t float64, mode PropagationMode) model.Vector2D {
	return PositionAt(n.orbit, t, mode)
}

// Period returns the orbital period in the time unit of n, +Inf when n = 0.
func (n *Node) Period() float64 { return Period(n.orbit) }

func (n *Node) String() string {
	return fmt.Sprintf("[%s %s]", n.kind, n.name)
}

// Walk visits root and every descendant depth-first, parents before their
// satellites and satellites in semi-major axis order. Returning false from
// fn skips that node's satellites.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, s := range root.satellites {
		Walk(s, fn)
	}
}

// Find returns the first node named name under root, or nil.
func Find(root *Node, name string) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.name == name {
			found = n
			return false
		}
		return true
	})
	return found
}

// Counts tallies the nodes of a tree by kind.
func Counts(root *Node) map[Kind]int {
	counts := make(map[Kind]int, 3)
	Walk(root, func(n *Node) bool {
		counts[n.kind]++
		return true
	})
	return counts
}
