package core

import (
	"math"

	"github.com/signalsfoundry/orrery/model"
)

// MotionModel yields a node's position relative to its parent for a time
// value interpreted by the model's own convention.
type MotionModel interface {
	PositionAt(t float64) model.Vector2D
}

// StaticMotionModel pins a node at a fixed offset from its parent. System
// roots use it.
type StaticMotionModel struct {
	Offset model.Vector2D
}

// PositionAt for static motion ignores t.
func (m *StaticMotionModel) PositionAt(float64) model.Vector2D { return m.Offset }

// KeplerMotionModel propagates closed Keplerian elements.
type KeplerMotionModel struct {
	Elements model.OrbitalElements
	Mode     PropagationMode
}

// PositionAt delegates to the package-level propagator.
func (m *KeplerMotionModel) PositionAt(t float64) model.Vector2D {
	return PositionAt(m.Elements, t, m.Mode)
}

// NewMotionModel chooses the motion model for a node: degenerate orbits are
// static at the parent's origin, everything else is Keplerian.
func NewMotionModel(n *Node, mode PropagationMode) MotionModel {
	if n.orbit.IsDegenerate() {
		return &StaticMotionModel{}
	}
	return &KeplerMotionModel{Elements: n.orbit, Mode: mode}
}

// AbsolutePositionAt sums relative positions from n up to its root.
func AbsolutePositionAt(n *Node, t float64, mode PropagationMode) model.Vector2D {
	var pos model.Vector2D
	for cur := n; cur != nil; cur = cur.parent {
		pos = pos.Add(NewMotionModel(cur, mode).PositionAt(t))
	}
	return pos
}

// ComputeEphemeris evaluates every node of the tree rooted at root at time
// t, in Walk order. It reads the frozen tree only and is safe for
// concurrent use.
func ComputeEphemeris(system string, root *Node, t float64, mode PropagationMode) model.Ephemeris {
	eph := model.Ephemeris{System: system, T: t, Mode: mode.String()}
	if root == nil {
		return eph
	}
	appendPositions(&eph, root, model.Vector2D{}, t, mode)
	return eph
}

func appendPositions(eph *model.Ephemeris, n *Node, origin model.Vector2D, t float64, mode PropagationMode) {
	rel := NewMotionModel(n, mode).PositionAt(t)
	abs := origin.Add(rel)

	period := Period(n.orbit)
	if math.IsInf(period, 0) {
		period = 0
	}
	parent := ""
	if n.parent != nil {
		parent = n.parent.name
	}
	eph.Bodies = append(eph.Bodies, model.BodyPosition{
		Name:     n.name,
		Parent:   parent,
		Kind:     n.kind.String(),
		Relative: rel,
		Absolute: abs,
		Radius:   n.radius,
		Period:   period,
	})
	for _, s := range n.satellites {
		appendPositions(eph, s, abs, t, mode)
	}
}
