// Package planner converts geometric moves into kinematically feasible
// trapezoidal velocity profiles suitable for firmware consumption. It runs
// entirely offline: it holds no connection and does no I/O, just geometry
// and the first-order motion algebra.
package planner

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dkellgren/motionctl/internal/wire"
)

// Planner tracks the machine's current position and converts successive
// targets into wire.Segment records via the forward/backward velocity
// passes.
type Planner struct {
	limits     KinematicLimits
	microsteps []float64
	position   []float64
}

// New constructs a Planner. position is in the planner's own continuous
// units (not microsteps).
func New(limits KinematicLimits, microsteps []float64, position []float64) *Planner {
	return &Planner{limits: limits, microsteps: microsteps, position: position}
}

// SetPosition overrides the planner's idea of where the machine currently
// is. When inMicrosteps is true, p is divided component-wise by the
// configured microsteps first.
func (p *Planner) SetPosition(pos []float64, inMicrosteps bool) {
	if inMicrosteps {
		converted := make([]float64, len(pos))
		for i, x := range pos {
			converted[i] = x / p.microsteps[i]
		}
		pos = converted
	}
	p.position = pos
}

// nominalVelocity is the speed used for a move when the caller doesn't ask
// for a specific one: fast enough that every axis limit, not the move
// itself, ends up doing the clamping.
func (p *Planner) nominalVelocity() float64 {
	max := 0.0
	for _, v := range p.limits.VMax {
		if v > max {
			max = v
		}
	}
	return math.Sqrt(float64(len(p.limits.VMax))) * max
}

// Goto plans a single move from the current position to target, starting
// and ending at rest, with the planner's nominal velocity as the cruise
// speed.
func (p *Planner) Goto(target ...float64) ([]wire.Segment, error) {
	return p.PlanMoves([][]float64{target}, 0)
}

// PlanMoves plans a chain of absolute-position moves starting from the
// planner's current position, updating it to the last move on return.
// nominalV <= 0 selects the planner's nominal velocity.
func (p *Planner) PlanMoves(moves [][]float64, nominalV float64) ([]wire.Segment, error) {
	v := nominalV
	if v <= 0 {
		v = p.nominalVelocity()
	}

	var segs []LineSegment
	prev := p.position
	for i, m := range moves {
		delta := make([]float64, len(m))
		floats.SubTo(delta, m, prev)
		if floats.Dot(delta, delta) == 0.0 {
			continue
		}
		seg, err := lineSegmentFromGeo(i, v, v, prev, m, p.limits)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		prev = m
	}
	p.position = prev

	items, err := planSegments(segs, p.limits, 0, 0)
	if err != nil {
		return nil, err
	}
	return p.emit(items), nil
}

// PlanSegments re-plans a list of pre-built wire segments against offset
// (applied to each target's coordinates), using each segment's declared
// start/end velocity as its initial profile's entry/exit speed unless it
// is <= 0, in which case the planner's nominal velocity is used instead;
// the passes then clamp those profiles, and the plan as a whole starts
// and ends at rest. adjustVelocity is
// accepted for parity with the target's segment-list shape but does not
// change the planning behavior.
func (p *Planner) PlanSegments(events []wire.Segment, offset []float64, adjustVelocity bool) ([]wire.Segment, error) {
	v := p.nominalVelocity()

	var segs []LineSegment
	prev := p.position
	for _, s := range events {
		m := make([]float64, len(s.Coords))
		if offset != nil {
			floats.AddTo(m, s.Coords, offset)
		} else {
			copy(m, s.Coords)
		}

		delta := make([]float64, len(m))
		floats.SubTo(delta, m, prev)
		if floats.Dot(delta, delta) == 0.0 {
			continue
		}

		v0, v1 := v, v
		if s.StartVelocity > 0 {
			v0 = s.StartVelocity
		}
		if s.EndVelocity > 0 {
			v1 = s.EndVelocity
		}

		seg, err := lineSegmentFromGeo(int(s.MoveID), v0, v1, prev, m, p.limits)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		prev = m
	}
	p.position = prev

	if len(segs) == 0 {
		return nil, nil
	}

	items, err := planSegments(segs, p.limits, 0, 0)
	if err != nil {
		return nil, err
	}
	return p.emit(items), nil
}

// emit converts finalized LineSegments into wire.Segment records, scaling
// velocities from the planner's continuous units to the firmware's
// steps-per-microsecond convention. OtherEvent entries have no wire
// representation and are dropped here; they exist only to shape the
// passes' rolling velocity ceilings.
func (p *Planner) emit(items []PlanItem) []wire.Segment {
	var out []wire.Segment
	for _, item := range items {
		s, ok := item.(LineSegment)
		if !ok {
			continue
		}
		scaled := make([]float64, len(s.Unit))
		for i, u := range s.Unit {
			scaled[i] = u * p.microsteps[i]
		}
		vScale := floats.Norm(scaled, 2) * 1e-6

		coords := make([]float64, len(s.End))
		for i, e := range s.End {
			coords[i] = e * p.microsteps[i]
		}

		out = append(out, wire.Segment{
			MoveID:        uint32(s.Parent),
			MoveFlag:      0,
			StartVelocity: s.Profile.V0 * vScale,
			EndVelocity:   s.Profile.V * vScale,
			Coords:        coords,
		})
	}
	return out
}
