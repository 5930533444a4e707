package planner

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// KinematicLimits bounds what the planner may ask of the machine: a
// per-axis velocity ceiling, a per-axis acceleration ceiling, and the
// junction-smoothing parameters used at corners between segments.
type KinematicLimits struct {
	VMax              []float64
	AMax              []float64
	JunctionSpeed     float64
	JunctionDeviation float64
}

// LineSegment is a straight-line move between two points, carrying the
// velocity profile the planner has assigned it so far and the maximum
// scalar acceleration its direction permits under the per-axis limits.
type LineSegment struct {
	Parent  int
	Start   []float64
	End     []float64
	Unit    []float64
	Profile FirstOrder
	AMax    float64
}

// OtherEvent is a non-motion entry in a plan stream. It carries a velocity
// ceiling that lowers the rolling v0/v accumulators as the passes walk
// across it, but is never itself split or converted to motion.
type OtherEvent struct {
	V float64
}

// PlanItem is either a LineSegment or an OtherEvent flowing through the
// forward and backward passes.
type PlanItem interface {
	isPlanItem()
}

func (LineSegment) isPlanItem() {}
func (OtherEvent) isPlanItem()  {}

// limitVector returns the largest scalar a such that |a*v| <= l
// component-wise — the greatest uniform scale factor that keeps v inside
// the per-axis limit l.
func limitVector(v, l []float64) float64 {
	maxRatio := 0.0
	for i, vi := range v {
		ratio := math.Abs(vi) / l[i]
		if ratio > maxRatio {
			maxRatio = ratio
		}
	}
	return 1 / maxRatio
}

// limitValueByAxis returns the smallest |limit[i]/vector[i]| over every
// nonzero component of vector, or a very large sentinel if vector is zero.
func limitValueByAxis(limit, vector []float64) float64 {
	limitValue := 1e19
	for i, x := range vector {
		if x != 0 {
			if v := math.Abs(limit[i] / x); v < limitValue {
				limitValue = v
			}
		}
	}
	return limitValue
}

// lineSegmentFromGeo builds a LineSegment from two endpoints and
// entry/exit speeds, computing the unit direction and the acceleration
// ceiling that direction permits.
func lineSegmentFromGeo(parent int, v0, v1 float64, start, end []float64, kl KinematicLimits) (LineSegment, error) {
	v0, v1 = math.Abs(v0), math.Abs(v1)

	delta := make([]float64, len(end))
	floats.SubTo(delta, end, start)
	length := floats.Norm(delta, 2)

	profile, err := normalizeFirstOrder(&v0, &v1, nil, nil, &length)
	if err != nil {
		return LineSegment{}, err
	}

	unit := make([]float64, len(delta))
	for i, d := range delta {
		unit[i] = d / length
	}

	return LineSegment{
		Parent:  parent,
		Start:   start,
		End:     end,
		Unit:    unit,
		Profile: profile,
		AMax:    limitVector(unit, kl.AMax),
	}, nil
}

// computeJunctionVelocity mirrors grbl's corner-speed rule: the entry
// velocity a segment s may carry given the direction of the segment p
// before it. The second return value is false when there is no limit
// (p.Unit and s.Unit are collinear).
func computeJunctionVelocity(p, s LineSegment, limits KinematicLimits) (float64, bool) {
	junctionCos := -1 * floats.Dot(s.Unit, p.Unit)

	switch {
	case junctionCos > 0.9999:
		// Extremely sharp corner: segments run directly opposite each
		// other.
		return limits.JunctionSpeed, true
	case junctionCos < -0.9999:
		// Extremely shallow corner: effectively a straight line.
		return 0, false
	}

	junctionVect := make([]float64, len(s.Unit))
	floats.SubTo(junctionVect, s.Unit, p.Unit)
	norm := floats.Norm(junctionVect, 2)
	floats.Scale(1/norm, junctionVect)

	junctionAcceleration := limitValueByAxis(limits.AMax, junctionVect)
	sinThetaD2 := math.Sqrt(0.5 * (1.0 - junctionCos))
	junctionVelocity := (junctionAcceleration * limits.JunctionDeviation * sinThetaD2) / (1.0 - sinThetaD2)

	return math.Max(limits.JunctionSpeed, junctionVelocity), true
}
