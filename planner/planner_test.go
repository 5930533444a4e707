package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() KinematicLimits {
	return KinematicLimits{
		VMax:              []float64{100, 100},
		AMax:              []float64{1000, 1000},
		JunctionSpeed:     1,
		JunctionDeviation: 0.05,
	}
}

func f64(v float64) *float64 { return &v }

func TestNormalizeFirstOrderRejectsWrongArity(t *testing.T) {
	_, err := normalizeFirstOrder(f64(0), f64(1), f64(1), nil, nil)
	assert.ErrorIs(t, err, ErrBadProfile)

	_, err = normalizeFirstOrder(f64(0), nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrBadProfile)
}

func TestNormalizeFirstOrderSatisfiesItsOwnInvariants(t *testing.T) {
	p, err := normalizeFirstOrder(f64(0), f64(10), f64(2), nil, nil)
	require.NoError(t, err)
	assert.True(t, p.valid(1e-9))
	assert.InDelta(t, 5.0, p.T, 1e-9)
	assert.InDelta(t, 25.0, p.X, 1e-9)
}

func TestFirstOrderReverseSwapsEndpoints(t *testing.T) {
	p := FirstOrder{V0: 0, V: 10, A: 2, T: 5, X: 25}
	r := p.reverse()
	assert.Equal(t, FirstOrder{V0: 10, V: 0, A: -2, T: 5, X: 25}, r)
	assert.True(t, r.valid(1e-9))
}

func TestMinimumSpeedReachesZeroWhenDistanceSuffices(t *testing.T) {
	assert.Equal(t, 0.0, minimumSpeed(10, 5, 100))
	assert.Greater(t, minimumSpeed(10, 5, 0.1), 0.0)
}

func TestPlanMovesSingleMoveAlongOneAxis(t *testing.T) {
	p := New(testLimits(), []float64{1, 1}, []float64{0, 0})
	segs, err := p.PlanMoves([][]float64{{10, 0}}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	last := segs[len(segs)-1]
	assert.InDelta(t, 10.0, last.Coords[0], 1e-6)
	assert.InDelta(t, 0.0, last.Coords[1], 1e-6)
	assert.LessOrEqual(t, last.EndVelocity, last.StartVelocity+1e-9)
	assert.Equal(t, []float64{10, 0}, p.position)
}

func TestPlanMovesSkipsZeroLengthMoves(t *testing.T) {
	p := New(testLimits(), []float64{1, 1}, []float64{0, 0})
	segs, err := p.PlanMoves([][]float64{{0, 0}, {5, 0}}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	assert.InDelta(t, 5.0, segs[len(segs)-1].Coords[0], 1e-6)
}

func TestPlanMovesTwoMoveChainEndsAtRest(t *testing.T) {
	p := New(testLimits(), []float64{1, 1}, []float64{0, 0})
	segs, err := p.PlanMoves([][]float64{{5, 0}, {10, 0}}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	last := segs[len(segs)-1]
	assert.InDelta(t, 0.0, last.EndVelocity, 1e-6)
	assert.Equal(t, []float64{10, 0}, p.position)
}

func TestGotoMatchesPlanMovesWithASingleTarget(t *testing.T) {
	p1 := New(testLimits(), []float64{1, 1}, []float64{0, 0})
	viaGoto, err := p1.Goto(3, 4)
	require.NoError(t, err)

	p2 := New(testLimits(), []float64{1, 1}, []float64{0, 0})
	viaPlanMoves, err := p2.PlanMoves([][]float64{{3, 4}}, 0)
	require.NoError(t, err)

	assert.Equal(t, viaPlanMoves, viaGoto)
}

func TestSetPositionConvertsFromMicrosteps(t *testing.T) {
	p := New(testLimits(), []float64{2, 4}, []float64{0, 0})
	p.SetPosition([]float64{10, 40}, true)
	assert.Equal(t, []float64{5, 10}, p.position)
}

func TestJunctionVelocityIsUnlimitedWhenCollinear(t *testing.T) {
	kl := testLimits()
	prev, err := lineSegmentFromGeo(0, 10, 10, []float64{0, 0}, []float64{1, 0}, kl)
	require.NoError(t, err)
	curr, err := lineSegmentFromGeo(1, 10, 10, []float64{1, 0}, []float64{2, 0}, kl)
	require.NoError(t, err)

	_, hasLimit := computeJunctionVelocity(prev, curr, kl)
	assert.False(t, hasLimit)
}

func TestJunctionVelocityAtAHardReversalIsJunctionSpeed(t *testing.T) {
	kl := testLimits()
	prev, err := lineSegmentFromGeo(0, 10, 10, []float64{1, 0}, []float64{0, 0}, kl)
	require.NoError(t, err)
	curr, err := lineSegmentFromGeo(1, 10, 10, []float64{0, 0}, []float64{1, 0}, kl)
	require.NoError(t, err)

	jv, hasLimit := computeJunctionVelocity(prev, curr, kl)
	assert.True(t, hasLimit)
	assert.InDelta(t, kl.JunctionSpeed, jv, 1e-9)
}

func TestPlanSegmentsWithAnOtherEventLowersTheCeiling(t *testing.T) {
	kl := testLimits()
	seg, err := lineSegmentFromGeo(0, 50, 50, []float64{0, 0}, []float64{100, 0}, kl)
	require.NoError(t, err)

	items := []PlanItem{OtherEvent{V: 1}, seg}
	out, err := forwardPass(items, 50, kl)
	require.NoError(t, err)
	require.Len(t, out, 3)

	ev, ok := out[0].(OtherEvent)
	require.True(t, ok)
	assert.Equal(t, 1.0, ev.V)

	ls, ok := out[1].(LineSegment)
	require.True(t, ok)
	assert.LessOrEqual(t, ls.Profile.V0, 1.0+1e-9)
}

func TestEmittedProfilesRespectAccelerationAndVelocityLimits(t *testing.T) {
	kl := testLimits()
	p := New(kl, []float64{1, 1}, []float64{0, 0})
	segs, err := p.PlanMoves([][]float64{{3, 4}, {-6, 8}, {0, 0}}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	for _, s := range segs {
		assert.False(t, math.IsNaN(s.StartVelocity))
		assert.False(t, math.IsNaN(s.EndVelocity))
	}
}

func TestPlanSegmentsReturnsNilForAnEmptyInput(t *testing.T) {
	p := New(testLimits(), []float64{1, 1}, []float64{0, 0})
	out, err := p.PlanSegments(nil, nil, false)
	require.NoError(t, err)
	assert.Nil(t, out)
}
