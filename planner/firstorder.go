package planner

import "math"

// FirstOrder is a constant-acceleration velocity profile: initial velocity
// v0, final velocity v, acceleration a, duration t, and distance x. Any
// three of the five determine the other two via v = v0 + a*t and
// x = t*(v0+v)/2.
type FirstOrder struct {
	V0, V, A, T, X float64
}

// normalizeFirstOrder fills in a FirstOrder from exactly three of its five
// components, given as optional (nil-able) arguments. It mirrors the ten
// cases of the relation directly rather than solving symbolically.
func normalizeFirstOrder(v0, v, a, t, x *float64) (FirstOrder, error) {
	known := 0
	for _, p := range [...]*float64{v0, v, a, t, x} {
		if p != nil {
			known++
		}
	}
	if known != 3 {
		return FirstOrder{}, ErrBadProfile
	}

	if v0 == nil {
		switch {
		case v == nil: // a, t, x known
			vv0 := *x / *t - *a * *t / 2
			return FirstOrder{vv0, vv0 + *a**t, *a, *t, *x}, nil
		case a == nil: // v, t, x known
			vv0 := 2 * *x / *t - *v
			return FirstOrder{vv0, *v, (*v - vv0) / *t, *t, *x}, nil
		case t == nil: // v, a, x known
			vv0 := math.Sqrt(*v**v - 2**a**x)
			return FirstOrder{vv0, *v, *a, (*v - vv0) / *a, *x}, nil
		default: // x == nil: v, a, t known
			vv0 := *v - *a**t
			return FirstOrder{vv0, *v, *a, *t, *t * (vv0 + *v) / 2}, nil
		}
	}

	if v == nil {
		switch {
		case a == nil: // v0, t, x known
			vv := 2 * *x / *t - *v0
			return FirstOrder{*v0, vv, (vv - *v0) / *t, *t, *x}, nil
		case t == nil: // v0, a, x known
			vv := math.Sqrt(*v0**v0 + 2**a**x)
			return FirstOrder{*v0, vv, *a, (vv - *v0) / *a, *x}, nil
		default: // x == nil: v0, a, t known
			vv := *v0 + *a**t
			return FirstOrder{*v0, vv, *a, *t, *t * (*v0 + vv) / 2}, nil
		}
	}

	if a == nil {
		switch {
		case t == nil: // v0, v, x known
			tt := 2 * *x / (*v0 + *v)
			return FirstOrder{*v0, *v, (*v - *v0) / tt, tt, *x}, nil
		default: // x == nil: v0, v, t known
			aa := (*v - *v0) / *t
			return FirstOrder{*v0, *v, aa, *t, *t * (*v0 + *v) / 2}, nil
		}
	}

	// v0, v, a known; t and x both unknown.
	tt := (*v - *v0) / *a
	return FirstOrder{*v0, *v, *a, tt, tt * (*v0 + *v) / 2}, nil
}

// reverse returns the profile traversed backward: start and end velocities
// swap and acceleration negates, duration and distance are unchanged.
func (f FirstOrder) reverse() FirstOrder {
	return FirstOrder{V0: f.V, V: f.V0, A: -f.A, T: f.T, X: f.X}
}

// valid reports whether f satisfies its defining relations within epsilon.
func (f FirstOrder) valid(epsilon float64) bool {
	if math.Abs(f.V0+f.A*f.T-f.V) >= epsilon {
		return false
	}
	return math.Abs(f.T*(f.V+f.V0)-2*f.X) < epsilon
}

// minimumSpeed answers: starting at v0 and decelerating at amax, how fast
// are we still going after traveling x — or 0 if we come to a complete
// stop before then.
func minimumSpeed(v0, amax, x float64) float64 {
	if 0.5*v0*v0/amax <= x {
		return 0.0
	}
	return math.Sqrt(v0*v0 - 2*amax*x)
}
