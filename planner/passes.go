package planner

import "math"

// planSegment clamps s's entry velocity to v, subdividing it into an
// acceleration-limited head and a feasible tail when a needed to be
// re-profiled rather than simply ramping from v. reverse traverses the
// segment's own profile backward (used by the backward pass, where v is
// an exit velocity rather than an entry velocity).
func planSegment(s LineSegment, v float64, reverse bool) ([]LineSegment, error) {
	a := s.AMax
	p := s.Profile
	if reverse {
		p = p.reverse()
	}

	if p.V0 <= v {
		return []LineSegment{s}, nil
	}

	da := a - p.A
	dv := p.V0 - v
	if da <= 0 || p.T*da <= dv {
		var np FirstOrder
		var err error
		if reverse {
			neg := -1 * a
			np, err = normalizeFirstOrder(nil, &v, &neg, nil, &p.X)
		} else {
			av := a
			np, err = normalizeFirstOrder(&v, nil, &av, nil, &p.X)
		}
		if err != nil {
			return nil, err
		}
		return []LineSegment{{Parent: s.Parent, Start: s.Start, End: s.End, Unit: s.Unit, Profile: np, AMax: s.AMax}}, nil
	}

	t := dv / da
	firstProfile, err := normalizeFirstOrder(&v, nil, &a, &t, nil)
	if err != nil {
		return nil, err
	}
	secondX := p.X - firstProfile.X
	secondProfile, err := normalizeFirstOrder(&firstProfile.V, &p.V, nil, nil, &secondX)
	if err != nil {
		return nil, err
	}

	if reverse {
		firstProfile, secondProfile = secondProfile.reverse(), firstProfile.reverse()
	}

	crossing := make([]float64, len(s.Start))
	for i := range crossing {
		crossing[i] = s.Start[i] + s.Unit[i]*firstProfile.X
	}

	return []LineSegment{
		{Parent: s.Parent, Start: s.Start, End: crossing, Unit: s.Unit, Profile: firstProfile, AMax: s.AMax},
		{Parent: s.Parent, Start: crossing, End: s.End, Unit: s.Unit, Profile: secondProfile, AMax: s.AMax},
	}, nil
}

// forwardPass walks items once, clamping each segment's velocity and
// acceleration to the kinematic limits and the junction rule with the
// segment before it, then re-profiling its entry ramp against the rolling
// v0 ceiling via planSegment. OtherEvent entries only lower the ceiling.
func forwardPass(items []PlanItem, v0 float64, limits KinematicLimits) ([]PlanItem, error) {
	var out []PlanItem
	var prev *LineSegment

	for _, item := range items {
		if ev, ok := item.(OtherEvent); ok {
			v0 = math.Min(v0, ev.V)
			out = append(out, ev)
			continue
		}

		s := item.(LineSegment)
		p := s.Profile
		v := limitVector(s.Unit, limits.VMax)

		if prev != nil {
			if jv, ok := computeJunctionVelocity(*prev, s, limits); ok {
				v0 = math.Min(v0, jv)
			}
		}

		changed := false
		if p.V0 > v || p.V > v {
			nv0, nv := math.Min(p.V0, v), math.Min(p.V, v)
			np, err := normalizeFirstOrder(&nv0, &nv, nil, nil, &p.X)
			if err != nil {
				return nil, err
			}
			p, changed = np, true
		}
		if math.Abs(p.A) > s.AMax {
			na := s.AMax * p.A / math.Abs(p.A)
			np, err := normalizeFirstOrder(&p.V0, nil, &na, nil, &p.X)
			if err != nil {
				return nil, err
			}
			p, changed = np, true
		}
		if changed {
			s = LineSegment{Parent: s.Parent, Start: s.Start, End: s.End, Unit: s.Unit, Profile: p, AMax: s.AMax}
		}

		subs, err := planSegment(s, v0, false)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			v0 = sub.Profile.V
			out = append(out, sub)
		}
		prevCopy := s
		prev = &prevCopy
	}
	return out, nil
}

// backwardPass walks items from the end toward the start with a rolling
// exit-velocity ceiling v, re-profiling each segment's deceleration ramp,
// and returns the result flattened back into forward geometric order.
func backwardPass(items []PlanItem, v float64) ([]PlanItem, error) {
	n := len(items)
	perItem := make([][]PlanItem, n)

	for k := 0; k < n; k++ {
		i := n - k - 1
		item := items[i]
		if ev, ok := item.(OtherEvent); ok {
			perItem[i] = []PlanItem{ev}
			v = math.Min(v, ev.V)
			continue
		}

		s := item.(LineSegment)
		subs, err := planSegment(s, v, true)
		if err != nil {
			return nil, err
		}
		out := make([]PlanItem, len(subs))
		for j, sub := range subs {
			out[j] = sub
		}
		perItem[i] = out
		v = subs[0].Profile.V0
	}

	var flat []PlanItem
	for i := 0; i < n; i++ {
		flat = append(flat, perItem[i]...)
	}
	return flat, nil
}

// planSegments runs the forward pass once over segs, then chunks the
// result on every point where minimumSpeed reaches zero — meaning the
// chain can fully decelerate to rest regardless of what follows — running
// each chunk through the backward pass as soon as it closes.
func planSegments(segs []LineSegment, kl KinematicLimits, v0, v1 float64) ([]PlanItem, error) {
	items := make([]PlanItem, len(segs))
	for i, s := range segs {
		items[i] = s
	}
	forwarded, err := forwardPass(items, v0, kl)
	if err != nil {
		return nil, err
	}

	var result []PlanItem
	var prevChunk, chunk []PlanItem
	vStart, vEnd := v0, v0

	for _, item := range forwarded {
		if ev, ok := item.(OtherEvent); ok {
			chunk = append(chunk, ev)
			continue
		}
		s := item.(LineSegment)
		vEnd = minimumSpeed(vEnd, s.AMax, s.Profile.X)
		if vEnd == 0.0 {
			if len(prevChunk) > 0 {
				out, err := backwardPass(prevChunk, vStart)
				if err != nil {
					return nil, err
				}
				result = append(result, out...)
			}
			prevChunk = chunk
			chunk = []PlanItem{s}
			vStart = s.Profile.V0
			vEnd = minimumSpeed(vStart, s.AMax, s.Profile.X)
		} else {
			chunk = append(chunk, s)
		}
	}

	if len(prevChunk) > 0 {
		out, err := backwardPass(prevChunk, vStart)
		if err != nil {
			return nil, err
		}
		result = append(result, out...)
	}
	if len(chunk) > 0 {
		out, err := backwardPass(chunk, v1)
		if err != nil {
			return nil, err
		}
		result = append(result, out...)
	}
	return result, nil
}
