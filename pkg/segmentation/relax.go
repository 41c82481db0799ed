package segmentation

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// energyWeights are the coefficients of the relaxation update
//
//	q' = q + beta*(c - q) + alpha*k1*T(q) + delta*k2*B(q)
//
// where c is the particle's chosen candidate, T the tension term and B the
// bending term.
type energyWeights struct {
	alpha, beta, delta float64
	k1, k2             float64
}

// relaxation holds the per-step inputs of the multi-point optimization.
// All slices are indexed by chain column.
type relaxation struct {
	weights   energyWeights
	neighbors [][2]int
	active    []int
	targets   []r3.Vec // candidate position per column
	previous  []r3.Vec // previous-row position projected onto the layer, nil unless considered
	layer     float64  // z every relaxed point is pinned to
}

// run performs exactly iters synchronous passes starting from the targets.
// Each pass reads only the positions produced by the previous pass.
func (r *relaxation) run(iters int) []r3.Vec {
	cur := make([]r3.Vec, len(r.targets))
	copy(cur, r.targets)
	next := make([]r3.Vec, len(r.targets))

	for it := 0; it < iters; it++ {
		copy(next, cur)
		for _, i := range r.active {
			next[i] = r.update(cur, i)
		}
		cur, next = next, cur
	}
	return cur
}

// update computes the new position of column i from positions q.
func (r *relaxation) update(q []r3.Vec, i int) r3.Vec {
	w := r.weights
	external := r3.Scale(w.beta, r3.Sub(r.targets[i], q[i]))
	internal := r3.Add(
		r3.Scale(w.alpha*w.k1, r.tension(q, i)),
		r3.Scale(w.delta*w.k2, r.bending(q, i)),
	)

	p := r3.Add(q[i], r3.Add(external, internal))
	p.Z = r.layer
	return p
}

// tension pulls a particle toward the midpoint of its neighbors, and toward
// its own previous position when that is considered.
func (r *relaxation) tension(q []r3.Vec, i int) r3.Vec {
	left, right := r.around(q, i, 1)
	if r.previous == nil {
		mid := r3.Scale(0.5, r3.Add(left, right))
		return r3.Sub(mid, q[i])
	}
	mid := r3.Scale(1.0/3, r3.Add(r3.Add(left, right), r.previous[i]))
	return r3.Sub(mid, q[i])
}

// bending is the negated discrete fourth difference over five particles,
// scaled by 1/8 so the explicit update stays stable with unit weights.
func (r *relaxation) bending(q []r3.Vec, i int) r3.Vec {
	l1, r1 := r.around(q, i, 1)
	l2, r2 := r.around(q, i, 2)

	d := r3.Add(l2, r2)
	d = r3.Sub(d, r3.Scale(4, r3.Add(l1, r1)))
	d = r3.Add(d, r3.Scale(6, q[i]))
	return r3.Scale(-1.0/8, d)
}

// around returns the positions dist steps to the left and right of column
// i along the active chain. Missing neighbors at the chain ends are
// extrapolated linearly, so a straight chain feels no internal force.
func (r *relaxation) around(q []r3.Vec, i, dist int) (left, right r3.Vec) {
	l1, r1 := r.neighbors[i][0], r.neighbors[i][1]

	var left1, right1 r3.Vec
	switch {
	case l1 >= 0 && r1 >= 0:
		left1, right1 = q[l1], q[r1]
	case l1 >= 0:
		left1 = q[l1]
		right1 = r3.Sub(r3.Scale(2, q[i]), left1)
	case r1 >= 0:
		right1 = q[r1]
		left1 = r3.Sub(r3.Scale(2, q[i]), right1)
	default:
		left1, right1 = q[i], q[i]
	}
	if dist == 1 {
		return left1, right1
	}

	left = r3.Sub(r3.Scale(2, left1), q[i])
	if l1 >= 0 {
		if l2 := r.neighbors[l1][0]; l2 >= 0 {
			left = q[l2]
		}
	}
	right = r3.Sub(r3.Scale(2, right1), q[i])
	if r1 >= 0 {
		if r2 := r.neighbors[r1][1]; r2 >= 0 {
			right = q[r2]
		}
	}
	return left, right
}
