package models

import "gonum.org/v1/gonum/spatial/r3"

// Particle is one tracked point of a chain.
type Particle struct {
	Position r3.Vec
	Active   bool
}

// Chain is the ordered row of particles that represents the current
// cross-section of the surface. Particles live in a flat arena addressed by
// their column index; the column a particle occupies never changes.
type Chain struct {
	particles []Particle
}

// NewChain seeds a chain from one row of points. Undefined points start
// out inactive so the column is kept as a placeholder.
func NewChain(points []r3.Vec) *Chain {
	c := &Chain{particles: make([]Particle, len(points))}
	for i, p := range points {
		c.particles[i] = Particle{Position: p, Active: IsDefined(p)}
	}
	return c
}

// Len is the fixed number of columns.
func (c *Chain) Len() int { return len(c.particles) }

// At returns the particle in column i.
func (c *Chain) At(i int) Particle { return c.particles[i] }

// Position returns the position of column i.
func (c *Chain) Position(i int) r3.Vec { return c.particles[i].Position }

// IsActive reports whether column i is still tracked.
func (c *Chain) IsActive(i int) bool { return c.particles[i].Active }

// SetPosition moves an active particle. Inactive particles are left alone.
func (c *Chain) SetPosition(i int, p r3.Vec) {
	if c.particles[i].Active {
		c.particles[i].Position = p
	}
}

// Deactivate stops tracking column i for the rest of the run.
func (c *Chain) Deactivate(i int) {
	c.particles[i].Active = false
}

// ActiveCount is the number of tracked particles.
func (c *Chain) ActiveCount() int {
	n := 0
	for _, p := range c.particles {
		if p.Active {
			n++
		}
	}
	return n
}

// ActiveIndices returns the columns of all active particles in order.
func (c *Chain) ActiveIndices() []int {
	idx := make([]int, 0, len(c.particles))
	for i, p := range c.particles {
		if p.Active {
			idx = append(idx, i)
		}
	}
	return idx
}

// Neighbors returns, for every column, the column of the nearest active
// particle on either side, or -1 when there is none. Inactive columns get
// {-1, -1}.
func (c *Chain) Neighbors() [][2]int {
	nb := make([][2]int, len(c.particles))
	prev := -1
	for i, p := range c.particles {
		nb[i] = [2]int{-1, -1}
		if !p.Active {
			continue
		}
		nb[i][0] = prev
		if prev >= 0 {
			nb[prev][1] = i
		}
		prev = i
	}
	return nb
}

// Row returns the current positions with inactive columns set to Undefined.
func (c *Chain) Row() []r3.Vec {
	row := make([]r3.Vec, len(c.particles))
	for i, p := range c.particles {
		if p.Active {
			row[i] = p.Position
		} else {
			row[i] = Undefined
		}
	}
	return row
}

// Positions returns the last known position of every column, including
// inactive ones.
func (c *Chain) Positions() []r3.Vec {
	out := make([]r3.Vec, len(c.particles))
	for i, p := range c.particles {
		out[i] = p.Position
	}
	return out
}

// Clone returns an independent copy of the chain.
func (c *Chain) Clone() *Chain {
	out := &Chain{particles: make([]Particle, len(c.particles))}
	copy(out.particles, c.particles)
	return out
}
