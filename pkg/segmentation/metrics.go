package segmentation

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"volseg/internal/models"
)

var (
	propagationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volseg_propagation_steps_total",
		Help: "Depth steps committed, by strategy",
	}, []string{"strategy"})

	particlesDeactivated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volseg_particles_deactivated_total",
		Help: "Particles that stopped being tracked, by strategy and reason",
	}, []string{"strategy", "reason"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "volseg_step_duration_seconds",
		Help:    "Wall time of one depth step",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"strategy"})
)

// Deactivation reasons
const (
	reasonOutOfBounds = "out_of_bounds"
	reasonNoMaxima    = "no_maxima"
	reasonThreshold   = "below_threshold"
	reasonDirection   = "degenerate_direction"
)

// RunMetrics summarizes the geometry of a propagated point set.
type RunMetrics struct {
	// Rows and Width are the point set dimensions
	Rows  int
	Width int

	// MeanDisplacement and StdDisplacement describe the in-plane (XY)
	// movement of a column between consecutive rows, over columns defined
	// in both rows
	MeanDisplacement float64
	StdDisplacement  float64

	// MaxDisplacement is the largest such movement
	MaxDisplacement float64

	// ActiveFraction is the share of defined columns in the last row
	ActiveFraction float64
}

// ComputeRunMetrics derives summary statistics from a point set.
func ComputeRunMetrics(ps *models.OrderedPointSet) RunMetrics {
	m := RunMetrics{Rows: ps.Height(), Width: ps.Width()}
	if m.Rows == 0 || m.Width == 0 {
		return m
	}

	var moves []float64
	for r := 1; r < m.Rows; r++ {
		for c := 0; c < m.Width; c++ {
			a, b := ps.At(r-1, c), ps.At(r, c)
			if !models.IsDefined(a) || !models.IsDefined(b) {
				continue
			}
			moves = append(moves, math.Hypot(b.X-a.X, b.Y-a.Y))
		}
	}
	if len(moves) > 0 {
		m.MeanDisplacement = stat.Mean(moves, nil)
		m.MaxDisplacement = floats.Max(moves)
	}
	if len(moves) > 1 {
		m.StdDisplacement = stat.StdDev(moves, nil)
	}

	defined := 0
	for c := 0; c < m.Width; c++ {
		if models.IsDefined(ps.At(m.Rows-1, c)) {
			defined++
		}
	}
	m.ActiveFraction = float64(defined) / float64(m.Width)
	return m
}
