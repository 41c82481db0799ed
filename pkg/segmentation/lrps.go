package segmentation

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
	"volseg/pkg/profile"
	"volseg/pkg/reslice"
	"volseg/pkg/volume"
)

// numCandidates is the number of intensity maxima nominated per particle.
const numCandidates = 4

var zAxis = r3.Vec{Z: 1}

// LRPSParams configures the local reslice particle simulation.
type LRPSParams struct {
	// StepSize is the number of layers advanced per step
	StepSize int

	// OptimizationIterations is the number of relaxation passes per step
	OptimizationIterations int

	// ResliceSize is the edge length of the square reslice window
	ResliceSize int

	// Alpha scales the tension term, Beta the pull toward the chosen
	// candidate and Delta the bending term
	Alpha float64
	Beta  float64
	Delta float64

	// K1 and K2 weight the first and second derivative terms
	K1 float64
	K2 float64

	// DistanceWeight is the percentage of the lateral velocity carried into
	// the predicted candidate column, in [0, 100]
	DistanceWeight float64

	// ConsiderPrevious adds each particle's previous position as a third
	// neighbor of the tension term
	ConsiderPrevious bool

	// Visualizer receives per-step debug data when set
	Visualizer Visualizer
}

// DefaultLRPSParams returns the stock tuning.
func DefaultLRPSParams() LRPSParams {
	return LRPSParams{
		StepSize:               1,
		OptimizationIterations: 15,
		ResliceSize:            32,
		Alpha:                  1.0 / 3.0,
		Beta:                   1.0 / 3.0,
		Delta:                  1.0 / 3.0,
		K1:                     0.5,
		K2:                     0.5,
		DistanceWeight:         50,
	}
}

// Validate checks the parameters for values the engine cannot run with.
func (p LRPSParams) Validate() error {
	switch {
	case p.StepSize < 1:
		return fmt.Errorf("%w: step size %d must be at least 1", ErrInvalidParams, p.StepSize)
	case p.OptimizationIterations < 0:
		return fmt.Errorf("%w: negative iteration count %d", ErrInvalidParams, p.OptimizationIterations)
	case p.ResliceSize < 3:
		return fmt.Errorf("%w: reslice size %d must be at least 3", ErrInvalidParams, p.ResliceSize)
	case p.StepSize >= p.ResliceSize-p.ResliceSize/2:
		return fmt.Errorf("%w: step size %d does not fit a reslice of %d",
			ErrInvalidParams, p.StepSize, p.ResliceSize)
	case p.DistanceWeight < 0 || p.DistanceWeight > 100:
		return fmt.Errorf("%w: distance weight %g not in [0, 100]", ErrInvalidParams, p.DistanceWeight)
	}
	return nil
}

// Visualizer observes the engine for debugging. Implementations must not
// retain or modify the reslice after returning.
type Visualizer interface {
	// ObserveReslice is called for every particle with the reslice, the
	// profile row used, the candidates found and the index of the chosen
	// candidate (-1 when none)
	ObserveReslice(step, column int, r *reslice.Reslice, row int, maxima []profile.Maximum, chosen int)

	// ObserveRow is called after every committed row
	ObserveRow(step int, row []r3.Vec)
}

// LocalResliceEngine propagates a chain by resampling the volume around
// each particle, picking an intensity peak ahead of it, and relaxing the
// whole row toward those peaks under smoothness constraints.
type LocalResliceEngine struct {
	params LRPSParams
	state  State
	status Status
}

// NewLocalResliceEngine creates an engine with the given parameters.
func NewLocalResliceEngine(params LRPSParams) *LocalResliceEngine {
	return &LocalResliceEngine{params: params}
}

// Name implements Strategy.
func (e *LocalResliceEngine) Name() string { return "lrps" }

// State implements Strategy.
func (e *LocalResliceEngine) State() State { return e.state }

// Status implements Strategy.
func (e *LocalResliceEngine) Status() Status { return e.status }

// Params returns the engine parameters.
func (e *LocalResliceEngine) Params() LRPSParams { return e.params }

// Compute implements Strategy.
func (e *LocalResliceEngine) Compute(ctx context.Context, vol *volume.Volume, job Job) (*models.OrderedPointSet, error) {
	e.state = Seeded
	e.status = Success

	if err := e.params.Validate(); err != nil {
		e.abort()
		return nil, err
	}
	start, target, err := validateJob(vol, job)
	if err != nil {
		e.abort()
		return nil, err
	}

	log := Logger().With("strategy", e.Name())
	log.Info("starting propagation",
		"particles", len(job.Seed), "start", start, "target", target, "step", e.params.StepSize)

	chain := models.NewChain(job.Seed)
	for _, i := range chain.ActiveIndices() {
		if !vol.InBounds(chain.Position(i)) {
			chain.Deactivate(i)
			particlesDeactivated.WithLabelValues(e.Name(), reasonOutOfBounds).Inc()
		}
	}

	result := models.NewOrderedPointSet(job.Width)
	if err := result.PushRow(job.Seed); err != nil {
		e.abort()
		return nil, err
	}

	sampler := vol.NewSampler()
	previous := chain.Positions()
	e.state = Stepping

	for z, step := start, 0; z < target; step++ {
		if err := ctx.Err(); err != nil {
			log.Warn("propagation cancelled", "depth", z, "err", err)
			e.status = ReturnedEarly
			e.state = Completed
			return result, nil
		}

		began := time.Now()
		s := min(e.params.StepSize, target-z)
		current := chain.Positions()
		before := chain.ActiveCount()

		e.advance(sampler, chain, previous, step, z, s)

		previous = current
		z += s
		if err := result.PushRow(chain.Row()); err != nil {
			e.abort()
			return result, err
		}
		if e.params.Visualizer != nil {
			e.params.Visualizer.ObserveRow(step, chain.Row())
		}

		propagationSteps.WithLabelValues(e.Name()).Inc()
		stepDuration.WithLabelValues(e.Name()).Observe(time.Since(began).Seconds())

		after := chain.ActiveCount()
		log.Debug("step committed", "step", step, "depth", z, "active", after)
		if after < before {
			log.Warn("particles lost", "depth", z, "lost", before-after, "active", after)
		}
	}

	e.state = Completed
	log.Info("propagation finished", "rows", result.Height(), "active", chain.ActiveCount())
	return result, nil
}

func (e *LocalResliceEngine) abort() {
	e.state = Aborted
	e.status = Failure
}

// advance moves every active particle from layer z to layer z+s.
func (e *LocalResliceEngine) advance(sampler *volume.Sampler, chain *models.Chain, previous []r3.Vec, step, z, s int) {
	layer := float64(z + s)
	normals := stepNormals(chain)
	targets := chain.Positions()

	for _, i := range chain.ActiveIndices() {
		target, ok := e.findCandidate(sampler, chain, normals[i], previous, step, i, z, s)
		if !ok {
			chain.Deactivate(i)
			particlesDeactivated.WithLabelValues(e.Name(), reasonNoMaxima).Inc()
			continue
		}
		target.Z = layer
		targets[i] = target
	}

	active := chain.ActiveIndices()
	if len(active) == 0 {
		return
	}

	relax := &relaxation{
		weights: energyWeights{
			alpha: e.params.Alpha,
			beta:  e.params.Beta,
			delta: e.params.Delta,
			k1:    e.params.K1,
			k2:    e.params.K2,
		},
		neighbors: chain.Neighbors(),
		active:    active,
		targets:   targets,
		layer:     layer,
	}
	if e.params.ConsiderPrevious {
		projected := chain.Positions()
		for i := range projected {
			projected[i].Z = layer
		}
		relax.previous = projected
	}

	relaxed := relax.run(e.params.OptimizationIterations)
	for _, i := range active {
		if !sampler.InBounds(relaxed[i]) {
			chain.Deactivate(i)
			particlesDeactivated.WithLabelValues(e.Name(), reasonOutOfBounds).Inc()
			continue
		}
		chain.SetPosition(i, relaxed[i])
	}
}

// findCandidate reslices around particle i and returns the voxel position
// of its best intensity peak s layers ahead.
func (e *LocalResliceEngine) findCandidate(sampler *volume.Sampler, chain *models.Chain,
	normal r3.Vec, previous []r3.Vec, step, i, z, s int) (r3.Vec, bool) {

	pos := chain.Position(i)
	center := r3.Vec{X: pos.X, Y: pos.Y, Z: float64(z)}
	if !sampler.InBounds(center) {
		return r3.Vec{}, false
	}

	size := e.params.ResliceSize
	r, err := reslice.Resample(sampler, center, normal, zAxis, size, size)
	if err != nil {
		return r3.Vec{}, false
	}

	cx, cy := r.Center()
	row := cy + s
	maxima := profile.FromRow(r, row).FindNMaxima(numCandidates)

	// Straight continuation: keep the lateral velocity of the last step.
	velocity := r3.Sub(pos, previous[i])
	velocity.Z = 0
	predicted := predictedColumn(cx, r3.Dot(velocity, normal), e.params.DistanceWeight)

	chosen := chooseCandidate(maxima, predicted)
	if e.params.Visualizer != nil {
		e.params.Visualizer.ObserveReslice(step, i, r, row, maxima, chosen)
	}
	if chosen < 0 {
		return r3.Vec{}, false
	}
	return r.SliceCoordToVoxelCoord(float64(maxima[chosen].Index), float64(row)), true
}

// predictedColumn is the profile column a particle reaches if it keeps
// distanceWeight percent of its lateral velocity. A weight of 0 predicts the
// reslice center.
func predictedColumn(center int, lateral, distanceWeight float64) float64 {
	w := math.Max(0, math.Min(1, distanceWeight/100))
	return float64(center) + w*lateral
}

// chooseCandidate returns the index of the maximum closest to the predicted
// column, or -1. Intensity only breaks ties: the brighter candidate wins,
// then the lower column.
func chooseCandidate(maxima []profile.Maximum, predicted float64) int {
	best, bestDist := -1, math.Inf(1)
	for k, m := range maxima {
		d := math.Abs(float64(m.Index) - predicted)
		switch {
		case best < 0 || d < bestDist:
		case d == bestDist && m.Intensity > maxima[best].Intensity:
		case d == bestDist && m.Intensity == maxima[best].Intensity && m.Index < maxima[best].Index:
		default:
			continue
		}
		best, bestDist = k, d
	}
	return best
}

// stepNormals returns the in-plane normal of every active particle, taken
// from the row as it stands before any particle of the step is dropped, so
// the search of one column never depends on the outcome of another.
func stepNormals(chain *models.Chain) []r3.Vec {
	neighbors := chain.Neighbors()
	normals := make([]r3.Vec, chain.Len())
	for _, i := range chain.ActiveIndices() {
		normals[i] = inPlaneNormal(chain, neighbors, i)
	}
	return normals
}

// inPlaneNormal is the unit vector perpendicular to the chain at column i
// within the XY plane. The chain tangent comes from the nearest active
// neighbors; isolated particles use the X axis as tangent.
func inPlaneNormal(chain *models.Chain, neighbors [][2]int, i int) r3.Vec {
	left, right := neighbors[i][0], neighbors[i][1]
	pos := chain.Position(i)

	var tangent r3.Vec
	switch {
	case left >= 0 && right >= 0:
		tangent = r3.Sub(chain.Position(right), chain.Position(left))
	case right >= 0:
		tangent = r3.Sub(chain.Position(right), pos)
	case left >= 0:
		tangent = r3.Sub(pos, chain.Position(left))
	}
	tangent.Z = 0
	if r3.Norm(tangent) == 0 {
		tangent = r3.Vec{X: 1}
	}
	return r3.Unit(r3.Cross(tangent, zAxis))
}
