package segmentation

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
	"volseg/pkg/volume"
)

// STPSParams configures the structure tensor particle simulation.
type STPSParams struct {
	// GravityScale blends the tensor flow direction into the particle's
	// previous direction: 0 keeps going straight, 1 follows the tensor
	GravityScale float64

	// Threshold is the lowest interpolated intensity a particle may land on
	Threshold float64

	// EndOffset limits propagation to this many layers past the start;
	// negative means run to the target
	EndOffset int

	// TensorRadius is the half width of the structure tensor window
	TensorRadius int
}

// DefaultSTPSParams returns the stock tuning.
func DefaultSTPSParams() STPSParams {
	return STPSParams{
		GravityScale: 0.5,
		Threshold:    1,
		EndOffset:    -1,
		TensorRadius: 1,
	}
}

// Validate checks the parameters for values the engine cannot run with.
func (p STPSParams) Validate() error {
	switch {
	case p.GravityScale < 0 || p.GravityScale > 1:
		return fmt.Errorf("%w: gravity scale %g not in [0, 1]", ErrInvalidParams, p.GravityScale)
	case p.TensorRadius < 0:
		return fmt.Errorf("%w: negative tensor radius %d", ErrInvalidParams, p.TensorRadius)
	}
	return nil
}

// StructureTensorEngine moves each particle independently one layer per
// step along the direction of least intensity change.
type StructureTensorEngine struct {
	params STPSParams
	state  State
	status Status
}

// NewStructureTensorEngine creates an engine with the given parameters.
func NewStructureTensorEngine(params STPSParams) *StructureTensorEngine {
	return &StructureTensorEngine{params: params}
}

// Name implements Strategy.
func (e *StructureTensorEngine) Name() string { return "stps" }

// State implements Strategy.
func (e *StructureTensorEngine) State() State { return e.state }

// Status implements Strategy.
func (e *StructureTensorEngine) Status() Status { return e.status }

// Params returns the engine parameters.
func (e *StructureTensorEngine) Params() STPSParams { return e.params }

// Compute implements Strategy.
func (e *StructureTensorEngine) Compute(ctx context.Context, vol *volume.Volume, job Job) (*models.OrderedPointSet, error) {
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
	if e.params.EndOffset >= 0 {
		target = min(target, start+e.params.EndOffset)
	}

	log := Logger().With("strategy", e.Name())
	log.Info("starting propagation",
		"particles", len(job.Seed), "start", start, "target", target, "gravity", e.params.GravityScale)

	chain := models.NewChain(job.Seed)
	directions := make([]r3.Vec, chain.Len())
	for i := range directions {
		directions[i] = zAxis
	}
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
	e.state = Stepping

	for z := start; z < target; z++ {
		if err := ctx.Err(); err != nil {
			log.Warn("propagation cancelled", "depth", z, "err", err)
			e.status = ReturnedEarly
			e.state = Completed
			return result, nil
		}

		began := time.Now()
		before := chain.ActiveCount()
		for _, i := range chain.ActiveIndices() {
			next, dir, reason := e.step(sampler, chain.Position(i), directions[i], z+1)
			if reason != "" {
				chain.Deactivate(i)
				particlesDeactivated.WithLabelValues(e.Name(), reason).Inc()
				continue
			}
			chain.SetPosition(i, next)
			directions[i] = dir
		}
		if err := result.PushRow(chain.Row()); err != nil {
			e.abort()
			return result, err
		}

		propagationSteps.WithLabelValues(e.Name()).Inc()
		stepDuration.WithLabelValues(e.Name()).Observe(time.Since(began).Seconds())

		after := chain.ActiveCount()
		log.Debug("step committed", "depth", z+1, "active", after)
		if after < before {
			log.Warn("particles lost", "depth", z+1, "lost", before-after, "active", after)
		}
	}

	e.state = Completed
	log.Info("propagation finished", "rows", result.Height(), "active", chain.ActiveCount())
	return result, nil
}

func (e *StructureTensorEngine) abort() {
	e.state = Aborted
	e.status = Failure
}

// step advances one particle onto layer z. It returns the new position and
// direction, or the reason the particle has to stop.
func (e *StructureTensorEngine) step(sampler *volume.Sampler, pos, prev r3.Vec, z int) (r3.Vec, r3.Vec, string) {
	tensor, err := sampler.StructureTensor(pos, e.params.TensorRadius)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, reasonOutOfBounds
	}
	flow, err := tensor.FlowDirection()
	if err != nil {
		return r3.Vec{}, r3.Vec{}, reasonDirection
	}
	if r3.Dot(flow, prev) < 0 {
		flow = r3.Scale(-1, flow)
	}

	g := e.params.GravityScale
	dir := r3.Add(r3.Scale(1-g, prev), r3.Scale(g, flow))
	if r3.Norm(dir) == 0 {
		return r3.Vec{}, r3.Vec{}, reasonDirection
	}
	dir = r3.Unit(dir)
	if dir.Z <= 1e-6 {
		return r3.Vec{}, r3.Vec{}, reasonDirection
	}

	next := r3.Add(pos, r3.Scale(1/dir.Z, dir))
	next.Z = float64(z)
	if !sampler.InBounds(next) {
		return r3.Vec{}, r3.Vec{}, reasonOutOfBounds
	}
	v, err := sampler.InterpolatedIntensity(next)
	if err != nil || v < e.params.Threshold {
		return r3.Vec{}, r3.Vec{}, reasonThreshold
	}
	return next, dir, ""
}
