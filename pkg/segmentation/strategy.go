// Package segmentation propagates a chain of points through the volume,
// layer by layer, to trace a thin surface.
package segmentation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
	"volseg/pkg/volume"
)

var (
	// ErrChainLength is returned when the seed chain does not match the
	// declared point set width
	ErrChainLength = errors.New("starting chain length does not match expected chain length")

	// ErrInvalidParams is returned for unusable engine parameters
	ErrInvalidParams = errors.New("invalid segmentation parameters")

	// ErrNothingToSegment is returned when the requested range is empty
	ErrNothingToSegment = errors.New("nothing to segment")

	// ErrUnknownMethod is returned for unrecognized strategy names
	ErrUnknownMethod = errors.New("unknown segmentation method")
)

// State is the lifecycle position of an engine run.
type State int

const (
	Seeded State = iota
	Stepping
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Seeded:
		return "seeded"
	case Stepping:
		return "stepping"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the outcome of the previous computation.
type Status int

const (
	Success Status = iota
	Failure
	ReturnedEarly
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case ReturnedEarly:
		return "returned early"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Job is the input of one propagation run.
type Job struct {
	// Seed is the starting chain, one point per column
	Seed []r3.Vec

	// Width is the declared width of the point set the seed came from
	Width int

	// TargetIndex is the depth to propagate to; it is clamped to the last
	// slice of the volume
	TargetIndex int
}

// Strategy is a propagation algorithm. A run uses one strategy from start
// to finish.
type Strategy interface {
	// Name identifies the strategy ("lrps", "stps")
	Name() string

	// Compute propagates the seed chain and returns the seed row followed by
	// one row per step. On cancellation the rows committed so far are
	// returned with a nil error.
	Compute(ctx context.Context, vol *volume.Volume, job Job) (*models.OrderedPointSet, error)

	// State and Status describe the most recent run
	State() State
	Status() Status
}

// StrategyConfig selects and parameterizes a strategy.
type StrategyConfig struct {
	Method   string
	StepSize int
	LRPS     LRPSParams
	STPS     STPSParams
}

// NewStrategy builds the strategy named by cfg.Method.
func NewStrategy(cfg StrategyConfig) (Strategy, error) {
	switch strings.ToLower(cfg.Method) {
	case "lrps", "":
		params := cfg.LRPS
		if cfg.StepSize > 0 {
			params.StepSize = cfg.StepSize
		}
		return NewLocalResliceEngine(params), nil
	case "stps":
		if cfg.StepSize != 1 && cfg.StepSize != 0 {
			Logger().Warn("STPS can only handle a step size of 1, defaulting to 1",
				"requested", cfg.StepSize)
		}
		return NewStructureTensorEngine(cfg.STPS), nil
	}
	return nil, fmt.Errorf("%w: %q (must be one of lrps, stps)", ErrUnknownMethod, cfg.Method)
}

// startDepth is the integer layer the seed chain sits on: the deepest
// defined seed point.
func startDepth(seed []r3.Vec) (int, bool) {
	start, ok := 0, false
	for _, p := range seed {
		if !models.IsDefined(p) {
			continue
		}
		z := int(p.Z)
		if !ok || z > start {
			start = z
		}
		ok = true
	}
	return start, ok
}

// validateJob checks the preconditions shared by every strategy and returns
// the start depth and the clamped target depth.
func validateJob(vol *volume.Volume, job Job) (start, target int, err error) {
	if vol == nil || vol.NumSlices() == 0 {
		return 0, 0, volume.ErrEmptyVolume
	}
	if len(job.Seed) != job.Width {
		return 0, 0, fmt.Errorf("%w: expected %d, actual %d", ErrChainLength, job.Width, len(job.Seed))
	}
	if len(job.Seed) == 0 {
		return 0, 0, fmt.Errorf("%w: empty seed chain", ErrChainLength)
	}

	start, ok := startDepth(job.Seed)
	if !ok {
		return 0, 0, fmt.Errorf("%w: seed chain has no defined points", ErrNothingToSegment)
	}

	target = job.TargetIndex
	if last := vol.NumSlices() - 1; target > last {
		target = last
	}
	return start, target, nil
}
