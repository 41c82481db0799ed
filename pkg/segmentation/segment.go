package segmentation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
	"volseg/pkg/volume"
)

// ErrRangeOptions is returned when the end of a run is not specified exactly
// once.
var ErrRangeOptions = errors.New("exactly one of end index and stride must be set")

// RunOptions selects the depth range of a run over an existing point set.
type RunOptions struct {
	// StartIndex is the layer to start from; negative selects the deepest
	// layer of the point set
	StartIndex int

	// EndIndex is the absolute layer to stop at; negative means unset
	EndIndex int

	// Stride is the number of layers past StartIndex to stop at; zero or
	// negative means unset
	Stride int
}

// DefaultRunOptions starts at the deepest layer with no end set.
func DefaultRunOptions() RunOptions {
	return RunOptions{StartIndex: -1, EndIndex: -1}
}

// Segment continues an existing point set through the volume.
//
// The row of master at StartIndex seeds the strategy. Rows above it are kept
// untouched and the strategy output, which starts with the seed row, is
// appended after them. Master itself is not modified.
func Segment(ctx context.Context, vol *volume.Volume, master *models.OrderedPointSet,
	strategy Strategy, opts RunOptions) (*models.OrderedPointSet, error) {

	if master == nil || master.Empty() {
		return nil, fmt.Errorf("%w: empty point set", ErrNothingToSegment)
	}
	minZ, maxZ, ok := master.ZRange()
	if !ok {
		return nil, fmt.Errorf("%w: point set has no defined points", ErrNothingToSegment)
	}
	minIndex := int(math.Floor(minZ))
	maxIndex := int(math.Floor(maxZ))

	hasEnd, hasStride := opts.EndIndex >= 0, opts.Stride > 0
	if hasEnd == hasStride {
		return nil, ErrRangeOptions
	}

	start := opts.StartIndex
	if start < 0 {
		start = maxIndex
		Logger().Info("no starting index given, defaulting to highest z", "start", start)
	}
	end := opts.EndIndex
	if hasStride {
		end = start + opts.Stride
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start index %d >= end index %d", ErrNothingToSegment, start, end)
	}

	seedRow := start - minIndex
	var immutable *models.OrderedPointSet
	if seedRow > 0 {
		rows, err := master.CopyRows(0, seedRow)
		if err != nil {
			return nil, err
		}
		immutable = rows
	} else {
		immutable = models.NewOrderedPointSet(master.Width())
	}

	row, err := master.Row(seedRow)
	if err != nil {
		return nil, err
	}
	seed := make([]r3.Vec, 0, len(row))
	for _, p := range row {
		if models.IsDefined(p) {
			seed = append(seed, p)
		}
	}
	if len(seed) != master.Width() {
		return nil, fmt.Errorf("%w: expected %d, actual %d; consider a lower starting index",
			ErrChainLength, master.Width(), len(seed))
	}

	mutable, err := strategy.Compute(ctx, vol, Job{
		Seed:        seed,
		Width:       master.Width(),
		TargetIndex: end,
	})
	if err != nil {
		return nil, err
	}
	if err := immutable.Append(mutable); err != nil {
		return nil, err
	}
	return immutable, nil
}
