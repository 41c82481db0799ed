package segmentation

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
	"volseg/pkg/volume"
)

// fakeStrategy records its job and returns the seed followed by one row per
// layer up to the target, shifted by one in X each row
type fakeStrategy struct {
	job Job
}

func (f *fakeStrategy) Name() string   { return "fake" }
func (f *fakeStrategy) State() State   { return Completed }
func (f *fakeStrategy) Status() Status { return Success }

func (f *fakeStrategy) Compute(ctx context.Context, vol *volume.Volume, job Job) (*models.OrderedPointSet, error) {
	f.job = job
	start, _ := startDepth(job.Seed)
	ps := models.NewOrderedPointSet(job.Width)
	_ = ps.PushRow(job.Seed)
	for z := start + 1; z <= job.TargetIndex; z++ {
		row := make([]r3.Vec, len(job.Seed))
		for i, p := range job.Seed {
			row[i] = r3.Vec{X: p.X + float64(z-start), Y: p.Y, Z: float64(z)}
		}
		_ = ps.PushRow(row)
	}
	return ps, nil
}

// masterSet has two columns on layers 2, 3 and 4
func masterSet() *models.OrderedPointSet {
	ps := models.NewOrderedPointSet(2)
	for z := 2; z <= 4; z++ {
		_ = ps.PushRow([]r3.Vec{{X: 1, Y: 1, Z: float64(z)}, {X: 2, Y: 1, Z: float64(z)}})
	}
	return ps
}

func TestSegmentStride(t *testing.T) {
	vol := mustVolume(t, 10, 10, 10, nil)
	master := masterSet()
	strategy := &fakeStrategy{}

	out, err := Segment(context.Background(), vol, master, strategy,
		RunOptions{StartIndex: 3, EndIndex: -1, Stride: 2})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if strategy.job.TargetIndex != 5 {
		t.Errorf("Expected target 5, got %d", strategy.job.TargetIndex)
	}
	if strategy.job.Seed[0].Z != 3 {
		t.Errorf("Expected seed on layer 3, got %v", strategy.job.Seed[0])
	}

	// layer 2 kept, then seed 3, then 4 and 5 from the strategy
	if out.Height() != 4 {
		t.Fatalf("Expected 4 rows, got %d", out.Height())
	}
	for r, z := range []float64{2, 3, 4, 5} {
		if got := out.At(r, 0).Z; got != z {
			t.Errorf("Row %d: expected z=%v, got %v", r, z, got)
		}
	}
	if out.At(2, 0).X != 2 {
		t.Errorf("Expected propagated row to replace master layer 4, got %v", out.At(2, 0))
	}
	if master.Height() != 3 || master.At(2, 0).X != 1 {
		t.Errorf("Expected master unchanged")
	}
}

func TestSegmentDefaultStart(t *testing.T) {
	vol := mustVolume(t, 10, 10, 10, nil)
	strategy := &fakeStrategy{}

	out, err := Segment(context.Background(), vol, masterSet(), strategy,
		RunOptions{StartIndex: -1, EndIndex: 6})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if strategy.job.Seed[0].Z != 4 {
		t.Errorf("Expected seed on highest layer 4, got %v", strategy.job.Seed[0])
	}
	if out.Height() != 5 {
		t.Errorf("Expected 5 rows, got %d", out.Height())
	}
}

func TestSegmentStartAtFirstLayer(t *testing.T) {
	vol := mustVolume(t, 10, 10, 10, nil)

	out, err := Segment(context.Background(), vol, masterSet(), &fakeStrategy{},
		RunOptions{StartIndex: 2, EndIndex: 3})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if out.Height() != 2 || out.Width() != 2 {
		t.Errorf("Expected 2x2 result, got %dx%d", out.Width(), out.Height())
	}
}

func TestSegmentErrors(t *testing.T) {
	vol := mustVolume(t, 10, 10, 10, nil)

	withHole := masterSet()
	withHole.Set(2, 1, models.Undefined)

	tests := []struct {
		name   string
		master *models.OrderedPointSet
		opts   RunOptions
		want   error
	}{
		{"end and stride", masterSet(), RunOptions{StartIndex: 3, EndIndex: 6, Stride: 2}, ErrRangeOptions},
		{"neither end nor stride", masterSet(), RunOptions{StartIndex: 3, EndIndex: -1}, ErrRangeOptions},
		{"start after end", masterSet(), RunOptions{StartIndex: 4, EndIndex: 4}, ErrNothingToSegment},
		{"empty master", models.NewOrderedPointSet(2), DefaultRunOptions(), ErrNothingToSegment},
		{"undefined seed point", withHole, RunOptions{StartIndex: 4, Stride: 1, EndIndex: -1}, ErrChainLength},
		{"start beyond master", masterSet(), RunOptions{StartIndex: 7, EndIndex: 9}, models.ErrRowRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Segment(context.Background(), vol, tt.master, &fakeStrategy{}, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
