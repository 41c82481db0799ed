package reslice

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/pkg/volume"
)

func rampVolume(t *testing.T) *volume.Volume {
	t.Helper()
	vol, err := volume.New(volume.NewMemorySource(20, 20, 20, func(x, y, z int) uint16 {
		return uint16(100*z + 10*y + x)
	}))
	if err != nil {
		t.Fatal(err)
	}
	return vol
}

// TestResampleAxisAligned checks that an axis-aligned reslice reproduces
// the underlying slice
func TestResampleAxisAligned(t *testing.T) {
	vol := rampVolume(t)
	center := r3.Vec{X: 10, Y: 10, Z: 4}

	r, err := Resample(vol.NewSampler(), center, r3.Vec{X: 2}, r3.Vec{Y: 1}, 8, 6)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	if r.Width() != 8 || r.Height() != 6 {
		t.Fatalf("Expected 8x6, got %dx%d", r.Width(), r.Height())
	}
	if r.XAxis != (r3.Vec{X: 1}) {
		t.Errorf("Expected normalized x axis, got %v", r.XAxis)
	}
	if r.Origin != (r3.Vec{X: 6, Y: 7, Z: 4}) {
		t.Errorf("Expected origin (6,7,4), got %v", r.Origin)
	}

	cx, cy := r.Center()
	if got := r.SliceCoordToVoxelCoord(float64(cx), float64(cy)); got != center {
		t.Errorf("Center pixel maps to %v, expected %v", got, center)
	}

	for py := 0; py < 6; py++ {
		for px := 0; px < 8; px++ {
			want := float64(400 + 10*(7+py) + 6 + px)
			if got := r.At(px, py); got != want {
				t.Errorf("(%d,%d): expected %f, got %f", px, py, want, got)
			}
		}
	}

	row := r.Row(2)
	col := r.Col(3)
	if row[3] != r.At(3, 2) || col[2] != r.At(3, 2) {
		t.Error("Row/Col disagree with At")
	}
}

// TestResampleObliquePlane checks the forward and inverse mappings agree on
// a plane tilted into z
func TestResampleObliquePlane(t *testing.T) {
	vol := rampVolume(t)
	sampler := vol.NewSampler()
	center := r3.Vec{X: 10, Y: 10, Z: 10}
	xAxis := r3.Vec{X: 1, Y: 1}
	yAxis := r3.Vec{Z: 1}

	r, err := Resample(sampler, center, xAxis, yAxis, 9, 9)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range [][2]int{{0, 0}, {4, 4}, {8, 3}} {
		v := r.SliceCoordToVoxelCoord(float64(p[0]), float64(p[1]))
		want, err := sampler.InterpolatedIntensity(v)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(r.At(p[0], p[1])-want) > 1e-9 {
			t.Errorf("Pixel %v: expected %f, got %f", p, want, r.At(p[0], p[1]))
		}
	}
}

// TestResampleOutsideVolumeIsZero checks out-of-volume pixels are zero and
// marked invalid
func TestResampleOutsideVolumeIsZero(t *testing.T) {
	vol := rampVolume(t)
	r, err := Resample(vol, r3.Vec{X: 1, Y: 10, Z: 5}, r3.Vec{X: 1}, r3.Vec{Z: 1}, 8, 8)
	if err != nil {
		t.Fatal(err)
	}

	// Columns 0..2 map to x = -3..-1
	for px := 0; px < 3; px++ {
		if r.At(px, 4) != 0 {
			t.Errorf("Expected zero outside the volume at column %d, got %f", px, r.At(px, 4))
		}
		if r.Valid(px, 4) {
			t.Errorf("Expected column %d to be invalid", px)
		}
	}
	if r.At(4, 4) == 0 || !r.Valid(4, 4) {
		t.Error("Expected data at the center pixel")
	}

	row := r.RowValid(4)
	col := r.ColValid(1)
	if row[2] || !row[3] || col[4] {
		t.Errorf("Row/Col validity disagree with Valid: %v %v", row, col)
	}

	img := r.Image()
	if img.Bounds().Dx() != 8 || img.Gray16At(4, 4).Y != uint16(r.At(4, 4)) {
		t.Error("Image conversion lost samples")
	}
}

// TestResamplePreconditions verifies window and axis validation
func TestResamplePreconditions(t *testing.T) {
	vol := rampVolume(t)
	c := r3.Vec{X: 5, Y: 5, Z: 5}

	if _, err := Resample(vol, c, r3.Vec{X: 1}, r3.Vec{Y: 1}, 0, 4); !errors.Is(err, ErrEmptyWindow) {
		t.Errorf("Expected ErrEmptyWindow, got %v", err)
	}
	if _, err := Resample(vol, c, r3.Vec{X: 1}, r3.Vec{Y: 1}, 4, -1); !errors.Is(err, ErrEmptyWindow) {
		t.Errorf("Expected ErrEmptyWindow, got %v", err)
	}
	if _, err := Resample(vol, c, r3.Vec{}, r3.Vec{Y: 1}, 4, 4); !errors.Is(err, ErrZeroAxis) {
		t.Errorf("Expected ErrZeroAxis, got %v", err)
	}
}
