package visualization

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
	"volseg/pkg/profile"
	"volseg/pkg/reslice"
	"volseg/pkg/volume"
)

// testVolume encodes the coordinates of each voxel in its value
func testVolume(t *testing.T, width, height, depth int) *volume.Volume {
	t.Helper()
	vol, err := volume.New(volume.NewMemorySource(width, height, depth, func(x, y, z int) uint16 {
		return uint16(1000*z + 10*y + x)
	}))
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	return vol
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 8, 6, 4
	viewer := NewViewer(testVolume(t, width, height, depth))

	img, err := viewer.ExtractSlice("z", 2)
	if err != nil {
		t.Fatalf("Failed to extract Z slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d", width, height, b.Dx(), b.Dy())
	}
	if got := img.Gray16At(3, 4).Y; got != 2043 {
		t.Errorf("Expected Z slice value 2043, got %d", got)
	}

	img, err = viewer.ExtractSlice("X", 5)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}
	if got := img.Gray16At(3, 1).Y; got != 3015 {
		t.Errorf("Expected X slice value 3015, got %d", got)
	}

	img, err = viewer.ExtractSlice("y", 2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}
	if got := img.Gray16At(7, 1).Y; got != 1027 {
		t.Errorf("Expected Y slice value 1027, got %d", got)
	}

	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Errorf("Expected error for invalid axis")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Errorf("Expected error for position beyond depth")
	}
}

// TestOverlayPointSet marks only the points on the requested layer
func TestOverlayPointSet(t *testing.T) {
	viewer := NewViewer(testVolume(t, 8, 8, 3))
	ps := models.NewOrderedPointSet(2)
	_ = ps.PushRow([]r3.Vec{{X: 2, Y: 2, Z: 1}, models.Undefined})
	_ = ps.PushRow([]r3.Vec{{X: 5, Y: 5, Z: 2}, {X: 6, Y: 1, Z: 2}})

	img, err := viewer.OverlayPointSet(ps, 1)
	if err != nil {
		t.Fatalf("Failed to overlay point set: %v", err)
	}
	if got := img.RGBAAt(2, 2); got != ColorPoint {
		t.Errorf("Expected marker at (2,2), got %v", got)
	}
	if got := img.RGBAAt(5, 5); got == ColorPoint {
		t.Errorf("Expected no marker for a point on another layer")
	}
}

// TestSaveSliceSequence verifies that a file is written per position
func TestSaveSliceSequence(t *testing.T) {
	viewer := NewViewer(testVolume(t, 6, 5, 3))
	dir := t.TempDir()

	if err := viewer.SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	for z := 0; z < 3; z++ {
		filename := filepath.Join(dir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}
}

// TestSaveSlicePNG keeps 16-bit samples when saving as PNG
func TestSaveSlicePNG(t *testing.T) {
	viewer := NewViewer(testVolume(t, 6, 5, 3))
	img, err := viewer.ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}

	filename := filepath.Join(t.TempDir(), "slice.png")
	if err := viewer.SaveSlice(img, filename); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Failed to open saved slice: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode saved slice: %v", err)
	}
	if got, want := decoded.At(4, 3), img.At(4, 3); got != want {
		t.Errorf("Expected %v at (4,3), got %v", want, got)
	}
}

// TestDumper writes one image per observed reslice and keeps the rows
func TestDumper(t *testing.T) {
	vol := testVolume(t, 16, 16, 4)
	dir := filepath.Join(t.TempDir(), "vis")
	d, err := NewDumper(dir)
	if err != nil {
		t.Fatalf("Failed to create dumper: %v", err)
	}

	r, err := reslice.Resample(vol, r3.Vec{X: 8, Y: 8, Z: 1}, r3.Vec{X: 1}, r3.Vec{Z: 1}, 8, 8)
	if err != nil {
		t.Fatalf("Failed to resample: %v", err)
	}
	maxima := []profile.Maximum{{Index: 2, Intensity: 1}, {Index: 6, Intensity: 0.5}}
	d.ObserveReslice(3, 7, r, 5, maxima, 1)
	d.ObserveRow(3, []r3.Vec{{X: 1, Y: 2, Z: 3}})

	if err := d.Err(); err != nil {
		t.Fatalf("Dumper reported error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "step_0003_col_0007.png")); err != nil {
		t.Errorf("Expected dump image: %v", err)
	}
	if rows := d.Rows(); len(rows) != 1 || rows[0][0].Z != 3 {
		t.Errorf("Expected one recorded row, got %v", rows)
	}
}
