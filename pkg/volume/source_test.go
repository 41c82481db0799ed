package volume

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"volseg/internal/models"
)

// TestDirSourceMatchesDirectDecode writes a volume to disk and checks that
// cached lookups always match a fresh decode of the file, whatever the
// eviction history
func TestDirSourceMatchesDirectDecode(t *testing.T) {
	dir := t.TempDir()
	mem := NewMemorySource(9, 7, 12, func(x, y, z int) uint16 {
		return uint16((x*7919 + y*104729 + z*1299709) % 65536)
	})
	if err := WriteDir(dir, mem); err != nil {
		t.Fatalf("Failed to write volume: %v", err)
	}

	vol, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open volume: %v", err)
	}
	if vol.Width() != 9 || vol.Height() != 7 || vol.NumSlices() != 12 {
		t.Fatalf("Unexpected geometry %+v", vol.Info())
	}
	vol.SetCacheCapacity(3)

	src, err := OpenDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, z := range []int{0, 5, 11, 0, 1, 2, 3, 5, 11, 10, 0} {
		cached, err := vol.Slice(z)
		if err != nil {
			t.Fatalf("Slice(%d) failed: %v", z, err)
		}

		direct, err := decodeSliceFile(z, src.SlicePath(z))
		if err != nil {
			t.Fatalf("Direct decode of %d failed: %v", z, err)
		}
		if !cached.Equal(direct) {
			t.Errorf("Slice %d differs from direct decode", z)
		}

		want, _ := mem.ReadSlice(z)
		if !cached.Equal(want) {
			t.Errorf("Slice %d differs from the original samples", z)
		}
	}
}

// TestDirSourcePNG verifies 8-bit PNG slices keep raw values
func TestDirSourcePNG(t *testing.T) {
	dir := t.TempDir()
	meta := []byte("width: 3\nheight: 2\nslices: 1\nvoxelsize: 7.9\n")
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), meta, 0644); err != nil {
		t.Fatal(err)
	}

	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(1, 1, color.Gray{Y: 77})
	f, err := os.Create(filepath.Join(dir, "0.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	vol, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open volume: %v", err)
	}
	if vol.VoxelSize() != 7.9 {
		t.Errorf("Expected voxel size 7.9, got %f", vol.VoxelSize())
	}
	if got := vol.IntensityAt(1, 1, 0); got != 77 {
		t.Errorf("Expected 77, got %d", got)
	}
}

// TestDirSourceErrors verifies missing metadata and mismatched slices
func TestDirSourceErrors(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("Expected an error for a directory without metadata")
	}

	dir := t.TempDir()
	if err := WriteDir(dir, NewMemorySource(4, 4, 2, nil)); err != nil {
		t.Fatal(err)
	}
	// Replace slice 1 with an image of the wrong size
	if err := writeTIFF(filepath.Join(dir, "1.tif"), models.NewSlice(1, 3, 3)); err != nil {
		t.Fatal(err)
	}

	vol, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vol.Slice(1); err == nil {
		t.Error("Expected an error for a mis-sized slice")
	}
	if _, err := vol.Slice(2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}
