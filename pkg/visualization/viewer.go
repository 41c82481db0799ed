// Package visualization renders volume slices, segmentation overlays and
// per-step debug images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"volseg/internal/models"
	"volseg/pkg/volume"
)

// Marker colors
var (
	ColorPoint     = color.RGBA{R: 255, A: 255}
	ColorCandidate = color.RGBA{G: 255, A: 255}
	ColorProfile   = color.RGBA{B: 255, A: 255}
)

// Viewer extracts and saves axis-aligned views of a volume
type Viewer struct {
	vol *volume.Volume
}

// NewViewer creates a viewer over vol
func NewViewer(vol *volume.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// An X slice is a depth x height image, a Y slice width x depth and a Z
// slice width x height.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	w, h, d := v.vol.Width(), v.vol.Height(), v.vol.NumSlices()

	var img *image.Gray16
	switch strings.ToLower(axis) {
	case "x":
		// Extract slice along YZ plane
		if position >= w {
			return nil, fmt.Errorf("position %d exceeds width %d", position, w)
		}
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for z := 0; z < d; z++ {
			s, err := v.vol.Slice(z)
			if err != nil {
				return nil, err
			}
			for y := 0; y < h; y++ {
				img.SetGray16(z, y, color.Gray16{Y: s.At(position, y)})
			}
		}

	case "y":
		// Extract slice along XZ plane
		if position >= h {
			return nil, fmt.Errorf("position %d exceeds height %d", position, h)
		}
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			s, err := v.vol.Slice(z)
			if err != nil {
				return nil, err
			}
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, color.Gray16{Y: s.At(x, position)})
			}
		}

	case "z":
		// Extract slice along XY plane
		if position >= d {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d)
		}
		s, err := v.vol.Slice(position)
		if err != nil {
			return nil, err
		}
		img = s.Gray16()

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// OverlayPointSet draws every defined point of ps that lies on layer z over
// the Z slice at that layer
func (v *Viewer) OverlayPointSet(ps *models.OrderedPointSet, z int) (*image.RGBA, error) {
	base, err := v.ExtractSlice("z", z)
	if err != nil {
		return nil, err
	}
	img := toRGBA(base)
	for _, p := range ps.Points() {
		if !models.IsDefined(p) || int(math.Floor(p.Z)) != z {
			continue
		}
		mark(img, int(math.Round(p.X)), int(math.Round(p.Y)), ColorPoint)
	}
	return img, nil
}

// SaveSlice saves an image as PNG or JPEG depending on the file extension.
// Anything other than .png is written as JPEG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return saveImage(img, filename)
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch strings.ToLower(axis) {
	case "x":
		maxPos = v.vol.Width()
	case "y":
		maxPos = v.vol.Height()
	case "z":
		maxPos = v.vol.NumSlices()
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

func saveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(filename), ".png") {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

func toRGBA(src image.Image) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// mark draws a small cross centered on (x, y)
func mark(img *image.RGBA, x, y int, c color.Color) {
	for d := -1; d <= 1; d++ {
		img.Set(x+d, y, c)
		img.Set(x, y+d, c)
	}
}
