// Package reslice resamples the volume along arbitrarily oriented planes.
package reslice

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmptyWindow is returned for reslice requests with no pixels
	ErrEmptyWindow = errors.New("reslice window must have positive size")

	// ErrZeroAxis is returned when an in-plane axis has zero length
	ErrZeroAxis = errors.New("reslice axis has zero length")
)

// Interpolator samples the volume at fractional voxel coordinates. Samples
// outside the volume return an error.
type Interpolator interface {
	InterpolatedIntensity(p r3.Vec) (float64, error)
}

// Reslice is a 2D image sampled from the volume on the plane spanned by
// XAxis and YAxis. Pixel (px, py) lies at Origin + px*XAxis + py*YAxis.
type Reslice struct {
	Origin r3.Vec
	XAxis  r3.Vec
	YAxis  r3.Vec

	width, height int
	pix           []float64
	valid         []bool
}

// Resample builds a width x height reslice centered on center. The axes are
// normalized; samples outside the volume are written as zero and marked
// invalid.
func Resample(src Interpolator, center, xAxis, yAxis r3.Vec, width, height int) (*Reslice, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyWindow, width, height)
	}
	if r3.Norm(xAxis) == 0 || r3.Norm(yAxis) == 0 {
		return nil, ErrZeroAxis
	}

	xn := r3.Unit(xAxis)
	yn := r3.Unit(yAxis)
	origin := r3.Sub(center, r3.Add(
		r3.Scale(float64(width/2), xn),
		r3.Scale(float64(height/2), yn),
	))

	r := &Reslice{
		Origin: origin,
		XAxis:  xn,
		YAxis:  yn,
		width:  width,
		height: height,
		pix:    make([]float64, width*height),
		valid:  make([]bool, width*height),
	}

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			v, err := src.InterpolatedIntensity(r.SliceCoordToVoxelCoord(float64(px), float64(py)))
			if err != nil {
				continue
			}
			r.pix[py*width+px] = v
			r.valid[py*width+px] = true
		}
	}
	return r, nil
}

// SliceCoordToVoxelCoord maps a reslice pixel back into volume space.
func (r *Reslice) SliceCoordToVoxelCoord(px, py float64) r3.Vec {
	return r3.Add(r.Origin, r3.Add(r3.Scale(px, r.XAxis), r3.Scale(py, r.YAxis)))
}

// Center is the pixel the reslice was centered on.
func (r *Reslice) Center() (int, int) {
	return r.width / 2, r.height / 2
}

// Width of the reslice in pixels.
func (r *Reslice) Width() int { return r.width }

// Height of the reslice in pixels.
func (r *Reslice) Height() int { return r.height }

// At returns the sample at pixel (px, py).
func (r *Reslice) At(px, py int) float64 {
	return r.pix[py*r.width+px]
}

// Valid reports whether pixel (px, py) was sampled inside the volume.
func (r *Reslice) Valid(px, py int) bool {
	return r.valid[py*r.width+px]
}

// RowValid returns the validity of each pixel of row py.
func (r *Reslice) RowValid(py int) []bool {
	row := make([]bool, r.width)
	copy(row, r.valid[py*r.width:(py+1)*r.width])
	return row
}

// ColValid returns the validity of each pixel of column px.
func (r *Reslice) ColValid(px int) []bool {
	col := make([]bool, r.height)
	for py := range col {
		col[py] = r.valid[py*r.width+px]
	}
	return col
}

// Row returns a copy of row py.
func (r *Reslice) Row(py int) []float64 {
	row := make([]float64, r.width)
	copy(row, r.pix[py*r.width:(py+1)*r.width])
	return row
}

// Col returns a copy of column px.
func (r *Reslice) Col(px int) []float64 {
	col := make([]float64, r.height)
	for py := range col {
		col[py] = r.pix[py*r.width+px]
	}
	return col
}

// Image converts the reslice to a 16-bit grayscale image.
func (r *Reslice) Image() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, r.width, r.height))
	for py := 0; py < r.height; py++ {
		for px := 0; px < r.width; px++ {
			v := math.Max(0, math.Min(math.MaxUint16, math.Round(r.At(px, py))))
			img.SetGray16(px, py, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}
