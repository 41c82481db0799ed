package models

import (
	"image"
	"image/color"
)

// Slice represents a single decoded cross-section of the scan volume.
// Samples are stored row-major as unsigned 16-bit intensities; 8-bit
// sources keep their raw values.
type Slice struct {
	// Index is the depth position of this slice in the stack
	Index int

	// Width and Height are the in-plane dimensions in pixels
	Width  int
	Height int

	// Pix holds Width*Height samples in row-major order
	Pix []uint16

	// Filename is the file the slice was decoded from, if any
	Filename string
}

// VolumeInfo describes the geometry of a slice stack. It is the content of
// the metadata file stored next to the slices of an on-disk volume.
type VolumeInfo struct {
	// Name is a human readable label for the volume
	Name string `yaml:"name,omitempty"`

	// Width and Height are the dimensions of every slice in pixels
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Slices is the number of slices in the stack
	Slices int `yaml:"slices"`

	// VoxelSize is the physical edge length of a voxel in micrometers
	VoxelSize float64 `yaml:"voxelsize"`
}

// NewSlice allocates a zeroed slice of the given dimensions.
func NewSlice(index, width, height int) *Slice {
	return &Slice{
		Index:  index,
		Width:  width,
		Height: height,
		Pix:    make([]uint16, width*height),
	}
}

// At returns the sample at (x, y). Coordinates must be inside the slice.
func (s *Slice) At(x, y int) uint16 {
	return s.Pix[y*s.Width+x]
}

// Set stores a sample at (x, y).
func (s *Slice) Set(x, y int, v uint16) {
	s.Pix[y*s.Width+x] = v
}

// Bytes is the memory footprint of the sample data.
func (s *Slice) Bytes() int64 {
	return int64(len(s.Pix)) * 2
}

// Equal reports whether two slices carry identical dimensions and samples.
func (s *Slice) Equal(o *Slice) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Width != o.Width || s.Height != o.Height || len(s.Pix) != len(o.Pix) {
		return false
	}
	for i := range s.Pix {
		if s.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the slice.
func (s *Slice) Clone() *Slice {
	c := *s
	c.Pix = make([]uint16, len(s.Pix))
	copy(c.Pix, s.Pix)
	return &c
}

// SliceFromImage converts a decoded image into a Slice.
//
// 16-bit grayscale images are copied verbatim, 8-bit grayscale images keep
// their raw sample values, and anything else goes through the Gray16 color
// model.
func SliceFromImage(index int, img image.Image) *Slice {
	bounds := img.Bounds()
	s := NewSlice(index, bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				s.Pix[y*s.Width+x] = src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y
			}
		}
	case *image.Gray:
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				s.Pix[y*s.Width+x] = uint16(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				c := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				s.Pix[y*s.Width+x] = c.Y
			}
		}
	}

	return s
}

// Gray16 converts the slice back into a standard library image, suitable
// for encoding.
func (s *Slice) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: s.Pix[y*s.Width+x]})
		}
	}
	return img
}
