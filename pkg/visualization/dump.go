package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"volseg/pkg/profile"
	"volseg/pkg/reslice"
)

// Dumper writes the reslices seen during propagation to a directory, one PNG
// per particle and step, with the profile row and candidates marked. It
// satisfies segmentation.Visualizer.
type Dumper struct {
	dir string

	mu   sync.Mutex
	rows [][]r3.Vec
	err  error
}

// NewDumper creates dir and returns a dumper writing into it
func NewDumper(dir string) (*Dumper, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating dump directory: %w", err)
	}
	return &Dumper{dir: dir}, nil
}

// ObserveReslice renders one reslice. Write failures are kept and reported
// by Err.
func (d *Dumper) ObserveReslice(step, column int, r *reslice.Reslice, row int, maxima []profile.Maximum, chosen int) {
	img := toRGBA(stretch(r))
	for x := 0; x < r.Width(); x++ {
		img.Set(x, row, ColorProfile)
	}
	for k, m := range maxima {
		c := ColorCandidate
		if k == chosen {
			c = ColorPoint
		}
		mark(img, m.Index, row, c)
	}

	name := filepath.Join(d.dir, fmt.Sprintf("step_%04d_col_%04d.png", step, column))
	if err := saveImage(img, name); err != nil {
		d.fail(err)
	}
}

// ObserveRow records a committed row
func (d *Dumper) ObserveRow(step int, row []r3.Vec) {
	cp := make([]r3.Vec, len(row))
	copy(cp, row)

	d.mu.Lock()
	d.rows = append(d.rows, cp)
	d.mu.Unlock()
}

// Rows returns the rows observed so far
func (d *Dumper) Rows() [][]r3.Vec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows
}

// Err returns the first write error, if any
func (d *Dumper) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Dumper) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
}

// stretch maps the reslice intensity range onto the full 16-bit range
func stretch(r *reslice.Reslice) *image.Gray16 {
	img := r.Image()
	vals := make([]float64, 0, r.Width()*r.Height())
	for y := 0; y < r.Height(); y++ {
		vals = append(vals, r.Row(y)...)
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if hi <= lo {
		return img
	}
	for y := 0; y < r.Height(); y++ {
		for x := 0; x < r.Width(); x++ {
			v := (r.At(x, y) - lo) / (hi - lo) * math.MaxUint16
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}
