package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrWidthMismatch is returned when a row does not match the set width
	ErrWidthMismatch = errors.New("row width does not match point set width")

	// ErrWidthLocked is returned when changing the width of a non-empty set
	ErrWidthLocked = errors.New("cannot change width of a non-empty point set")

	// ErrRowRange is returned for row indices outside the point set
	ErrRowRange = errors.New("row index out of range")
)

// Undefined marks a column that carries no geometry for its row. It keeps
// the row width constant when a particle stops being tracked.
var Undefined = r3.Vec{X: -1, Y: -1, Z: -1}

// IsDefined reports whether p carries geometry. Only the Z component is
// inspected.
func IsDefined(p r3.Vec) bool {
	return p.Z != -1
}

// OrderedPointSet is a grid of 3D points with a fixed width. Rows are kept
// in insertion order and column i of every row refers to the same seed
// point.
type OrderedPointSet struct {
	width int
	data  []r3.Vec
}

// NewOrderedPointSet creates an empty point set with the given row width.
func NewOrderedPointSet(width int) *OrderedPointSet {
	return &OrderedPointSet{width: width}
}

// FillOrderedPointSet creates a width x height point set filled with v.
func FillOrderedPointSet(width, height int, v r3.Vec) *OrderedPointSet {
	ps := NewOrderedPointSet(width)
	ps.data = make([]r3.Vec, width*height)
	for i := range ps.data {
		ps.data[i] = v
	}
	return ps
}

// Width is the number of points in every row.
func (ps *OrderedPointSet) Width() int { return ps.width }

// Height is the number of rows.
func (ps *OrderedPointSet) Height() int {
	if ps.width == 0 {
		return 0
	}
	return len(ps.data) / ps.width
}

// Size is the total number of points.
func (ps *OrderedPointSet) Size() int { return len(ps.data) }

// Empty reports whether the set has no rows.
func (ps *OrderedPointSet) Empty() bool { return len(ps.data) == 0 }

// SetWidth changes the row width. Only allowed while the set is empty.
func (ps *OrderedPointSet) SetWidth(width int) error {
	if len(ps.data) > 0 {
		return ErrWidthLocked
	}
	ps.width = width
	return nil
}

// Reset drops all rows and clears the width.
func (ps *OrderedPointSet) Reset() {
	ps.data = nil
	ps.width = 0
}

// PushRow appends one row. The row length must equal the set width.
func (ps *OrderedPointSet) PushRow(row []r3.Vec) error {
	if len(row) != ps.width {
		return fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, len(row), ps.width)
	}
	ps.data = append(ps.data, row...)
	return nil
}

// Row returns a copy of row i.
func (ps *OrderedPointSet) Row(i int) ([]r3.Vec, error) {
	if i < 0 || i >= ps.Height() {
		return nil, fmt.Errorf("%w: %d (height %d)", ErrRowRange, i, ps.Height())
	}
	row := make([]r3.Vec, ps.width)
	copy(row, ps.data[i*ps.width:(i+1)*ps.width])
	return row, nil
}

// At returns the point at (row, col).
func (ps *OrderedPointSet) At(row, col int) r3.Vec {
	return ps.data[row*ps.width+col]
}

// Set overwrites the point at (row, col).
func (ps *OrderedPointSet) Set(row, col int, v r3.Vec) {
	ps.data[row*ps.width+col] = v
}

// CopyRows returns a new point set holding rows [i, j).
func (ps *OrderedPointSet) CopyRows(i, j int) (*OrderedPointSet, error) {
	if i < 0 || j > ps.Height() || i > j {
		return nil, fmt.Errorf("%w: [%d, %d) (height %d)", ErrRowRange, i, j, ps.Height())
	}
	out := NewOrderedPointSet(ps.width)
	out.data = make([]r3.Vec, (j-i)*ps.width)
	copy(out.data, ps.data[i*ps.width:j*ps.width])
	return out, nil
}

// Append adds every row of o to the end of ps. Both sets must have the same
// width unless ps is empty, in which case it adopts the width of o.
func (ps *OrderedPointSet) Append(o *OrderedPointSet) error {
	if o == nil || o.Empty() {
		return nil
	}
	if ps.Empty() && ps.width == 0 {
		ps.width = o.width
	}
	if o.width != ps.width {
		return fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, o.width, ps.width)
	}
	ps.data = append(ps.data, o.data...)
	return nil
}

// Points returns a copy of every point in row-major order.
func (ps *OrderedPointSet) Points() []r3.Vec {
	out := make([]r3.Vec, len(ps.data))
	copy(out, ps.data)
	return out
}

// ZRange returns the smallest and largest Z of all defined points.
func (ps *OrderedPointSet) ZRange() (minZ, maxZ float64, ok bool) {
	minZ, maxZ = math.Inf(1), math.Inf(-1)
	for _, p := range ps.data {
		if !IsDefined(p) {
			continue
		}
		ok = true
		minZ = math.Min(minZ, p.Z)
		maxZ = math.Max(maxZ, p.Z)
	}
	return minZ, maxZ, ok
}

// Equal reports whether two point sets have identical width and points.
func (ps *OrderedPointSet) Equal(o *OrderedPointSet) bool {
	if ps.width != o.width || len(ps.data) != len(o.data) {
		return false
	}
	for i := range ps.data {
		if ps.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
