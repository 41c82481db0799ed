package volume

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEigen is returned when the eigen decomposition of a tensor fails
var ErrEigen = errors.New("eigen decomposition failed")

// Tensor is a symmetric 3x3 structure tensor in (x, y, z) order.
type Tensor [3][3]float64

// EigenPair is one eigenvalue with its unit eigenvector.
type EigenPair struct {
	Value  float64
	Vector r3.Vec
}

// StructureTensor computes the local gradient covariance around center.
//
// Samples of the (2r+3)^3 neighborhood are normalized to [0,1] by the 16-bit
// maximum. Coordinates outside the volume are clamped to the nearest face.
// Gradients use central differences; their outer products are averaged over
// the (2r+1)^3 interior voxels.
func (s *Sampler) StructureTensor(center r3.Vec, radius int) (Tensor, error) {
	if !s.InBounds(center) {
		return Tensor{}, ErrOutOfBounds
	}
	if radius < 0 {
		return Tensor{}, fmt.Errorf("invalid structure tensor radius %d", radius)
	}

	info := s.vol.info
	side := 2*radius + 3
	grid := make([]float64, side*side*side)
	at := func(i, j, k int) float64 { return grid[(k*side+j)*side+i] }

	for k := 0; k < side; k++ {
		for j := 0; j < side; j++ {
			for i := 0; i < side; i++ {
				p := r3.Vec{
					X: clamp(center.X+float64(i-radius-1), 0, float64(info.Width-1)),
					Y: clamp(center.Y+float64(j-radius-1), 0, float64(info.Height-1)),
					Z: clamp(center.Z+float64(k-radius-1), 0, float64(info.Slices-1)),
				}
				v, err := s.InterpolatedIntensity(p)
				if err != nil {
					return Tensor{}, err
				}
				grid[(k*side+j)*side+i] = v / math.MaxUint16
			}
		}
	}

	var t Tensor
	for k := 1; k < side-1; k++ {
		for j := 1; j < side-1; j++ {
			for i := 1; i < side-1; i++ {
				g := [3]float64{
					(at(i+1, j, k) - at(i-1, j, k)) / 2,
					(at(i, j+1, k) - at(i, j-1, k)) / 2,
					(at(i, j, k+1) - at(i, j, k-1)) / 2,
				}
				for a := 0; a < 3; a++ {
					for b := 0; b < 3; b++ {
						t[a][b] += g[a] * g[b]
					}
				}
			}
		}
	}

	n := float64((side - 2) * (side - 2) * (side - 2))
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			t[a][b] /= n
		}
	}
	return t, nil
}

// EigenPairs returns the eigenvalues of t in ascending order with their
// unit eigenvectors.
func (t Tensor) EigenPairs() ([3]EigenPair, error) {
	sym := mat.NewSymDense(3, []float64{
		t[0][0], t[0][1], t[0][2],
		t[1][0], t[1][1], t[1][2],
		t[2][0], t[2][1], t[2][2],
	})

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return [3]EigenPair{}, ErrEigen
	}

	values := es.Values(nil)
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	var pairs [3]EigenPair
	for i := 0; i < 3; i++ {
		pairs[i] = EigenPair{
			Value: values[i],
			Vector: r3.Unit(r3.Vec{
				X: vectors.At(0, i),
				Y: vectors.At(1, i),
				Z: vectors.At(2, i),
			}),
		}
	}
	return pairs, nil
}

// FlowDirection is the eigenvector with the smallest eigenvalue: the
// direction along which intensity changes least.
func (t Tensor) FlowDirection() (r3.Vec, error) {
	pairs, err := t.EigenPairs()
	if err != nil {
		return r3.Vec{}, err
	}
	return pairs[0].Vector, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
