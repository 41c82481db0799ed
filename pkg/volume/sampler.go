package volume

import (
	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
)

// Sampler reads through a Volume but first tries the two slices it used
// last. Consecutive samples of a propagation step mostly touch the same
// pair of layers, so most lookups never reach the shared cache lock.
//
// A Sampler is plain per-run state and is not safe for concurrent use.
type Sampler struct {
	vol  *Volume
	hint [2]*models.Slice // most recent first
}

// Volume returns the underlying volume.
func (s *Sampler) Volume() *Volume { return s.vol }

// InBounds reports whether p lies inside the volume.
func (s *Sampler) InBounds(p r3.Vec) bool { return s.vol.InBounds(p) }

func (s *Sampler) slice(z int) (*models.Slice, error) {
	if h := s.hint[0]; h != nil && h.Index == z {
		return h, nil
	}
	if h := s.hint[1]; h != nil && h.Index == z {
		s.hint[0], s.hint[1] = h, s.hint[0]
		return h, nil
	}

	sl, err := s.vol.Slice(z)
	if err != nil {
		return nil, err
	}
	s.hint[1] = s.hint[0]
	s.hint[0] = sl
	return sl, nil
}

// Reset forgets the locality hint.
func (s *Sampler) Reset() {
	s.hint = [2]*models.Slice{}
}

// IntensityAt returns the raw sample at an integer voxel, or 0 outside.
func (s *Sampler) IntensityAt(x, y, z int) uint16 {
	return intensityAt(s.vol.info, s.slice, x, y, z)
}

// InterpolatedIntensity samples the volume with trilinear interpolation.
func (s *Sampler) InterpolatedIntensity(p r3.Vec) (float64, error) {
	return trilinear(s.vol.info, s.slice, p)
}
