// Package volume provides cached access to a stack of scan slices and
// sub-voxel sampling of the volume they form.
package volume

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volseg/internal/models"
)

var (
	// ErrOutOfRange is returned for slice indices outside [0, numSlices)
	ErrOutOfRange = errors.New("slice index out of range")

	// ErrOutOfBounds is returned when a sample needs voxels outside the volume
	ErrOutOfBounds = errors.New("sample outside volume")

	// ErrEmptyVolume is returned when a source has no slices or no pixels
	ErrEmptyVolume = errors.New("volume has no data")
)

// Volume is a read-only view of a slice stack with an LRU slice cache.
//
// Volume is safe for concurrent use. Slices returned by Slice are shared
// with the cache and must not be modified.
type Volume struct {
	src   Source
	info  models.VolumeInfo
	cache *sliceCache
}

// New wraps a source. The cache starts with DefaultCacheCapacity slices.
func New(src Source) (*Volume, error) {
	info := src.Info()
	if info.Slices <= 0 || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrEmptyVolume, info.Width, info.Height, info.Slices)
	}

	return &Volume{
		src:   src,
		info:  info,
		cache: newSliceCache(DefaultCacheCapacity),
	}, nil
}

// Open loads an on-disk volume directory.
func Open(dir string) (*Volume, error) {
	src, err := OpenDir(dir)
	if err != nil {
		return nil, err
	}
	return New(src)
}

// Info describes the volume geometry.
func (v *Volume) Info() models.VolumeInfo { return v.info }

// Width is the slice width in pixels.
func (v *Volume) Width() int { return v.info.Width }

// Height is the slice height in pixels.
func (v *Volume) Height() int { return v.info.Height }

// NumSlices is the depth of the stack.
func (v *Volume) NumSlices() int { return v.info.Slices }

// VoxelSize is the physical voxel edge length.
func (v *Volume) VoxelSize() float64 { return v.info.VoxelSize }

// Slice returns the slice at depth z, decoding it on a cache miss.
func (v *Volume) Slice(z int) (*models.Slice, error) {
	if z < 0 || z >= v.info.Slices {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, z, v.info.Slices)
	}

	if s, ok := v.cache.get(z); ok {
		return s, nil
	}

	s, err := v.src.ReadSlice(z)
	if err != nil {
		return nil, fmt.Errorf("failed to read slice %d: %w", z, err)
	}
	v.cache.put(z, s)
	return s, nil
}

// SetCacheCapacity bounds the cache to n slices, evicting immediately if
// needed. n <= 0 disables caching.
func (v *Volume) SetCacheCapacity(n int) {
	v.cache.setCapacity(n)
}

// SetCacheMemory bounds the cache to the given number of sample bytes,
// evicting immediately if needed.
func (v *Volume) SetCacheMemory(bytes int64) {
	v.cache.setMemory(bytes)
}

// CacheCapacity returns the item budget, or the number of whole slices that
// fit into the byte budget when one is configured.
func (v *Volume) CacheCapacity() int {
	v.cache.mu.Lock()
	defer v.cache.mu.Unlock()
	if v.cache.limit.bytes > 0 {
		return int(v.cache.limit.bytes / v.sliceBytes())
	}
	return v.cache.limit.items
}

// CacheSize is the number of cached slices.
func (v *Volume) CacheSize() int {
	return v.cache.stats().Entries
}

// CachedIndices lists cached depth indices, most recently used first.
func (v *Volume) CachedIndices() []int {
	return v.cache.indices()
}

// CacheStats returns a snapshot of cache activity.
func (v *Volume) CacheStats() CacheStats {
	return v.cache.stats()
}

// PurgeCache drops every cached slice.
func (v *Volume) PurgeCache() {
	v.cache.purge()
}

func (v *Volume) sliceBytes() int64 {
	return int64(v.info.Width) * int64(v.info.Height) * 2
}

// InBounds reports whether p lies inside [0,W-1] x [0,H-1] x [0,numSlices-1],
// the region where trilinear interpolation has all its grid neighbors. Every
// point it accepts can be sampled.
func (v *Volume) InBounds(p r3.Vec) bool {
	return inBounds(v.info, p)
}

func inBounds(info models.VolumeInfo, p r3.Vec) bool {
	return p.X >= 0 && p.X <= float64(info.Width-1) &&
		p.Y >= 0 && p.Y <= float64(info.Height-1) &&
		p.Z >= 0 && p.Z <= float64(info.Slices-1)
}

// IntensityAt returns the raw sample at an integer voxel, or 0 outside the
// volume or when the slice cannot be read.
func (v *Volume) IntensityAt(x, y, z int) uint16 {
	return intensityAt(v.info, v.Slice, x, y, z)
}

// InterpolatedIntensity samples the volume at a fractional voxel with
// trilinear interpolation.
func (v *Volume) InterpolatedIntensity(p r3.Vec) (float64, error) {
	return trilinear(v.info, v.Slice, p)
}

// StructureTensor computes the structure tensor around p. See
// Sampler.StructureTensor.
func (v *Volume) StructureTensor(p r3.Vec, radius int) (Tensor, error) {
	return v.NewSampler().StructureTensor(p, radius)
}

// NewSampler returns a sampler that remembers recently used slices. Each
// propagation run should own its sampler.
func (v *Volume) NewSampler() *Sampler {
	return &Sampler{vol: v}
}

type sliceFunc func(z int) (*models.Slice, error)

func intensityAt(info models.VolumeInfo, get sliceFunc, x, y, z int) uint16 {
	if x < 0 || x >= info.Width || y < 0 || y >= info.Height || z < 0 || z >= info.Slices {
		return 0
	}
	s, err := get(z)
	if err != nil {
		return 0
	}
	return s.At(x, y)
}

// trilinear interpolates the 8 grid neighbors of p. A neighbor on an axis
// where p is integer-aligned carries zero weight and is not fetched, so grid
// points on the far faces of the volume are valid samples.
func trilinear(info models.VolumeInfo, get sliceFunc, p r3.Vec) (float64, error) {
	if !inBounds(info, p) {
		return 0, ErrOutOfBounds
	}

	x0, dx := splitCoord(p.X)
	y0, dy := splitCoord(p.Y)
	z0, dz := splitCoord(p.Z)
	x1, y1, z1 := x0, y0, z0
	if dx > 0 {
		x1++
	}
	if dy > 0 {
		y1++
	}
	if dz > 0 {
		z1++
	}

	s0, err := get(z0)
	if err != nil {
		return 0, err
	}
	s1 := s0
	if z1 != z0 {
		if s1, err = get(z1); err != nil {
			return 0, err
		}
	}

	c00 := lerp(float64(s0.At(x0, y0)), float64(s0.At(x1, y0)), dx)
	c10 := lerp(float64(s0.At(x0, y1)), float64(s0.At(x1, y1)), dx)
	c01 := lerp(float64(s1.At(x0, y0)), float64(s1.At(x1, y0)), dx)
	c11 := lerp(float64(s1.At(x0, y1)), float64(s1.At(x1, y1)), dx)

	c0 := lerp(c00, c10, dy)
	c1 := lerp(c01, c11, dy)
	return lerp(c0, c1, dz), nil
}

func splitCoord(v float64) (int, float64) {
	f := math.Floor(v)
	return int(f), v - f
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
