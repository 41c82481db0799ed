// Package profile analyzes 1D intensity curves taken from reslice images.
package profile

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Maximum is a local intensity peak of a profile.
type Maximum struct {
	// Index is the sample position within the profile
	Index int

	// Intensity is the normalized value at Index, in [0, 1]
	Intensity float64
}

// IntensityProfile is a 1D intensity curve rescaled into [0, 1].
type IntensityProfile struct {
	values []float64
	valid  []bool
}

// New normalizes samples into [0, 1]. A profile without contrast (all
// samples equal) normalizes to all zeros and has no maxima.
func New(samples []float64) *IntensityProfile {
	return NewMasked(samples, nil)
}

// NewMasked is New for profiles with gaps. valid marks the samples that
// carry data; nil means all of them. Invalid samples normalize to 0, are left
// out of the normalization range and bound the profile the way its ends do.
func NewMasked(samples []float64, valid []bool) *IntensityProfile {
	p := &IntensityProfile{
		values: make([]float64, len(samples)),
		valid:  make([]bool, len(samples)),
	}

	var data []float64
	for i, s := range samples {
		p.valid[i] = valid == nil || (i < len(valid) && valid[i])
		if p.valid[i] {
			data = append(data, s)
		}
	}
	if len(data) == 0 {
		return p
	}

	lo, hi := floats.Min(data), floats.Max(data)
	if span := hi - lo; span > 0 {
		for i, s := range samples {
			if p.valid[i] {
				p.values[i] = (s - lo) / span
			}
		}
	}
	return p
}

// RowSource is anything that exposes rows and columns of samples along with
// their validity, such as a reslice.
type RowSource interface {
	Row(y int) []float64
	Col(x int) []float64
	RowValid(y int) []bool
	ColValid(x int) []bool
}

// FromRow builds a profile from row y of src.
func FromRow(src RowSource, y int) *IntensityProfile {
	return NewMasked(src.Row(y), src.RowValid(y))
}

// FromCol builds a profile from column x of src.
func FromCol(src RowSource, x int) *IntensityProfile {
	return NewMasked(src.Col(x), src.ColValid(x))
}

// Len is the number of samples.
func (p *IntensityProfile) Len() int { return len(p.values) }

// Values returns a copy of the normalized samples.
func (p *IntensityProfile) Values() []float64 {
	out := make([]float64, len(p.values))
	copy(out, p.values)
	return out
}

// Maxima returns every local maximum in index order.
//
// Sample i is a maximum when it rises above sample i-1 and the run of equal
// samples starting at i is followed by a strictly lower sample. Plateaus
// report their leftmost index. Neither end of the profile can be a maximum,
// so monotonic and flat profiles have none. Invalid samples split the
// profile into runs that are searched independently, each with its own ends.
func (p *IntensityProfile) Maxima() []Maximum {
	var out []Maximum
	for start := 0; start < len(p.values); {
		if !p.valid[start] {
			start++
			continue
		}
		end := start
		for end < len(p.values) && p.valid[end] {
			end++
		}
		out = appendMaxima(out, p.values[start:end], start)
		start = end
	}
	return out
}

// appendMaxima adds the maxima of the gap-free run v, which starts at
// profile index offset.
func appendMaxima(out []Maximum, v []float64, offset int) []Maximum {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			continue
		}
		j := i + 1
		for j < len(v) && v[j] == v[i] {
			j++
		}
		if j == len(v) {
			// Rising into the end of the run is not a peak.
			break
		}
		if v[j] < v[i] {
			out = append(out, Maximum{Index: offset + i, Intensity: v[i]})
		}
		i = j - 1
	}
	return out
}

// FindNMaxima returns up to n local maxima ordered by intensity, strongest
// first, ties broken by the lower index. Fewer maxima than n yield fewer
// results.
func (p *IntensityProfile) FindNMaxima(n int) []Maximum {
	if n <= 0 {
		return nil
	}

	maxima := p.Maxima()
	sort.SliceStable(maxima, func(a, b int) bool {
		return maxima[a].Intensity > maxima[b].Intensity
	})
	if len(maxima) > n {
		maxima = maxima[:n]
	}
	return maxima
}
