package pixfunc

import (
	"fmt"
	"strings"
)

// Range is a half-open integer interval [Min, Min+Extent).
type Range struct {
	Min    int
	Extent int
}

// Max returns the last coordinate inside the range.
func (r Range) Max() int { return r.Min + r.Extent - 1 }

// Contains reports whether o lies entirely inside r.
func (r Range) Contains(o Range) bool {
	return o.Min >= r.Min && o.Max() <= r.Max()
}

// Union returns the smallest range covering both r and o.
func (r Range) Union(o Range) Range {
	lo := min(r.Min, o.Min)
	hi := max(r.Max(), o.Max())
	return Range{Min: lo, Extent: hi - lo + 1}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max())
}

// Region is a rectangular domain, one Range per axis.
type Region []Range

// Extents returns a region with origin zero and the given extents.
func Extents(extents ...int) Region {
	r := make(Region, len(extents))
	for i, e := range extents {
		r[i] = Range{Extent: e}
	}
	return r
}

// Validate returns ErrInvalidRegion if r has no axes or a non-positive extent.
func (r Region) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidRegion)
	}
	for i, d := range r {
		if d.Extent <= 0 {
			return fmt.Errorf("%w: dimension %d has extent %d", ErrInvalidRegion, i, d.Extent)
		}
	}
	return nil
}

// Size returns the number of points in r.
func (r Region) Size() int {
	if len(r) == 0 {
		return 0
	}
	n := 1
	for _, d := range r {
		n *= d.Extent
	}
	return n
}

// Contains reports whether o lies entirely inside r. Regions of different
// dimensionality never contain each other.
func (r Region) Contains(o Region) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Contains(o[i]) {
			return false
		}
	}
	return true
}

// Union returns the bounding box of r and o. A nil region is the identity.
func (r Region) Union(o Region) Region {
	if r == nil {
		return o.Clone()
	}
	if o == nil {
		return r.Clone()
	}
	out := make(Region, len(r))
	for i := range r {
		out[i] = r[i].Union(o[i])
	}
	return out
}

// Equal reports whether r and o have the same ranges.
func (r Region) Equal(o Region) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// SameExtents reports whether r and o have the same extent on every axis,
// regardless of origin.
func (r Region) SameExtents(o Region) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i].Extent != o[i].Extent {
			return false
		}
	}
	return true
}

// Clone returns a copy of r.
func (r Region) Clone() Region {
	if r == nil {
		return nil
	}
	return append(Region(nil), r...)
}

func (r Region) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = d.String()
	}
	return strings.Join(parts, " x ")
}
