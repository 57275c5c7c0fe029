// Package interval implements conservative interval arithmetic over float64
// bounds. Unbounded ends are represented by infinities.
//
// Every operation returns an interval that contains all values the exact
// operation can produce for operands drawn from the input intervals. The
// result may be wider than necessary but is never narrower.
package interval

import (
	"fmt"
	"math"
)

// Interval is the closed range [Min, Max].
type Interval struct {
	Min float64
	Max float64
}

// Everything returns the unbounded interval.
func Everything() Interval {
	return Interval{Min: math.Inf(-1), Max: math.Inf(1)}
}

// Point returns the single-value interval [v, v].
func Point(v float64) Interval {
	return Interval{Min: v, Max: v}
}

// New returns [lo, hi], swapping the ends if needed.
func New(lo, hi float64) Interval {
	if lo > hi {
		lo, hi = hi, lo
	}
	return sanitize(Interval{Min: lo, Max: hi})
}

// Bool returns [0, 1].
func Bool() Interval {
	return Interval{Min: 0, Max: 1}
}

// IsBounded reports whether both ends are finite.
func (i Interval) IsBounded() bool {
	return !math.IsInf(i.Min, 0) && !math.IsInf(i.Max, 0)
}

// IsPoint reports whether the interval holds a single value.
func (i Interval) IsPoint() bool {
	return i.Min == i.Max
}

// Contains reports whether o lies within i.
func (i Interval) Contains(o Interval) bool {
	return i.Min <= o.Min && o.Max <= i.Max
}

// Union returns the smallest interval containing both.
func (i Interval) Union(o Interval) Interval {
	return Interval{Min: math.Min(i.Min, o.Min), Max: math.Max(i.Max, o.Max)}
}

// Intersect returns the overlap of both intervals. Disjoint intervals
// produce an empty interval with Min > Max.
func (i Interval) Intersect(o Interval) Interval {
	return Interval{Min: math.Max(i.Min, o.Min), Max: math.Min(i.Max, o.Max)}
}

// Within reports whether the interval fits in [lo, hi].
func (i Interval) Within(lo, hi float64) bool {
	return i.Min >= lo && i.Max <= hi
}

// String formats the interval as [min, max].
func (i Interval) String() string {
	return fmt.Sprintf("[%g, %g]", i.Min, i.Max)
}

// sanitize replaces NaN ends with the matching infinity.
func sanitize(i Interval) Interval {
	if math.IsNaN(i.Min) {
		i.Min = math.Inf(-1)
	}
	if math.IsNaN(i.Max) {
		i.Max = math.Inf(1)
	}
	return i
}

// Add returns a + b.
func Add(a, b Interval) Interval {
	return sanitize(Interval{Min: a.Min + b.Min, Max: a.Max + b.Max})
}

// Sub returns a - b.
func Sub(a, b Interval) Interval {
	return sanitize(Interval{Min: a.Min - b.Max, Max: a.Max - b.Min})
}

// Neg returns -a.
func Neg(a Interval) Interval {
	return Interval{Min: -a.Max, Max: -a.Min}
}

// Mul returns a * b.
func Mul(a, b Interval) Interval {
	return corners(a, b, func(x, y float64) float64 {
		p := x * y
		if math.IsNaN(p) {
			// 0 * Inf: the zero operand bounds this corner.
			return 0
		}
		return p
	})
}

// Div returns a / b. With integer set, the quotient truncates toward zero
// and division by zero yields zero.
func Div(a, b Interval, integer bool) Interval {
	if b.Min <= 0 && b.Max >= 0 {
		if !integer {
			return Everything()
		}
		// |a / b| <= |a| for every non-zero integer b, and x / 0 == 0.
		m := math.Max(math.Abs(a.Min), math.Abs(a.Max))
		return Interval{Min: -m, Max: m}
	}
	q := corners(a, b, func(x, y float64) float64 { return x / y })
	if integer {
		q = Interval{Min: math.Floor(q.Min), Max: math.Ceil(q.Max)}
	}
	return sanitize(q)
}

// Mod returns a % b where the result takes the sign of the dividend. With
// integer set the magnitude is strictly below |b| and x % 0 yields zero.
func Mod(a, b Interval, integer bool) Interval {
	lo, hi := math.Min(0, a.Min), math.Max(0, a.Max)
	m := math.Max(math.Abs(b.Min), math.Abs(b.Max))
	if integer {
		m--
	}
	if !math.IsInf(m, 0) && !math.IsNaN(m) {
		lo = math.Max(lo, -m)
		hi = math.Min(hi, m)
		if lo > 0 {
			lo = 0
		}
		if hi < 0 {
			hi = 0
		}
	}
	return Interval{Min: lo, Max: hi}
}

// Min returns min(a, b).
func Min(a, b Interval) Interval {
	return Interval{Min: math.Min(a.Min, b.Min), Max: math.Min(a.Max, b.Max)}
}

// Max returns max(a, b).
func Max(a, b Interval) Interval {
	return Interval{Min: math.Max(a.Min, b.Min), Max: math.Max(a.Max, b.Max)}
}

// Abs returns |a|.
func Abs(a Interval) Interval {
	switch {
	case a.Min >= 0:
		return a
	case a.Max <= 0:
		return Neg(a)
	default:
		return Interval{Min: 0, Max: math.Max(-a.Min, a.Max)}
	}
}

// Monotonic applies a non-decreasing function to both ends.
func Monotonic(a Interval, fn func(float64) float64) Interval {
	return sanitize(Interval{Min: fn(a.Min), Max: fn(a.Max)})
}

// Trunc rounds both ends toward zero.
func Trunc(a Interval) Interval {
	return Monotonic(a, math.Trunc)
}

// Sqrt returns the bounds of sqrt(a). Negative inputs produce NaN, which
// integer casts map to zero, so zero stays inside the result.
func Sqrt(a Interval) Interval {
	if a.Max < 0 {
		return Point(0)
	}
	return Interval{Min: math.Sqrt(math.Max(0, a.Min)), Max: math.Sqrt(a.Max)}
}

// corners evaluates fn at the four corner combinations and returns their hull.
func corners(a, b Interval, fn func(x, y float64) float64) Interval {
	c := [4]float64{fn(a.Min, b.Min), fn(a.Min, b.Max), fn(a.Max, b.Min), fn(a.Max, b.Max)}
	out := Interval{Min: c[0], Max: c[0]}
	for _, v := range c[1:] {
		if math.IsNaN(v) {
			return Everything()
		}
		out.Min = math.Min(out.Min, v)
		out.Max = math.Max(out.Max, v)
	}
	if math.IsNaN(c[0]) {
		return Everything()
	}
	return out
}
