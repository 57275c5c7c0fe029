package pixfunc

import (
	"math"

	"github.com/gogpu/pixfunc/internal/interval"
)

// requirement accumulates the box of coordinates one stage reads from a
// producer or an input buffer, unioned over all call sites.
type requirement struct {
	fn  *Func
	buf *Buffer
	box []interval.Interval
}

func (r *requirement) name() string {
	if r.fn != nil {
		return r.fn.Name()
	}
	return r.buf.Name()
}

// boundsWalker infers value ranges of expressions over a box of formal
// coordinates and records the regions read from every callee.
// The environment must not change once bounds has been called.
type boundsWalker struct {
	env  map[*Var]interval.Interval
	reqs []*requirement
	memo map[Expr]interval.Interval
}

func (w *boundsWalker) require(c *callExpr, box []interval.Interval) {
	for _, r := range w.reqs {
		if (c.fn != nil && r.fn == c.fn) || (c.buf != nil && r.buf == c.buf) {
			for i := range box {
				r.box[i] = r.box[i].Union(box[i])
			}
			return
		}
	}
	w.reqs = append(w.reqs, &requirement{fn: c.fn, buf: c.buf, box: box})
}

// bounds returns an interval containing every value e takes over the
// walker's environment. Shared nodes are analysed once; their call sites
// were already recorded on the first visit.
func (w *boundsWalker) bounds(e Expr) interval.Interval {
	if iv, ok := w.memo[e]; ok {
		return iv
	}
	iv := w.infer(e)
	if w.memo == nil {
		w.memo = make(map[Expr]interval.Interval)
	}
	w.memo[e] = iv
	return iv
}

func (w *boundsWalker) infer(e Expr) interval.Interval {
	switch n := e.(type) {
	case *constExpr:
		return interval.Point(n.value())

	case *Var:
		if iv, ok := w.env[n]; ok {
			return iv
		}
		return interval.Everything()

	case *binaryExpr:
		a, b := w.bounds(n.a), w.bounds(n.b)
		integer := !n.a.Type().IsFloat()
		var r interval.Interval
		switch n.op {
		case opAdd:
			r = interval.Add(a, b)
		case opSub:
			r = interval.Sub(a, b)
		case opMul:
			r = interval.Mul(a, b)
		case opDiv:
			r = interval.Div(a, b, integer)
		case opMod:
			r = interval.Mod(a, b, integer)
		case opMin:
			r = interval.Min(a, b)
		case opMax:
			r = interval.Max(a, b)
		case opPow:
			r = interval.Everything()
			if a.IsPoint() && b.IsPoint() {
				r = interval.Point(math.Pow(a.Min, b.Min))
			}
		default:
			return interval.Bool()
		}
		return fit(n.t, r)

	case *unaryExpr:
		a := w.bounds(n.a)
		var r interval.Interval
		switch n.op {
		case opNot:
			return interval.Bool()
		case opNeg:
			r = interval.Neg(a)
		case opAbs:
			r = interval.Abs(a)
		case opSqrt:
			r = interval.Sqrt(a)
		case opSin, opCos:
			r = interval.New(-1, 1)
		case opExp:
			r = interval.Monotonic(a, math.Exp)
		case opLog:
			r = interval.Everything()
			if a.Min > 0 {
				r = interval.Monotonic(a, math.Log)
			}
		case opFloor:
			r = interval.Monotonic(a, math.Floor)
		case opCeil:
			r = interval.Monotonic(a, math.Ceil)
		case opRound:
			r = interval.Monotonic(a, math.RoundToEven)
		}
		return fit(n.t, r)

	case *castExpr:
		return castBounds(n.t, n.a.Type(), w.bounds(n.a))

	case *selectExpr:
		w.bounds(n.cond)
		return w.bounds(n.a).Union(w.bounds(n.b))

	case *callExpr:
		box := make([]interval.Interval, len(n.args))
		for i, a := range n.args {
			box[i] = w.bounds(a)
		}
		w.require(n, box)
		return typeRange(n.t)

	case *printExpr:
		if n.cond != nil {
			w.bounds(n.cond)
		}
		for _, p := range n.parts {
			if p.e != nil {
				w.bounds(p.e)
			}
		}
		return w.bounds(n.value)
	}
	return interval.Everything()
}

// typeRange returns every value of type t.
func typeRange(t Type) interval.Interval {
	if t.IsFloat() {
		return interval.Everything()
	}
	return interval.New(t.MinValue(), t.MaxValue())
}

// fit accounts for the result type of an operation: integer results that
// may leave the type's range can wrap anywhere inside it, and Float32
// results may round one ulp outward.
func fit(t Type, iv interval.Interval) interval.Interval {
	if t.IsFloat() {
		if t.Bits == 32 {
			iv = interval.Interval{
				Min: float64(math.Nextafter32(float32(iv.Min), float32(math.Inf(-1)))),
				Max: float64(math.Nextafter32(float32(iv.Max), float32(math.Inf(1)))),
			}
		}
		return iv
	}
	if iv.Within(t.MinValue(), t.MaxValue()) {
		return iv
	}
	return typeRange(t)
}

func castBounds(to, from Type, iv interval.Interval) interval.Interval {
	switch {
	case to.IsBool():
		return interval.Bool()
	case to.IsFloat():
		return fit(to, iv)
	case from.IsFloat():
		// NaN converts to zero.
		return fit(to, interval.Trunc(iv).Union(interval.Point(0)))
	}
	return fit(to, iv)
}

// toRange converts an inferred interval of integer coordinates to a Range.
// It fails when the interval is unbounded or too large to allocate.
func toRange(iv interval.Interval) (Range, bool) {
	if !iv.IsBounded() {
		return Range{}, false
	}
	lo, hi := math.Floor(iv.Min), math.Ceil(iv.Max)
	if hi-lo+1 > maxElements || math.Abs(lo) > 1<<40 || math.Abs(hi) > 1<<40 {
		return Range{}, false
	}
	return Range{Min: int(lo), Extent: int(hi-lo) + 1}, true
}
