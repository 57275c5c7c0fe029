package pixfunc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// reg names a scratch register of a frame: a lane vector of int64 values or
// of float64 values.
type reg struct {
	idx   int
	float bool
}

// evalFn fills registers for the first n lanes of a frame.
type evalFn func(fr *frame, n int)

// frame is the per-goroutine scratch space of a kernel. The first int
// registers hold the formal coordinates of each lane.
type frame struct {
	ints   [][]int64
	floats [][]float64
}

// kernel is a stage body compiled to closures over lane vectors.
type kernel struct {
	eval    evalFn
	out     reg
	typ     Type
	nInts   int
	nFloats int
}

func (k *kernel) newFrame(lanes int) *frame {
	fr := &frame{
		ints:   make([][]int64, k.nInts),
		floats: make([][]float64, k.nFloats),
	}
	for i := range fr.ints {
		fr.ints[i] = make([]int64, lanes)
	}
	for i := range fr.floats {
		fr.floats[i] = make([]float64, lanes)
	}
	return fr
}

// compiler turns an expression into a kernel. Every node gets its own
// register; a node shared by several parents is computed once per batch.
type compiler struct {
	nInts, nFloats int
	formals        map[*Var]int
	producers      map[*Func]*Buffer
	out            *lockedWriter
	regs           map[Expr]reg
}

// compileKernel compiles body for a stage with the given formals. Calls to
// producer stages read the buffers in producers.
func compileKernel(body Expr, formals []*Var, producers map[*Func]*Buffer, out *lockedWriter) (*kernel, error) {
	c := &compiler{
		formals:   make(map[*Var]int, len(formals)),
		producers: producers,
		out:       out,
		regs:      make(map[Expr]reg),
	}
	for i, v := range formals {
		c.formals[v] = i
	}
	c.nInts = len(formals)

	r, eval, err := c.compile(body)
	if err != nil {
		return nil, err
	}
	if eval == nil {
		eval = func(*frame, int) {}
	}
	return &kernel{eval: eval, out: r, typ: body.Type(), nInts: c.nInts, nFloats: c.nFloats}, nil
}

func (c *compiler) alloc(t Type) reg {
	if t.IsFloat() {
		c.nFloats++
		return reg{idx: c.nFloats - 1, float: true}
	}
	c.nInts++
	return reg{idx: c.nInts - 1}
}

// seq runs the non-nil functions in order.
func seq(fns ...evalFn) evalFn {
	var list []evalFn
	for _, fn := range fns {
		if fn != nil {
			list = append(list, fn)
		}
	}
	switch len(list) {
	case 0:
		return nil
	case 1:
		return list[0]
	}
	return func(fr *frame, n int) {
		for _, fn := range list {
			fn(fr, n)
		}
	}
}

func fill[T any](s []T, v T) {
	for i := range s {
		s[i] = v
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// compile returns the register holding e and the code that fills it. The
// code of a node already compiled is not emitted again: evaluation follows
// compilation order, so its register is filled before any later use.
func (c *compiler) compile(e Expr) (reg, evalFn, error) {
	if r, ok := c.regs[e]; ok {
		return r, nil, nil
	}
	r, eval, err := c.compileNode(e)
	if err != nil {
		return reg{}, nil, err
	}
	c.regs[e] = r
	return r, eval, nil
}

func (c *compiler) compileNode(e Expr) (reg, evalFn, error) {
	switch n := e.(type) {
	case *Var:
		i, ok := c.formals[n]
		if !ok {
			return reg{}, nil, fmt.Errorf("%w: unbound variable %s", ErrDefinition, n.name)
		}
		return reg{idx: i}, nil, nil

	case *constExpr:
		out := c.alloc(n.t)
		if out.float {
			v := n.f
			return out, func(fr *frame, k int) { fill(fr.floats[out.idx][:k], v) }, nil
		}
		v := n.i
		return out, func(fr *frame, k int) { fill(fr.ints[out.idx][:k], v) }, nil

	case *binaryExpr:
		return c.binary(n)
	case *unaryExpr:
		return c.unary(n)
	case *castExpr:
		return c.cast(n)
	case *selectExpr:
		return c.sel(n)
	case *callExpr:
		return c.call(n)
	case *printExpr:
		return c.print(n)
	case *invalidExpr:
		return reg{}, nil, n.err
	}
	return reg{}, nil, fmt.Errorf("%w: cannot compile %T", ErrDefinition, e)
}

func (c *compiler) binary(n *binaryExpr) (reg, evalFn, error) {
	ra, ea, err := c.compile(n.a)
	if err != nil {
		return reg{}, nil, err
	}
	rb, eb, err := c.compile(n.b)
	if err != nil {
		return reg{}, nil, err
	}
	opType := n.a.Type()
	out := c.alloc(n.t)

	var run evalFn
	switch {
	case opType.IsFloat() && n.op.isCompare():
		cmp := floatCompare(n.op)
		run = func(fr *frame, k int) {
			a, b, o := fr.floats[ra.idx][:k], fr.floats[rb.idx][:k], fr.ints[out.idx][:k]
			for i := range o {
				o[i] = b2i(cmp(a[i], b[i]))
			}
		}
	case opType.IsFloat():
		fn := floatBinary(n.op, n.t)
		run = func(fr *frame, k int) {
			a, b, o := fr.floats[ra.idx][:k], fr.floats[rb.idx][:k], fr.floats[out.idx][:k]
			for i := range o {
				o[i] = fn(a[i], b[i])
			}
		}
	default:
		fn := intBinary(n.op, opType)
		run = func(fr *frame, k int) {
			a, b, o := fr.ints[ra.idx][:k], fr.ints[rb.idx][:k], fr.ints[out.idx][:k]
			for i := range o {
				o[i] = fn(a[i], b[i])
			}
		}
	}
	return out, seq(ea, eb, run), nil
}

// intBinary returns the scalar operation for integer operands of type t.
// Results are wrapped to t; comparisons return 0 or 1.
func intBinary(op binOp, t Type) func(a, b int64) int64 {
	unsigned := t == UInt64
	less := func(a, b int64) bool {
		if unsigned {
			return uint64(a) < uint64(b)
		}
		return a < b
	}
	switch op {
	case opAdd:
		return func(a, b int64) int64 { return t.wrap(a + b) }
	case opSub:
		return func(a, b int64) int64 { return t.wrap(a - b) }
	case opMul:
		return func(a, b int64) int64 { return t.wrap(a * b) }
	case opDiv:
		return func(a, b int64) int64 {
			switch {
			case b == 0:
				return 0
			case unsigned:
				return int64(uint64(a) / uint64(b))
			}
			return t.wrap(a / b)
		}
	case opMod:
		return func(a, b int64) int64 {
			switch {
			case b == 0:
				return 0
			case unsigned:
				return int64(uint64(a) % uint64(b))
			}
			return t.wrap(a % b)
		}
	case opMin:
		return func(a, b int64) int64 {
			if less(b, a) {
				return b
			}
			return a
		}
	case opMax:
		return func(a, b int64) int64 {
			if less(a, b) {
				return b
			}
			return a
		}
	case opEQ:
		return func(a, b int64) int64 { return b2i(a == b) }
	case opNE:
		return func(a, b int64) int64 { return b2i(a != b) }
	case opLT:
		return func(a, b int64) int64 { return b2i(less(a, b)) }
	case opLE:
		return func(a, b int64) int64 { return b2i(!less(b, a)) }
	case opGT:
		return func(a, b int64) int64 { return b2i(less(b, a)) }
	case opGE:
		return func(a, b int64) int64 { return b2i(!less(a, b)) }
	case opAnd:
		return func(a, b int64) int64 { return a & b }
	case opOr:
		return func(a, b int64) int64 { return a | b }
	}
	panic(fmt.Sprintf("pixfunc: no integer form of %s", binOpNames[op]))
}

// floatBinary returns the scalar operation for float operands, rounded to t.
func floatBinary(op binOp, t Type) func(a, b float64) float64 {
	var fn func(a, b float64) float64
	switch op {
	case opAdd:
		fn = func(a, b float64) float64 { return a + b }
	case opSub:
		fn = func(a, b float64) float64 { return a - b }
	case opMul:
		fn = func(a, b float64) float64 { return a * b }
	case opDiv:
		fn = func(a, b float64) float64 { return a / b }
	case opMod:
		fn = math.Mod
	case opMin:
		fn = math.Min
	case opMax:
		fn = math.Max
	case opPow:
		fn = math.Pow
	default:
		panic(fmt.Sprintf("pixfunc: no float form of %s", binOpNames[op]))
	}
	if t.Bits == 32 {
		return func(a, b float64) float64 { return float64(float32(fn(a, b))) }
	}
	return fn
}

func floatCompare(op binOp) func(a, b float64) bool {
	switch op {
	case opEQ:
		return func(a, b float64) bool { return a == b }
	case opNE:
		return func(a, b float64) bool { return a != b }
	case opLT:
		return func(a, b float64) bool { return a < b }
	case opLE:
		return func(a, b float64) bool { return a <= b }
	case opGT:
		return func(a, b float64) bool { return a > b }
	}
	return func(a, b float64) bool { return a >= b }
}

func (c *compiler) unary(n *unaryExpr) (reg, evalFn, error) {
	ra, ea, err := c.compile(n.a)
	if err != nil {
		return reg{}, nil, err
	}
	out := c.alloc(n.t)
	t := n.t

	if !out.float {
		var fn func(int64) int64
		switch n.op {
		case opNot:
			fn = func(v int64) int64 { return 1 - v }
		case opNeg:
			fn = func(v int64) int64 { return t.wrap(-v) }
		case opAbs:
			fn = func(v int64) int64 {
				if v < 0 && t.IsInt() {
					return t.wrap(-v)
				}
				return v
			}
		default:
			return reg{}, nil, fmt.Errorf("%w: %s on %v", ErrDefinition, unOpNames[n.op], t)
		}
		return out, seq(ea, func(fr *frame, k int) {
			a, o := fr.ints[ra.idx][:k], fr.ints[out.idx][:k]
			for i := range o {
				o[i] = fn(a[i])
			}
		}), nil
	}

	var fn func(float64) float64
	switch n.op {
	case opNeg:
		fn = func(v float64) float64 { return -v }
	case opAbs:
		fn = math.Abs
	case opSqrt:
		fn = math.Sqrt
	case opSin:
		fn = math.Sin
	case opCos:
		fn = math.Cos
	case opExp:
		fn = math.Exp
	case opLog:
		fn = math.Log
	case opFloor:
		fn = math.Floor
	case opCeil:
		fn = math.Ceil
	case opRound:
		fn = math.RoundToEven
	default:
		return reg{}, nil, fmt.Errorf("%w: %s on %v", ErrDefinition, unOpNames[n.op], t)
	}
	return out, seq(ea, func(fr *frame, k int) {
		a, o := fr.floats[ra.idx][:k], fr.floats[out.idx][:k]
		for i := range o {
			o[i] = t.round(fn(a[i]))
		}
	}), nil
}

func (c *compiler) cast(n *castExpr) (reg, evalFn, error) {
	ra, ea, err := c.compile(n.a)
	if err != nil {
		return reg{}, nil, err
	}
	from, to := n.a.Type(), n.t
	out := c.alloc(to)

	var run evalFn
	switch {
	case ra.float && out.float:
		run = func(fr *frame, k int) {
			a, o := fr.floats[ra.idx][:k], fr.floats[out.idx][:k]
			for i := range o {
				o[i] = to.round(a[i])
			}
		}
	case ra.float:
		run = func(fr *frame, k int) {
			a, o := fr.floats[ra.idx][:k], fr.ints[out.idx][:k]
			for i := range o {
				o[i] = to.fromFloat(a[i])
			}
		}
	case out.float:
		run = func(fr *frame, k int) {
			a, o := fr.ints[ra.idx][:k], fr.floats[out.idx][:k]
			for i := range o {
				o[i] = to.round(from.intToFloat(a[i]))
			}
		}
	default:
		run = func(fr *frame, k int) {
			a, o := fr.ints[ra.idx][:k], fr.ints[out.idx][:k]
			for i := range o {
				o[i] = to.wrap(a[i])
			}
		}
	}
	return out, seq(ea, run), nil
}

func (c *compiler) sel(n *selectExpr) (reg, evalFn, error) {
	rc, ec, err := c.compile(n.cond)
	if err != nil {
		return reg{}, nil, err
	}
	ra, ea, err := c.compile(n.a)
	if err != nil {
		return reg{}, nil, err
	}
	rb, eb, err := c.compile(n.b)
	if err != nil {
		return reg{}, nil, err
	}
	out := c.alloc(n.t)

	var run evalFn
	if out.float {
		run = func(fr *frame, k int) {
			cond, a, b, o := fr.ints[rc.idx][:k], fr.floats[ra.idx][:k], fr.floats[rb.idx][:k], fr.floats[out.idx][:k]
			for i := range o {
				if cond[i] != 0 {
					o[i] = a[i]
				} else {
					o[i] = b[i]
				}
			}
		}
	} else {
		run = func(fr *frame, k int) {
			cond, a, b, o := fr.ints[rc.idx][:k], fr.ints[ra.idx][:k], fr.ints[rb.idx][:k], fr.ints[out.idx][:k]
			for i := range o {
				if cond[i] != 0 {
					o[i] = a[i]
				} else {
					o[i] = b[i]
				}
			}
		}
	}
	return out, seq(ec, ea, eb, run), nil
}

func (c *compiler) call(n *callExpr) (reg, evalFn, error) {
	src := n.buf
	if n.fn != nil {
		src = c.producers[n.fn]
		if src == nil {
			return reg{}, nil, fmt.Errorf("%w: stage %s has no storage", ErrDefinition, n.fn.Name())
		}
	}

	args := make([]int, len(n.args))
	evals := make([]evalFn, 0, len(n.args)+1)
	for i, a := range n.args {
		r, e, err := c.compile(a)
		if err != nil {
			return reg{}, nil, err
		}
		args[i] = r.idx
		evals = append(evals, e)
	}

	dims := append([]Dim(nil), src.dims...)
	data := src.data
	out := c.alloc(n.t)

	// offset returns the storage index of lane i, or -1 outside the buffer.
	offset := func(fr *frame, i int) int {
		off := 0
		for d, a := range args {
			rel := fr.ints[a][i] - int64(dims[d].Min)
			if rel < 0 || rel >= int64(dims[d].Extent) {
				return -1
			}
			off += int(rel) * dims[d].Stride
		}
		return off
	}

	var run evalFn
	if out.float {
		run = func(fr *frame, k int) {
			o := fr.floats[out.idx][:k]
			for i := range o {
				if off := offset(fr, i); off >= 0 {
					o[i] = data.getFloat(off)
				} else {
					o[i] = 0
				}
			}
		}
	} else {
		run = func(fr *frame, k int) {
			o := fr.ints[out.idx][:k]
			for i := range o {
				if off := offset(fr, i); off >= 0 {
					o[i] = data.getInt(off)
				} else {
					o[i] = 0
				}
			}
		}
	}
	evals = append(evals, run)
	return out, seq(evals...), nil
}

func (c *compiler) print(n *printExpr) (reg, evalFn, error) {
	rv, ev, err := c.compile(n.value)
	if err != nil {
		return reg{}, nil, err
	}
	evals := []evalFn{ev}

	cond := -1
	if n.cond != nil {
		rc, ec, err := c.compile(n.cond)
		if err != nil {
			return reg{}, nil, err
		}
		cond = rc.idx
		evals = append(evals, ec)
	}

	type part struct {
		text string
		r    reg
		t    Type
		expr bool
	}
	parts := []part{{r: rv, t: n.value.Type(), expr: true}}
	for _, p := range n.parts {
		if p.e == nil {
			parts = append(parts, part{text: p.text})
			continue
		}
		r, e, err := c.compile(p.e)
		if err != nil {
			return reg{}, nil, err
		}
		parts = append(parts, part{r: r, t: p.e.Type(), expr: true})
		evals = append(evals, e)
	}

	w := c.out
	evals = append(evals, func(fr *frame, k int) {
		if w == nil {
			return
		}
		fields := make([]string, len(parts))
		for i := 0; i < k; i++ {
			if cond >= 0 && fr.ints[cond][i] == 0 {
				continue
			}
			for j, p := range parts {
				switch {
				case !p.expr:
					fields[j] = p.text
				case p.r.float:
					fields[j] = strconv.FormatFloat(fr.floats[p.r.idx][i], 'f', 6, 64)
				default:
					fields[j] = formatInt(p.t, fr.ints[p.r.idx][i])
				}
			}
			w.writeLine(strings.Join(fields, " "))
		}
	})
	return rv, seq(evals...), nil
}

func formatInt(t Type, v int64) string {
	if t == UInt64 {
		return strconv.FormatUint(uint64(v), 10)
	}
	return strconv.FormatInt(v, 10)
}
