package pixfunc

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of an immutable expression tree.
//
// Expressions are built with the functions of this package (Add, Mul, Cast,
// Func.At, In, ...). They can be shared between stages freely. A builder
// given malformed operands returns an invalid expression instead of
// panicking; the problem is reported as a DefinitionError when the
// expression reaches Func.Define.
type Expr interface {
	// Type returns the element type the expression evaluates to.
	Type() Type

	// String renders the expression in infix form.
	String() string

	children() []Expr
}

type binOp uint8

const (
	opAdd binOp = iota
	opSub
	opMul
	opDiv
	opMod
	opMin
	opMax
	opPow
	opEQ
	opNE
	opLT
	opLE
	opGT
	opGE
	opAnd
	opOr
)

var binOpNames = [...]string{
	opAdd: "+", opSub: "-", opMul: "*", opDiv: "/", opMod: "%",
	opMin: "min", opMax: "max", opPow: "pow",
	opEQ: "==", opNE: "!=", opLT: "<", opLE: "<=", opGT: ">", opGE: ">=",
	opAnd: "&&", opOr: "||",
}

func (op binOp) isCompare() bool { return op >= opEQ && op <= opGE }
func (op binOp) isLogic() bool   { return op == opAnd || op == opOr }
func (op binOp) isCall() bool    { return op == opMin || op == opMax || op == opPow }

type unOp uint8

const (
	opNot unOp = iota
	opNeg
	opAbs
	opSqrt
	opSin
	opCos
	opExp
	opLog
	opFloor
	opCeil
	opRound
)

var unOpNames = [...]string{
	opNot: "!", opNeg: "-", opAbs: "abs", opSqrt: "sqrt", opSin: "sin",
	opCos: "cos", opExp: "exp", opLog: "log", opFloor: "floor",
	opCeil: "ceil", opRound: "round",
}

type constExpr struct {
	t Type
	i int64
	f float64
}

func (c *constExpr) Type() Type       { return c.t }
func (c *constExpr) children() []Expr { return nil }

func (c *constExpr) String() string {
	switch {
	case c.t.IsBool():
		return strconv.FormatBool(c.i != 0)
	case c.t == UInt64:
		return strconv.FormatUint(uint64(c.i), 10)
	case !c.t.IsFloat():
		return strconv.FormatInt(c.i, 10)
	}
	s := strconv.FormatFloat(c.f, 'g', -1, int(c.t.Bits))
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	if c.t.Bits == 32 {
		s += "f"
	}
	return s
}

// convert folds a cast of the constant to t.
func (c *constExpr) convert(t Type) *constExpr {
	switch {
	case c.t.IsFloat() && t.IsFloat():
		return &constExpr{t: t, f: t.round(c.f)}
	case c.t.IsFloat():
		return &constExpr{t: t, i: t.fromFloat(c.f)}
	case t.IsFloat():
		return &constExpr{t: t, f: t.round(c.t.intToFloat(c.i))}
	}
	return &constExpr{t: t, i: t.wrap(c.i)}
}

// value returns the constant as a float64.
func (c *constExpr) value() float64 {
	if c.t.IsFloat() {
		return c.f
	}
	return c.t.intToFloat(c.i)
}

type binaryExpr struct {
	op   binOp
	a, b Expr
	t    Type
}

func (e *binaryExpr) Type() Type       { return e.t }
func (e *binaryExpr) children() []Expr { return []Expr{e.a, e.b} }

func (e *binaryExpr) String() string {
	if e.op.isCall() {
		return fmt.Sprintf("%s(%v, %v)", binOpNames[e.op], e.a, e.b)
	}
	return fmt.Sprintf("(%v %s %v)", e.a, binOpNames[e.op], e.b)
}

type unaryExpr struct {
	op unOp
	a  Expr
	t  Type
}

func (e *unaryExpr) Type() Type       { return e.t }
func (e *unaryExpr) children() []Expr { return []Expr{e.a} }

func (e *unaryExpr) String() string {
	if e.op == opNot || e.op == opNeg {
		return unOpNames[e.op] + e.a.String()
	}
	return fmt.Sprintf("%s(%v)", unOpNames[e.op], e.a)
}

type castExpr struct {
	t Type
	a Expr
}

func (e *castExpr) Type() Type       { return e.t }
func (e *castExpr) children() []Expr { return []Expr{e.a} }
func (e *castExpr) String() string   { return fmt.Sprintf("%v(%v)", e.t, e.a) }

type selectExpr struct {
	cond, a, b Expr
	t          Type
}

func (e *selectExpr) Type() Type       { return e.t }
func (e *selectExpr) children() []Expr { return []Expr{e.cond, e.a, e.b} }

func (e *selectExpr) String() string {
	return fmt.Sprintf("select(%v, %v, %v)", e.cond, e.a, e.b)
}

// callExpr reads a producer stage or an input buffer at integer coordinates.
// Exactly one of fn and buf is set.
type callExpr struct {
	fn   *Func
	buf  *Buffer
	args []Expr
	t    Type
}

func (e *callExpr) Type() Type       { return e.t }
func (e *callExpr) children() []Expr { return e.args }

func (e *callExpr) name() string {
	if e.fn != nil {
		return e.fn.Name()
	}
	return e.buf.Name()
}

func (e *callExpr) String() string {
	return e.name() + "(" + joinExprs(e.args) + ")"
}

type printPart struct {
	text string
	e    Expr
}

// printExpr evaluates to value and, when cond is nil or true, writes value
// followed by the parts to the realizer's output.
type printExpr struct {
	value Expr
	cond  Expr
	parts []printPart
}

func (e *printExpr) Type() Type { return e.value.Type() }

func (e *printExpr) children() []Expr {
	out := []Expr{e.value}
	if e.cond != nil {
		out = append(out, e.cond)
	}
	for _, p := range e.parts {
		if p.e != nil {
			out = append(out, p.e)
		}
	}
	return out
}

func (e *printExpr) String() string {
	var sb strings.Builder
	if e.cond != nil {
		fmt.Fprintf(&sb, "print_when(%v, %v", e.cond, e.value)
	} else {
		fmt.Fprintf(&sb, "print(%v", e.value)
	}
	for _, p := range e.parts {
		sb.WriteString(", ")
		if p.e != nil {
			sb.WriteString(p.e.String())
		} else {
			sb.WriteString(strconv.Quote(p.text))
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// invalidExpr stands in for an expression a builder could not construct.
type invalidExpr struct {
	err *DefinitionError
}

func (e *invalidExpr) Type() Type       { return Int32 }
func (e *invalidExpr) children() []Expr { return nil }
func (e *invalidExpr) String() string   { return "<invalid: " + e.err.Reason + ">" }

func invalid(fn, format string, args ...any) Expr {
	return &invalidExpr{err: &DefinitionError{Func: fn, Reason: fmt.Sprintf(format, args...)}}
}

func isNil(e Expr) bool {
	if e == nil {
		return true
	}
	v, ok := e.(*Var)
	return ok && v == nil
}

// checkOperands returns the first nil or invalid operand as an invalid
// expression, or nil when all operands are usable.
func checkOperands(es ...Expr) Expr {
	for _, e := range es {
		if isNil(e) {
			return invalid("", "nil expression")
		}
		if inv, ok := e.(*invalidExpr); ok {
			return inv
		}
	}
	return nil
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// walk visits e and its descendants depth first, parents before children.
// A node shared by several parents is visited once.
func walk(e Expr, fn func(Expr)) {
	seen := make(map[Expr]bool)
	var visit func(Expr)
	visit = func(e Expr) {
		if seen[e] {
			return
		}
		seen[e] = true
		fn(e)
		for _, c := range e.children() {
			visit(c)
		}
	}
	visit(e)
}

// =============================================================================
// Constants
// =============================================================================

// Int returns an Int32 constant.
func Int(v int) Expr {
	return &constExpr{t: Int32, i: Int32.wrap(int64(v))}
}

// Float returns a Float32 constant.
func Float(v float64) Expr {
	return &constExpr{t: Float32, f: Float32.round(v)}
}

// Const returns a constant of type t. Integer types truncate v toward zero
// and wrap.
func Const(t Type, v float64) Expr {
	if !t.valid() {
		return invalid("", "unsupported type %v", t)
	}
	if t.IsFloat() {
		return &constExpr{t: t, f: t.round(v)}
	}
	return &constExpr{t: t, i: t.fromFloat(v)}
}

// =============================================================================
// Arithmetic
// =============================================================================

// Add returns a + b.
func Add(a, b Expr) Expr { return binary(opAdd, a, b) }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return binary(opSub, a, b) }

// Mul returns a * b.
func Mul(a, b Expr) Expr { return binary(opMul, a, b) }

// Div returns a / b. Integer division truncates toward zero and division by
// zero yields zero.
func Div(a, b Expr) Expr { return binary(opDiv, a, b) }

// Mod returns the remainder of a / b with the sign of a. Modulo by zero
// yields zero.
func Mod(a, b Expr) Expr { return binary(opMod, a, b) }

// Min returns the smaller of a and b.
func Min(a, b Expr) Expr { return binary(opMin, a, b) }

// Max returns the larger of a and b.
func Max(a, b Expr) Expr { return binary(opMax, a, b) }

// Pow returns a raised to b, computed in floating point.
func Pow(a, b Expr) Expr { return binary(opPow, a, b) }

// Clamp limits e to [lo, hi]. The bounds are converted to e's type.
func Clamp(e, lo, hi Expr) Expr {
	if bad := checkOperands(e, lo, hi); bad != nil {
		return bad
	}
	t := e.Type()
	return Max(Min(e, Cast(t, hi)), Cast(t, lo))
}

// EQ returns a == b.
func EQ(a, b Expr) Expr { return binary(opEQ, a, b) }

// NE returns a != b.
func NE(a, b Expr) Expr { return binary(opNE, a, b) }

// LT returns a < b.
func LT(a, b Expr) Expr { return binary(opLT, a, b) }

// LE returns a <= b.
func LE(a, b Expr) Expr { return binary(opLE, a, b) }

// GT returns a > b.
func GT(a, b Expr) Expr { return binary(opGT, a, b) }

// GE returns a >= b.
func GE(a, b Expr) Expr { return binary(opGE, a, b) }

// And returns the logical and of two Bool expressions.
func And(a, b Expr) Expr { return binary(opAnd, a, b) }

// Or returns the logical or of two Bool expressions.
func Or(a, b Expr) Expr { return binary(opOr, a, b) }

// Not returns the logical negation of a Bool expression.
func Not(e Expr) Expr { return unary(opNot, e) }

// Neg returns -e.
func Neg(e Expr) Expr { return unary(opNeg, e) }

// Abs returns |e| in e's type.
func Abs(e Expr) Expr { return unary(opAbs, e) }

// Sqrt returns the square root of e. Integer operands are converted to
// Float32 first, as for Sin, Cos, Exp and Log.
func Sqrt(e Expr) Expr { return unary(opSqrt, e) }

// Sin returns the sine of e.
func Sin(e Expr) Expr { return unary(opSin, e) }

// Cos returns the cosine of e.
func Cos(e Expr) Expr { return unary(opCos, e) }

// Exp returns e raised to the base of natural logarithms.
func Exp(e Expr) Expr { return unary(opExp, e) }

// Log returns the natural logarithm of e.
func Log(e Expr) Expr { return unary(opLog, e) }

// Floor rounds a float toward negative infinity. Integers are returned as is.
func Floor(e Expr) Expr { return unary(opFloor, e) }

// Ceil rounds a float toward positive infinity. Integers are returned as is.
func Ceil(e Expr) Expr { return unary(opCeil, e) }

// Round rounds a float to the nearest integer, ties to even. Integers are
// returned as is.
func Round(e Expr) Expr { return unary(opRound, e) }

// Cast converts e to type t. Integer narrowing wraps, float to integer
// truncates toward zero.
func Cast(t Type, e Expr) Expr {
	if bad := checkOperands(e); bad != nil {
		return bad
	}
	if !t.valid() {
		return invalid("", "unsupported type %v", t)
	}
	if e.Type() == t {
		return e
	}
	if c, ok := e.(*constExpr); ok {
		return c.convert(t)
	}
	return &castExpr{t: t, a: e}
}

// Select returns a where cond is true and b elsewhere.
func Select(cond, a, b Expr) Expr {
	if bad := checkOperands(cond, a, b); bad != nil {
		return bad
	}
	if !cond.Type().IsBool() {
		return invalid("", "select condition %v has type %v, want bool", cond, cond.Type())
	}
	t := a.Type()
	if t != b.Type() {
		t = operandType(a, b)
	}
	return &selectExpr{cond: cond, a: Cast(t, a), b: Cast(t, b), t: t}
}

// In reads input buffer b at the given integer coordinates.
func In(b *Buffer, args ...Expr) Expr {
	if b == nil {
		return invalid("", "nil input buffer")
	}
	if len(args) != b.Dims() {
		return invalid("", "input %s has %d dimensions, called with %d arguments",
			b.Name(), b.Dims(), len(args))
	}
	if bad := checkCallArgs(b.Name(), args); bad != nil {
		return bad
	}
	return &callExpr{buf: b, args: args, t: b.Type()}
}

// Print evaluates to value and writes value followed by args to the
// realizer's output each time it is evaluated. Args may be strings, ints,
// float64s or expressions. Output from parallel loops may interleave.
func Print(value Expr, args ...any) Expr {
	return newPrint(nil, value, args)
}

// PrintWhen is like Print but only writes when cond is true.
func PrintWhen(cond, value Expr, args ...any) Expr {
	if bad := checkOperands(cond); bad != nil {
		return bad
	}
	if !cond.Type().IsBool() {
		return invalid("", "print_when condition %v has type %v, want bool", cond, cond.Type())
	}
	return newPrint(cond, value, args)
}

func newPrint(cond, value Expr, args []any) Expr {
	if bad := checkOperands(value); bad != nil {
		return bad
	}
	parts := make([]printPart, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case string:
			parts = append(parts, printPart{text: v})
		case int:
			parts = append(parts, printPart{e: Int(v)})
		case float64:
			parts = append(parts, printPart{e: Float(v)})
		case Expr:
			if bad := checkOperands(v); bad != nil {
				return bad
			}
			parts = append(parts, printPart{e: v})
		default:
			return invalid("", "cannot print argument of type %T", a)
		}
	}
	return &printExpr{value: value, cond: cond, parts: parts}
}

// operandType returns the type a binary operation on a and b is computed in.
// An integer constant next to a non-constant operand takes that operand's
// type when it fits, so Add(u8, Int(1)) stays UInt8.
func operandType(a, b Expr) Type {
	ca, aConst := a.(*constExpr)
	cb, bConst := b.(*constExpr)
	switch {
	case aConst && !bConst && adoptable(ca, b.Type()):
		return b.Type()
	case bConst && !aConst && adoptable(cb, a.Type()):
		return a.Type()
	}
	return promote(a.Type(), b.Type())
}

func adoptable(c *constExpr, t Type) bool {
	return !c.t.IsFloat() && t.fits(c.i)
}

func binary(op binOp, a, b Expr) Expr {
	if bad := checkOperands(a, b); bad != nil {
		return bad
	}
	if op.isLogic() {
		if !a.Type().IsBool() || !b.Type().IsBool() {
			return invalid("", "%s needs bool operands, got %v and %v",
				binOpNames[op], a.Type(), b.Type())
		}
		return &binaryExpr{op: op, a: a, b: b, t: Bool}
	}

	t := operandType(a, b)
	if t.IsBool() && !op.isCompare() {
		t = UInt8
	}
	if op == opPow && !t.IsFloat() {
		t = Float32
	}
	a, b = Cast(t, a), Cast(t, b)

	rt := t
	if op.isCompare() {
		rt = Bool
	}
	return &binaryExpr{op: op, a: a, b: b, t: rt}
}

func unary(op unOp, e Expr) Expr {
	if bad := checkOperands(e); bad != nil {
		return bad
	}
	t := e.Type()
	switch op {
	case opNot:
		if !t.IsBool() {
			return invalid("", "! needs a bool operand, got %v", t)
		}
	case opNeg, opAbs:
		if t.IsBool() {
			t = UInt8
			e = Cast(t, e)
		}
	case opFloor, opCeil, opRound:
		if !t.IsFloat() {
			return e
		}
	default:
		if !t.IsFloat() {
			t = Float32
			e = Cast(t, e)
		}
	}
	return &unaryExpr{op: op, a: e, t: t}
}

// checkCallArgs validates coordinate arguments of a call into name.
func checkCallArgs(name string, args []Expr) Expr {
	for i, a := range args {
		if isNil(a) {
			return invalid(name, "argument %d is nil", i)
		}
		if inv, ok := a.(*invalidExpr); ok {
			return inv
		}
		if t := a.Type(); t.IsFloat() || t.IsBool() {
			return invalid(name, "argument %d (%v) has type %v, want an integer", i, a, t)
		}
	}
	return nil
}

// substitute rebuilds e with the variables in m replaced. Shared nodes
// stay shared in the result.
func substitute(e Expr, m map[*Var]Expr) Expr {
	s := substituter{vars: m, done: make(map[Expr]Expr)}
	return s.rebuild(e)
}

type substituter struct {
	vars map[*Var]Expr
	done map[Expr]Expr
}

func (s *substituter) rebuild(e Expr) Expr {
	if r, ok := s.done[e]; ok {
		return r
	}
	r := s.rebuildNode(e)
	s.done[e] = r
	return r
}

func (s *substituter) rebuildNode(e Expr) Expr {
	switch n := e.(type) {
	case *Var:
		if r, ok := s.vars[n]; ok {
			return r
		}
		return n
	case *binaryExpr:
		return binary(n.op, s.rebuild(n.a), s.rebuild(n.b))
	case *unaryExpr:
		return unary(n.op, s.rebuild(n.a))
	case *castExpr:
		return Cast(n.t, s.rebuild(n.a))
	case *selectExpr:
		return Select(s.rebuild(n.cond), s.rebuild(n.a), s.rebuild(n.b))
	case *callExpr:
		args := make([]Expr, len(n.args))
		for i, a := range n.args {
			args[i] = s.rebuild(a)
		}
		return &callExpr{fn: n.fn, buf: n.buf, args: args, t: n.t}
	case *printExpr:
		p := &printExpr{value: s.rebuild(n.value), parts: make([]printPart, len(n.parts))}
		if n.cond != nil {
			p.cond = s.rebuild(n.cond)
		}
		for i, part := range n.parts {
			if part.e != nil {
				part.e = s.rebuild(part.e)
			}
			p.parts[i] = part
		}
		return p
	}
	return e
}
