package pixfunc

import (
	"errors"
	"strings"
	"testing"
)

func TestVarIdentity(t *testing.T) {
	a, b := NewVar("x"), NewVar("x")
	if a == b || a.ID() == b.ID() {
		t.Error("NewVar() returned the same variable twice")
	}
	if a.Name() != "x" || a.String() != "x" {
		t.Errorf("Name() = %q, want %q", a.Name(), "x")
	}
	if got := NewVar(""); !strings.HasPrefix(got.Name(), "v") {
		t.Errorf("NewVar(\"\").Name() = %q, want v<id>", got.Name())
	}
	if a.Type() != Int32 {
		t.Errorf("Var.Type() = %v, want int32", a.Type())
	}
}

// =============================================================================
// Typing
// =============================================================================

func TestExprTypes(t *testing.T) {
	x, y := NewVar("x"), NewVar("y")
	u8, err := NewBuffer(UInt8, Extents(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	px := In(u8, x, y)

	tests := []struct {
		name string
		e    Expr
		want Type
	}{
		{"var plus int", Add(x, Int(1)), Int32},
		{"int plus var", Add(Int(1), x), Int32},
		{"u8 plus small const", Add(px, Int(1)), UInt8},
		{"u8 plus large const", Add(px, Int(300)), Int32},
		{"u8 plus float", Add(px, Float(0.5)), Float32},
		{"u8 plus var", Add(px, x), Int32},
		{"compare", LT(x, y), Bool},
		{"logic", And(LT(x, y), GE(x, Int(0))), Bool},
		{"bool arithmetic", Add(LT(x, y), LT(y, x)), UInt8},
		{"pow", Pow(x, Int(2)), Float32},
		{"sqrt of int", Sqrt(x), Float32},
		{"floor of int", Floor(x), Int32},
		{"floor of float", Floor(Cast(Float64, x)), Float64},
		{"neg", Neg(px), UInt8},
		{"cast", Cast(UInt16, x), UInt16},
		{"select", Select(LT(x, y), px, Int(7)), UInt8},
		{"clamp", Clamp(px, Int(10), Int(20)), UInt8},
		{"print", Print(Cast(Float64, x), "at", y), Float64},
		{"const", Const(Int16, 3.9), Int16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.e.(*invalidExpr); ok {
				t.Fatalf("%s is invalid: %v", tt.name, tt.e)
			}
			if got := tt.e.Type(); got != tt.want {
				t.Errorf("Type() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExprString(t *testing.T) {
	x, y := NewVar("x"), NewVar("y")
	in, _ := NewBuffer(UInt8, Extents(2, 2))
	in.SetName("input")
	g := NewFunc("g")
	if err := g.Define([]*Var{x}, x); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		e    Expr
		want string
	}{
		{Add(x, Mul(y, Int(2))), "(x + (y * 2))"},
		{Min(x, y), "min(x, y)"},
		{Cast(UInt8, x), "uint8(x)"},
		{Float(1.5), "1.5f"},
		{Float(2), "2.0f"},
		{Const(Float64, 0.25), "0.25"},
		{Cast(Float32, Int(3)), "3.0f"},
		{Select(LT(x, y), x, y), "select((x < y), x, y)"},
		{Not(EQ(x, y)), "!(x == y)"},
		{Abs(Neg(x)), "abs(-x)"},
		{In(in, x, Sub(y, Int(1))), "input(x, (y - 1))"},
		{g.At(Add(x, Int(1))), "g((x + 1))"},
		{Print(x, "at", y), `print(x, "at", y)`},
		{PrintWhen(EQ(x, Int(0)), x), "print_when((x == 0), x)"},
	}
	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCastFoldsConstants(t *testing.T) {
	tests := []struct {
		e    Expr
		want string
	}{
		{Cast(UInt8, Int(300)), "44"},
		{Cast(Int8, Float(-3.7)), "-3"},
		{Cast(Bool, Int(5)), "true"},
		{Cast(UInt64, Int(-1)), "18446744073709551615"},
	}
	for _, tt := range tests {
		if _, ok := tt.e.(*constExpr); !ok {
			t.Errorf("%v: got %T, want a constant", tt.e, tt.e)
			continue
		}
		if got := tt.e.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// =============================================================================
// Invalid expressions
// =============================================================================

func TestInvalidExprs(t *testing.T) {
	x := NewVar("x")
	buf, _ := NewBuffer(UInt8, Extents(4, 4))
	g := NewFunc("g")

	tests := []struct {
		name string
		e    Expr
	}{
		{"nil operand", Add(nil, x)},
		{"nil var operand", Mul(x, (*Var)(nil))},
		{"not of int", Not(x)},
		{"and of ints", And(x, x)},
		{"select on int", Select(x, x, x)},
		{"wrong input arity", In(buf, x)},
		{"float coordinate", In(buf, x, Float(1))},
		{"nil buffer", In(nil, x)},
		{"call of undefined stage", g.At(x)},
		{"bad type", Const(Type{FloatCode, 16}, 1)},
		{"bad print argument", Print(x, struct{}{})},
		{"invalid operand propagates", Add(Not(x), Int(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.e.(*invalidExpr); !ok {
				t.Errorf("got %T (%v), want an invalid expression", tt.e, tt.e)
			}
		})
	}
}

func TestInvalidExprRejectedByDefine(t *testing.T) {
	x := NewVar("x")
	f := NewFunc("f")
	err := f.Define([]*Var{x}, Add(x, Not(x)))
	if !errors.Is(err, ErrDefinition) {
		t.Fatalf("Define() = %v, want ErrDefinition", err)
	}
	var de *DefinitionError
	if !errors.As(err, &de) {
		t.Fatalf("Define() error is %T, want *DefinitionError", err)
	}
	if de.Func != "f" {
		t.Errorf("DefinitionError.Func = %q, want %q", de.Func, "f")
	}
	if f.State() != StateUndefined {
		t.Errorf("State() = %v after failed Define, want undefined", f.State())
	}
}

func TestSubstitute(t *testing.T) {
	x, y := NewVar("x"), NewVar("y")
	e := Select(GT(x, y), Mul(x, Int(2)), y)
	got := substitute(e, map[*Var]Expr{x: Int(5), y: Add(y, Int(1))})
	want := "select((5 > (y + 1)), (5 * 2), (y + 1))"
	if got.String() != want {
		t.Errorf("substitute() = %q, want %q", got.String(), want)
	}
	if e.String() != "select((x > y), (x * 2), y)" {
		t.Errorf("substitute() modified its input: %v", e)
	}
}

// doubling returns e added to itself depth times. Each level reuses the
// previous one twice, so the expression has depth+1 distinct nodes but
// 2^depth paths from the root.
func doubling(e Expr, depth int) Expr {
	for range depth {
		e = Add(e, e)
	}
	return e
}

func TestWalkVisitsSharedNodesOnce(t *testing.T) {
	x := NewVar("x")
	e := doubling(Cast(Int64, x), 60)

	visits := 0
	walk(e, func(Expr) { visits++ })
	// 60 adds, the cast and x.
	if visits != 62 {
		t.Errorf("walk() visited %d nodes, want 62", visits)
	}
}

func TestSubstituteKeepsSharing(t *testing.T) {
	x := NewVar("x")
	e := doubling(Cast(Int64, x), 60)

	got := substitute(e, map[*Var]Expr{x: Add(x, Int(1))})
	add, ok := got.(*binaryExpr)
	if !ok {
		t.Fatalf("substitute() = %T, want *binaryExpr", got)
	}
	if add.a != add.b {
		t.Error("substitute() duplicated a shared operand")
	}
	visits := 0
	walk(got, func(Expr) { visits++ })
	// 60 adds, the cast, x + 1, x and 1.
	if visits != 64 {
		t.Errorf("substituted expression has %d distinct nodes, want 64", visits)
	}
}
