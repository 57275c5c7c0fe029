package pixfunc

import (
	"testing"

	"github.com/gogpu/pixfunc/internal/interval"
)

func TestBoundsOfExpressions(t *testing.T) {
	x, y := NewVar("x"), NewVar("y")
	u8, _ := NewBuffer(UInt8, Extents(4, 4))

	tests := []struct {
		name string
		e    Expr
		want interval.Interval
	}{
		{"var", x, interval.New(0, 9)},
		{"add", Add(x, Int(1)), interval.New(1, 10)},
		{"sub vars", Sub(x, y), interval.New(-5, 9)},
		{"mul", Mul(x, Int(-2)), interval.New(-18, 0)},
		{"integer div", Div(x, Int(2)), interval.New(0, 5)},
		{"mod", Mod(x, Int(4)), interval.New(0, 3)},
		{"min", Min(x, Int(4)), interval.New(0, 4)},
		{"clamp", Clamp(Sub(x, Int(3)), Int(0), Int(5)), interval.New(0, 5)},
		{"compare", LT(x, y), interval.New(0, 1)},
		{"select", Select(LT(x, y), Int(-1), Add(y, Int(100))), interval.New(-1, 105)},
		{"abs", Abs(Sub(x, Int(5))), interval.New(0, 5)},
		{"u8 wraps", Add(Cast(UInt8, x), Int(250)), interval.New(0, 255)},
		{"input read", In(u8, x, y), interval.New(0, 255)},
		{"float to int cast", Cast(Int32, Sub(Cast(Float64, x), Float(0.5))), interval.New(0, 8)},
		{"pow of constants", Pow(Const(Float64, 2), Const(Float64, 3)), interval.New(8, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &boundsWalker{env: map[*Var]interval.Interval{
				x: interval.New(0, 9),
				y: interval.New(0, 5),
			}}
			if got := w.bounds(tt.e); got != tt.want {
				t.Errorf("bounds(%v) = %v, want %v", tt.e, got, tt.want)
			}
		})
	}
}

func TestBoundsFloat32Widens(t *testing.T) {
	x := NewVar("x")
	w := &boundsWalker{env: map[*Var]interval.Interval{x: interval.New(0, 9)}}
	got := w.bounds(Sin(x))
	if got.Min >= -1 || got.Max <= 1 {
		t.Errorf("bounds(sin(x)) = %v, want a range strictly containing [-1, 1]", got)
	}
	if got.Min < -1.001 || got.Max > 1.001 {
		t.Errorf("bounds(sin(x)) = %v, widened by more than an ulp", got)
	}
}

func TestBoundsUnionOverCallSites(t *testing.T) {
	x := NewVar("x")
	g := NewFunc("g")
	if err := g.Define([]*Var{x}, x); err != nil {
		t.Fatal(err)
	}
	w := &boundsWalker{env: map[*Var]interval.Interval{x: interval.New(2, 5)}}
	w.bounds(Add(g.At(Sub(x, Int(2))), g.At(Mul(x, Int(2)))))

	if len(w.reqs) != 1 {
		t.Fatalf("len(reqs) = %d, want 1", len(w.reqs))
	}
	if got, want := w.reqs[0].box[0], interval.New(0, 10); got != want {
		t.Errorf("required box = %v, want %v", got, want)
	}
}

func TestToRange(t *testing.T) {
	tests := []struct {
		iv   interval.Interval
		want Range
		ok   bool
	}{
		{interval.New(-1, 10), Range{Min: -1, Extent: 12}, true},
		{interval.New(0.5, 2.5), Range{Min: 0, Extent: 4}, true},
		{interval.Point(3), Range{Min: 3, Extent: 1}, true},
		{interval.Everything(), Range{}, false},
		{interval.New(-(1 << 31), 1<<31-1), Range{}, false},
	}
	for _, tt := range tests {
		got, ok := toRange(tt.iv)
		if ok != tt.ok || got != tt.want {
			t.Errorf("toRange(%v) = %v, %v; want %v, %v", tt.iv, got, ok, tt.want, tt.ok)
		}
	}
}
