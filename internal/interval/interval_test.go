package interval

import (
	"math"
	"testing"
)

func iv(lo, hi float64) Interval { return Interval{Min: lo, Max: hi} }

func TestNew_Swaps(t *testing.T) {
	if got := New(5, -2); got != iv(-2, 5) {
		t.Errorf("New(5, -2) = %v, want [-2, 5]", got)
	}
}

func TestBounded(t *testing.T) {
	if !iv(0, 3).IsBounded() {
		t.Error("[0, 3] should be bounded")
	}
	if Everything().IsBounded() {
		t.Error("Everything() should not be bounded")
	}
	if !Point(4).IsPoint() {
		t.Error("Point(4) should be a point")
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Interval
		want Interval
	}{
		{"add", Add(iv(0, 7), iv(-1, 1)), iv(-1, 8)},
		{"sub", Sub(iv(0, 7), iv(-1, 1)), iv(-1, 8)},
		{"neg", Neg(iv(-2, 5)), iv(-5, 2)},
		{"mul mixed signs", Mul(iv(-2, 3), iv(4, 5)), iv(-10, 15)},
		{"mul zero by everything", Mul(Point(0), Everything()), Point(0)},
		{"mul with unbounded", Mul(iv(0, 2), Everything()), Everything()},
		{"int div positive", Div(iv(0, 9), Point(4), true), iv(0, 3)},
		{"int div negative dividend", Div(iv(-9, 9), Point(4), true), iv(-3, 3)},
		{"int div by range with zero", Div(iv(-6, 4), iv(-1, 2), true), iv(-6, 6)},
		{"float div by zero range", Div(iv(1, 2), iv(-1, 1), false), Everything()},
		{"float div", Div(iv(1, 2), iv(2, 4), false), iv(0.25, 1)},
		{"int mod", Mod(iv(-5, 7), Point(3), true), iv(-2, 2)},
		{"int mod non-negative", Mod(iv(0, 100), Point(8), true), iv(0, 7)},
		{"int mod small dividend", Mod(iv(0, 2), Point(8), true), iv(0, 2)},
		{"int mod by zero", Mod(iv(0, 10), Point(0), true), Point(0)},
		{"float mod", Mod(iv(0, 10), Point(2.5), false), iv(0, 2.5)},
		{"min", Min(iv(0, 10), iv(3, 4)), iv(0, 4)},
		{"max", Max(iv(0, 10), iv(3, 4)), iv(3, 10)},
		{"abs spanning", Abs(iv(-7, 3)), iv(0, 7)},
		{"abs negative", Abs(iv(-7, -3)), iv(3, 7)},
		{"trunc", Trunc(iv(-1.5, 2.5)), iv(-1, 2)},
		{"sqrt", Sqrt(iv(-4, 16)), iv(0, 4)},
		{"sqrt negative", Sqrt(iv(-4, -1)), Point(0)},
		{"monotonic floor", Monotonic(iv(0.5, 3.5), math.Floor), iv(0, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestAdd_Unbounded(t *testing.T) {
	got := Add(Everything(), Point(1))
	if got.IsBounded() {
		t.Errorf("Add(Everything, 1) = %v, want unbounded", got)
	}
	if math.IsNaN(got.Min) || math.IsNaN(got.Max) {
		t.Errorf("Add(Everything, 1) = %v contains NaN", got)
	}
}

func TestSetOperations(t *testing.T) {
	a, b := iv(0, 4), iv(2, 9)
	if got := a.Union(b); got != iv(0, 9) {
		t.Errorf("Union = %v, want [0, 9]", got)
	}
	if got := a.Intersect(b); got != iv(2, 4) {
		t.Errorf("Intersect = %v, want [2, 4]", got)
	}
	if !iv(0, 10).Contains(a) {
		t.Error("[0, 10] should contain [0, 4]")
	}
	if a.Contains(b) {
		t.Error("[0, 4] should not contain [2, 9]")
	}
	if !a.Within(0, 4) || a.Within(1, 4) {
		t.Error("Within mismatch for [0, 4]")
	}
}

// TestSoundness samples integer operands and checks each exact result falls
// inside the computed bounds.
func TestSoundness(t *testing.T) {
	a, b := iv(-7, 11), iv(-3, 5)
	ops := []struct {
		name  string
		bound Interval
		exact func(x, y int64) int64
	}{
		{"add", Add(a, b), func(x, y int64) int64 { return x + y }},
		{"sub", Sub(a, b), func(x, y int64) int64 { return x - y }},
		{"mul", Mul(a, b), func(x, y int64) int64 { return x * y }},
		{"div", Div(a, b, true), func(x, y int64) int64 {
			if y == 0 {
				return 0
			}
			return x / y
		}},
		{"mod", Mod(a, b, true), func(x, y int64) int64 {
			if y == 0 {
				return 0
			}
			return x % y
		}},
	}
	for _, op := range ops {
		for x := int64(a.Min); x <= int64(a.Max); x++ {
			for y := int64(b.Min); y <= int64(b.Max); y++ {
				v := float64(op.exact(x, y))
				if v < op.bound.Min || v > op.bound.Max {
					t.Errorf("%s(%d, %d) = %v outside %v", op.name, x, y, v, op.bound)
				}
			}
		}
	}
}
