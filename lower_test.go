package pixfunc

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// visit records the coordinates and recompute flags of every store, in
// order. Only meaningful for schedules without parallel loops.
type visit struct {
	mu     sync.Mutex
	coords [][]int
	flags  []bool
}

func (v *visit) hook(ev TraceEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.coords = append(v.coords, ev.Coords)
	v.flags = append(v.flags, ev.Recompute)
}

func TestLowerDefaultLoops(t *testing.T) {
	f, _, _ := gradient(t, "f")
	nest, err := Lower(f, Region{{Min: 100, Extent: 10}, {Min: 50, Extent: 6}})
	if err != nil {
		t.Fatalf("Lower() error = %v", err)
	}
	want := []Loop{
		{Var: "y", Kind: LoopSerial, Min: 50, Extent: 6},
		{Var: "x", Kind: LoopSerial, Min: 100, Extent: 10},
	}
	if diff := cmp.Diff(want, nest.Loops); diff != "" {
		t.Errorf("Loops mismatch (-want +got):\n%s", diff)
	}
	if len(nest.Requirements) != 0 {
		t.Errorf("Requirements = %v, want none", nest.Requirements)
	}
}

func TestLowerTileLoops(t *testing.T) {
	f, x, y := gradient(t, "f")
	xo, yo, xi, yi := NewVar("xo"), NewVar("yo"), NewVar("xi"), NewVar("yi")
	f.Tile(x, y, xo, yo, xi, yi, 4, 4).Parallel(yo).Vectorize(xi)

	nest, err := Lower(f, Region{{Min: 100, Extent: 10}, {Min: 50, Extent: 6}})
	if err != nil {
		t.Fatalf("Lower() error = %v", err)
	}
	want := []Loop{
		{Var: "yo", Kind: LoopParallel, Min: 0, Extent: 2},
		{Var: "xo", Kind: LoopSerial, Min: 0, Extent: 3},
		{Var: "yi", Kind: LoopSerial, Min: 0, Extent: 4},
		{Var: "xi", Kind: LoopVectorized, Min: 0, Extent: 4},
	}
	if diff := cmp.Diff(want, nest.Loops); diff != "" {
		t.Errorf("Loops mismatch (-want +got):\n%s", diff)
	}

	wantLets := []string{
		"let y = 50 + min(yo*4, 2) + yi",
		"let x = 100 + min(xo*4, 6) + xi",
	}
	if diff := cmp.Diff(wantLets, nest.lets); diff != "" {
		t.Errorf("lets mismatch (-want +got):\n%s", diff)
	}
	if f.State() != StateScheduled {
		t.Errorf("Lower() changed the stage state to %v", f.State())
	}
}

func TestLowerString(t *testing.T) {
	f, _, _ := gradient(t, "f")
	nest, err := Lower(f, Extents(2, 3))
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"produce f over [0, 1] x [0, 2]:",
		"  for y in [0, 2]:",
		"    for x in [0, 1]:",
		"      f(x, y) = (x + y)",
		"",
	}, "\n")
	if diff := cmp.Diff(want, nest.String()); diff != "" {
		t.Errorf("String() mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerErrors(t *testing.T) {
	f, _, _ := gradient(t, "f")
	if _, err := Lower(f, Extents(4)); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Lower() with 1-d region = %v, want ErrInvalidRegion", err)
	}
	if _, err := Lower(f, Extents(4, 0)); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Lower() with empty region = %v, want ErrInvalidRegion", err)
	}
	if _, err := Lower(NewFunc("u"), Extents(4)); !errors.Is(err, ErrDefinition) {
		t.Errorf("Lower() of undefined stage = %v, want ErrDefinition", err)
	}
	if _, err := Lower(nil, Extents(4)); !errors.Is(err, ErrDefinition) {
		t.Errorf("Lower(nil) = %v, want ErrDefinition", err)
	}
}

// =============================================================================
// Visit order
// =============================================================================

func TestSplitTailIsShiftedInward(t *testing.T) {
	x := NewVar("x")
	f := NewFunc("f")
	if err := f.Define([]*Var{x}, x); err != nil {
		t.Fatal(err)
	}
	f.Split(x, NewVar("xo"), NewVar("xi"), 3)

	var v visit
	r := newTestRealizer(t, WithStoreHook(v.hook))
	b, err := r.Realize(f, Extents(7))
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}

	var xs []int
	for _, c := range v.coords {
		xs = append(xs, c[0])
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 4, 5, 6}, xs); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
	wantFlags := []bool{false, false, false, false, false, false, true, true, false}
	if diff := cmp.Diff(wantFlags, v.flags); diff != "" {
		t.Errorf("recompute flags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{0, 1, 2, 3, 4, 5, 6}, Data[int32](b)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitSmallerThanFactor(t *testing.T) {
	x := NewVar("x")
	f := NewFunc("f")
	if err := f.Define([]*Var{x}, Mul(x, Int(10))); err != nil {
		t.Fatal(err)
	}
	f.Split(x, NewVar("xo"), NewVar("xi"), 8)

	var v visit
	r := newTestRealizer(t, WithStoreHook(v.hook))
	b, err := r.Realize(f, Region{{Min: 5, Extent: 3}})
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	if diff := cmp.Diff([][]int{{5}, {6}, {7}}, v.coords); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{50, 60, 70}, Data[int32](b)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	nest, err := Lower(f, Extents(3))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(nest.String(), "skipped past 2") {
		t.Errorf("loop nest does not mention the skipped tail:\n%s", nest)
	}
}

func TestFuseVisitOrder(t *testing.T) {
	f, x, y := gradient(t, "f")
	f.Fuse(x, y, NewVar("xy"))

	var v visit
	r := newTestRealizer(t, WithStoreHook(v.hook))
	if _, err := r.Realize(f, Region{{Min: 10, Extent: 3}, {Min: 20, Extent: 2}}); err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	want := [][]int{{10, 20}, {11, 20}, {12, 20}, {10, 21}, {11, 21}, {12, 21}}
	if diff := cmp.Diff(want, v.coords); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
}

func TestReorderVisitOrder(t *testing.T) {
	f, x, y := gradient(t, "f")
	f.Reorder(x, y)

	var v visit
	r := newTestRealizer(t, WithStoreHook(v.hook))
	if _, err := r.Realize(f, Extents(2, 2)); err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	want := [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	if diff := cmp.Diff(want, v.coords); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// Requirements
// =============================================================================

// blurInput returns a 10x10 UInt16 input with in(x, y) = x*y + x.
func blurInput(t *testing.T) *Buffer {
	t.Helper()
	in, err := NewBuffer(UInt16, Extents(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	in.SetName("input")
	for y := range 10 {
		for x := range 10 {
			in.SetInt(int64(x*y+x), x, y)
		}
	}
	return in
}

// blur returns the two-stage 3x3 box blur of in.
func blur(t *testing.T, in *Buffer, clamp bool) (bx, by *Func) {
	t.Helper()
	x, y := NewVar("x"), NewVar("y")
	read := func(dx int) Expr {
		cx := Add(x, Int(dx))
		cy := Expr(y)
		if clamp {
			cx = Clamp(cx, Int(0), Int(in.Width()-1))
			cy = Clamp(cy, Int(0), Int(in.Height()-1))
		}
		return In(in, cx, cy)
	}
	bx = NewFunc("blur_x")
	if err := bx.Define([]*Var{x, y}, Div(Add(Add(read(-1), read(0)), read(1)), Int(3))); err != nil {
		t.Fatal(err)
	}
	by = NewFunc("blur_y")
	body := Div(Add(Add(bx.At(x, Sub(y, Int(1))), bx.At(x, y)), bx.At(x, Add(y, Int(1)))), Int(3))
	if err := by.Define([]*Var{x, y}, body); err != nil {
		t.Fatal(err)
	}
	return bx, by
}

func TestLowerRequirements(t *testing.T) {
	in := blurInput(t)
	bx, by := blur(t, in, false)

	nest, err := Lower(by, Region{{Min: 1, Extent: 8}, {Min: 1, Extent: 8}})
	if err != nil {
		t.Fatalf("Lower(blur_y) error = %v", err)
	}
	if len(nest.Requirements) != 1 || nest.Requirements[0].Func != bx {
		t.Fatalf("Requirements = %v, want one on blur_x", nest.Requirements)
	}
	want := Region{{Min: 1, Extent: 8}, {Min: 0, Extent: 10}}
	if got := nest.Requirements[0].Region; !got.Equal(want) {
		t.Errorf("blur_x region = %v, want %v", got, want)
	}

	nest, err = Lower(bx, want)
	if err != nil {
		t.Fatalf("Lower(blur_x) error = %v", err)
	}
	req := nest.Requirements[0]
	if req.Input != in || req.Name() != "input" {
		t.Errorf("requirement = %+v, want the input buffer", req)
	}
	if wantIn := Extents(10, 10); !req.Region.Equal(wantIn) {
		t.Errorf("input region = %v, want %v", req.Region, wantIn)
	}
	if !strings.Contains(nest.String(), "reads input over [0, 9] x [0, 9]") {
		t.Errorf("String() does not list the input read:\n%s", nest)
	}
}

func TestLowerInputOutOfBounds(t *testing.T) {
	in := blurInput(t)
	bx, _ := blur(t, in, false)

	_, err := Lower(bx, Extents(10, 10))
	var be *BoundsError
	if !errors.As(err, &be) {
		t.Fatalf("Lower() = %v, want *BoundsError", err)
	}
	want := &BoundsError{
		Func:      "blur_x",
		Input:     "input",
		Dim:       0,
		Required:  Range{Min: -1, Extent: 12},
		Available: Range{Min: 0, Extent: 10},
	}
	if diff := cmp.Diff(want, be); diff != "" {
		t.Errorf("BoundsError mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(err, ErrBounds) {
		t.Error("BoundsError does not wrap ErrBounds")
	}
}

func TestLowerUnboundedRead(t *testing.T) {
	in := blurInput(t)
	x := NewVar("x")
	g := NewFunc("g")
	if err := g.Define([]*Var{x}, Mul(x, x)); err != nil {
		t.Fatal(err)
	}
	f := NewFunc("f")
	if err := f.Define([]*Var{x}, In(in, g.At(x), Int(0))); err != nil {
		t.Fatal(err)
	}

	_, err := Lower(f, Extents(4))
	var be *BoundsError
	if !errors.As(err, &be) {
		t.Fatalf("Lower() = %v, want *BoundsError", err)
	}
	if !be.Unbounded || be.Dim != 0 || be.Input != "input" {
		t.Errorf("BoundsError = %+v, want unbounded read of input in dimension 0", be)
	}
}
