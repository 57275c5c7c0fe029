package main

import (
	"fmt"

	"github.com/gogpu/pixfunc"
)

// newGradient defines gradient(x, y) = x + y.
func newGradient() (f *pixfunc.Func, x, y *pixfunc.Var, err error) {
	x, y = pixfunc.NewVar("x"), pixfunc.NewVar("y")
	f = pixfunc.NewFunc("gradient")
	err = f.Define([]*pixfunc.Var{x, y}, pixfunc.Add(x, y))
	return f, x, y, err
}

// schedule is one entry of the schedule gallery.
type schedule struct {
	name  string
	about string
	apply func(f *pixfunc.Func, x, y *pixfunc.Var)
}

var gallery = []schedule{
	{
		name:  "default",
		about: "row major, y outermost",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {},
	},
	{
		name:  "column-major",
		about: "reorder so x is outermost",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			f.Reorder(x, y)
		},
	},
	{
		name:  "split",
		about: "split x by 2",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			f.Split(x, pixfunc.NewVar("x_outer"), pixfunc.NewVar("x_inner"), 2)
		},
	},
	{
		name:  "fuse",
		about: "fuse x and y into a single loop",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			f.Fuse(x, y, pixfunc.NewVar("fused"))
		},
	},
	{
		name:  "tile",
		about: "4x4 tiles",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			f.Tile(x, y,
				pixfunc.NewVar("x_outer"), pixfunc.NewVar("y_outer"),
				pixfunc.NewVar("x_inner"), pixfunc.NewVar("y_inner"), 4, 4)
		},
	},
	{
		name:  "vectorize",
		about: "split x by 4 and vectorize the inner loop",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			xi := pixfunc.NewVar("x_inner")
			f.Split(x, pixfunc.NewVar("x_outer"), xi, 4).Vectorize(xi)
		},
	},
	{
		name:  "unroll",
		about: "split x by 2 and unroll the inner loop",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			xi := pixfunc.NewVar("x_inner")
			f.Split(x, pixfunc.NewVar("x_outer"), xi, 2).Unroll(xi)
		},
	},
	{
		name:  "parallel-tiles",
		about: "4x4 tiles fused into one parallel loop",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			xo, yo := pixfunc.NewVar("x_outer"), pixfunc.NewVar("y_outer")
			tile := pixfunc.NewVar("tile_index")
			f.Tile(x, y, xo, yo, pixfunc.NewVar("x_inner"), pixfunc.NewVar("y_inner"), 4, 4).
				Fuse(xo, yo, tile).
				Parallel(tile)
		},
	},
	{
		name:  "fast",
		about: "parallel 64x64 tiles, each in vectorized, unrolled 4x2 sub-tiles",
		apply: func(f *pixfunc.Func, x, y *pixfunc.Var) {
			xo, yo := pixfunc.NewVar("x_outer"), pixfunc.NewVar("y_outer")
			xi, yi := pixfunc.NewVar("x_inner"), pixfunc.NewVar("y_inner")
			tile := pixfunc.NewVar("tile_index")
			f.Tile(x, y, xo, yo, xi, yi, 64, 64).
				Fuse(xo, yo, tile).
				Parallel(tile)

			xio, yio := pixfunc.NewVar("x_inner_outer"), pixfunc.NewVar("y_inner_outer")
			xv, yu := pixfunc.NewVar("x_vectors"), pixfunc.NewVar("y_pairs")
			f.Tile(xi, yi, xio, yio, xv, yu, 4, 2).
				Vectorize(xv).
				Unroll(yu)
		},
	},
}

func findSchedule(name string) (schedule, error) {
	for _, s := range gallery {
		if s.name == name {
			return s, nil
		}
	}
	return schedule{}, fmt.Errorf("unknown schedule %q", name)
}

// coords returns one coordinate variable per axis of b: x, y and, for color
// images, c.
func coords(b *pixfunc.Buffer) []*pixfunc.Var {
	names := []string{"x", "y", "c"}
	vars := make([]*pixfunc.Var, b.Dims())
	for i := range vars {
		vars[i] = pixfunc.NewVar(names[i])
	}
	return vars
}

func exprs(vars []*pixfunc.Var) []pixfunc.Expr {
	out := make([]pixfunc.Expr, len(vars))
	for i, v := range vars {
		out[i] = v
	}
	return out
}

// newBrighten multiplies every sample of in by factor, saturating at 255.
func newBrighten(in *pixfunc.Buffer, factor float64) (*pixfunc.Func, error) {
	vars := coords(in)
	v := pixfunc.Mul(pixfunc.Cast(pixfunc.Float32, pixfunc.In(in, exprs(vars)...)), pixfunc.Float(factor))
	f := pixfunc.NewFunc("brighter")
	if err := f.Define(vars, pixfunc.Cast(pixfunc.UInt8, pixfunc.Min(v, pixfunc.Float(255)))); err != nil {
		return nil, err
	}

	// Planar storage: keep x innermost and vectorize it, rows in parallel.
	x, y := vars[0], vars[1]
	f.VectorizeBy(x, 16).Parallel(y)
	return f, f.Err()
}

// newBlur builds the separable 3x3 box blur of in and returns its output
// stage. With clamp set, reads outside in are clamped to its edge so the
// whole frame can be realized.
func newBlur(in *pixfunc.Buffer, clamp bool) (*pixfunc.Func, error) {
	vars := coords(in)
	x, y := vars[0], vars[1]

	read := func(dx int) pixfunc.Expr {
		args := exprs(vars)
		args[0] = pixfunc.Add(x, pixfunc.Int(dx))
		if clamp {
			args[0] = pixfunc.Clamp(args[0], pixfunc.Int(0), pixfunc.Int(in.Width()-1))
			args[1] = pixfunc.Clamp(y, pixfunc.Int(0), pixfunc.Int(in.Height()-1))
		}
		return pixfunc.Cast(pixfunc.UInt16, pixfunc.In(in, args...))
	}
	sum := pixfunc.Add(pixfunc.Add(read(-1), read(0)), read(1))
	bx := pixfunc.NewFunc("blur_x")
	if err := bx.Define(vars, pixfunc.Div(sum, pixfunc.Int(3))); err != nil {
		return nil, err
	}

	at := func(dy int) pixfunc.Expr {
		args := exprs(vars)
		args[1] = pixfunc.Add(y, pixfunc.Int(dy))
		return bx.At(args...)
	}
	sum = pixfunc.Add(pixfunc.Add(at(-1), at(0)), at(1))
	by := pixfunc.NewFunc("blur_y")
	if err := by.Define(vars, pixfunc.Cast(pixfunc.UInt8, pixfunc.Div(sum, pixfunc.Int(3)))); err != nil {
		return nil, err
	}

	bx.VectorizeBy(x, 8).Parallel(y)
	if err := bx.Err(); err != nil {
		return nil, err
	}
	by.VectorizeBy(x, 8).Parallel(y)
	return by, by.Err()
}
