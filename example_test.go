package pixfunc_test

import (
	"fmt"

	"github.com/gogpu/pixfunc"
)

// ExampleRealizer_Realize realizes a gradient with a tiled, parallel schedule.
// The schedule changes how the values are computed, never what they are.
func ExampleRealizer_Realize() {
	x, y := pixfunc.NewVar("x"), pixfunc.NewVar("y")
	gradient := pixfunc.NewFunc("gradient")
	if err := gradient.Define([]*pixfunc.Var{x, y}, pixfunc.Add(x, y)); err != nil {
		fmt.Println("define failed:", err)
		return
	}

	xo, yo, xi, yi := pixfunc.NewVar("xo"), pixfunc.NewVar("yo"), pixfunc.NewVar("xi"), pixfunc.NewVar("yi")
	gradient.Tile(x, y, xo, yo, xi, yi, 2, 2).Parallel(yo).Vectorize(xi)

	r, err := pixfunc.NewRealizer(pixfunc.WithWorkers(2))
	if err != nil {
		fmt.Println("realizer failed:", err)
		return
	}
	defer r.Close()

	out, err := r.Realize(gradient, pixfunc.Extents(4, 3))
	if err != nil {
		fmt.Println("realize failed:", err)
		return
	}
	for j := range 3 {
		fmt.Println(out.Int(0, j), out.Int(1, j), out.Int(2, j), out.Int(3, j))
	}
	// Output:
	// 0 1 2 3
	// 1 2 3 4
	// 2 3 4 5
}

// ExampleFunc_LoopNest prints the loop structure a schedule produces.
func ExampleFunc_LoopNest() {
	x, y := pixfunc.NewVar("x"), pixfunc.NewVar("y")
	f := pixfunc.NewFunc("f")
	_ = f.Define([]*pixfunc.Var{x, y}, pixfunc.Mul(x, y))

	xi := pixfunc.NewVar("x_inner")
	f.Split(x, x, xi, 4).Vectorize(xi).Parallel(y)

	fmt.Print(f.LoopNest())
	// Output:
	// produce f:
	//   parallel y:
	//     for x:
	//       vectorized x_inner in [0, 3]:
	//         f(...) = ...
}

// ExampleLower shows the concrete loop nest for one region, including the
// region the stage reads from its producer.
func ExampleLower() {
	x := pixfunc.NewVar("x")
	g := pixfunc.NewFunc("g")
	_ = g.Define([]*pixfunc.Var{x}, pixfunc.Mul(x, pixfunc.Int(2)))

	f := pixfunc.NewFunc("f")
	_ = f.Define([]*pixfunc.Var{x}, pixfunc.Add(g.At(pixfunc.Sub(x, pixfunc.Int(1))), g.At(x)))

	nest, err := pixfunc.Lower(f, pixfunc.Extents(8))
	if err != nil {
		fmt.Println("lower failed:", err)
		return
	}
	fmt.Print(nest)
	// Output:
	// produce f over [0, 7]:
	//   reads g over [-1, 7]
	//   for x in [0, 7]:
	//     f(x) = (g((x - 1)) + g(x))
}
