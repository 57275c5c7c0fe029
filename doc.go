// Package pixfunc builds image-processing pipelines out of pure,
// coordinate-indexed functions and runs them under an independent schedule.
//
// # Overview
//
// A pipeline is a set of stages ([Func]). Each stage maps integer
// coordinates ([Var]) to an expression ([Expr]) that may call earlier stages
// or read input buffers. What a stage computes is fixed by [Func.Define];
// how its loops are ordered, split, vectorized, unrolled or run in parallel
// is decided separately by its [Schedule]. A schedule never changes the value
// computed at any coordinate.
//
// # Quick Start
//
//	x, y := pixfunc.NewVar("x"), pixfunc.NewVar("y")
//
//	gradient := pixfunc.NewFunc("gradient")
//	if err := gradient.Define([]*pixfunc.Var{x, y}, pixfunc.Add(x, y)); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Visit tiles of 4x4 pixels in parallel.
//	xo, yo, xi, yi := pixfunc.NewVar("x_outer"), pixfunc.NewVar("y_outer"),
//	    pixfunc.NewVar("x_inner"), pixfunc.NewVar("y_inner")
//	tile := pixfunc.NewVar("tile_index")
//	gradient.Tile(x, y, xo, yo, xi, yi, 4, 4).Fuse(xo, yo, tile).Parallel(tile)
//
//	r, err := pixfunc.NewRealizer(pixfunc.WithWorkers(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	out, err := r.Realize(gradient, pixfunc.Extents(8, 8))
//
// # Architecture
//
// The package is organized into:
//   - Definition: Var, Expr builders (Add, Mul, Cast, Clamp, Select, ...), Func
//   - Schedule: directives Split, Fuse, Reorder, Tile, Vectorize, Unroll, Parallel
//   - Lowering: [Lower] turns a stage, its schedule and a region into a
//     concrete [LoopNest] and infers the regions required from producers
//   - Realization: [Realizer] walks the call graph producers first, allocates
//     storage for each stage and executes the loop nests
//   - Internal: interval (bounds arithmetic), parallel (worker pool),
//     simd (vector width detection), imageio (codecs)
//
// # Errors
//
// Every failure is reported before any pixel is written: definition mistakes
// by [Func.Define], schedule mistakes by the schedule call or the next
// realization, reads past an input buffer by lowering. See [ErrDefinition],
// [ErrSchedule], [ErrBounds] and [ErrExtentMismatch].
//
// # Concurrency
//
// A [Realizer] owns a worker pool and must be closed. Loops marked parallel
// run their iterations on the pool in no particular order, so store hooks and
// Print output may interleave.
package pixfunc

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
