package pixfunc

import (
	"github.com/gogpu/pixfunc/internal/parallel"
)

// worker is the mutable state of one goroutine executing a loop nest: the
// loop and coordinate variables, the kernel frame and the pending lanes.
type worker struct {
	vals      []int64
	fr        *frame
	n         int
	recompute []bool
}

// executor runs a lowered loop nest, storing the kernel's results into dst
// relative to the realized region's origin.
type executor struct {
	nest    *LoopNest
	k       *kernel
	dst     *Buffer
	origin  []int
	strides []int
	pool    *parallel.WorkerPool
	width   int
	hook    func(TraceEvent)
	body    func(w *worker)
}

func newExecutor(nest *LoopNest, k *kernel, dst *Buffer, pool *parallel.WorkerPool, width int, hook func(TraceEvent)) *executor {
	x := &executor{
		nest:  nest,
		k:     k,
		dst:   dst,
		pool:  pool,
		width: max(width, 1),
		hook:  hook,
	}
	for i, r := range nest.Region {
		x.origin = append(x.origin, r.Min)
		x.strides = append(x.strides, dst.dims[i].Stride)
	}
	x.body = x.build(0, false)
	return x
}

func (x *executor) newWorker() *worker {
	return &worker{
		vals:      make([]int64, x.nest.slots),
		fr:        x.k.newFrame(x.width),
		recompute: make([]bool, x.width),
	}
}

// fork returns a worker for another goroutine, starting from w's variables.
func (x *executor) fork(w *worker) *worker {
	nw := x.newWorker()
	copy(nw.vals, w.vals)
	return nw
}

func (x *executor) run() {
	x.body(x.newWorker())
}

// build compiles loop level depth and everything inside it into a closure.
func (x *executor) build(depth int, inParallel bool) func(*worker) {
	loops := x.nest.Loops
	if depth == len(loops) {
		return func(w *worker) {
			x.point(w)
			x.flush(w)
		}
	}

	l := loops[depth]
	slot := x.nest.loopSlots[depth]
	lo, extent := int64(l.Min), l.Extent
	name := x.nest.Func.Name()

	switch l.Kind {
	case LoopVectorized:
		if depth == len(loops)-1 {
			return func(w *worker) {
				for i := range extent {
					w.vals[slot] = lo + int64(i)
					x.point(w)
					if w.n == x.width {
						x.flush(w)
					}
				}
				x.flush(w)
			}
		}
		Logger().Warn("vectorized loop is not innermost, running it serially",
			"func", name, "var", l.Var)

	case LoopUnrolled:
		inner := x.build(depth+1, inParallel)
		steps := make([]func(*worker), extent)
		for i := range steps {
			v := lo + int64(i)
			steps[i] = func(w *worker) {
				w.vals[slot] = v
				inner(w)
			}
		}
		return func(w *worker) {
			for _, step := range steps {
				step(w)
			}
		}

	case LoopParallel:
		if inParallel || x.pool == nil {
			if inParallel {
				Logger().Warn("nested parallel loop runs serially", "func", name, "var", l.Var)
			}
			break
		}
		inner := x.build(depth+1, true)
		return func(w *worker) {
			x.pool.ParallelFor(extent, func(start, end int) {
				cw := x.fork(w)
				for i := start; i < end; i++ {
					cw.vals[slot] = lo + int64(i)
					inner(cw)
				}
			})
		}
	}

	inner := x.build(depth+1, inParallel)
	return func(w *worker) {
		for i := range extent {
			w.vals[slot] = lo + int64(i)
			inner(w)
		}
	}
}

// point rebuilds the formal coordinates of the current iteration and queues
// them as the next lane. Iterations past the end of a short split are
// dropped.
func (x *executor) point(w *worker) {
	recompute := false
	for i := range x.nest.steps {
		skip, r := x.nest.steps[i].resolve(w.vals)
		if skip {
			return
		}
		recompute = recompute || r
	}
	lane := w.n
	for k, s := range x.nest.formalSlots {
		w.fr.ints[k][lane] = w.vals[s]
	}
	w.recompute[lane] = recompute
	w.n++
}

// flush evaluates the queued lanes and stores the results.
func (x *executor) flush(w *worker) {
	n := w.n
	if n == 0 {
		return
	}
	w.n = 0
	x.k.eval(w.fr, n)

	out := x.k.out
	data := x.dst.data
	for lane := range n {
		if !w.recompute[lane] {
			off := 0
			for k := range x.origin {
				off += int(w.fr.ints[k][lane]-int64(x.origin[k])) * x.strides[k]
			}
			if out.float {
				data.setFloat(off, w.fr.floats[out.idx][lane])
			} else {
				data.setInt(off, w.fr.ints[out.idx][lane])
			}
		}
		if x.hook != nil {
			x.hook(x.event(w, lane))
		}
	}
}

func (x *executor) event(w *worker, lane int) TraceEvent {
	ev := TraceEvent{
		Func:      x.nest.Func.Name(),
		Coords:    make([]int, len(x.origin)),
		Type:      x.k.typ,
		Recompute: w.recompute[lane],
	}
	for k := range ev.Coords {
		ev.Coords[k] = int(w.fr.ints[k][lane])
	}
	if out := x.k.out; out.float {
		ev.Float = w.fr.floats[out.idx][lane]
	} else {
		ev.Int = w.fr.ints[out.idx][lane]
	}
	return ev
}
