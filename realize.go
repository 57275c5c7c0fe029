package pixfunc

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/pixfunc/internal/parallel"
)

// Realizer evaluates stages over regions. It owns the worker pool used by
// parallel loops and must be closed when no longer needed.
//
// Thread safety: a Realizer may run several realizations concurrently.
type Realizer struct {
	cfg  Config
	hook func(TraceEvent)
	out  *lockedWriter
	pool *parallel.WorkerPool
}

// NewRealizer creates a Realizer. It fails with ErrInvalidConfig for
// negative settings.
func NewRealizer(opts ...Option) (*Realizer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	cfg := o.cfg.normalized()

	r := &Realizer{
		cfg:  cfg,
		out:  newLockedWriter(o.out),
		pool: parallel.NewWorkerPool(cfg.Workers),
	}
	r.hook = o.hook
	if cfg.TraceStores && r.out != nil {
		user, out := o.hook, r.out
		r.hook = func(ev TraceEvent) {
			out.writeLine(ev.String())
			if user != nil {
				user(ev)
			}
		}
	}

	Logger().Debug("realizer created",
		"workers", r.pool.Workers(),
		"stage_concurrency", cfg.StageConcurrency,
		"vector_width", cfg.VectorWidth)
	return r, nil
}

// Config returns the effective configuration.
func (r *Realizer) Config() Config { return r.cfg }

// Close stops the worker pool. Close must not be called while a
// realization is running.
func (r *Realizer) Close() {
	r.pool.Close()
}

// Realize evaluates f over region into a new buffer named after f.
func (r *Realizer) Realize(f *Func, region Region) (*Buffer, error) {
	if f == nil {
		return nil, &DefinitionError{Reason: "nil stage"}
	}
	if _, _, _, err := f.snapshot(); err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	dst, err := NewBuffer(f.Type(), region)
	if err != nil {
		return nil, err
	}
	dst.SetName(f.Name())
	if err := r.RealizeRegionInto(f, region, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// RealizeInto evaluates f over dst's own region.
func (r *Realizer) RealizeInto(f *Func, dst *Buffer) error {
	if dst == nil {
		return fmt.Errorf("%w: nil output buffer", ErrExtentMismatch)
	}
	return r.RealizeRegionInto(f, dst.Region(), dst)
}

// RealizeRegionInto evaluates f over region and stores the results in dst,
// whose extents must equal the region's. The value at the region's origin
// lands at dst's first element whatever dst's own origin is.
//
// Every error is detected before the first value is computed, so a failed
// call leaves dst untouched.
func (r *Realizer) RealizeRegionInto(f *Func, region Region, dst *Buffer) error {
	if f == nil {
		return &DefinitionError{Reason: "nil stage"}
	}
	if err := region.Validate(); err != nil {
		return err
	}
	if dst == nil {
		return fmt.Errorf("%w: nil output buffer", ErrExtentMismatch)
	}

	stages, err := pipeline(f)
	if err != nil {
		return err
	}
	if n := len(f.Args()); n != len(region) {
		return fmt.Errorf("%w: stage %s has %d dimensions, region has %d",
			ErrInvalidRegion, f.Name(), n, len(region))
	}
	if !dst.Region().SameExtents(region) {
		return &ExtentMismatchError{Func: f.Name(), Region: region.Clone(), Buffer: dst.Region()}
	}
	if dst.Type() != f.Type() {
		return fmt.Errorf("%w: stage %s produces %v, output buffer holds %v",
			ErrTypeMismatch, f.Name(), f.Type(), dst.Type())
	}

	// Lower consumers before producers so each producer sees the union of
	// what all of its consumers read.
	required := map[*Func]Region{f: region.Clone()}
	nests := make(map[*Func]*LoopNest, len(stages))
	for _, s := range slices.Backward(stages) {
		nest, err := Lower(s, required[s])
		if err != nil {
			return err
		}
		nests[s] = nest
		for _, req := range nest.Requirements {
			if req.Func != nil {
				required[req.Func] = required[req.Func].Union(req.Region)
			}
		}
	}

	buffers := make(map[*Func]*Buffer, len(stages))
	for _, s := range stages {
		if s == f {
			buffers[s] = dst
			continue
		}
		b, err := NewBuffer(s.Type(), required[s])
		if err != nil {
			return &BoundsError{Func: f.Name(), Input: s.Name(), Unbounded: true}
		}
		b.SetName(s.Name())
		buffers[s] = b
	}

	execs := make(map[*Func]*executor, len(stages))
	for _, s := range stages {
		nest := nests[s]
		k, err := compileKernel(nest.body, nest.formals, buffers, r.out)
		if err != nil {
			return err
		}
		execs[s] = newExecutor(nest, k, buffers[s], r.pool, r.cfg.VectorWidth, r.hook)
	}

	for _, s := range stages {
		s.markLowered()
	}

	for _, level := range levels(stages) {
		g := new(errgroup.Group)
		g.SetLimit(r.cfg.StageConcurrency)
		for _, s := range level {
			g.Go(func() error {
				r.materialize(s, nests[s], execs[s])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Realizer) materialize(s *Func, nest *LoopNest, x *executor) {
	if r.cfg.DumpLoopNest && r.out != nil {
		r.out.writeString(nest.String())
	}
	x.run()
	s.markMaterialized()
	Logger().Debug("materialized stage", "func", s.Name(), "region", nest.Region.String())
}

// pipeline returns f and every stage it depends on, producers before
// consumers. Stages with a recorded schedule error fail the pipeline.
func pipeline(f *Func) ([]*Func, error) {
	var order []*Func
	seen := make(map[*Func]bool)
	var visit func(s *Func) error
	visit = func(s *Func) error {
		if seen[s] {
			return nil
		}
		seen[s] = true
		if _, _, _, err := s.snapshot(); err != nil {
			return err
		}
		for _, p := range callees(s.Body()) {
			if err := visit(p); err != nil {
				return err
			}
		}
		order = append(order, s)
		return nil
	}
	if err := visit(f); err != nil {
		return nil, err
	}
	return order, nil
}

// callees returns the stages called by e, in first-use order.
func callees(e Expr) []*Func {
	if e == nil {
		return nil
	}
	var out []*Func
	walk(e, func(n Expr) {
		if c, ok := n.(*callExpr); ok && c.fn != nil && !slices.Contains(out, c.fn) {
			out = append(out, c.fn)
		}
	})
	return out
}

// levels groups stages (in producer-first order) by the length of the
// longest call chain below them. Stages of one level never call each other.
func levels(stages []*Func) [][]*Func {
	depth := make(map[*Func]int, len(stages))
	var out [][]*Func
	for _, s := range stages {
		d := 0
		for _, p := range callees(s.Body()) {
			d = max(d, depth[p]+1)
		}
		depth[s] = d
		for len(out) <= d {
			out = append(out, nil)
		}
		out[d] = append(out[d], s)
	}
	return out
}
