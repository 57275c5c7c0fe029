package pixfunc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// State is the lifecycle stage of a Func.
type State uint8

// Func states, in order.
const (
	StateUndefined State = iota
	StateDefined
	StateScheduled
	StateLowered
	StateMaterialized
)

func (s State) String() string {
	switch s {
	case StateDefined:
		return "defined"
	case StateScheduled:
		return "scheduled"
	case StateLowered:
		return "lowered"
	case StateMaterialized:
		return "materialized"
	}
	return "undefined"
}

// Func is a pipeline stage: a pure function from integer coordinates to a
// value, defined once by Define and scheduled independently.
//
// Schedule methods (Split, Tile, Parallel, ...) return the Func so they can
// be chained. The first directive that fails is remembered: later directives
// are ignored, Err reports it and every realization of the stage fails with
// it. Once a stage has been realized its schedule is frozen.
//
// Thread safety: a Func may be realized by several goroutines at once.
// Definition and scheduling must not race with realization.
type Func struct {
	name string

	mu      sync.Mutex
	state   State
	formals []*Var
	body    Expr
	typ     Type
	sched   *Schedule
	frozen  bool
	err     error
}

// NewFunc creates an undefined stage.
func NewFunc(name string) *Func {
	if name == "" {
		name = fmt.Sprintf("f%d", varIDs.Add(1))
	}
	return &Func{name: name}
}

// Name returns the stage name.
func (f *Func) Name() string { return f.name }

// State returns the lifecycle state.
func (f *Func) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Type returns the type of the stage's values. It is only meaningful once the
// stage is defined.
func (f *Func) Type() Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typ
}

// Args returns the formal coordinates, axis 0 first.
func (f *Func) Args() []*Var {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Var(nil), f.formals...)
}

// Body returns the defining expression, or nil for an undefined stage.
func (f *Func) Body() Expr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body
}

// Define sets the stage's formals and body. It fails with a
// *DefinitionError if the stage is already defined, the formals are empty,
// nil or repeated, or body is nil, malformed or uses a variable that is not
// a formal.
func (f *Func) Define(formals []*Var, body Expr) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateUndefined {
		return f.defErr("already defined")
	}
	if len(formals) == 0 {
		return f.defErr("needs at least one coordinate variable")
	}
	if lo.Contains(formals, nil) {
		return f.defErr("nil coordinate variable")
	}
	if dup := lo.FindDuplicates(formals); len(dup) > 0 {
		return f.defErr(fmt.Sprintf("coordinate variable %s listed twice", dup[0].name))
	}
	if isNil(body) {
		return f.defErr("nil body")
	}

	var bad *DefinitionError
	var unbound *Var
	walk(body, func(e Expr) {
		switch n := e.(type) {
		case *invalidExpr:
			if bad == nil {
				bad = n.err
			}
		case *Var:
			if unbound == nil && !lo.Contains(formals, n) {
				unbound = n
			}
		}
	})
	if bad != nil {
		if bad.Func == "" {
			return &DefinitionError{Func: f.name, Reason: bad.Reason}
		}
		return bad
	}
	if unbound != nil {
		return f.defErr(fmt.Sprintf("body uses %s, which is not one of its coordinates", unbound.name))
	}

	f.formals = append([]*Var(nil), formals...)
	f.body = body
	f.typ = body.Type()
	f.sched = NewSchedule(f.name, f.formals)
	f.state = StateDefined
	// The body is formatted by the handler only when debug logging is on.
	Logger().Debug("defined stage", "func", f.name, "type", f.typ, "body", body)
	return nil
}

func (f *Func) defErr(reason string) error {
	return &DefinitionError{Func: f.name, Reason: reason}
}

// At returns a call of the stage at the given integer coordinates. Calling
// a stage that is not defined yet, with the wrong number of arguments or
// with non-integer arguments yields an invalid expression.
func (f *Func) At(args ...Expr) Expr {
	f.mu.Lock()
	state, n, t := f.state, len(f.formals), f.typ
	f.mu.Unlock()

	if state == StateUndefined {
		return invalid(f.name, "stage not yet defined")
	}
	if len(args) != n {
		return invalid(f.name, "called with %d arguments, want %d", len(args), n)
	}
	if bad := checkCallArgs(f.name, args); bad != nil {
		return bad
	}
	return &callExpr{fn: f, args: args, t: t}
}

// EvaluateAt returns the stage body with its formals replaced by coords.
func (f *Func) EvaluateAt(coords ...Expr) (Expr, error) {
	f.mu.Lock()
	state, formals, body := f.state, f.formals, f.body
	f.mu.Unlock()

	if state == StateUndefined {
		return nil, f.defErr("stage not yet defined")
	}
	if len(coords) != len(formals) {
		return nil, f.defErr(fmt.Sprintf("evaluated with %d coordinates, want %d", len(coords), len(formals)))
	}
	if bad := checkCallArgs(f.name, coords); bad != nil {
		return nil, bad.(*invalidExpr).err
	}
	m := make(map[*Var]Expr, len(formals))
	for i, v := range formals {
		m[v] = coords[i]
	}
	return substitute(body, m), nil
}

// Err returns the first schedule error recorded by the fluent methods.
func (f *Func) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Schedule returns a copy of the stage's schedule, or nil for an undefined
// stage.
func (f *Func) Schedule() *Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sched == nil {
		return nil
	}
	return f.sched.Clone()
}

// Apply appends directives in order and returns the first error. Unlike the
// fluent methods it does not record the error on the stage.
func (f *Func) Apply(ds ...Directive) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range ds {
		if err := f.appendLocked(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *Func) appendLocked(d Directive) error {
	name := "<nil>"
	if d != nil {
		name = d.String()
	}
	switch {
	case f.state == StateUndefined:
		return &ScheduleError{Func: f.name, Directive: name, Reason: "stage is not defined"}
	case f.frozen:
		return &ScheduleError{Func: f.name, Directive: name, Reason: "schedule is frozen after realization"}
	}
	if err := f.sched.Append(d); err != nil {
		return err
	}
	if f.state == StateDefined {
		f.state = StateScheduled
	}
	return nil
}

func (f *Func) schedule(d Directive) *Func {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f
	}
	if err := f.appendLocked(d); err != nil {
		f.err = err
		Logger().Debug("schedule directive rejected", "func", f.name, "err", err)
	}
	return f
}

// Split splits v into outer and inner with v = outer*factor + inner.
func (f *Func) Split(v, outer, inner *Var, factor int) *Func {
	return f.schedule(Split{Var: v, Outer: outer, Inner: inner, Factor: factor})
}

// Fuse merges inner and outer into one loop over fused.
func (f *Func) Fuse(inner, outer, fused *Var) *Func {
	return f.schedule(Fuse{Inner: inner, Outer: outer, Fused: fused})
}

// Reorder sets the nesting order of vars, outermost first.
func (f *Func) Reorder(vars ...*Var) *Func {
	return f.schedule(Reorder{Vars: vars})
}

// Tile splits x and y into tiles of xFactor by yFactor and visits the tiles
// in row-major order.
func (f *Func) Tile(x, y, xo, yo, xi, yi *Var, xFactor, yFactor int) *Func {
	return f.schedule(Tile{
		X: x, Y: y, XOuter: xo, YOuter: yo, XInner: xi, YInner: yi,
		XFactor: xFactor, YFactor: yFactor,
	})
}

// Vectorize marks v for batched evaluation.
func (f *Func) Vectorize(v *Var) *Func {
	return f.schedule(Vectorize{Var: v})
}

// VectorizeBy splits v by factor and vectorizes the new inner loop. v names
// the outer loop afterwards.
func (f *Func) VectorizeBy(v *Var, factor int) *Func {
	inner := NewVar(varName(v) + "_v")
	f.schedule(Split{Var: v, Outer: v, Inner: inner, Factor: factor})
	return f.schedule(Vectorize{Var: inner})
}

// Unroll marks v for unrolling.
func (f *Func) Unroll(v *Var) *Func {
	return f.schedule(Unroll{Var: v})
}

// UnrollBy splits v by factor and unrolls the new inner loop. v names the
// outer loop afterwards.
func (f *Func) UnrollBy(v *Var, factor int) *Func {
	inner := NewVar(varName(v) + "_u")
	f.schedule(Split{Var: v, Outer: v, Inner: inner, Factor: factor})
	return f.schedule(Unroll{Var: inner})
}

// Parallel runs the iterations of v concurrently.
func (f *Func) Parallel(v *Var) *Func {
	return f.schedule(Parallel{Var: v})
}

// LoopNest renders the symbolic loop nest of the current schedule.
func (f *Func) LoopNest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sched == nil {
		return fmt.Sprintf("produce %s: <undefined>\n", f.name)
	}
	var sb strings.Builder
	f.sched.render(&sb, f.name, f.name+"(...) = ...")
	return sb.String()
}

func (f *Func) String() string { return f.name }

// snapshot returns what lowering needs under the lock.
func (f *Func) snapshot() (formals []*Var, body Expr, p *plan, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateUndefined {
		return nil, nil, nil, f.defErr("stage not yet defined")
	}
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return f.formals, f.body, f.sched.plan, nil
}

// markLowered freezes the schedule and records the lowered state.
func (f *Func) markLowered() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frozen = true
	f.state = StateLowered
}

func (f *Func) markMaterialized() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateMaterialized
}
