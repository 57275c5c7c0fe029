package pixfunc

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// LoopKind says how a loop of the nest is executed.
type LoopKind uint8

// Loop kinds.
const (
	// LoopSerial runs iterations in order on the current goroutine.
	LoopSerial LoopKind = iota

	// LoopParallel runs iterations on the worker pool in no particular order.
	LoopParallel

	// LoopVectorized evaluates the iterations as one batch of lanes.
	LoopVectorized

	// LoopUnrolled replicates the body once per iteration.
	LoopUnrolled
)

func (k LoopKind) String() string {
	switch k {
	case LoopParallel:
		return "parallel"
	case LoopVectorized:
		return "vectorized"
	case LoopUnrolled:
		return "unrolled"
	}
	return "for"
}

// Directive is one schedule transformation. Directives rewrite the
// iteration plan of a stage; they never change the values it computes.
type Directive interface {
	apply(p *plan) error
	String() string
}

// Split replaces axis Var by Outer and Inner with Var = Outer*Factor + Inner
// and Inner in [0, Factor). Outer may be Var itself, in which case Var names
// the outer axis from then on.
//
// When the extent is not a multiple of Factor the last tile is shifted
// inward so that it ends at the last coordinate; the overlapping points are
// recomputed but stored only once. When the extent is smaller than Factor
// the iterations past the end are skipped.
type Split struct {
	Var, Outer, Inner *Var
	Factor            int
}

// Fuse merges Inner and Outer into Fused = Inner_extent*Outer + Inner.
// Inner is the faster varying component. Fused takes Inner's place in the
// nest and Outer is removed.
type Fuse struct {
	Inner, Outer, Fused *Var
}

// Reorder sets the nesting order of Vars, outermost first. The listed axes
// are permuted among the positions they occupy; other axes do not move.
type Reorder struct {
	Vars []*Var
}

// Tile splits X and Y by XFactor and YFactor and orders the result
// YOuter, XOuter, YInner, XInner from outermost to innermost.
type Tile struct {
	X, Y                           *Var
	XOuter, YOuter, XInner, YInner *Var
	XFactor, YFactor               int
}

// Vectorize evaluates the iterations of Var as a batch. Var needs a constant
// extent, which only the inner axis of a split (or a fuse of such axes) has.
type Vectorize struct {
	Var *Var
}

// Unroll replicates the loop body once per iteration of Var. Var needs a
// constant extent.
type Unroll struct {
	Var *Var
}

// Parallel runs the iterations of Var on the worker pool.
type Parallel struct {
	Var *Var
}

func (d Split) String() string {
	return fmt.Sprintf("split(%s, %s, %s, %d)", varName(d.Var), varName(d.Outer), varName(d.Inner), d.Factor)
}

func (d Fuse) String() string {
	return fmt.Sprintf("fuse(%s, %s, %s)", varName(d.Inner), varName(d.Outer), varName(d.Fused))
}

func (d Reorder) String() string {
	return "reorder(" + strings.Join(lo.Map(d.Vars, func(v *Var, _ int) string { return varName(v) }), ", ") + ")"
}

func (d Tile) String() string {
	return fmt.Sprintf("tile(%s, %s, %s, %s, %s, %s, %d, %d)",
		varName(d.X), varName(d.Y), varName(d.XOuter), varName(d.YOuter),
		varName(d.XInner), varName(d.YInner), d.XFactor, d.YFactor)
}

func (d Vectorize) String() string { return "vectorize(" + varName(d.Var) + ")" }
func (d Unroll) String() string    { return "unroll(" + varName(d.Var) + ")" }
func (d Parallel) String() string  { return "parallel(" + varName(d.Var) + ")" }

func varName(v *Var) string {
	if v == nil {
		return "<nil>"
	}
	return v.name
}

func (d Split) apply(p *plan) error {
	if d.Factor <= 0 {
		return fmt.Errorf("factor %d must be positive", d.Factor)
	}
	i, err := p.find(d.Var)
	if err != nil {
		return err
	}
	if k := p.dims[i].kind; k != LoopSerial {
		return fmt.Errorf("cannot split %s after marking it %v", d.Var.name, k)
	}
	if err := p.fresh(d.Inner); err != nil {
		return err
	}
	if d.Inner == d.Outer {
		return fmt.Errorf("outer and inner are both %s", d.Inner.name)
	}

	parent := p.dims[i].v
	outer := d.Outer
	if outer == d.Var {
		// The user's name now refers to the outer axis; the original axis
		// keeps a private identity for coordinate reconstruction.
		outer = d.Var.renamed()
		p.alias[d.Var] = outer
	} else if err := p.fresh(outer); err != nil {
		return err
	}
	p.used[d.Outer] = true
	p.used[d.Inner] = true

	p.dims = slices.Replace(p.dims, i, i+1,
		planDim{v: outer},
		planDim{v: d.Inner, factor: d.Factor},
	)
	p.derivs = append(p.derivs, derivation{
		kind: derivSplit, parent: parent, outer: outer, inner: d.Inner, factor: d.Factor,
	})
	return nil
}

func (d Fuse) apply(p *plan) error {
	if d.Inner == d.Outer {
		return fmt.Errorf("cannot fuse %s with itself", varName(d.Inner))
	}
	ii, err := p.find(d.Inner)
	if err != nil {
		return err
	}
	oi, err := p.find(d.Outer)
	if err != nil {
		return err
	}
	for _, i := range []int{ii, oi} {
		if k := p.dims[i].kind; k != LoopSerial {
			return fmt.Errorf("cannot fuse %s after marking it %v", p.dims[i].v.name, k)
		}
	}
	if err := p.fresh(d.Fused); err != nil {
		return err
	}
	p.used[d.Fused] = true

	inner, outer := p.dims[ii], p.dims[oi]
	factor := 0
	if inner.factor > 0 && outer.factor > 0 {
		factor = inner.factor * outer.factor
	}
	p.dims[ii] = planDim{v: d.Fused, factor: factor}
	p.dims = slices.Delete(p.dims, oi, oi+1)
	p.derivs = append(p.derivs, derivation{
		kind: derivFuse, parent: d.Fused, inner: inner.v, outer: outer.v,
	})
	return nil
}

func (d Reorder) apply(p *plan) error {
	if dup := lo.FindDuplicates(d.Vars); len(dup) > 0 {
		return fmt.Errorf("%s listed twice", varName(dup[0]))
	}
	idx := make([]int, len(d.Vars))
	for k, v := range d.Vars {
		i, err := p.find(v)
		if err != nil {
			return err
		}
		idx[k] = i
	}
	moved := lo.Map(idx, func(i, _ int) planDim { return p.dims[i] })
	slices.Sort(idx)
	for k, i := range idx {
		p.dims[i] = moved[k]
	}
	return nil
}

func (d Tile) apply(p *plan) error {
	steps := []Directive{
		Split{Var: d.X, Outer: d.XOuter, Inner: d.XInner, Factor: d.XFactor},
		Split{Var: d.Y, Outer: d.YOuter, Inner: d.YInner, Factor: d.YFactor},
		Reorder{Vars: []*Var{d.YOuter, d.XOuter, d.YInner, d.XInner}},
	}
	for _, s := range steps {
		if err := s.apply(p); err != nil {
			return err
		}
	}
	return nil
}

func (d Vectorize) apply(p *plan) error { return p.mark(d.Var, LoopVectorized) }
func (d Unroll) apply(p *plan) error    { return p.mark(d.Var, LoopUnrolled) }
func (d Parallel) apply(p *plan) error  { return p.mark(d.Var, LoopParallel) }

type derivKind uint8

const (
	derivSplit derivKind = iota
	derivFuse
)

// derivation records how an axis that no longer has its own loop is
// reconstructed. For splits, parent = outer*factor + inner. For fuses,
// parent is the fused axis and inner, outer are reconstructed from it.
type derivation struct {
	kind         derivKind
	parent       *Var
	outer, inner *Var
	factor       int
}

// planDim is one loop of the symbolic plan. factor is the constant extent,
// or zero when the extent depends on the realized region.
type planDim struct {
	v      *Var
	kind   LoopKind
	factor int
}

// plan is the symbolic loop structure of a stage: its loops outermost
// first, plus the derivations that map loop variables back to the formals.
type plan struct {
	formals []*Var
	dims    []planDim
	derivs  []derivation

	// used holds every variable the schedule has introduced, formals
	// included; a directive may not introduce any of them again.
	used map[*Var]bool

	// alias maps a variable re-bound by Split{Var: v, Outer: v} to the
	// private variable now standing for the original axis's outer loop.
	alias map[*Var]*Var
}

func newPlan(formals []*Var) *plan {
	p := &plan{
		formals: formals,
		used:    make(map[*Var]bool, len(formals)),
		alias:   make(map[*Var]*Var),
	}
	// Formals are listed innermost first, loops outermost first.
	for i := len(formals) - 1; i >= 0; i-- {
		p.dims = append(p.dims, planDim{v: formals[i]})
	}
	for _, v := range formals {
		p.used[v] = true
	}
	return p
}

func (p *plan) clone() *plan {
	return &plan{
		formals: p.formals,
		dims:    slices.Clone(p.dims),
		derivs:  slices.Clone(p.derivs),
		used:    maps.Clone(p.used),
		alias:   maps.Clone(p.alias),
	}
}

func (p *plan) resolve(v *Var) *Var {
	if a, ok := p.alias[v]; ok {
		return a
	}
	return v
}

// find returns the loop index of v.
func (p *plan) find(v *Var) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("nil variable")
	}
	rv := p.resolve(v)
	_, i, ok := lo.FindIndexOf(p.dims, func(d planDim) bool { return d.v == rv })
	if ok {
		return i, nil
	}
	if p.used[v] {
		return 0, fmt.Errorf("%s was consumed by an earlier directive", v.name)
	}
	return 0, fmt.Errorf("%s is not a loop of this stage", v.name)
}

// fresh checks that v may be introduced as a new axis.
func (p *plan) fresh(v *Var) error {
	if v == nil {
		return fmt.Errorf("nil variable")
	}
	if p.used[v] {
		return fmt.Errorf("%s is already in use", v.name)
	}
	return nil
}

func (p *plan) mark(v *Var, kind LoopKind) error {
	i, err := p.find(v)
	if err != nil {
		return err
	}
	d := &p.dims[i]
	if d.kind == kind {
		return nil
	}
	if d.kind != LoopSerial {
		return fmt.Errorf("%s is already %v", v.name, d.kind)
	}
	if kind != LoopParallel && d.factor <= 0 {
		return fmt.Errorf("%s has no constant extent; split it first", v.name)
	}
	d.kind = kind
	return nil
}

// Schedule is the ordered list of directives attached to a stage, validated
// against the loop plan they build up.
type Schedule struct {
	owner      string
	directives []Directive
	plan       *plan
}

// NewSchedule returns an empty schedule for a stage with the given formals.
// The owner name is used in errors.
func NewSchedule(owner string, formals []*Var) *Schedule {
	return &Schedule{owner: owner, plan: newPlan(formals)}
}

// Append validates d against the plan built so far and adds it. A rejected
// directive leaves the schedule unchanged and returns a *ScheduleError.
func (s *Schedule) Append(d Directive) error {
	if d == nil {
		return &ScheduleError{Func: s.owner, Directive: "<nil>", Reason: "nil directive"}
	}
	next := s.plan.clone()
	if err := d.apply(next); err != nil {
		return &ScheduleError{Func: s.owner, Directive: d.String(), Reason: err.Error()}
	}
	s.plan = next
	s.directives = append(s.directives, d)
	return nil
}

// Directives returns the accepted directives in order.
func (s *Schedule) Directives() []Directive {
	return slices.Clone(s.directives)
}

// Loops returns the names of the loops, outermost first.
func (s *Schedule) Loops() []string {
	return lo.Map(s.plan.dims, func(d planDim, _ int) string { return d.v.name })
}

// Clone returns an independent copy of the schedule.
func (s *Schedule) Clone() *Schedule {
	return &Schedule{owner: s.owner, directives: slices.Clone(s.directives), plan: s.plan.clone()}
}

func (s *Schedule) String() string {
	return strings.Join(lo.Map(s.directives, func(d Directive, _ int) string { return d.String() }), ".")
}

// render writes the symbolic loop nest of the schedule with body as the
// innermost statement.
func (s *Schedule) render(sb *strings.Builder, name, body string) {
	fmt.Fprintf(sb, "produce %s:\n", name)
	indent := "  "
	for _, d := range s.plan.dims {
		switch d.kind {
		case LoopVectorized, LoopUnrolled:
			fmt.Fprintf(sb, "%s%v %s in [0, %d]:\n", indent, d.kind, d.v.name, d.factor-1)
		default:
			fmt.Fprintf(sb, "%s%v %s:\n", indent, d.kind, d.v.name)
		}
		indent += "  "
	}
	fmt.Fprintf(sb, "%s%s\n", indent, body)
}
