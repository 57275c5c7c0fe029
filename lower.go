package pixfunc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/pixfunc/internal/interval"
)

// Loop is one level of a lowered loop nest.
type Loop struct {
	Var    string
	Kind   LoopKind
	Min    int
	Extent int
}

func (l Loop) String() string {
	return fmt.Sprintf("%v %s in [%d, %d]", l.Kind, l.Var, l.Min, l.Min+l.Extent-1)
}

// Requirement is the region a stage reads from one producer stage or input
// buffer. Exactly one of Func and Input is set.
type Requirement struct {
	Func   *Func
	Input  *Buffer
	Region Region
}

// Name returns the name of the producer or input.
func (r Requirement) Name() string {
	if r.Func != nil {
		return r.Func.Name()
	}
	return r.Input.Name()
}

// LoopNest is a stage lowered for one region: the concrete loops in nesting
// order, how the formal coordinates are rebuilt from the loop variables, and
// the regions the stage reads from its callees.
type LoopNest struct {
	Func         *Func
	Region       Region
	Loops        []Loop
	Requirements []Requirement

	formals     []*Var
	body        Expr
	slots       int
	formalSlots []int
	loopSlots   []int
	steps       []letStep
	lets        []string
}

// letStep rebuilds one axis that has no loop of its own.
type letStep struct {
	kind derivKind

	// Split: vals[parent] = parentMin + clamped(outer*factor) + inner.
	// Fuse: vals[inner] and vals[outer] from vals[parent].
	parent, outer, inner int
	factor               int
	parentMin, extent    int

	innerMin, innerExtent, outerMin int
}

// resolve computes the step's output in vals. skip reports a point past the
// end of a split whose extent is below the factor; recompute reports a point
// already visited by the previous tile of a shifted tail.
func (s *letStep) resolve(vals []int64) (skip, recompute bool) {
	switch s.kind {
	case derivSplit:
		f := int64(s.factor)
		e := int64(s.extent)
		nominal := vals[s.outer] * f
		base := nominal
		if e >= f && base > e-f {
			base = e - f
		}
		rel := base + vals[s.inner]
		if rel >= e {
			return true, false
		}
		vals[s.parent] = int64(s.parentMin) + rel
		return false, rel < nominal
	default:
		v := vals[s.parent]
		ext := int64(s.innerExtent)
		vals[s.inner] = int64(s.innerMin) + v%ext
		vals[s.outer] = int64(s.outerMin) + v/ext
		return false, false
	}
}

// Lower lowers f over region using its current schedule. It infers the
// region needed from every producer and input buffer, and fails with a
// *BoundsError if an input buffer is too small or a needed region is
// unbounded. Lowering does not change f.
func Lower(f *Func, region Region) (*LoopNest, error) {
	if f == nil {
		return nil, &DefinitionError{Reason: "nil stage"}
	}
	formals, body, p, err := f.snapshot()
	if err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if len(region) != len(formals) {
		return nil, fmt.Errorf("%w: stage %s has %d dimensions, region has %d",
			ErrInvalidRegion, f.Name(), len(formals), len(region))
	}

	nest := &LoopNest{
		Func:    f,
		Region:  region.Clone(),
		formals: formals,
		body:    body,
	}

	ranges := make(map[*Var]Range, len(formals)+2*len(p.derivs))
	for i, v := range formals {
		ranges[v] = region[i]
	}
	for _, d := range p.derivs {
		switch d.kind {
		case derivSplit:
			e := ranges[d.parent].Extent
			ranges[d.outer] = Range{Extent: (e + d.factor - 1) / d.factor}
			ranges[d.inner] = Range{Extent: d.factor}
		case derivFuse:
			ranges[d.parent] = Range{Extent: ranges[d.inner].Extent * ranges[d.outer].Extent}
		}
	}

	slots := make(map[*Var]int)
	slotOf := func(v *Var) int {
		s, ok := slots[v]
		if !ok {
			s = len(slots)
			slots[v] = s
		}
		return s
	}
	for _, v := range formals {
		nest.formalSlots = append(nest.formalSlots, slotOf(v))
	}
	for _, d := range p.dims {
		r := ranges[d.v]
		nest.Loops = append(nest.Loops, Loop{Var: d.v.name, Kind: d.kind, Min: r.Min, Extent: r.Extent})
		nest.loopSlots = append(nest.loopSlots, slotOf(d.v))
	}

	// Later derivations consume the loop variables; earlier ones consume
	// their results.
	for _, d := range slices.Backward(p.derivs) {
		switch d.kind {
		case derivSplit:
			pr := ranges[d.parent]
			nest.steps = append(nest.steps, letStep{
				kind:      derivSplit,
				parent:    slotOf(d.parent),
				outer:     slotOf(d.outer),
				inner:     slotOf(d.inner),
				factor:    d.factor,
				parentMin: pr.Min,
				extent:    pr.Extent,
			})
			nest.lets = append(nest.lets, splitLet(d, pr))
		case derivFuse:
			ir, or := ranges[d.inner], ranges[d.outer]
			nest.steps = append(nest.steps, letStep{
				kind:        derivFuse,
				parent:      slotOf(d.parent),
				inner:       slotOf(d.inner),
				outer:       slotOf(d.outer),
				innerMin:    ir.Min,
				innerExtent: ir.Extent,
				outerMin:    or.Min,
			})
			nest.lets = append(nest.lets,
				fmt.Sprintf("let %s = %d + %s %% %d", d.inner.name, ir.Min, d.parent.name, ir.Extent),
				fmt.Sprintf("let %s = %d + %s / %d", d.outer.name, or.Min, d.parent.name, ir.Extent))
		}
	}
	nest.slots = len(slots)

	if err := nest.inferBounds(); err != nil {
		return nil, err
	}

	Logger().Debug("lowered stage",
		"func", f.Name(),
		"region", nest.Region.String(),
		"loops", len(nest.Loops),
		"requirements", len(nest.Requirements))
	return nest, nil
}

func splitLet(d derivation, pr Range) string {
	switch {
	case pr.Extent < d.factor:
		return fmt.Sprintf("let %s = %d + %s*%d + %s (skipped past %d)",
			d.parent.name, pr.Min, d.outer.name, d.factor, d.inner.name, pr.Max())
	case pr.Extent%d.factor != 0:
		return fmt.Sprintf("let %s = %d + min(%s*%d, %d) + %s",
			d.parent.name, pr.Min, d.outer.name, d.factor, pr.Extent-d.factor, d.inner.name)
	}
	return fmt.Sprintf("let %s = %d + %s*%d + %s",
		d.parent.name, pr.Min, d.outer.name, d.factor, d.inner.name)
}

// inferBounds fills Requirements and checks reads from input buffers.
func (n *LoopNest) inferBounds() error {
	w := &boundsWalker{env: make(map[*Var]interval.Interval, len(n.formals))}
	for i, v := range n.formals {
		r := n.Region[i]
		w.env[v] = interval.New(float64(r.Min), float64(r.Max()))
	}
	w.bounds(n.body)

	for _, req := range w.reqs {
		region := make(Region, len(req.box))
		for d, iv := range req.box {
			r, ok := toRange(iv)
			if !ok {
				return &BoundsError{Func: n.Func.Name(), Input: req.name(), Dim: d, Unbounded: true}
			}
			region[d] = r
		}
		if req.buf != nil {
			have := req.buf.Region()
			for d := range region {
				if !have[d].Contains(region[d]) {
					return &BoundsError{
						Func:      n.Func.Name(),
						Input:     req.name(),
						Dim:       d,
						Required:  region[d],
						Available: have[d],
					}
				}
			}
		}
		n.Requirements = append(n.Requirements, Requirement{Func: req.fn, Input: req.buf, Region: region})
	}
	return nil
}

// String renders the concrete loop nest with loop ranges, coordinate
// reconstruction and required regions.
func (n *LoopNest) String() string {
	var sb strings.Builder
	name := n.Func.Name()
	fmt.Fprintf(&sb, "produce %s over %v:\n", name, n.Region)
	for _, r := range n.Requirements {
		fmt.Fprintf(&sb, "  reads %s over %v\n", r.Name(), r.Region)
	}
	indent := "  "
	for _, l := range n.Loops {
		fmt.Fprintf(&sb, "%s%v:\n", indent, l)
		indent += "  "
	}
	for _, l := range n.lets {
		fmt.Fprintf(&sb, "%s%s\n", indent, l)
	}
	args := make([]string, len(n.formals))
	for i, v := range n.formals {
		args[i] = v.name
	}
	fmt.Fprintf(&sb, "%s%s(%s) = %v\n", indent, name, strings.Join(args, ", "), n.body)
	return sb.String()
}
