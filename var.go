package pixfunc

import (
	"fmt"
	"sync/atomic"
)

// varIDs hands out process-unique variable ids.
var varIDs atomic.Uint64

// Var is a symbolic integer coordinate. It has no range of its own: the
// range comes from the region being realized or from the schedule directive
// that introduced it.
//
// A *Var is an Expr of type Int32. Vars compare by identity, so two vars
// with the same name are still distinct.
type Var struct {
	name string
	id   uint64
}

// NewVar creates a variable. The name is only used for printing; an empty
// name is replaced by one derived from the variable's id.
func NewVar(name string) *Var {
	id := varIDs.Add(1)
	if name == "" {
		name = fmt.Sprintf("v%d", id)
	}
	return &Var{name: name, id: id}
}

// Name returns the variable's name.
func (v *Var) Name() string { return v.name }

// ID returns the variable's process-unique id.
func (v *Var) ID() uint64 { return v.id }

// Type implements Expr.
func (v *Var) Type() Type { return Int32 }

func (v *Var) String() string { return v.name }

func (v *Var) children() []Expr { return nil }

// renamed returns a new variable with the same name and a fresh id.
func (v *Var) renamed() *Var {
	return &Var{name: v.name, id: varIDs.Add(1)}
}
