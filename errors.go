package pixfunc

import (
	"errors"
	"fmt"
)

// Pipeline errors. Structured errors below unwrap to one of these, so callers
// can test the category with errors.Is and the details with errors.As.
var (
	// ErrDefinition is returned for malformed stage definitions.
	ErrDefinition = errors.New("pixfunc: definition error")

	// ErrSchedule is returned for invalid schedule directives.
	ErrSchedule = errors.New("pixfunc: schedule error")

	// ErrBounds is returned when a realization would read outside an input
	// buffer or requires an unbounded region.
	ErrBounds = errors.New("pixfunc: out of bounds")

	// ErrExtentMismatch is returned when an output buffer does not match the
	// requested region.
	ErrExtentMismatch = errors.New("pixfunc: extent mismatch")

	// ErrInvalidRegion is returned for regions with no axes or a
	// non-positive extent.
	ErrInvalidRegion = errors.New("pixfunc: invalid region")

	// ErrTypeMismatch is returned when an output buffer's element type differs
	// from the stage type.
	ErrTypeMismatch = errors.New("pixfunc: type mismatch")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("pixfunc: invalid config")
)

// DefinitionError describes a malformed stage definition or expression.
type DefinitionError struct {
	// Func is the stage being defined or called. Empty for free expressions.
	Func   string
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.Func == "" {
		return "pixfunc: " + e.Reason
	}
	return fmt.Sprintf("pixfunc: stage %s: %s", e.Func, e.Reason)
}

func (e *DefinitionError) Unwrap() error { return ErrDefinition }

// ScheduleError describes a directive rejected by a stage's schedule.
type ScheduleError struct {
	Func      string
	Directive string
	Reason    string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("pixfunc: stage %s: %s: %s", e.Func, e.Directive, e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrSchedule }

// BoundsError reports a required region that cannot be satisfied.
type BoundsError struct {
	// Func is the consuming stage whose loop nest needs the region.
	Func string

	// Input names the buffer or stage being read.
	Input string

	// Dim is the offending axis.
	Dim int

	// Required and Available are the requested and existing ranges.
	// Both are zero when Unbounded is set.
	Required  Range
	Available Range

	// Unbounded is set when the required range has no finite bound.
	Unbounded bool
}

func (e *BoundsError) Error() string {
	if e.Unbounded {
		return fmt.Sprintf("pixfunc: stage %s: access to %s has no finite bound in dimension %d",
			e.Func, e.Input, e.Dim)
	}
	return fmt.Sprintf("pixfunc: stage %s: access to %s in dimension %d needs %v, buffer has %v",
		e.Func, e.Input, e.Dim, e.Required, e.Available)
}

func (e *BoundsError) Unwrap() error { return ErrBounds }

// ExtentMismatchError reports an output buffer whose domain disagrees with
// the requested region.
type ExtentMismatchError struct {
	Func   string
	Region Region
	Buffer Region
}

func (e *ExtentMismatchError) Error() string {
	return fmt.Sprintf("pixfunc: stage %s: output buffer %v does not match region %v",
		e.Func, e.Buffer, e.Region)
}

func (e *ExtentMismatchError) Unwrap() error { return ErrExtentMismatch }
