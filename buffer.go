package pixfunc

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ErrDataTooSmall is returned when a wrapped slice is shorter than its region.
var ErrDataTooSmall = errors.New("pixfunc: data slice too small for region")

// maxElements bounds the size of any buffer the package allocates.
const maxElements = 1 << 30

// Number is the set of Go element types a Buffer can hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// storage is the typed backing array of a Buffer. Integer values travel as
// int64 (UInt64 keeps its bit pattern), floats as float64.
type storage interface {
	size() int
	getInt(i int) int64
	getFloat(i int) float64
	setInt(i int, v int64)
	setFloat(i int, v float64)
}

type slice[T Number] []T

func (s slice[T]) size() int                 { return len(s) }
func (s slice[T]) getInt(i int) int64        { return int64(s[i]) }
func (s slice[T]) getFloat(i int) float64    { return float64(s[i]) }
func (s slice[T]) setInt(i int, v int64)     { s[i] = T(v) }
func (s slice[T]) setFloat(i int, v float64) { s[i] = T(v) }

func newStorage(t Type, n int) storage {
	switch t {
	case Int8:
		return make(slice[int8], n)
	case Int16:
		return make(slice[int16], n)
	case Int32:
		return make(slice[int32], n)
	case Int64:
		return make(slice[int64], n)
	case UInt8, Bool:
		return make(slice[uint8], n)
	case UInt16:
		return make(slice[uint16], n)
	case UInt32:
		return make(slice[uint32], n)
	case UInt64:
		return make(slice[uint64], n)
	case Float32:
		return make(slice[float32], n)
	case Float64:
		return make(slice[float64], n)
	}
	return nil
}

// typeFor maps a Go element type to the matching Type.
func typeFor[T Number]() (Type, bool) {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8, true
	case int16:
		return Int16, true
	case int32:
		return Int32, true
	case int64:
		return Int64, true
	case uint8:
		return UInt8, true
	case uint16:
		return UInt16, true
	case uint32:
		return UInt32, true
	case uint64:
		return UInt64, true
	case float32:
		return Float32, true
	case float64:
		return Float64, true
	}
	return Type{}, false
}

// Dim describes one axis of a Buffer.
type Dim struct {
	Min    int
	Extent int
	Stride int
}

// Buffer is typed, contiguous, planar storage over a Region. Axis 0 varies
// fastest, so a (width, height, channels) buffer holds whole channel planes
// one after another.
//
// Thread safety: concurrent reads are safe. A realization writes each
// coordinate once from a single goroutine; other writes need external
// synchronization.
type Buffer struct {
	name string
	typ  Type
	dims []Dim
	data storage
}

// NewBuffer allocates a zeroed buffer of type t covering r.
func NewBuffer(t Type, r Region) (*Buffer, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: unsupported type %v", ErrTypeMismatch, t)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if n := r.Size(); n > maxElements || n <= 0 {
		return nil, fmt.Errorf("%w: region %v is too large", ErrInvalidRegion, r)
	}
	return &Buffer{
		name: "buffer",
		typ:  t,
		dims: layout(r),
		data: newStorage(t, r.Size()),
	}, nil
}

// NewBufferFrom wraps data as a buffer covering r without copying.
func NewBufferFrom[T Number](data []T, r Region) (*Buffer, error) {
	t, ok := typeFor[T]()
	if !ok {
		return nil, fmt.Errorf("%w: element type %T", ErrTypeMismatch, *new(T))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(data) < r.Size() {
		return nil, fmt.Errorf("%w: have %d elements, need %d", ErrDataTooSmall, len(data), r.Size())
	}
	return &Buffer{
		name: "buffer",
		typ:  t,
		dims: layout(r),
		data: slice[T](data[:r.Size()]),
	}, nil
}

// layout computes dense planar strides for r.
func layout(r Region) []Dim {
	dims := make([]Dim, len(r))
	stride := 1
	for i, d := range r {
		dims[i] = Dim{Min: d.Min, Extent: d.Extent, Stride: stride}
		stride *= d.Extent
	}
	return dims
}

// Data returns the buffer's backing slice, or nil if T does not match the
// buffer's element type. Bool buffers are viewed as []uint8.
func Data[T Number](b *Buffer) []T {
	s, ok := b.data.(slice[T])
	if !ok {
		return nil
	}
	return s
}

// Name returns the name used in error messages and traces.
func (b *Buffer) Name() string { return b.name }

// SetName sets the name used in error messages and traces.
func (b *Buffer) SetName(name string) { b.name = name }

// Type returns the element type.
func (b *Buffer) Type() Type { return b.typ }

// Dims returns the number of axes.
func (b *Buffer) Dims() int { return len(b.dims) }

// Dim returns axis i.
func (b *Buffer) Dim(i int) Dim { return b.dims[i] }

// Len returns the number of elements.
func (b *Buffer) Len() int { return b.data.size() }

// Region returns the domain the buffer covers.
func (b *Buffer) Region() Region {
	r := make(Region, len(b.dims))
	for i, d := range b.dims {
		r[i] = Range{Min: d.Min, Extent: d.Extent}
	}
	return r
}

// Width returns the extent of axis 0.
func (b *Buffer) Width() int { return b.extent(0) }

// Height returns the extent of axis 1, or 1 for one-dimensional buffers.
func (b *Buffer) Height() int { return b.extent(1) }

// Channels returns the extent of axis 2, or 1 for buffers with fewer axes.
func (b *Buffer) Channels() int { return b.extent(2) }

func (b *Buffer) extent(i int) int {
	if i >= len(b.dims) {
		return 1
	}
	return b.dims[i].Extent
}

// SetMin moves the buffer's origin without touching its contents.
func (b *Buffer) SetMin(mins ...int) error {
	if len(mins) != len(b.dims) {
		return fmt.Errorf("%w: SetMin got %d coordinates for %d dimensions",
			ErrInvalidRegion, len(mins), len(b.dims))
	}
	for i, m := range mins {
		b.dims[i].Min = m
	}
	return nil
}

// Contains reports whether the coordinates lie inside the buffer.
func (b *Buffer) Contains(coords ...int) bool {
	_, ok := b.offset(coords)
	return ok
}

func (b *Buffer) offset(coords []int) (int, bool) {
	if len(coords) != len(b.dims) {
		return 0, false
	}
	off := 0
	for i, c := range coords {
		d := b.dims[i]
		rel := c - d.Min
		if rel < 0 || rel >= d.Extent {
			return 0, false
		}
		off += rel * d.Stride
	}
	return off, true
}

// Int returns the element at coords as an integer. Floats are truncated.
// Coordinates outside the buffer read as zero.
func (b *Buffer) Int(coords ...int) int64 {
	off, ok := b.offset(coords)
	if !ok {
		return 0
	}
	if b.typ.IsFloat() {
		return Int64.fromFloat(b.data.getFloat(off))
	}
	return b.data.getInt(off)
}

// Float returns the element at coords as a float64. Coordinates outside
// the buffer read as zero.
func (b *Buffer) Float(coords ...int) float64 {
	off, ok := b.offset(coords)
	if !ok {
		return 0
	}
	if b.typ.IsFloat() {
		return b.data.getFloat(off)
	}
	return b.typ.intToFloat(b.data.getInt(off))
}

// SetInt stores v at coords, wrapping it to the element type. Writes
// outside the buffer are ignored.
func (b *Buffer) SetInt(v int64, coords ...int) {
	off, ok := b.offset(coords)
	if !ok {
		return
	}
	if b.typ.IsFloat() {
		b.data.setFloat(off, float64(v))
		return
	}
	b.data.setInt(off, b.typ.wrap(v))
}

// SetFloat stores v at coords, truncating it for integer element types.
// Writes outside the buffer are ignored.
func (b *Buffer) SetFloat(v float64, coords ...int) {
	off, ok := b.offset(coords)
	if !ok {
		return
	}
	if b.typ.IsFloat() {
		b.data.setFloat(off, v)
		return
	}
	b.data.setInt(off, b.typ.fromFloat(v))
}
