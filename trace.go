package pixfunc

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// TraceEvent describes one value produced by a stage's loop nest.
//
// Points recomputed by the shifted tail of a split are reported with
// Recompute set; they carry the same value as the first visit and are not
// stored again.
type TraceEvent struct {
	Func   string
	Coords []int
	Type   Type

	// Int holds integer and Bool values, Float holds float values.
	Int   int64
	Float float64

	Recompute bool
}

// Value formats the event's value.
func (e TraceEvent) Value() string {
	if e.Type.IsFloat() {
		return strconv.FormatFloat(e.Float, 'g', -1, int(e.Type.Bits))
	}
	return formatInt(e.Type, e.Int)
}

// String formats the event as "Store name(x, y) = value".
func (e TraceEvent) String() string {
	coords := make([]string, len(e.Coords))
	for i, c := range e.Coords {
		coords[i] = strconv.Itoa(c)
	}
	s := fmt.Sprintf("Store %s(%s) = %s", e.Func, strings.Join(coords, ", "), e.Value())
	if e.Recompute {
		s += " (recompute)"
	}
	return s
}

// lockedWriter serializes whole lines written from concurrent loop bodies.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLockedWriter(w io.Writer) *lockedWriter {
	if w == nil {
		return nil
	}
	return &lockedWriter{w: w}
}

func (l *lockedWriter) writeLine(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, s+"\n")
}

func (l *lockedWriter) writeString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, s)
}
