package dashboard

import "gonum.org/v1/gonum/floats"

// DefaultBufferCapacity is the number of samples a chart keeps.
const DefaultBufferCapacity = 50

// RollingBuffer is a fixed-capacity FIFO window of chart values.
// It is not safe for concurrent use; the Processor serialises access.
type RollingBuffer struct {
	values   []float64
	capacity int
}

// NewRollingBuffer returns an empty buffer holding at most capacity values.
// A non-positive capacity falls back to DefaultBufferCapacity.
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &RollingBuffer{
		values:   make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest value once the buffer is full.
func (b *RollingBuffer) Push(v float64) {
	if len(b.values) == b.capacity {
		copy(b.values, b.values[1:])
		b.values = b.values[:len(b.values)-1]
	}
	b.values = append(b.values, v)
}

// Len returns the number of buffered values.
func (b *RollingBuffer) Len() int { return len(b.values) }

// Cap returns the buffer capacity.
func (b *RollingBuffer) Cap() int { return b.capacity }

// Values returns a copy of the buffered values, oldest first.
func (b *RollingBuffer) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// Extent returns the minimum and maximum buffered value. ok is false when
// fewer than two values exist, in which case no line can be drawn.
func (b *RollingBuffer) Extent() (lo, hi float64, ok bool) {
	return extent(b.values)
}

func extent(values []float64) (lo, hi float64, ok bool) {
	if len(values) < 2 {
		return 0, 0, false
	}
	return floats.Min(values), floats.Max(values), true
}

// Normalized maps each value into [0, 1] relative to the buffer's own
// extent. A flat buffer maps to 0. Nil when Extent is not ok.
func (b *RollingBuffer) Normalized() []float64 {
	return Normalize(b.values)
}

// Normalize is Normalized for an arbitrary slice such as a frame's chart copy.
func Normalize(values []float64) []float64 {
	lo, hi, ok := extent(values)
	if !ok {
		return nil
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// Point is one vertex of a sparkline in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sparkline lays values out on a w×h canvas: 4 units of horizontal padding,
// the baseline 6 units above the bottom and 8 units of headroom at the top.
func Sparkline(values []float64, w, h float64) []Point {
	norm := Normalize(values)
	if norm == nil {
		return nil
	}
	pts := make([]Point, len(norm))
	last := float64(len(norm) - 1)
	for i, n := range norm {
		pts[i] = Point{
			X: float64(i)/last*(w-8) + 4,
			Y: h - 6 - n*(h-14),
		}
	}
	return pts
}
