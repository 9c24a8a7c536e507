// Package extent accumulates per-axis intervals over points and other
// extents, with an optional padding envelope applied when read.
package extent

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/strata/pkg/binning"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Range is a closed interval. A range with Min > Max holds no values.
type Range struct {
	Min float64
	Max float64
}

// EmptyRange returns the [+Inf, -Inf] range that any extension overwrites.
func EmptyRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Empty reports whether the range has never been extended.
func (r Range) Empty() bool {
	return r.Min > r.Max
}

// Include grows the range to contain v.
func (r Range) Include(v float64) Range {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// Union grows the range to contain o. Empty operands contribute nothing.
func (r Range) Union(o Range) Range {
	if o.Empty() {
		return r
	}
	return r.Include(o.Min).Include(o.Max)
}

// Envelope holds a (low, high) padding pair for every binning axis.
type Envelope [binning.NumValues][2]float64

// Set assigns the padding pair for one axis.
func (e *Envelope) Set(b binning.Value, low, high float64) {
	e[b] = [2]float64{low, high}
}

// Extent is a per-axis interval accumulator. It is a value type; copies do
// not share state.
type Extent struct {
	ranges [binning.NumValues]Range

	// Envelope pads PaddedMin/PaddedMax and the argument side of Intersects.
	Envelope Envelope
}

// New returns an extent with every axis empty.
func New() Extent {
	var e Extent
	for i := range e.ranges {
		e.ranges[i] = EmptyRange()
	}
	return e
}

// ExtendPoint grows every axis to include the coordinates of v.
func (e *Extent) ExtendPoint(v v3.Vec) {
	for i := range e.ranges {
		e.ranges[i] = e.ranges[i].Include(binning.Cast(v, binning.Value(i)))
	}
}

// ExtendAxis grows a single axis to include [min, max].
func (e *Extent) ExtendAxis(b binning.Value, min, max float64) {
	e.ranges[b] = e.ranges[b].Union(Range{Min: min, Max: max})
}

// SetRange overwrites the interval of a single axis.
func (e *Extent) SetRange(b binning.Value, r Range) {
	e.ranges[b] = r
}

// Extend grows e to the axis-wise union with o. Envelopes are not merged.
func (e *Extent) Extend(o Extent) {
	for i := range e.ranges {
		e.ranges[i] = e.ranges[i].Union(o.ranges[i])
	}
}

// Range returns the raw interval on one axis.
func (e Extent) Range(b binning.Value) Range {
	return e.ranges[b]
}

// Empty reports whether axis b has never been extended.
func (e Extent) Empty(b binning.Value) bool {
	return e.ranges[b].Empty()
}

// Min returns the unpadded lower bound on axis b.
func (e Extent) Min(b binning.Value) float64 { return e.ranges[b].Min }

// Max returns the unpadded upper bound on axis b.
func (e Extent) Max(b binning.Value) float64 { return e.ranges[b].Max }

// Medium returns the unpadded midpoint on axis b.
func (e Extent) Medium(b binning.Value) float64 {
	return 0.5 * (e.ranges[b].Min + e.ranges[b].Max)
}

// Span returns the unpadded width on axis b.
func (e Extent) Span(b binning.Value) float64 {
	return math.Abs(e.ranges[b].Max - e.ranges[b].Min)
}

// PaddedMin returns Min(b) lowered by the envelope's low component.
func (e Extent) PaddedMin(b binning.Value) float64 {
	return e.ranges[b].Min - e.Envelope[b][0]
}

// PaddedMax returns Max(b) raised by the envelope's high component.
func (e Extent) PaddedMax(b binning.Value) float64 {
	return e.ranges[b].Max + e.Envelope[b][1]
}

// Intersects reports whether the intervals of e and o on axis b overlap.
// The receiver's raw interval and o's envelope-padded interval are both
// widened by tolerance; touching intervals overlap.
func (e Extent) Intersects(o Extent, b binning.Value, tolerance float64) bool {
	if e.Empty(b) || o.Empty(b) {
		return false
	}
	aMin := e.ranges[b].Min - tolerance
	aMax := e.ranges[b].Max + tolerance
	bMin := o.PaddedMin(b) - tolerance
	bMax := o.PaddedMax(b) + tolerance
	return bMin <= aMax && bMax >= aMin
}

// String lists the non-empty axes one per line.
func (e Extent) String() string {
	var sb strings.Builder
	for _, b := range binning.Values() {
		if e.Empty(b) {
			continue
		}
		fmt.Fprintf(&sb, "  %-4s : [%.4f, %.4f]\n", b, e.ranges[b].Min, e.ranges[b].Max)
	}
	return sb.String()
}
