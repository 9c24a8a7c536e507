// Package protolayer measures groups of surfaces into provisional layer
// regions and clusters surface collections into such groups.
//
// A ProtoLayer owns no geometry: it references the surfaces it was built
// from and keeps the extent accumulated over their footprints. Downstream
// layer construction reads Min, Max, Medium and Range to size a volume.
package protolayer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/extent"
	"github.com/chazu/strata/pkg/surface"
	"github.com/deadsy/sdfx/sdf"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNilSurface is returned when a surface list contains nil.
	ErrNilSurface = errors.New("nil surface")
	// ErrDegenerateSurface is returned for a surface without a footprint.
	ErrDegenerateSurface = errors.New("degenerate surface")
)

// radialMode selects how the radial axis of a proto-layer is answered.
type radialMode int

const (
	radialGeneric radialMode = iota // envelope-padded footprint extent
	radialStraw                     // exact bounds from surface centres
)

// ProtoLayer is the measured bounding region of a set of surfaces.
type ProtoLayer struct {
	// Envelope pads padded queries; it is never folded into the extent.
	Envelope extent.Envelope

	surfaces []surface.Surface
	measurement
}

// measurement is everything derived from the surface list.
type measurement struct {
	extent extent.Extent
	radial radialMode
	rMin   float64
	rMax   float64
}

// New measures surfaces into a proto-layer. The slice is copied.
func New(gctx surface.Context, surfaces []surface.Surface) (*ProtoLayer, error) {
	list := append([]surface.Surface(nil), surfaces...)
	m, err := measure(gctx, list)
	if err != nil {
		return nil, err
	}
	return &ProtoLayer{surfaces: list, measurement: m}, nil
}

// Add appends s and re-measures every surface. Adding the same surface
// twice counts it twice. On error the proto-layer is left unchanged.
func (p *ProtoLayer) Add(gctx surface.Context, s surface.Surface) error {
	list := append(p.surfaces[:len(p.surfaces):len(p.surfaces)], s)
	m, err := measure(gctx, list)
	if err != nil {
		return err
	}
	p.surfaces, p.measurement = list, m
	return nil
}

// measure derives the extent and radial bounds of surfaces from scratch.
// Thickness needs each surface's own transform, so there is no
// incremental path.
func measure(gctx surface.Context, surfaces []surface.Surface) (measurement, error) {
	ext := extent.New()
	var radii []float64

	mode := radialGeneric
	if len(surfaces) > 0 && surfaces[0] != nil && surfaces[0].Kind() == surface.KindStraw {
		mode = radialStraw
	}

	for i, sf := range surfaces {
		if sf == nil {
			return measurement{}, fmt.Errorf("protolayer: surface %d: %w", i, ErrNilSurface)
		}
		poly := sf.Polyhedron()
		if poly.IsEmpty() {
			return measurement{}, fmt.Errorf("protolayer: surface %q: %w: empty footprint", sf.Name(), ErrDegenerateSurface)
		}
		transform := sf.Transform(gctx)
		footprint := poly.Extent(transform)

		center := sf.Center(gctx)
		if int(center.Z) == 0 {
			radii = append(radii, math.Hypot(center.X, center.Y))
		} else {
			// off the z=0 plane the surface's own footprint spans the
			// radial bound
			radii = append(radii, footprint.Min(binning.R), footprint.Max(binning.R))
		}

		el := sf.Element()
		if el == nil || el.Thickness == 0 {
			ext.Extend(footprint)
			continue
		}
		normal := sf.Normal(gctx)
		for _, dt := range []float64{-0.5 * el.Thickness, 0.5 * el.Thickness} {
			shift := sdf.Translate3d(normal.MulScalar(dt))
			ext.Extend(poly.Extent(shift.Mul(transform)))
		}
	}

	m := measurement{extent: ext, radial: mode, rMin: math.Inf(1), rMax: math.Inf(-1)}
	if len(radii) > 0 {
		m.rMin = floats.Min(radii)
		m.rMax = floats.Max(radii)
	}
	return m, nil
}

func (p *ProtoLayer) strawRadial(b binning.Value) bool {
	return b == binning.R && len(p.surfaces) > 0 && p.radial == radialStraw
}

// Min returns the lower bound on axis b, lowered by the envelope when
// addEnv is set. Straw layers answer the radial axis exactly.
func (p *ProtoLayer) Min(b binning.Value, addEnv bool) float64 {
	if p.strawRadial(b) {
		return p.rMin
	}
	if addEnv {
		return p.extent.Min(b) - p.Envelope[b][0]
	}
	return p.extent.Min(b)
}

// Max returns the upper bound on axis b, raised by the envelope when
// addEnv is set. Straw layers answer the radial axis exactly.
func (p *ProtoLayer) Max(b binning.Value, addEnv bool) float64 {
	if p.strawRadial(b) {
		return p.rMax
	}
	if addEnv {
		return p.extent.Max(b) + p.Envelope[b][1]
	}
	return p.extent.Max(b)
}

// Medium returns the midpoint of Min and Max.
func (p *ProtoLayer) Medium(b binning.Value, addEnv bool) float64 {
	if p.strawRadial(b) {
		return 0.5 * (p.rMin + p.rMax)
	}
	return 0.5 * (p.Min(b, addEnv) + p.Max(b, addEnv))
}

// Range returns the absolute width between Min and Max.
func (p *ProtoLayer) Range(b binning.Value, addEnv bool) float64 {
	if p.strawRadial(b) {
		return math.Abs(p.rMin - p.rMax)
	}
	return math.Abs(p.Max(b, addEnv) - p.Min(b, addEnv))
}

// Surfaces returns the member surfaces in insertion order.
func (p *ProtoLayer) Surfaces() []surface.Surface {
	return p.surfaces
}

// Extent returns a copy of the accumulated, unpadded extent.
func (p *ProtoLayer) Extent() extent.Extent {
	return p.extent
}

// RadialBounds returns the radial bounds taken from surface centres; ok is
// false for an empty layer. Only straw layers answer radial queries with
// them.
func (p *ProtoLayer) RadialBounds() (min, max float64, ok bool) {
	if p.rMin > p.rMax {
		return 0, 0, false
	}
	return p.rMin, p.rMax, true
}

func (p *ProtoLayer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ProtoLayer with %d surfaces, dimensions (min/max)\n", len(p.surfaces))
	sb.WriteString(p.extent.String())
	if min, max, ok := p.RadialBounds(); ok && p.radial == radialStraw {
		fmt.Fprintf(&sb, "  straw r : [%.4f, %.4f]\n", min, max)
	}
	return sb.String()
}
