// Package surface models the sensitive surfaces that proto-layers are
// built from. Surfaces are owned by the geometry source; everything else
// holds them by interface value and only reads them.
package surface

import (
	"math"

	"github.com/chazu/strata/pkg/extent"
	"github.com/chazu/strata/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Kind distinguishes ordinary planar sensors from straw (wire) sensors.
type Kind int

const (
	KindPlane Kind = iota // planar module
	KindStraw             // drift tube, measured by its centre radius
)

func (k Kind) String() string {
	switch k {
	case KindPlane:
		return "plane"
	case KindStraw:
		return "straw"
	default:
		return "unknown"
	}
}

// DetectorElement is the physical sensor behind a surface.
type DetectorElement struct {
	ID        string
	Thickness float64 // mm, along the surface normal
}

// Context is the geometry evaluation context. The zero value evaluates the
// nominal geometry.
type Context struct {
	// Alignment holds per-surface translations applied after the nominal
	// placement, keyed by surface name.
	Alignment map[string]v3.Vec
}

// Placement returns the nominal transform of the named surface corrected
// by its alignment shift, if any.
func (c Context) Placement(name string, nominal sdf.M44) sdf.M44 {
	if shift, ok := c.Alignment[name]; ok {
		return sdf.Translate3d(shift).Mul(nominal)
	}
	return nominal
}

// Surface is a placed sensitive surface.
type Surface interface {
	Name() string
	Kind() Kind
	// Transform maps the local frame into the global frame.
	Transform(ctx Context) sdf.M44
	Center(ctx Context) v3.Vec
	Normal(ctx Context) v3.Vec
	// Polyhedron is the footprint in the local frame.
	Polyhedron() kernel.Polyhedron
	// Element returns nil when the surface has no physical thickness.
	Element() *DetectorElement
}

// Footprint returns the global-frame extent of the surface footprint,
// without thickness.
func Footprint(ctx Context, s Surface) extent.Extent {
	return s.Polyhedron().Extent(s.Transform(ctx))
}

// base carries the state shared by the concrete surfaces.
type base struct {
	name      string
	transform sdf.M44
	element   *DetectorElement
	footprint kernel.Polyhedron
}

func (b *base) Name() string                  { return b.name }
func (b *base) Polyhedron() kernel.Polyhedron { return b.footprint }
func (b *base) Element() *DetectorElement     { return b.element }

func (b *base) Transform(ctx Context) sdf.M44 {
	return ctx.Placement(b.name, b.transform)
}

func (b *base) Center(ctx Context) v3.Vec {
	return b.Transform(ctx).MulPosition(v3.Vec{})
}

// localToGlobalDirection rotates a local direction without translating it.
func localToGlobalDirection(m sdf.M44, d v3.Vec) v3.Vec {
	return m.MulPosition(d).Sub(m.MulPosition(v3.Vec{})).Normalize()
}

// Plane is a planar module with rectangular or trapezoidal bounds. Its
// normal is the local z axis.
type Plane struct {
	base
}

// NewRectangle places a rectangular module.
func NewRectangle(name string, transform sdf.M44, halfX, halfY float64, element *DetectorElement) (*Plane, error) {
	p, err := kernel.Rectangle(halfX, halfY)
	if err != nil {
		return nil, err
	}
	return &Plane{base{name: name, transform: transform, element: element, footprint: p}}, nil
}

// NewTrapezoid places a trapezoidal module.
func NewTrapezoid(name string, transform sdf.M44, halfXMin, halfXMax, halfY float64, element *DetectorElement) (*Plane, error) {
	p, err := kernel.Trapezoid(halfXMin, halfXMax, halfY)
	if err != nil {
		return nil, err
	}
	return &Plane{base{name: name, transform: transform, element: element, footprint: p}}, nil
}

// Kind reports KindPlane.
func (p *Plane) Kind() Kind { return KindPlane }

// Normal returns the global direction of the local z axis.
func (p *Plane) Normal(ctx Context) v3.Vec {
	return localToGlobalDirection(p.Transform(ctx), v3.Vec{Z: 1})
}

// Straw is a drift tube along its local z axis.
type Straw struct {
	base
	radius     float64
	halfLength float64
}

// NewStraw places a straw of the given radius and half length.
func NewStraw(name string, transform sdf.M44, radius, halfLength float64, element *DetectorElement) (*Straw, error) {
	p, err := kernel.Tube(radius, halfLength, kernel.DefaultSegments)
	if err != nil {
		return nil, err
	}
	return &Straw{
		base:       base{name: name, transform: transform, element: element, footprint: p},
		radius:     radius,
		halfLength: halfLength,
	}, nil
}

// Kind reports KindStraw.
func (s *Straw) Kind() Kind { return KindStraw }

// Radius returns the tube radius.
func (s *Straw) Radius() float64 { return s.radius }

// HalfLength returns the half length of the wire.
func (s *Straw) HalfLength() float64 { return s.halfLength }

// Normal returns the transverse radial direction through the straw centre,
// falling back to the local x axis for a straw on the beam line.
func (s *Straw) Normal(ctx Context) v3.Vec {
	c := s.Center(ctx)
	r := math.Hypot(c.X, c.Y)
	if r == 0 {
		return localToGlobalDirection(s.Transform(ctx), v3.Vec{X: 1})
	}
	return v3.Vec{X: c.X / r, Y: c.Y / r}
}
