package kernel

import (
	"math"

	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/extent"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Polyhedron is a surface footprint: a vertex list and faces given as
// vertex index loops. Vertices are in the surface's local frame.
type Polyhedron struct {
	Vertices []v3.Vec
	Faces    [][]int
}

// VertexCount returns the number of vertices.
func (p Polyhedron) VertexCount() int {
	return len(p.Vertices)
}

// FaceCount returns the number of faces.
func (p Polyhedron) FaceCount() int {
	return len(p.Faces)
}

// IsEmpty returns true if the polyhedron has no geometry.
func (p Polyhedron) IsEmpty() bool {
	return len(p.Vertices) == 0
}

// Transform returns a copy with every vertex mapped through m.
func (p Polyhedron) Transform(m sdf.M44) Polyhedron {
	out := Polyhedron{
		Vertices: make([]v3.Vec, len(p.Vertices)),
		Faces:    p.Faces,
	}
	for i, v := range p.Vertices {
		out.Vertices[i] = m.MulPosition(v)
	}
	return out
}

// Extent measures the polyhedron placed by m. Vertices bound every axis;
// the radial lower bound is then refined with the closest approach of each
// face edge to the z axis, and a face enclosing the z axis opens the radial
// range down to 0 and phi to the full circle.
func (p Polyhedron) Extent(m sdf.M44) extent.Extent {
	placed := p.Transform(m)
	e := extent.New()
	for _, v := range placed.Vertices {
		e.ExtendPoint(v)
	}

	for _, face := range placed.Faces {
		if len(face) < 2 {
			continue
		}
		if len(face) > 2 && enclosesAxis(placed.Vertices, face) {
			e.ExtendAxis(binning.R, 0, 0)
			e.ExtendAxis(binning.Phi, -math.Pi, math.Pi)
			continue
		}
		for i := range face {
			a := placed.Vertices[face[i]]
			b := placed.Vertices[face[(i+1)%len(face)]]
			d := axisDistance(a, b)
			e.ExtendAxis(binning.R, d, d)
		}
	}
	return e
}

// axisDistance returns the closest transverse distance of segment ab to
// the z axis.
func axisDistance(a, b v3.Vec) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(a.X, a.Y)
	}
	t := -(a.X*dx + a.Y*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(a.X+t*dx, a.Y+t*dy)
}

// enclosesAxis reports whether the xy projection of the face loop contains
// the origin (crossing-number test).
func enclosesAxis(vs []v3.Vec, face []int) bool {
	inside := false
	n := len(face)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := vs[face[i]], vs[face[j]]
		if (a.Y > 0) != (b.Y > 0) {
			x := a.X + (0-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if x > 0 {
				inside = !inside
			}
		}
	}
	return inside
}
