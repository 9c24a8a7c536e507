// Package kernel builds the polyhedral footprints of sensitive surfaces.
// Footprints are described in the surface's local frame with sdfx vectors
// and placed into the global frame with sdfx transforms; their extents are
// what proto-layers accumulate and clustering compares.
package kernel

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultSegments is the number of facets used to approximate a tube.
const DefaultSegments = 16

// ErrInvalidDimensions is returned by the builders for non-positive sizes.
var ErrInvalidDimensions = errors.New("invalid dimensions")

// Rectangle returns a planar rectangle centred on the origin in the local
// xy plane.
func Rectangle(halfX, halfY float64) (Polyhedron, error) {
	if halfX <= 0 || halfY <= 0 {
		return Polyhedron{}, fmt.Errorf("rectangle: %w: half-x %.4f, half-y %.4f", ErrInvalidDimensions, halfX, halfY)
	}
	return Polyhedron{
		Vertices: []v3.Vec{
			{X: -halfX, Y: -halfY},
			{X: halfX, Y: -halfY},
			{X: halfX, Y: halfY},
			{X: -halfX, Y: halfY},
		},
		Faces: [][]int{{0, 1, 2, 3}},
	}, nil
}

// Trapezoid returns a planar trapezoid in the local xy plane with half
// widths halfXMin at -halfY and halfXMax at +halfY.
func Trapezoid(halfXMin, halfXMax, halfY float64) (Polyhedron, error) {
	if halfXMin <= 0 || halfXMax <= 0 || halfY <= 0 {
		return Polyhedron{}, fmt.Errorf("trapezoid: %w: half-x %.4f/%.4f, half-y %.4f",
			ErrInvalidDimensions, halfXMin, halfXMax, halfY)
	}
	return Polyhedron{
		Vertices: []v3.Vec{
			{X: -halfXMin, Y: -halfY},
			{X: halfXMin, Y: -halfY},
			{X: halfXMax, Y: halfY},
			{X: -halfXMax, Y: halfY},
		},
		Faces: [][]int{{0, 1, 2, 3}},
	}, nil
}

// Tube returns an open faceted tube of the given radius along the local z
// axis. Fewer than three segments falls back to DefaultSegments.
func Tube(radius, halfLength float64, segments int) (Polyhedron, error) {
	if radius <= 0 || halfLength <= 0 {
		return Polyhedron{}, fmt.Errorf("tube: %w: radius %.4f, half-length %.4f",
			ErrInvalidDimensions, radius, halfLength)
	}
	if segments < 3 {
		segments = DefaultSegments
	}

	p := Polyhedron{
		Vertices: make([]v3.Vec, 0, 2*segments),
		Faces:    make([][]int, 0, segments),
	}
	for _, z := range []float64{-halfLength, halfLength} {
		for i := 0; i < segments; i++ {
			phi := 2 * math.Pi * float64(i) / float64(segments)
			p.Vertices = append(p.Vertices, v3.Vec{
				X: radius * math.Cos(phi),
				Y: radius * math.Sin(phi),
				Z: z,
			})
		}
	}
	for i := 0; i < segments; i++ {
		next := (i + 1) % segments
		p.Faces = append(p.Faces, []int{i, next, segments + next, segments + i})
	}
	return p, nil
}
