package detector

import "fmt"

// Vec3 is a plain 3-vector in mm or degrees.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ---------------------------------------------------------------------------
// Volume
// ---------------------------------------------------------------------------

// VolumeData is the payload of a named container.
type VolumeData struct {
	Description string `json:"description,omitempty"`
}

func (VolumeData) nodeData() {}

// ---------------------------------------------------------------------------
// Placement
// ---------------------------------------------------------------------------

// PlacementData positions its single child inside the parent volume.
// Rotation holds Euler angles in degrees, applied about x, then y, then z.
type PlacementData struct {
	Translation Vec3 `json:"translation"`
	Rotation    Vec3 `json:"rotation"`
}

func (PlacementData) nodeData() {}

// ---------------------------------------------------------------------------
// Sensor
// ---------------------------------------------------------------------------

// Shape distinguishes sensor outlines.
type Shape int

const (
	ShapeBox       Shape = iota // rectangular module
	ShapeTrapezoid              // trapezoidal module, wider at +y
	ShapeTube                   // straw along local z
)

func (s Shape) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeTrapezoid:
		return "trapezoid"
	case ShapeTube:
		return "tube"
	default:
		return "unknown"
	}
}

// ParseShape maps a shape name to a Shape.
func ParseShape(name string) (Shape, error) {
	switch name {
	case "box":
		return ShapeBox, nil
	case "trapezoid", "trap":
		return ShapeTrapezoid, nil
	case "tube", "straw":
		return ShapeTube, nil
	}
	return 0, fmt.Errorf("invalid shape %q, expected box, trapezoid or tube", name)
}

// SensorData describes a sensitive element in its local frame. Planar
// shapes span x and y with the normal along z; tubes run along z.
type SensorData struct {
	Shape      Shape   `json:"shape"`
	HalfX      float64 `json:"half_x,omitempty"`     // box, trapezoid at -y
	HalfXMax   float64 `json:"half_x_max,omitempty"` // trapezoid at +y
	HalfY      float64 `json:"half_y,omitempty"`
	HalfZ      float64 `json:"half_z,omitempty"` // half of the sensitive depth
	Radius     float64 `json:"radius,omitempty"`
	HalfLength float64 `json:"half_length,omitempty"`
	Thickness  float64 `json:"thickness,omitempty"` // 0 = use 2*HalfZ
}

func (SensorData) nodeData() {}

// EffectiveThickness returns the material thickness along the normal.
func (d SensorData) EffectiveThickness() float64 {
	if d.Thickness > 0 {
		return d.Thickness
	}
	return 2 * d.HalfZ
}

// HalfExtents returns the half sizes of the local bounding box.
func (d SensorData) HalfExtents() Vec3 {
	switch d.Shape {
	case ShapeTube:
		return Vec3{d.Radius, d.Radius, d.HalfLength}
	case ShapeTrapezoid:
		return Vec3{max(d.HalfX, d.HalfXMax), d.HalfY, d.HalfZ}
	default:
		return Vec3{d.HalfX, d.HalfY, d.HalfZ}
	}
}
