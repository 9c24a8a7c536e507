// Package binning enumerates the coordinates along which surfaces are
// measured, sorted and binned.
package binning

import (
	"errors"
	"fmt"
	"math"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"gopkg.in/yaml.v3"
)

// Value identifies a binning axis. The integer values are stable and index
// every per-axis array in the module.
type Value int

const (
	X    Value = iota // global x
	Y                 // global y
	Z                 // longitudinal position
	R                 // transverse radius, hypot(x, y)
	Phi               // azimuth, atan2(y, x)
	RPhi              // r * phi
	H                 // polar angle
	Eta               // pseudorapidity
	Mag               // distance from the origin
)

// NumValues is the number of binning axes.
const NumValues = 9

// ErrUnknownValue is returned when a name does not denote a binning axis.
var ErrUnknownValue = errors.New("unknown binning value")

var names = [NumValues]string{"x", "y", "z", "r", "phi", "rphi", "h", "eta", "mag"}

func (b Value) String() string {
	if b < 0 || int(b) >= NumValues {
		return fmt.Sprintf("Value(%d)", int(b))
	}
	return names[b]
}

// Valid reports whether b is one of the defined axes.
func (b Value) Valid() bool {
	return b >= 0 && int(b) < NumValues
}

// Values returns every axis in index order.
func Values() []Value {
	vs := make([]Value, NumValues)
	for i := range vs {
		vs[i] = Value(i)
	}
	return vs
}

// Parse converts a name such as "r", "binR" or "PHI" to a Value.
func Parse(s string) (Value, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "bin")
	for i, n := range names {
		if n == name {
			return Value(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownValue, s)
}

// UnmarshalYAML decodes an axis name.
func (b *Value) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("binning value: %w", err)
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalYAML encodes the axis by name.
func (b Value) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// Cast evaluates the coordinate b of point v.
func Cast(v v3.Vec, b Value) float64 {
	switch b {
	case X:
		return v.X
	case Y:
		return v.Y
	case Z:
		return v.Z
	case R:
		return math.Hypot(v.X, v.Y)
	case Phi:
		return math.Atan2(v.Y, v.X)
	case RPhi:
		return math.Hypot(v.X, v.Y) * math.Atan2(v.Y, v.X)
	case H:
		return math.Atan2(math.Hypot(v.X, v.Y), v.Z)
	case Eta:
		theta := math.Atan2(math.Hypot(v.X, v.Y), v.Z)
		return -math.Log(math.Tan(theta / 2))
	case Mag:
		return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	}
	panic(fmt.Sprintf("binning: cast to invalid value %d", int(b)))
}
