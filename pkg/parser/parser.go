// Package parser walks a detector tree and selects the sensors that feed
// layer building, resolving each to its global placement.
package parser

import (
	"errors"
	"fmt"
	"math"
	"path"

	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/detector"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrUnknownVolume is returned when the requested start volume does not exist.
var ErrUnknownVolume = errors.New("unknown volume")

// ParseRange restricts selection to sensors lying entirely inside
// [Min, Max] on Axis.
type ParseRange struct {
	Axis binning.Value `yaml:"axis"`
	Min  float64       `yaml:"min"`
	Max  float64       `yaml:"max"`
}

func (r ParseRange) contains(v v3.Vec) bool {
	c := binning.Cast(v, r.Axis)
	return c >= r.Min && c <= r.Max
}

// Options controls a selection walk.
type Options struct {
	// VolumeNames are glob patterns; once a volume matches, everything
	// below it is on branch. Empty means every volume matches.
	VolumeNames []string
	// TargetNames are glob patterns for sensor names. Empty matches all.
	TargetNames []string
	ParseRanges []ParseRange
	// Unit is mm per model unit; zero uses the graph's unit.
	Unit float64
}

// Selected is a sensor chosen by the walk.
type Selected struct {
	Node *detector.Node
	// Path names the volume and placement chain down to the sensor; it is
	// unique per placed sensor.
	Path string
	// Transform maps the sensor's local frame into the global frame, in mm.
	Transform sdf.M44
	// Sensor holds the sensor data scaled to mm.
	Sensor detector.SensorData
}

// walker carries the immutable walk state.
type walker struct {
	g    *detector.Graph
	opts Options
	unit float64
	out  []Selected
}

// Select walks from the volume named root, or from every graph root when
// root is empty, and returns the matching sensors in depth-first order.
// The graph is not modified.
func Select(g *detector.Graph, root string, opts Options) ([]Selected, error) {
	if g == nil {
		return nil, nil
	}
	if err := checkPatterns(opts.VolumeNames, opts.TargetNames); err != nil {
		return nil, err
	}

	w := &walker{g: g, opts: opts, unit: opts.Unit}
	if w.unit <= 0 {
		w.unit = g.Unit
	}
	if w.unit <= 0 {
		w.unit = 1
	}

	var starts []*detector.Node
	if root != "" {
		n := g.Lookup(root)
		if n == nil || n.Kind != detector.NodeVolume {
			return nil, fmt.Errorf("parser: %w %q", ErrUnknownVolume, root)
		}
		starts = append(starts, n)
	} else {
		for _, id := range g.Roots {
			if n := g.Get(id); n != nil {
				starts = append(starts, n)
			}
		}
	}

	for _, n := range starts {
		if err := w.walk(n, sdf.Identity3d(), false, n.Name, 0); err != nil {
			return nil, fmt.Errorf("parser: walking %q: %w", n.Name, err)
		}
	}
	return w.out, nil
}

func checkPatterns(lists ...[]string) error {
	for _, list := range lists {
		for _, p := range list {
			if _, err := path.Match(p, ""); err != nil {
				return fmt.Errorf("parser: pattern %q: %w", p, err)
			}
		}
	}
	return nil
}

// matchAny reports whether name matches any pattern; an empty list
// matches everything.
func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// walk recurses into n. depth guards against cycles in unvalidated graphs.
func (w *walker) walk(n *detector.Node, m sdf.M44, onBranch bool, where string, depth int) error {
	if depth > len(w.g.Nodes) {
		return fmt.Errorf("cycle through %s", n.ID.Short())
	}
	switch n.Kind {
	case detector.NodeVolume:
		if depth > 0 {
			where += "/" + n.Name
		}
		onBranch = onBranch || matchAny(w.opts.VolumeNames, n.Name)
		for i, child := range w.g.Children(n) {
			seg := child.Name
			if seg == "" {
				seg = fmt.Sprintf("%d", i)
			}
			if err := w.walk(child, m, onBranch, where+"/"+seg, depth+1); err != nil {
				return err
			}
		}
	case detector.NodePlacement:
		pd, ok := n.Data.(detector.PlacementData)
		if !ok {
			return fmt.Errorf("placement %s has unexpected data type %T", n.ID.Short(), n.Data)
		}
		m = m.Mul(PlacementMatrix(pd, w.unit))
		for _, child := range w.g.Children(n) {
			if err := w.walk(child, m, onBranch, where, depth+1); err != nil {
				return err
			}
		}
	case detector.NodeSensor:
		if !onBranch || !matchAny(w.opts.TargetNames, n.Name) {
			return nil
		}
		sd, ok := n.Data.(detector.SensorData)
		if !ok {
			return fmt.Errorf("sensor %s has unexpected data type %T", n.ID.Short(), n.Data)
		}
		sd = scaleSensor(sd, w.unit)
		if !w.inRanges(sd, m) {
			return nil
		}
		w.out = append(w.out, Selected{Node: n, Path: where + "/" + n.Name, Transform: m, Sensor: sd})
	default:
		return fmt.Errorf("unknown node kind: %v", n.Kind)
	}
	return nil
}

// inRanges checks all eight corners of the sensor's bounding box against
// every parse range.
func (w *walker) inRanges(sd detector.SensorData, m sdf.M44) bool {
	if len(w.opts.ParseRanges) == 0 {
		return true
	}
	h := sd.HalfExtents()
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				corner := m.MulPosition(v3.Vec{X: sx * h.X, Y: sy * h.Y, Z: sz * h.Z})
				for _, r := range w.opts.ParseRanges {
					if !r.contains(corner) {
						return false
					}
				}
			}
		}
	}
	return true
}

// PlacementMatrix converts a placement into a transform: rotation about x,
// then y, then z, followed by the translation scaled by unit.
func PlacementMatrix(pd detector.PlacementData, unit float64) sdf.M44 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	t := v3.Vec{X: pd.Translation.X, Y: pd.Translation.Y, Z: pd.Translation.Z}.MulScalar(unit)
	return sdf.Translate3d(t).
		Mul(sdf.RotateZ(rad(pd.Rotation.Z))).
		Mul(sdf.RotateY(rad(pd.Rotation.Y))).
		Mul(sdf.RotateX(rad(pd.Rotation.X)))
}

func scaleSensor(sd detector.SensorData, unit float64) detector.SensorData {
	if unit == 1 {
		return sd
	}
	sd.HalfX *= unit
	sd.HalfXMax *= unit
	sd.HalfY *= unit
	sd.HalfZ *= unit
	sd.Radius *= unit
	sd.HalfLength *= unit
	sd.Thickness *= unit
	return sd
}
