package protolayer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chazu/strata/internal/monitoring"
	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/extent"
	"github.com/chazu/strata/pkg/surface"
	"github.com/samber/lo"
)

// ErrInvalidConfig is returned for unusable sorting configurations.
var ErrInvalidConfig = errors.New("invalid sorting configuration")

// SortingConfig describes one clustering pass: surfaces whose extents on
// Axis come within Tolerance of each other end up in the same group.
type SortingConfig struct {
	Axis      binning.Value `yaml:"axis"`
	Tolerance float64       `yaml:"tolerance"`
}

func (s SortingConfig) String() string {
	return fmt.Sprintf("%s/%.4f", s.Axis, s.Tolerance)
}

// maxBin bounds the bin index so that it converts to int exactly.
const maxBin = 1 << 53

// BinMode selects the coordinate used by fixed-pitch binning.
type BinMode int

const (
	BinRadial       BinMode = iota // centre radius from minR
	BinLongitudinal                // |centre z| from |minZ|
)

func (m BinMode) String() string {
	if m == BinRadial {
		return "radial"
	}
	return "longitudinal"
}

// BinModeFromType maps the layer type flag (0 central, otherwise end-cap)
// to a bin mode.
func BinModeFromType(t int) BinMode {
	if t == 0 {
		return BinRadial
	}
	return BinLongitudinal
}

// Helper partitions surface lists into proto-layers. It keeps no state
// between calls; a zero Helper logs through monitoring.Logf.
type Helper struct {
	Logf func(format string, v ...interface{})
}

// NewHelper returns a Helper using the package logger.
func NewHelper() *Helper {
	return &Helper{}
}

func (h *Helper) logf(format string, v ...interface{}) {
	if h != nil && h.Logf != nil {
		h.Logf(format, v...)
		return
	}
	monitoring.Logf(format, v...)
}

func validateTolerance(s SortingConfig) error {
	if !s.Axis.Valid() {
		return fmt.Errorf("%w: axis %d", ErrInvalidConfig, int(s.Axis))
	}
	if math.IsNaN(s.Tolerance) || math.IsInf(s.Tolerance, 0) || s.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance %v in %s must be finite and positive", ErrInvalidConfig, s.Tolerance, s.Axis)
	}
	return nil
}

// cluster is a group of surfaces and the union of their footprints.
type cluster struct {
	extent   extent.Extent
	surfaces []surface.Surface
}

// clusterSurfaces is the first-fit interval merge. A surface joins the
// earliest created cluster whose extent meets its tolerance-padded
// footprint, so the grouping depends on input order.
func clusterSurfaces(gctx surface.Context, surfaces []surface.Surface, sorting SortingConfig) ([]*cluster, error) {
	var clusters []*cluster
	for i, sf := range surfaces {
		if sf == nil {
			return nil, fmt.Errorf("protolayer: surface %d: %w", i, ErrNilSurface)
		}
		sfExtent := surface.Footprint(gctx, sf)
		sfExtent.Envelope.Set(sorting.Axis, sorting.Tolerance, sorting.Tolerance)

		target, found := lo.Find(clusters, func(c *cluster) bool {
			return c.extent.Intersects(sfExtent, sorting.Axis, 0)
		})
		if !found {
			target = &cluster{extent: extent.New()}
			clusters = append(clusters, target)
		}
		target.extent.Extend(sfExtent)
		target.surfaces = append(target.surfaces, sf)
	}
	return clusters, nil
}

func (h *Helper) build(gctx surface.Context, groups [][]surface.Surface) ([]*ProtoLayer, error) {
	layers := make([]*ProtoLayer, 0, len(groups))
	for _, g := range groups {
		h.logf("protolayer: creating ProtoLayer with %d surfaces", len(g))
		pl, err := New(gctx, g)
		if err != nil {
			return nil, err
		}
		layers = append(layers, pl)
	}
	return layers, nil
}

// ProtoLayers clusters surfaces along one axis and returns one proto-layer
// per cluster in creation order.
func (h *Helper) ProtoLayers(gctx surface.Context, surfaces []surface.Surface, sorting SortingConfig) ([]*ProtoLayer, error) {
	if err := validateTolerance(sorting); err != nil {
		return nil, err
	}
	clusters, err := clusterSurfaces(gctx, surfaces, sorting)
	if err != nil {
		return nil, err
	}
	groups := lo.Map(clusters, func(c *cluster, _ int) []surface.Surface { return c.surfaces })
	return h.build(gctx, groups)
}

// ProtoLayersMulti refines the surface set by each sorting config in turn,
// clustering every group of the previous round independently.
func (h *Helper) ProtoLayersMulti(gctx surface.Context, surfaces []surface.Surface, sortings []SortingConfig) ([]*ProtoLayer, error) {
	if len(sortings) == 0 {
		return nil, fmt.Errorf("%w: no sorting configs given", ErrInvalidConfig)
	}
	for _, s := range sortings {
		if err := validateTolerance(s); err != nil {
			return nil, err
		}
	}

	h.logf("protolayer: received %d surfaces at input", len(surfaces))
	groups := [][]surface.Surface{surfaces}
	if len(surfaces) == 0 {
		groups = nil
	}
	for _, sorting := range sortings {
		h.logf("protolayer: -> sorting %d group(s) in %s", len(groups), sorting.Axis)
		var next [][]surface.Surface
		for _, g := range groups {
			clusters, err := clusterSurfaces(gctx, g, sorting)
			if err != nil {
				return nil, err
			}
			h.logf("protolayer: -> %d surfaces resulted in %d cluster(s)", len(g), len(clusters))
			for _, c := range clusters {
				next = append(next, c.surfaces)
			}
		}
		groups = next
	}
	h.logf("protolayer: yielded %d group(s) at output", len(groups))
	return h.build(gctx, groups)
}

// ProtoLayersBinned sorts surfaces by centre radius (BinRadial) or |z|
// (BinLongitudinal) and groups them into bins of width sorting.Tolerance
// starting at minR or |minZ|. One proto-layer is returned per populated
// bin in ascending bin order; membership does not depend on input order.
func (h *Helper) ProtoLayersBinned(gctx surface.Context, surfaces []surface.Surface, sorting SortingConfig, mode BinMode, minR, minZ float64) ([]*ProtoLayer, error) {
	pitch := sorting.Tolerance
	if math.IsNaN(pitch) || math.IsInf(pitch, 0) || pitch <= 0 {
		return nil, fmt.Errorf("%w: pitch %v must be finite and positive", ErrInvalidConfig, pitch)
	}
	if math.IsNaN(minR) || math.IsInf(minR, 0) || math.IsNaN(minZ) || math.IsInf(minZ, 0) {
		return nil, fmt.Errorf("%w: origin (%v, %v) must be finite", ErrInvalidConfig, minR, minZ)
	}
	for i, sf := range surfaces {
		if sf == nil {
			return nil, fmt.Errorf("protolayer: surface %d: %w", i, ErrNilSurface)
		}
	}
	h.logf("protolayer: binning %d surfaces %s with pitch %.4f", len(surfaces), mode, pitch)

	coord := func(sf surface.Surface) float64 {
		c := sf.Center(gctx)
		if mode == BinRadial {
			return math.Hypot(c.X, c.Y)
		}
		return math.Abs(c.Z)
	}
	origin := minR
	if mode == BinLongitudinal {
		origin = math.Abs(minZ)
	}

	type keyed struct {
		sf  surface.Surface
		val float64
		bin int
	}
	sorted := make([]keyed, 0, len(surfaces))
	for _, sf := range surfaces {
		val := coord(sf)
		bin := math.Floor((val - origin) / pitch)
		if math.IsNaN(bin) || math.Abs(bin) > maxBin {
			return nil, fmt.Errorf("protolayer: surface %q: %w: %s coordinate %v is %v pitches from origin %v",
				sf.Name(), ErrDegenerateSurface, mode, val, bin, origin)
		}
		sorted = append(sorted, keyed{sf: sf, val: val, bin: int(bin)})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].val < sorted[j].val })

	bins := lo.GroupBy(sorted, func(k keyed) int { return k.bin })
	indices := lo.Keys(bins)
	sort.Ints(indices)

	groups := make([][]surface.Surface, 0, len(indices))
	for _, idx := range indices {
		groups = append(groups, lo.Map(bins[idx], func(k keyed, _ int) surface.Surface { return k.sf }))
	}
	h.logf("protolayer: yielded %d bin(s) at output", len(groups))
	return h.build(gctx, groups)
}
