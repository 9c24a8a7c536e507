// Package layerbuilder turns selected detector sensors into layers: it
// reads a per-side YAML configuration, converts sensors to surfaces,
// clusters them into proto-layers and hands each one to a LayerCreator.
package layerbuilder

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/strata/internal/monitoring"
	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/detector"
	"github.com/chazu/strata/pkg/parser"
	"github.com/chazu/strata/pkg/protolayer"
	"github.com/chazu/strata/pkg/surface"
)

// ErrBinning is returned when bin counts do not fit the proto-layers found.
var ErrBinning = errors.New("incorrect binning configuration")

// Side selects the negative end-cap, the central barrel or the positive
// end-cap.
type Side int

const (
	Negative Side = -1
	Central  Side = 0
	Positive Side = 1
)

func (s Side) String() string {
	switch s {
	case Negative:
		return "negative"
	case Central:
		return "central"
	case Positive:
		return "positive"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide maps a side name to a Side.
func ParseSide(name string) (Side, error) {
	switch name {
	case "negative", "n", "-1":
		return Negative, nil
	case "central", "c", "0":
		return Central, nil
	case "positive", "p", "1":
		return Positive, nil
	}
	return 0, fmt.Errorf("unknown side %q", name)
}

// SurfaceFromSensor builds the surface for a selected sensor. The surface
// is named after the sensor's placement path.
func SurfaceFromSensor(sel parser.Selected) (surface.Surface, error) {
	sd := sel.Sensor
	el := &surface.DetectorElement{ID: sel.Path, Thickness: sd.EffectiveThickness()}
	switch sd.Shape {
	case detector.ShapeBox:
		return surface.NewRectangle(sel.Path, sel.Transform, sd.HalfX, sd.HalfY, el)
	case detector.ShapeTrapezoid:
		return surface.NewTrapezoid(sel.Path, sel.Transform, sd.HalfX, sd.HalfXMax, sd.HalfY, el)
	case detector.ShapeTube:
		return surface.NewStraw(sel.Path, sel.Transform, sd.Radius, sd.HalfLength, el)
	}
	return nil, fmt.Errorf("sensor %s: unsupported shape %s", sel.Path, sd.Shape)
}

// Builder builds layers from a detector graph. A Builder holds no state
// between calls.
type Builder struct {
	Config  *Config
	Helper  *protolayer.Helper
	Creator LayerCreator
	Logf    func(format string, v ...interface{})
}

// New returns a Builder with the default helper and creator.
func New(cfg *Config) *Builder {
	return &Builder{Config: cfg, Helper: protolayer.NewHelper(), Creator: DefaultCreator{}}
}

func (b *Builder) logf(format string, v ...interface{}) {
	if b.Logf != nil {
		b.Logf(format, v...)
		return
	}
	monitoring.Logf(format, v...)
}

// NegativeLayers builds the negative end-cap discs.
func (b *Builder) NegativeLayers(gctx surface.Context, g *detector.Graph) ([]Layer, error) {
	return b.Layers(gctx, g, Negative)
}

// CentralLayers builds the barrel cylinders.
func (b *Builder) CentralLayers(gctx surface.Context, g *detector.Graph) ([]Layer, error) {
	return b.Layers(gctx, g, Central)
}

// PositiveLayers builds the positive end-cap discs.
func (b *Builder) PositiveLayers(gctx surface.Context, g *detector.Graph) ([]Layer, error) {
	return b.Layers(gctx, g, Positive)
}

// Layers builds every layer configured for side, in configuration order.
func (b *Builder) Layers(gctx surface.Context, g *detector.Graph, side Side) ([]Layer, error) {
	if b.Config == nil {
		return nil, fmt.Errorf("%w: no configuration", ErrConfig)
	}
	if g == nil {
		b.logf("layerbuilder: no geometry found - bailing out")
		return nil, nil
	}
	helper := b.Helper
	if helper == nil {
		helper = protolayer.NewHelper()
	}
	creator := b.Creator
	if creator == nil {
		creator = DefaultCreator{}
	}

	configs := b.Config.Layers.For(side)
	b.logf("layerbuilder: %s layers: found %d configuration(s)", side, len(configs))

	var layers []Layer
	for _, lc := range configs {
		built, err := b.buildConfig(gctx, g, side, lc, helper, creator)
		if err != nil {
			return nil, fmt.Errorf("layerbuilder: %s volume %q: %w", side, lc.Volume, err)
		}
		layers = append(layers, built...)
	}
	return layers, nil
}

func (b *Builder) buildConfig(gctx surface.Context, g *detector.Graph, side Side, lc LayerConfig,
	helper *protolayer.Helper, creator LayerCreator) ([]Layer, error) {
	b.logf("layerbuilder: - layer configuration for %s with sensors %v", lc.Volume, lc.Sensors)
	if err := lc.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfig, err)
	}

	root := lc.Volume
	if n := g.Lookup(root); n == nil || n.Kind != detector.NodeVolume {
		b.logf("layerbuilder: - volume %q not found, searching from the top volume", root)
		root = ""
	}

	var minR, minZ float64
	for _, r := range lc.ParseRanges {
		b.logf("layerbuilder: - range %s within [%g, %g]", r.Axis, r.Min, r.Max)
		switch r.Axis {
		case binning.R:
			minR = r.Min
		case binning.Z:
			minZ = math.Min(math.Abs(r.Min), math.Abs(r.Max))
		}
	}

	selected, err := parser.Select(g, root, parser.Options{
		VolumeNames: []string{lc.Volume},
		TargetNames: lc.Sensors,
		ParseRanges: lc.ParseRanges,
		Unit:        b.Config.Unit,
	})
	if err != nil {
		return nil, err
	}
	b.logf("layerbuilder: - number of selected nodes found: %d", len(selected))

	surfaces := make([]surface.Surface, 0, len(selected))
	for _, sel := range selected {
		s, err := SurfaceFromSensor(sel)
		if err != nil {
			return nil, err
		}
		surfaces = append(surfaces, s)
	}
	if len(surfaces) == 0 {
		return nil, nil
	}

	var protoLayers []*protolayer.ProtoLayer
	if len(lc.SplitConfigs) > 0 {
		protoLayers, err = b.split(gctx, helper, side, lc, surfaces, minR, minZ)
		if err != nil {
			return nil, err
		}
		b.logf("layerbuilder: - splitting into %d layers", len(protoLayers))
		if err := checkBinningCounts(lc, len(protoLayers)); err != nil {
			return nil, err
		}
	} else {
		pl, err := protolayer.New(gctx, surfaces)
		if err != nil {
			return nil, err
		}
		protoLayers = []*protolayer.ProtoLayer{pl}
	}

	layers := make([]Layer, 0, len(protoLayers))
	for i, pl := range protoLayers {
		layer, err := b.fill(gctx, side, lc, pl, i, creator)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func (b *Builder) split(gctx surface.Context, helper *protolayer.Helper, side Side, lc LayerConfig,
	surfaces []surface.Surface, minR, minZ float64) ([]*protolayer.ProtoLayer, error) {
	switch lc.strategy() {
	case StrategyCluster:
		return helper.ProtoLayers(gctx, surfaces, lc.SplitConfigs[0])
	case StrategyMulti:
		return helper.ProtoLayersMulti(gctx, surfaces, lc.SplitConfigs)
	default:
		mode := protolayer.BinModeFromType(int(side))
		if mode == protolayer.BinRadial {
			minZ = 0
		} else {
			minR = 0
		}
		return helper.ProtoLayersBinned(gctx, surfaces, lc.SplitConfigs[0], mode, minR, minZ)
	}
}

func autoBinned(bins []int) bool {
	return len(bins) == 0 || (len(bins) == 1 && bins[0] <= 0)
}

// checkBinningCounts requires one bin count per proto-layer unless the
// direction is auto-binned.
func checkBinningCounts(lc LayerConfig, n int) error {
	if (!autoBinned(lc.Binning0) && len(lc.Binning0) != n) ||
		(!autoBinned(lc.Binning1) && len(lc.Binning1) != n) {
		return fmt.Errorf("%w: number of configurations does not match %d proto-layers in subvolume %s",
			ErrBinning, n, lc.Volume)
	}
	return nil
}

// binsFor returns the bin count of direction loc for layer index; 0 means
// automatic.
func binsFor(bins []int, index int, loc string) (int, error) {
	if autoBinned(bins) {
		return 0, nil
	}
	if index >= len(bins) {
		return 0, fmt.Errorf("%w: no %s bin count for proto-layer #%d", ErrBinning, loc, index)
	}
	if bins[index] <= 0 {
		return 0, fmt.Errorf("%w: %s proto-layer #%d mixes manual and auto binning", ErrBinning, loc, index)
	}
	return bins[index], nil
}

func (b *Builder) fill(gctx surface.Context, side Side, lc LayerConfig, pl *protolayer.ProtoLayer, index int,
	creator LayerCreator) (Layer, error) {
	nb0, err := binsFor(lc.Binning0, index, "loc0")
	if err != nil {
		return Layer{}, err
	}
	nb1, err := binsFor(lc.Binning1, index, "loc1")
	if err != nil {
		return Layer{}, err
	}

	// the radial envelope is symmetric in r; the z value only pads z
	pl.Envelope.Set(binning.R, lc.Envelope[0], lc.Envelope[0])
	pl.Envelope.Set(binning.Z, lc.Envelope[1], lc.Envelope[1])

	req := Request{Volume: lc.Volume, Index: index, Bins0: nb0, Bins1: nb1, ProtoLayer: pl}
	n := len(pl.Surfaces())
	if side == Central {
		b.logf("layerbuilder: - creating CylinderLayer with %d surfaces at r = %.4f", n, pl.Medium(binning.R, false))
		return creator.CylinderLayer(gctx, req)
	}
	b.logf("layerbuilder: - creating DiscLayer with %d surfaces at z = %.4f", n, pl.Medium(binning.Z, false))
	return creator.DiscLayer(gctx, req)
}
