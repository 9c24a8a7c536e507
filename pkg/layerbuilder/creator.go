package layerbuilder

import (
	"fmt"

	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/protolayer"
	"github.com/chazu/strata/pkg/surface"
)

// LayerKind distinguishes barrel cylinders from end-cap discs.
type LayerKind int

const (
	Cylinder LayerKind = iota
	Disc
)

func (k LayerKind) String() string {
	if k == Cylinder {
		return "cylinder"
	}
	return "disc"
}

// Layer is a sized detector layer and the surfaces it carries. Lengths
// are in mm and include the configured envelope.
type Layer struct {
	Kind     LayerKind
	Volume   string
	Index    int
	Surfaces []surface.Surface
	// Bins0 and Bins1 are the requested bin counts; 0 leaves the choice
	// to the consumer.
	Bins0, Bins1 int
	R, Z         float64 // cylinder radius or disc position
	RMin, RMax   float64
	ZMin, ZMax   float64
	Thickness    float64
}

func (l Layer) String() string {
	switch l.Kind {
	case Cylinder:
		return fmt.Sprintf("%s %s#%d: %d surfaces, r = %.3f, z = [%.3f, %.3f], thickness %.3f, bins %dx%d",
			l.Kind, l.Volume, l.Index, len(l.Surfaces), l.R, l.ZMin, l.ZMax, l.Thickness, l.Bins0, l.Bins1)
	default:
		return fmt.Sprintf("%s %s#%d: %d surfaces, z = %.3f, r = [%.3f, %.3f], thickness %.3f, bins %dx%d",
			l.Kind, l.Volume, l.Index, len(l.Surfaces), l.Z, l.RMin, l.RMax, l.Thickness, l.Bins0, l.Bins1)
	}
}

// Request carries one proto-layer to a LayerCreator.
type Request struct {
	Volume     string
	Index      int
	Bins0      int
	Bins1      int
	ProtoLayer *protolayer.ProtoLayer
}

// LayerCreator sizes layers from measured proto-layers.
type LayerCreator interface {
	CylinderLayer(gctx surface.Context, req Request) (Layer, error)
	DiscLayer(gctx surface.Context, req Request) (Layer, error)
}

// DefaultCreator sizes layers directly from the padded proto-layer
// bounds.
type DefaultCreator struct{}

func base(kind LayerKind, req Request) Layer {
	pl := req.ProtoLayer
	return Layer{
		Kind:     kind,
		Volume:   req.Volume,
		Index:    req.Index,
		Surfaces: pl.Surfaces(),
		Bins0:    req.Bins0,
		Bins1:    req.Bins1,
		R:        pl.Medium(binning.R, true),
		Z:        pl.Medium(binning.Z, true),
		RMin:     pl.Min(binning.R, true),
		RMax:     pl.Max(binning.R, true),
		ZMin:     pl.Min(binning.Z, true),
		ZMax:     pl.Max(binning.Z, true),
	}
}

// CylinderLayer places a cylinder at the medium radius spanning the
// padded z range; its thickness is the padded radial range.
func (DefaultCreator) CylinderLayer(_ surface.Context, req Request) (Layer, error) {
	if req.ProtoLayer == nil {
		return Layer{}, fmt.Errorf("cylinder layer %s#%d: %w", req.Volume, req.Index, protolayer.ErrNilSurface)
	}
	l := base(Cylinder, req)
	l.Thickness = req.ProtoLayer.Range(binning.R, true)
	return l, nil
}

// DiscLayer places a disc at the medium z spanning the padded radial
// range; its thickness is the padded z range.
func (DefaultCreator) DiscLayer(_ surface.Context, req Request) (Layer, error) {
	if req.ProtoLayer == nil {
		return Layer{}, fmt.Errorf("disc layer %s#%d: %w", req.Volume, req.Index, protolayer.ErrNilSurface)
	}
	l := base(Disc, req)
	l.Thickness = req.ProtoLayer.Range(binning.Z, true)
	return l, nil
}
