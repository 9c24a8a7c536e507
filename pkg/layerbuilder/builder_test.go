package layerbuilder_test

import (
	"strings"
	"testing"

	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/detector"
	"github.com/chazu/strata/pkg/engine"
	"github.com/chazu/strata/pkg/layerbuilder"
	"github.com/chazu/strata/pkg/parser"
	"github.com/chazu/strata/pkg/protolayer"
	"github.com/chazu/strata/pkg/surface"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tracker = `
(sensor "Pixel" :half-x 8 :half-y 20 :half-z 0.15)
(straw "Tube" :radius 2 :half-length 400)
(volume "PixelLayer0" (ring (part "Pixel") :count 8 :radius 32))
(volume "PixelLayer1" (ring (part "Pixel") :count 16 :radius 72))
(volume "Pixels" (place (part "PixelLayer0")) (place (part "PixelLayer1")))
(volume "Endcap"
  (ring (part "Pixel") :count 8 :radius 50 :z 500)
  (ring (part "Pixel") :count 8 :radius 50 :z 600))
(volume "Straws" (ring (part "Tube") :count 12 :radius 560))
(volume "World"
  (place (part "Pixels"))
  (place (part "Endcap"))
  (place (part "Straws")))
`

func evaluate(t *testing.T) *detector.Graph {
	t.Helper()
	g, evalErrs, err := engine.NewEngine().Evaluate(tracker)
	require.NoError(t, err)
	require.Empty(t, evalErrs)
	return g
}

func builder(t *testing.T, cfg *layerbuilder.Config) *layerbuilder.Builder {
	t.Helper()
	b := layerbuilder.New(cfg)
	b.Logf = t.Logf
	b.Helper = &protolayer.Helper{Logf: t.Logf}
	return b
}

func pixelBarrel(strategy layerbuilder.Strategy) layerbuilder.LayerConfig {
	return layerbuilder.LayerConfig{
		Volume:       "Pixels",
		Sensors:      []string{"Pixel"},
		Envelope:     [2]float64{2, 5},
		ParseRanges:  []parser.ParseRange{{Axis: binning.R, Min: 0, Max: 200}},
		SplitConfigs: []protolayer.SortingConfig{{Axis: binning.R, Tolerance: 20}},
		Strategy:     strategy,
	}
}

func TestCentralLayersPitch(t *testing.T) {
	g := evaluate(t)
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{
		Central: []layerbuilder.LayerConfig{pixelBarrel("")},
	}}
	layers, err := builder(t, cfg).CentralLayers(surface.Context{}, g)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	inner, outer := layers[0], layers[1]
	assert.Equal(t, layerbuilder.Cylinder, inner.Kind)
	assert.Len(t, inner.Surfaces, 8)
	assert.Len(t, outer.Surfaces, 16)
	assert.Equal(t, 0, inner.Index)
	assert.Equal(t, 1, outer.Index)
	assert.Equal(t, "Pixels", inner.Volume)

	// modules span z in [-8, 8], padded by 5
	assert.InDelta(t, -13, inner.ZMin, 1e-9)
	assert.InDelta(t, 13, inner.ZMax, 1e-9)
	// the innermost module edge sits at 32 - 0.15, padded by 2 in r only
	assert.InDelta(t, 29.85, inner.RMin, 1e-9)
	assert.Greater(t, inner.R, 30.0)
	assert.Less(t, inner.R, 40.0)
	assert.Greater(t, outer.R, 70.0)
	assert.InDelta(t, inner.RMax-inner.RMin, inner.Thickness, 1e-9)
	assert.Contains(t, inner.String(), "cylinder Pixels#0: 8 surfaces")
}

func TestCentralLayersStrategiesAgree(t *testing.T) {
	g := evaluate(t)
	for _, strategy := range []layerbuilder.Strategy{layerbuilder.StrategyCluster, layerbuilder.StrategyMulti} {
		t.Run(string(strategy), func(t *testing.T) {
			lc := pixelBarrel(strategy)
			lc.SplitConfigs[0].Tolerance = 1
			cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{lc}}}
			layers, err := builder(t, cfg).Layers(surface.Context{}, g, layerbuilder.Central)
			require.NoError(t, err)
			require.Len(t, layers, 2)
			assert.Len(t, layers[0].Surfaces, 8)
			assert.Len(t, layers[1].Surfaces, 16)
		})
	}
}

func TestLayersRejectInvalidConfig(t *testing.T) {
	g := evaluate(t)
	lc := pixelBarrel("")
	lc.SplitConfigs = append(lc.SplitConfigs, protolayer.SortingConfig{Axis: binning.Z, Tolerance: 5})
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{lc}}}

	_, err := builder(t, cfg).CentralLayers(surface.Context{}, g)
	require.Error(t, err)
	assert.ErrorIs(t, err, layerbuilder.ErrConfig)
	assert.Contains(t, err.Error(), "splitConfigs has 2 entries but strategy pitch uses one")

	lc = pixelBarrel(layerbuilder.StrategyCluster)
	lc.SplitConfigs[0].Tolerance = 0
	cfg.Layers.Central = []layerbuilder.LayerConfig{lc}
	_, err = builder(t, cfg).CentralLayers(surface.Context{}, g)
	assert.ErrorIs(t, err, layerbuilder.ErrConfig)
}

func TestLayersWithoutSplitting(t *testing.T) {
	g := evaluate(t)
	lc := pixelBarrel("")
	lc.SplitConfigs = nil
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{lc}}}
	layers, err := builder(t, cfg).CentralLayers(surface.Context{}, g)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Len(t, layers[0].Surfaces, 24)
}

func TestDiscLayers(t *testing.T) {
	g := evaluate(t)
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{
		Positive: []layerbuilder.LayerConfig{{
			Volume:       "Endcap",
			Sensors:      []string{"Pixel"},
			Envelope:     [2]float64{3, 1},
			ParseRanges:  []parser.ParseRange{{Axis: binning.Z, Min: 400, Max: 700}},
			SplitConfigs: []protolayer.SortingConfig{{Axis: binning.Z, Tolerance: 50}},
			Binning0:     []int{8, 8},
			Binning1:     []int{1, 1},
		}},
	}}
	layers, err := builder(t, cfg).PositiveLayers(surface.Context{}, g)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	for i, want := range []float64{500, 600} {
		l := layers[i]
		assert.Equal(t, layerbuilder.Disc, l.Kind)
		assert.Len(t, l.Surfaces, 8)
		assert.InDelta(t, want, l.Z, 1e-9)
		assert.InDelta(t, 18, l.Thickness, 1e-9)
		assert.Equal(t, 8, l.Bins0)
		assert.Equal(t, 1, l.Bins1)
		assert.Contains(t, l.String(), "disc Endcap#")
	}
	assert.InDelta(t, layers[0].RMin, layers[1].RMin, 1e-9)

	// nothing configured on the negative side
	neg, err := builder(t, cfg).NegativeLayers(surface.Context{}, g)
	require.NoError(t, err)
	assert.Empty(t, neg)
}

func TestBinningMismatch(t *testing.T) {
	g := evaluate(t)
	tests := []struct {
		name     string
		binning0 []int
		binning1 []int
		want     string
	}{
		{"too few", []int{12}, nil, "number of configurations does not match 2 proto-layers"},
		{"too many", []int{12, 24, 36}, nil, "does not match"},
		{"mixed", []int{12, 0}, nil, "mixes manual and auto binning"},
		{"second direction", nil, []int{1}, "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := pixelBarrel("")
			lc.Binning0, lc.Binning1 = tt.binning0, tt.binning1
			cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{lc}}}
			_, err := builder(t, cfg).CentralLayers(surface.Context{}, g)
			require.Error(t, err)
			assert.ErrorIs(t, err, layerbuilder.ErrBinning)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAutoBinning(t *testing.T) {
	g := evaluate(t)
	lc := pixelBarrel("")
	lc.Binning0 = []int{0}
	lc.Binning1 = []int{4, 8}
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{lc}}}
	layers, err := builder(t, cfg).CentralLayers(surface.Context{}, g)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, 0, layers[0].Bins0)
	assert.Equal(t, 4, layers[0].Bins1)
	assert.Equal(t, 8, layers[1].Bins1)
}

func TestVolumePatternSearchesFromTop(t *testing.T) {
	g := evaluate(t)
	lc := pixelBarrel("")
	lc.Volume = "PixelLayer*"
	var logs []string
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{lc}}}
	b := builder(t, cfg)
	b.Logf = func(format string, v ...interface{}) {
		logs = append(logs, format)
	}
	layers, err := b.CentralLayers(surface.Context{}, g)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Contains(t, strings.Join(logs, "\n"), "not found, searching from the top volume")
}

func TestStrawLayer(t *testing.T) {
	g := evaluate(t)
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{
		Central: []layerbuilder.LayerConfig{{
			Volume:   "Straws",
			Sensors:  []string{"Tube"},
			Envelope: [2]float64{10, 10},
		}},
	}}
	layers, err := builder(t, cfg).CentralLayers(surface.Context{}, g)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	l := layers[0]
	assert.Len(t, l.Surfaces, 12)
	// straw layers report the exact centre radius without the envelope
	assert.InDelta(t, 560, l.R, 1e-9)
	assert.InDelta(t, 0, l.Thickness, 1e-9)
	assert.InDelta(t, -410, l.ZMin, 1e-9)
	for _, s := range l.Surfaces {
		assert.Equal(t, surface.KindStraw, s.Kind())
	}
}

func TestEmptyInputs(t *testing.T) {
	cfg := &layerbuilder.Config{Layers: layerbuilder.LayerSet{Central: []layerbuilder.LayerConfig{pixelBarrel("")}}}
	layers, err := builder(t, cfg).CentralLayers(surface.Context{}, nil)
	require.NoError(t, err)
	assert.Nil(t, layers)

	_, err = layerbuilder.New(nil).CentralLayers(surface.Context{}, evaluate(t))
	assert.ErrorIs(t, err, layerbuilder.ErrConfig)
}

func TestSurfaceFromSensor(t *testing.T) {
	m := sdf.Translate3d(v3.Vec{X: 40})
	tests := []struct {
		name   string
		sensor detector.SensorData
		kind   surface.Kind
	}{
		{"box", detector.SensorData{Shape: detector.ShapeBox, HalfX: 5, HalfY: 5, HalfZ: 0.2}, surface.KindPlane},
		{"trapezoid", detector.SensorData{Shape: detector.ShapeTrapezoid, HalfX: 4, HalfXMax: 6, HalfY: 5}, surface.KindPlane},
		{"tube", detector.SensorData{Shape: detector.ShapeTube, Radius: 2, HalfLength: 50, Thickness: 0.1}, surface.KindStraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := layerbuilder.SurfaceFromSensor(parser.Selected{Path: "W/" + tt.name, Transform: m, Sensor: tt.sensor})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, s.Kind())
			assert.Equal(t, "W/"+tt.name, s.Name())
			assert.Equal(t, "W/"+tt.name, s.Element().ID)
			assert.InDelta(t, tt.sensor.EffectiveThickness(), s.Element().Thickness, 1e-12)
			assert.InDelta(t, 40, s.Center(surface.Context{}).X, 1e-9)
		})
	}

	_, err := layerbuilder.SurfaceFromSensor(parser.Selected{Path: "bad", Transform: m,
		Sensor: detector.SensorData{Shape: detector.ShapeBox, HalfX: -1, HalfY: 1}})
	assert.Error(t, err)
}
