package protolayer

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/chazu/strata/pkg/binning"
	"github.com/chazu/strata/pkg/surface"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHelper(t *testing.T) *Helper {
	return &Helper{Logf: t.Logf}
}

// names returns the surface names of every proto-layer, in layer order.
func names(layers []*ProtoLayer) [][]string {
	out := make([][]string, 0, len(layers))
	for _, pl := range layers {
		var ns []string
		for _, s := range pl.Surfaces() {
			ns = append(ns, s.Name())
		}
		out = append(out, ns)
	}
	return out
}

// sortedNames is names with each group sorted, for order-free comparison.
func sortedNames(layers []*ProtoLayer) [][]string {
	out := names(layers)
	for _, g := range out {
		sort.Strings(g)
	}
	return out
}

// radialModule is a module whose centre sits at radius r on the y axis.
func radialModule(t *testing.T, name string, r, z float64) surface.Surface {
	t.Helper()
	m := sdf.Translate3d(v3.Vec{Y: r, Z: z}).Mul(sdf.RotateX(math.Pi / 2))
	s, err := surface.NewRectangle(name, m, 1, 1, nil)
	require.NoError(t, err)
	return s
}

// ---------------------------------------------------------------------------
// Strategy A
// ---------------------------------------------------------------------------

func TestProtoLayersToleranceMerge(t *testing.T) {
	tests := []struct {
		name      string
		tolerance float64
		want      [][]string
	}{
		{"gap bridged", 0.6, [][]string{{"a", "b"}}},
		{"gap kept", 0.4, [][]string{{"a"}, {"b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surfaces := []surface.Surface{
				zModule(t, "a", 0, 10),
				zModule(t, "b", 10.5, 20),
			}
			layers, err := testHelper(t).ProtoLayers(surface.Context{}, surfaces, SortingConfig{Axis: binning.Z, Tolerance: tt.tolerance})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, names(layers)); diff != "" {
				t.Errorf("groups mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProtoLayersSmallToleranceMergesTouching(t *testing.T) {
	surfaces := []surface.Surface{
		zModule(t, "a", 0, 10),
		zModule(t, "b", 10, 20),
		zModule(t, "c", 25, 30),
	}
	layers, err := testHelper(t).ProtoLayers(surface.Context{}, surfaces, SortingConfig{Axis: binning.Z, Tolerance: 1e-6})
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, names(layers))
}

func TestProtoLayersOrderSensitive(t *testing.T) {
	a := zModule(t, "a", 0, 10)
	b := zModule(t, "b", 20, 30)
	bridge := zModule(t, "bridge", 9, 21)
	sorting := SortingConfig{Axis: binning.Z, Tolerance: 0.1}

	// the bridge joins the earliest cluster it touches; a and b stay apart
	layers, err := testHelper(t).ProtoLayers(surface.Context{}, []surface.Surface{a, b, bridge}, sorting)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "bridge"}, {"b"}}, names(layers))

	// seen first, the bridge pulls b into the same cluster
	layers, err = testHelper(t).ProtoLayers(surface.Context{}, []surface.Surface{a, bridge, b}, sorting)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "bridge", "b"}}, names(layers))
}

func TestProtoLayersIdempotent(t *testing.T) {
	surfaces := []surface.Surface{
		zModule(t, "a", 0, 10),
		zModule(t, "b", 30, 40),
		zModule(t, "c", 9, 12),
	}
	sorting := SortingConfig{Axis: binning.Z, Tolerance: 1}
	h := testHelper(t)

	first, err := h.ProtoLayers(surface.Context{}, surfaces, sorting)
	require.NoError(t, err)
	second, err := h.ProtoLayers(surface.Context{}, surfaces, sorting)
	require.NoError(t, err)
	assert.Equal(t, names(first), names(second))
	for i := range first {
		assert.Equal(t, first[i].Extent(), second[i].Extent())
	}
}

func TestProtoLayersEmptyInput(t *testing.T) {
	layers, err := testHelper(t).ProtoLayers(surface.Context{}, nil, SortingConfig{Axis: binning.R, Tolerance: 1})
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestProtoLayersRadialBarrel(t *testing.T) {
	var surfaces []surface.Surface
	for i, r := range []float64{32, 72, 33, 116, 71, 117} {
		surfaces = append(surfaces, barrelModule(t, string(rune('a'+i)), r, 0, nil))
	}
	layers, err := testHelper(t).ProtoLayers(surface.Context{}, surfaces, SortingConfig{Axis: binning.R, Tolerance: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "c"}, {"b", "e"}, {"d", "f"}}, names(layers))
	assert.InDelta(t, 32, layers[0].Min(binning.R, false), 1e-9)
	assert.InDelta(t, 117, layers[2].Max(binning.X, false), 1e-9)
}

// ---------------------------------------------------------------------------
// Strategy B
// ---------------------------------------------------------------------------

func TestProtoLayersMultiRefines(t *testing.T) {
	var surfaces []surface.Surface
	for _, r := range []float64{30, 80} {
		for _, side := range []string{"n", "p"} {
			z := -200.0
			if side == "p" {
				z = 200
			}
			for i, dz := range []float64{-5, 5} {
				name := fmt.Sprintf("r%.0f%s%d", r, side, i)
				surfaces = append(surfaces, barrelModule(t, name, r, z+dz, nil))
			}
		}
	}
	sortings := []SortingConfig{
		{Axis: binning.R, Tolerance: 1},
		{Axis: binning.Z, Tolerance: 1},
	}
	layers, err := testHelper(t).ProtoLayersMulti(surface.Context{}, surfaces, sortings)
	require.NoError(t, err)

	want := [][]string{
		{"r30n0", "r30n1"},
		{"r30p0", "r30p1"},
		{"r80n0", "r80n1"},
		{"r80p0", "r80p1"},
	}
	if diff := cmp.Diff(want, names(layers)); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestProtoLayersMultiSingleMatchesA(t *testing.T) {
	surfaces := []surface.Surface{
		zModule(t, "a", 0, 10),
		zModule(t, "b", 30, 40),
		zModule(t, "c", 10.2, 12),
	}
	sorting := SortingConfig{Axis: binning.Z, Tolerance: 0.5}
	h := testHelper(t)

	a, err := h.ProtoLayers(surface.Context{}, surfaces, sorting)
	require.NoError(t, err)
	b, err := h.ProtoLayersMulti(surface.Context{}, surfaces, []SortingConfig{sorting})
	require.NoError(t, err)
	assert.Equal(t, names(a), names(b))
}

func TestProtoLayersMultiEmpty(t *testing.T) {
	h := testHelper(t)
	layers, err := h.ProtoLayersMulti(surface.Context{}, nil, []SortingConfig{{Axis: binning.R, Tolerance: 1}})
	require.NoError(t, err)
	assert.Empty(t, layers)

	_, err = h.ProtoLayersMulti(surface.Context{}, []surface.Surface{zModule(t, "a", 0, 1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// Strategy C
// ---------------------------------------------------------------------------

func TestProtoLayersBinnedRadialBoundaries(t *testing.T) {
	surfaces := []surface.Surface{
		radialModule(t, "r151", 151, 0),
		radialModule(t, "r100", 100, 0),
		radialModule(t, "r150", 150, 0),
		radialModule(t, "r149", 149, 0),
	}
	layers, err := testHelper(t).ProtoLayersBinned(surface.Context{}, surfaces, SortingConfig{Axis: binning.R, Tolerance: 50}, BinRadial, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"r100", "r149"}, {"r150", "r151"}}, names(layers))
}

func TestProtoLayersBinnedLongitudinal(t *testing.T) {
	surfaces := []surface.Surface{
		radialModule(t, "far", 100, -1390),
		radialModule(t, "near", 100, -810),
		radialModule(t, "mid", 100, -1010),
	}
	layers, err := testHelper(t).ProtoLayersBinned(surface.Context{}, surfaces, SortingConfig{Axis: binning.Z, Tolerance: 200}, BinLongitudinal, 0, -800)
	require.NoError(t, err)
	// |z| bins from 800: [800,1000) [1000,1200) [1200,1400)
	assert.Equal(t, [][]string{{"near"}, {"mid"}, {"far"}}, names(layers))
}

func TestProtoLayersBinnedOrderIndependent(t *testing.T) {
	radii := []float64{31, 77, 44, 120, 50, 99, 64, 108}
	var surfaces []surface.Surface
	for i, r := range radii {
		surfaces = append(surfaces, radialModule(t, string(rune('a'+i)), r, 0))
	}
	sorting := SortingConfig{Axis: binning.R, Tolerance: 25}
	h := testHelper(t)

	want, err := h.ProtoLayersBinned(surface.Context{}, surfaces, sorting, BinRadial, 25, 0)
	require.NoError(t, err)

	reversed := make([]surface.Surface, len(surfaces))
	for i, s := range surfaces {
		reversed[len(surfaces)-1-i] = s
	}
	rotated := append(append([]surface.Surface(nil), surfaces[3:]...), surfaces[:3]...)

	for _, perm := range [][]surface.Surface{reversed, rotated} {
		got, err := h.ProtoLayersBinned(surface.Context{}, perm, sorting, BinRadial, 25, 0)
		require.NoError(t, err)
		if diff := cmp.Diff(sortedNames(want), sortedNames(got)); diff != "" {
			t.Errorf("membership depends on order (-want +got):\n%s", diff)
		}
	}
}

func TestProtoLayersBinnedBelowOrigin(t *testing.T) {
	surfaces := []surface.Surface{
		radialModule(t, "inner", 80, 0),
		radialModule(t, "outer", 120, 0),
	}
	layers, err := testHelper(t).ProtoLayersBinned(surface.Context{}, surfaces, SortingConfig{Axis: binning.R, Tolerance: 50}, BinRadial, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"inner"}, {"outer"}}, names(layers))
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

func TestInvalidConfigs(t *testing.T) {
	h := testHelper(t)
	surfaces := []surface.Surface{zModule(t, "a", 0, 10)}
	ctx := surface.Context{}

	for _, tol := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := h.ProtoLayers(ctx, surfaces, SortingConfig{Axis: binning.Z, Tolerance: tol})
		assert.ErrorIs(t, err, ErrInvalidConfig, "tolerance %v", tol)
		_, err = h.ProtoLayersMulti(ctx, surfaces, []SortingConfig{{Axis: binning.R, Tolerance: 1}, {Axis: binning.Z, Tolerance: tol}})
		assert.ErrorIs(t, err, ErrInvalidConfig, "tolerance %v", tol)
	}

	_, err := h.ProtoLayers(ctx, surfaces, SortingConfig{Axis: binning.Value(42), Tolerance: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	for _, pitch := range []float64{0, -5, math.NaN()} {
		_, err := h.ProtoLayersBinned(ctx, surfaces, SortingConfig{Axis: binning.R, Tolerance: pitch}, BinRadial, 0, 0)
		assert.ErrorIs(t, err, ErrInvalidConfig, "pitch %v", pitch)
	}
}

func TestProtoLayersBinnedRejectsUnbinnable(t *testing.T) {
	h := testHelper(t)
	ctx := surface.Context{}
	sorting := SortingConfig{Axis: binning.R, Tolerance: 1e-10}
	surfaces := []surface.Surface{radialModule(t, "a", 50, 0)}

	_, err := h.ProtoLayersBinned(ctx, surfaces, sorting, BinRadial, -1e300, 0)
	assert.ErrorIs(t, err, ErrDegenerateSurface)

	for _, origin := range []float64{math.NaN(), math.Inf(-1)} {
		_, err = h.ProtoLayersBinned(ctx, surfaces, sorting, BinLongitudinal, 0, origin)
		assert.ErrorIs(t, err, ErrInvalidConfig, "origin %v", origin)
	}

	lost, err := surface.NewRectangle("lost", sdf.Translate3d(v3.Vec{X: math.NaN()}), 1, 1, nil)
	require.NoError(t, err)
	_, err = h.ProtoLayersBinned(ctx, []surface.Surface{lost}, SortingConfig{Axis: binning.R, Tolerance: 5}, BinRadial, 0, 0)
	assert.ErrorIs(t, err, ErrDegenerateSurface)
}

func TestNilSurfaceRejected(t *testing.T) {
	h := testHelper(t)
	surfaces := []surface.Surface{zModule(t, "a", 0, 10), nil}

	_, err := h.ProtoLayers(surface.Context{}, surfaces, SortingConfig{Axis: binning.Z, Tolerance: 1})
	assert.ErrorIs(t, err, ErrNilSurface)
	_, err = h.ProtoLayersBinned(surface.Context{}, surfaces, SortingConfig{Axis: binning.R, Tolerance: 1}, BinRadial, 0, 0)
	assert.ErrorIs(t, err, ErrNilSurface)
}

func TestHelperDefaultsToPackageLogger(t *testing.T) {
	var zero *Helper
	assert.NotPanics(t, func() { zero.logf("noop %d", 1) })
	assert.Equal(t, "radial", BinModeFromType(0).String())
	assert.Equal(t, "longitudinal", BinModeFromType(-1).String())
	assert.Equal(t, "z/0.5000", SortingConfig{Axis: binning.Z, Tolerance: 0.5}.String())
}
