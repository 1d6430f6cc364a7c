// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLookup(t *testing.T, name string) Layer {
	t.Helper()
	l, ok := Lookup(name)
	require.True(t, ok, "layer %s missing from catalogue", name)
	return l
}

// Slope histogram validated against an independent GIS run: 1,683
// pixels over four classes.
func TestAssembleCategoricalSlope(t *testing.T) {
	layer := mustLookup(t, LayerSlope)
	counts := map[int]int64{1: 235, 2: 826, 3: 559, 4: 63}

	res := AssembleCategorical(layer, counts)

	assert.Equal(t, int64(1683), res.TotalCells)
	assert.Equal(t, "moderate", res.DominantClass)

	assert.InDelta(t, 13.97, res.PerClassPercent["gentle"], 0.015)
	assert.InDelta(t, 49.08, res.PerClassPercent["moderate"], 0.015)
	assert.InDelta(t, 33.22, res.PerClassPercent["steep"], 0.015)
	assert.InDelta(t, 3.74, res.PerClassPercent["very_steep"], 0.015)

	var sum float64
	for _, p := range res.PerClassPercent {
		sum += p
	}
	assert.InDelta(t, 100.0, sum, 0.01)

	assert.Equal(t, int64(826), res.PerClass["2"])
}

// Slope class 0 is nodata/water and never appears in the histogram.
func TestAssembleCategoricalSlopeExcludesZero(t *testing.T) {
	layer := mustLookup(t, LayerSlope)
	res := AssembleCategorical(layer, map[int]int64{0: 500, 1: 300, 2: 200})

	assert.Equal(t, int64(500), res.TotalCells)
	assert.NotContains(t, res.PerClass, "0")
	assert.InDelta(t, 60.0, res.PerClassPercent["gentle"], 0.011)
}

// Aspect keeps flat pixels in the percentages but never reports Flat as
// dominant.
func TestAssembleCategoricalAspect(t *testing.T) {
	layer := mustLookup(t, LayerAspect)
	counts := map[int]int64{0: 816, 1: 21, 2: 5, 3: 42, 4: 155, 5: 171, 6: 152, 7: 225, 8: 96}

	res := AssembleCategorical(layer, counts)

	assert.Equal(t, int64(1683), res.TotalCells)
	assert.Len(t, res.PerClassPercent, 9)
	assert.Equal(t, "W", res.DominantClass)
	assert.InDelta(t, 48.48, res.PerClassPercent["Flat"], 0.02)

	var sum float64
	for _, p := range res.PerClassPercent {
		sum += p
	}
	assert.InDelta(t, 100.0, sum, 0.01)
}

// An all-flat polygon has no dominant aspect at all.
func TestAssembleCategoricalAspectAllFlat(t *testing.T) {
	layer := mustLookup(t, LayerAspect)
	res := AssembleCategorical(layer, map[int]int64{0: 1000})

	assert.Equal(t, int64(1000), res.TotalCells)
	assert.Empty(t, res.DominantClass)
	assert.InDelta(t, 100.0, res.PerClassPercent["Flat"], 0.001)
}

func TestAssembleCategoricalNoOverlap(t *testing.T) {
	layer := mustLookup(t, LayerSlope)
	res := AssembleCategorical(layer, nil)

	assert.Zero(t, res.TotalCells)
	assert.Empty(t, res.DominantClass)
	assert.Empty(t, res.PerClass)
}

// Loss-year codes have no codebook entries; labels fall back to the
// numeric code.
func TestAssembleCategoricalUnlabelledCodes(t *testing.T) {
	layer := mustLookup(t, LayerLossYear)
	res := AssembleCategorical(layer, map[int]int64{15: 40, 21: 60})

	assert.Equal(t, "21", res.DominantClass)
	assert.InDelta(t, 40.0, res.PerClassPercent["15"], 0.011)
}

func TestAssembleCategoricalIdempotence(t *testing.T) {
	layer := mustLookup(t, LayerSlope)
	counts := map[int]int64{1: 235, 2: 826, 3: 559, 4: 63}
	a := AssembleCategorical(layer, counts)
	b := AssembleCategorical(layer, counts)
	assert.Equal(t, a, b)
}

func TestContinuousScaleFactor(t *testing.T) {
	layer := mustLookup(t, LayerTemperature)
	res := assembleContinuous(layer, Stats{Count: 100, Min: 52, Max: 218, Mean: 147.5})

	require.NotNil(t, res.Stats)
	assert.InDelta(t, 5.2, res.Stats.Min, 1e-9)
	assert.InDelta(t, 21.8, res.Stats.Max, 1e-9)
	assert.InDelta(t, 14.75, res.Stats.Mean, 1e-9)
}

func TestContinuousNoOverlap(t *testing.T) {
	layer := mustLookup(t, LayerElevation)
	res := assembleContinuous(layer, Stats{})
	assert.Zero(t, res.TotalCells)
	assert.Nil(t, res.Stats)
}

func TestSoilTexture(t *testing.T) {
	cases := []struct {
		name             string
		clay, sand, silt float64
		want             string
	}{
		{"clay heavy", 45, 30, 25, "Clay"},
		{"sand heavy", 20, 60, 20, "Sand"},
		{"silt heavy", 20, 30, 50, "Silt"},
		{"balanced", 25, 40, 35, "Loam"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SoilTexture(tc.clay, tc.sand, tc.silt))
		})
	}
}

func TestCatalogueComplete(t *testing.T) {
	cat := Catalogue()
	assert.Len(t, cat, 15)

	soil := cat[LayerSoil]
	assert.Equal(t, Multiband, soil.Kind)
	assert.Len(t, soil.Bands, 8)

	for name, l := range cat {
		assert.Equal(t, name, l.Name)
		assert.NotEmpty(t, l.Table, "layer %s has no table", name)
	}
}
