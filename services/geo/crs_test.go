// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package geo

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCRS(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		ys   []float64
		want Detection
	}{
		{
			name: "geographic Nepal",
			xs:   []float64{85.04, 85.05, 85.06},
			ys:   []float64{27.6, 27.61, 27.62},
			want: Detection{System: WGS84Geographic, Confidence: ConfidenceHigh},
		},
		{
			name: "utm 44N west of central meridian",
			xs:   []float64{350_000, 360_000},
			ys:   []float64{3_050_000, 3_060_000},
			want: Detection{System: UTM44N, Confidence: ConfidenceHigh},
		},
		{
			name: "utm 45N by mean easting",
			xs:   []float64{620_000, 640_000},
			ys:   []float64{3_050_000, 3_060_000},
			want: Detection{System: UTM45N, Confidence: ConfidenceHigh},
		},
		{
			name: "swapped lat lon columns",
			xs:   []float64{27.6, 27.7},
			ys:   []float64{85.0, 85.1},
			want: Detection{System: SwappedAxes, Confidence: ConfidenceHigh},
		},
		{
			name: "outside every range",
			xs:   []float64{2.3, 2.4},
			ys:   []float64{48.8, 48.9},
			want: Detection{System: Unknown, Confidence: ConfidenceLow},
		},
		{
			name: "empty input",
			xs:   nil,
			ys:   nil,
			want: Detection{System: Unknown, Confidence: ConfidenceLow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCRS(tt.xs, tt.ys))
		})
	}
}

func TestDetectCRSSwapInverse(t *testing.T) {
	xs := []float64{27.6, 27.7}
	ys := []float64{85.0, 85.1}
	d := DetectCRS(xs, ys)
	require.Equal(t, SwappedAxes, d.System)
	// Swapping the roles back must yield a clean geographic detection.
	d2 := DetectCRS(ys, xs)
	assert.Equal(t, WGS84Geographic, d2.System)
}

func TestZoneForLongitude(t *testing.T) {
	assert.Equal(t, UTM44N, ZoneForLongitude(82.5))
	assert.Equal(t, UTM45N, ZoneForLongitude(84.0))
	// Kathmandu valley data (mean longitude 85.04) projects into 45N.
	assert.Equal(t, UTM45N, ZoneForLongitude(85.04))
}

func TestProjectorRoundTrip(t *testing.T) {
	fwd, err := Projector(WGS84Geographic, UTM45N)
	require.NoError(t, err)
	inv, err := Projector(UTM45N, WGS84Geographic)
	require.NoError(t, err)

	lon, lat := 87.3, 27.0
	x, y, err := fwd(lon, lat)
	require.NoError(t, err)
	// Eastings near the central meridian (87) sit near 500k; northings in
	// Nepal's latitudes are around 3M.
	assert.InDelta(t, 500_000, x, 50_000)
	assert.InDelta(t, 2_990_000, y, 30_000)

	lon2, lat2, err := inv(x, y)
	require.NoError(t, err)
	assert.InDelta(t, lon, lon2, 1e-6)
	assert.InDelta(t, lat, lat2, 1e-6)
}

func TestPolygonWKT(t *testing.T) {
	p := geom.Polygon{{{X: 85, Y: 27}, {X: 85.1, Y: 27}, {X: 85.1, Y: 27.1}}}
	wkt := PolygonWKT(p)
	assert.Equal(t, "POLYGON((85 27,85.1 27,85.1 27.1,85 27))", wkt)
}

func TestValidatePolygon(t *testing.T) {
	valid := geom.Polygon{{{X: 85, Y: 27}, {X: 85.1, Y: 27}, {X: 85.1, Y: 27.1}}}
	assert.NoError(t, ValidatePolygon(valid))

	assert.Error(t, ValidatePolygon(geom.Polygon{}))
	assert.Error(t, ValidatePolygon(geom.Polygon{{{X: 85, Y: 27}, {X: 85.1, Y: 27}}}))

	// Degenerate: zero area.
	line := geom.Polygon{{{X: 85, Y: 27}, {X: 85.1, Y: 27}, {X: 85.2, Y: 27}}}
	assert.Error(t, ValidatePolygon(line))
}

func TestUTMForCentroid(t *testing.T) {
	east := geom.Polygon{{{X: 87.2, Y: 27}, {X: 87.4, Y: 27}, {X: 87.4, Y: 27.2}}}
	assert.Equal(t, UTM45N, UTMForCentroid(east))
	west := geom.Polygon{{{X: 81.2, Y: 28.5}, {X: 81.4, Y: 28.5}, {X: 81.4, Y: 28.7}}}
	assert.Equal(t, UTM44N, UTMForCentroid(west))
}
