// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
	"github.com/vankosh/vankosh/services/species"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()
	cat, err := species.NewCatalog([]species.Species{
		{
			Code: 1, ScientificName: "Shorea robusta", LocalName: "Sal",
			Aliases: []string{"sakhua"},
			A:       -2.4554, B: 1.9026, C: 0.8352,
			A1: -0.3412, B1: -1.1100, S: 0.36, M: 0.10, BG: 0.32,
			MaxDBHCm: 180, MaxHeightM: 45, HDRatioMin: 60, HDRatioMax: 120,
			Active: true,
		},
		{
			Code: 2, ScientificName: "Pinus roxburghii", LocalName: "Khote salla",
			A: -2.9770, B: 1.9235, C: 1.0019,
			A1: -0.5850, B1: -0.9305, S: 0.41, M: 0.12, BG: 0.30,
			MaxDBHCm: 150, MaxHeightM: 50, HDRatioMin: 70, HDRatioMax: 140,
			Active: true,
		},
	})
	require.NoError(t, err)
	return New(species.NewMatcher(cat))
}

func csvBytes(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func issueKinds(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Kind
	}
	return out
}

func TestValidateCleanUpload(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,height_m,tree_class,longitude,latitude",
		"Sal,25,15,B,85.32,27.68",
		"Pinus roxburghii,40,32,A,85.33,27.69",
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 2)
	assert.Equal(t, geo.WGS84Geographic, report.CRS.System)
	assert.Equal(t, TypeDiameter, report.DiameterType.Type)
	assert.Equal(t, 2, report.RowCount)

	assert.Equal(t, 1, trees[0].SpeciesCode)
	assert.Equal(t, "Shorea robusta", trees[0].ScientificName)
	assert.Equal(t, 2, trees[0].RowNumber)
	assert.Equal(t, datatypes.ClassB, trees[0].Quality)
	assert.True(t, trees[0].HeightKnown)
	assert.InDelta(t, 85.32, trees[0].Longitude, 1e-9)
	assert.InDelta(t, 27.68, trees[0].Latitude, 1e-9)
}

// Girth columns are recognised by name and converted to diameter, with
// the first conversions echoed back as samples.
func TestValidateGirthColumn(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,girth_cm,height_m,tree_class,longitude,latitude",
		"Sal,94.2,18,B,85.32,27.68",
		"Sal,125.6,22,B,85.33,27.69",
		"Sal,157.0,25,A,85.34,27.70",
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	assert.Equal(t, TypeGirth, report.DiameterType.Type)
	assert.Equal(t, DetectHigh, report.DiameterType.Confidence)

	require.Len(t, report.SampleConversions, 3)
	assert.Equal(t, []SampleConversion{
		{From: 94.2, To: 30.0},
		{From: 125.6, To: 40.0},
		{From: 157.0, To: 50.0},
	}, report.SampleConversions)

	require.Len(t, trees, 3)
	assert.InDelta(t, 30.0, trees[0].DBHCm, 0.05)
	assert.InDelta(t, 50.0, trees[2].DBHCm, 0.05)
	assert.Contains(t, issueKinds(report.Info), KindGirthToDiameter)
}

func TestValidateMissingRequiredColumn(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,height_m,longitude,latitude",
		"Sal,15,85.32,27.68",
	)
	report, trees := v.Validate(data, Options{})

	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, trees)
	require.NotEmpty(t, report.Fatal)
	assert.Equal(t, string(RoleDiameter), report.Fatal[0].Column)
}

func TestValidateCRSMismatchWarning(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,longitude,latitude",
		"Sal,25,85.32,27.68",
	)
	report, trees := v.Validate(data, Options{UserCRS: geo.UTM44N})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 1)
	assert.Equal(t, geo.WGS84Geographic, report.CRS.System)
	assert.Contains(t, issueKinds(report.Warnings), string(errkind.CRSMismatch))
}

func TestValidateSwappedAxes(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,longitude,latitude",
		"Sal,25,27.68,85.32", // latitude in the longitude column
	)

	t.Run("rejected without permission", func(t *testing.T) {
		report, trees := v.Validate(data, Options{})
		assert.False(t, report.ReadyForProcessing)
		assert.Nil(t, trees)
		assert.Contains(t, issueKinds(report.Fatal), string(errkind.CoordsSwapped))
	})

	t.Run("corrected when allowed", func(t *testing.T) {
		report, trees := v.Validate(data, Options{AllowSwap: true})
		require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
		require.Len(t, trees, 1)
		assert.Contains(t, issueKinds(report.Warnings), KindAxesSwapped)
		assert.InDelta(t, 85.32, trees[0].Longitude, 1e-9)
		assert.InDelta(t, 27.68, trees[0].Latitude, 1e-9)
	})
}

// UTM uploads are detected from value ranges and normalised to WGS84.
func TestValidateUTMInput(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,easting,northing",
		"Sal,25,450000,3060000",
		"Sal,30,450040,3060040",
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	assert.Equal(t, geo.UTM44N, report.CRS.System)
	require.Len(t, trees, 2)
	assert.Greater(t, trees[0].Longitude, 80.0)
	assert.Less(t, trees[0].Longitude, 81.0)
	assert.Greater(t, trees[0].Latitude, 27.0)
	assert.Less(t, trees[0].Latitude, 28.0)
}

func TestValidateUndetectableCRS(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,x,y",
		"Sal,25,1234,5678",
	)
	report, trees := v.Validate(data, Options{})

	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, trees)
	assert.Contains(t, issueKinds(report.Fatal), string(errkind.CRSUndetectable))
}

func TestValidateRangeChecks(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,height_m,longitude,latitude",
		"Sal,250,20,85.32,27.68",  // diameter above the absolute cap
		"Sal,25,0.5,85.33,27.68",  // height below breast height
		"Sal,25,1.3,85.34,27.68",  // boundary height is accepted
		"Sal,25,15,0,0",           // null island
		"Sal,25,60,85.35,27.68",   // height above the cap
		"Sal,120,40,85.36,27.68",  // ratio 33, fine; over nothing
	)
	// The (0,0) row defeats range-based detection, so the CRS is given.
	report, trees := v.Validate(data, Options{UserCRS: geo.WGS84Geographic})

	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, trees)

	kinds := issueKinds(report.Fatal)
	count := 0
	for _, k := range kinds {
		if k == string(errkind.RangeFatal) {
			count++
		}
	}
	assert.Equal(t, 4, count, "fatals: %v", report.Fatal)

	// Boundary height must not be among them.
	for _, is := range report.Fatal {
		assert.NotEqual(t, 4, is.Row, "row with height 1.3 flagged: %v", is)
	}
}

func TestValidateHDRatioWarning(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,height_m,longitude,latitude",
		"Sal,80,15,85.32,27.68", // ratio 19, far below typical
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 1)
	assert.Contains(t, issueKinds(report.Warnings), KindHDRatio)
}

func TestValidateFuzzySpeciesCorrection(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,longitude,latitude",
		"Shorea robasta,25,85.32,27.68",
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 1)
	assert.Equal(t, 1, trees[0].SpeciesCode)

	require.Contains(t, issueKinds(report.Warnings), KindSpeciesCorrected)
	for _, w := range report.Warnings {
		if w.Kind == KindSpeciesCorrected {
			assert.Equal(t, "Shorea robasta", w.Original)
			assert.Equal(t, "Shorea robusta", w.Corrected)
			assert.GreaterOrEqual(t, w.Confidence, 0.85)
		}
	}
}

func TestValidateUnknownSpeciesFatal(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,longitude,latitude",
		"Eucalyptus camaldulensis,25,85.32,27.68",
	)
	report, trees := v.Validate(data, Options{})

	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, trees)
	require.NotEmpty(t, report.Fatal)
	assert.Equal(t, string(errkind.SpeciesUnknown), report.Fatal[0].Kind)
	assert.Contains(t, report.Fatal[0].Message, "closest:")
}

// When most heights exceed diameters the two columns are probably
// exchanged; that is not repairable row by row.
func TestValidateColumnSwapFatal(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,height_m,longitude,latitude",
		"Sal,18,45,85.32,27.68",
		"Sal,22,48,85.33,27.68",
		"Sal,15,42,85.34,27.68",
		"Sal,30,20,85.35,27.68",
	)
	report, _ := v.Validate(data, Options{})

	assert.False(t, report.ReadyForProcessing)
	assert.Contains(t, issueKinds(report.Fatal), KindSwapColumns)
}

func TestValidateDuplicateCoordinates(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,longitude,latitude",
		"Sal,25,85.3200,27.6800",
		"Sal,30,85.3200,27.6800",
		"Sal,35,85.3300,27.6900",
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 3)
	assert.Contains(t, issueKinds(report.Warnings), KindDuplicateCoords)
}

func TestValidateOutsideNepalWarning(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,longitude,latitude",
		"Sal,25,77.20,28.61", // Delhi
	)
	report, trees := v.Validate(data, Options{UserCRS: geo.WGS84Geographic})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 1)
	assert.Contains(t, issueKinds(report.Warnings), KindOutsideNepal)
}

func TestValidateClassDefaulted(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,dia_cm,tree_class,longitude,latitude",
		"Sal,25,X,85.32,27.68",
		"Sal,30,,85.33,27.69",
	)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	require.Len(t, trees, 2)
	assert.Equal(t, datatypes.ClassB, trees[0].Quality)
	assert.Equal(t, datatypes.ClassB, trees[1].Quality)
	// Only the unrecognised value warrants a warning.
	count := 0
	for _, k := range issueKinds(report.Warnings) {
		if k == KindClassDefaulted {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestValidateBOMAndTrailingRows(t *testing.T) {
	v := testValidator(t)
	data := append([]byte{0xEF, 0xBB, 0xBF}, csvBytes(
		"species,dia_cm,longitude,latitude",
		"Sal,25,85.32,27.68",
		",,,",
		",,,",
	)...)
	report, trees := v.Validate(data, Options{})

	require.True(t, report.ReadyForProcessing, "fatal: %v", report.Fatal)
	assert.Equal(t, 1, report.RowCount)
	require.Len(t, trees, 1)
}

// The report is a pure function of the upload bytes.
func TestValidateDeterminism(t *testing.T) {
	v := testValidator(t)
	data := csvBytes(
		"species,girth_cm,height_m,longitude,latitude",
		"Sal,94.2,18,85.32,27.68",
		"Shorea robasta,125.6,22,85.33,27.69",
		"Eucalyptus,40,12,85.34,27.70",
	)

	r1, _ := v.Validate(data, Options{})
	r2, _ := v.Validate(data, Options{})

	b1, err := json.Marshal(r1)
	require.NoError(t, err)
	b2, err := json.Marshal(r2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
