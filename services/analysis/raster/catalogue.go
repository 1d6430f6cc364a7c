// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package raster aggregates raster layers over forest polygons.
//
// The layer catalogue is configuration, not code: each entry names the
// backing PostGIS raster table, its kind, nodata sentinels, scale
// factor and (for categorical layers) the class codebook with both
// label bindings. Aggregation itself is split into a thin database
// sampler and pure assembly functions so the arithmetic is testable
// without a database.
package raster

// Kind partitions layers by aggregation shape.
type Kind string

const (
	// Categorical layers yield class histograms and a dominant class.
	Categorical Kind = "categorical"
	// Continuous layers yield count/min/max/mean.
	Continuous Kind = "continuous"
	// Multiband layers yield per-band continuous stats plus derived
	// fields (soil texture).
	Multiband Kind = "multiband"
)

// Class carries both label bindings for a categorical code. Label is
// the canonical analysis name; AltLabel the display variant some
// call-sites prefer. The caller chooses; documents carry Label.
type Class struct {
	Label    string `json:"label"`
	AltLabel string `json:"alt_label,omitempty"`
}

// Band names one band of a multiband layer, 1-based as in PostGIS.
type Band struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Layer is one catalogue entry.
type Layer struct {
	// Name is the stable key used in option masks and result documents.
	Name string
	// Table is the PostGIS raster table.
	Table string
	Kind  Kind

	// NoData values are dropped before aggregation, in addition to
	// NaN/±Inf.
	NoData []float64
	// Scale multiplies continuous values (e.g. temperature stored as
	// tenths of a degree). Zero means 1.
	Scale float64

	// Classes is the categorical codebook.
	Classes map[int]Class
	// ExcludeFromPercent lists codes dropped from totals and histograms
	// entirely (slope 0 is nodata/water).
	ExcludeFromPercent []int
	// ExcludeFromDominance lists codes kept in histograms but never
	// reported dominant (aspect 0 is flat terrain).
	ExcludeFromDominance []int

	Bands []Band
}

// ScaleFactor returns the effective scale multiplier.
func (l Layer) ScaleFactor() float64 {
	if l.Scale == 0 {
		return 1
	}
	return l.Scale
}

// Layer names, fixed. These double as option-mask layer keys and
// result-document keys.
const (
	LayerElevation      = "elevation"
	LayerSlope          = "slope"
	LayerAspect         = "aspect"
	LayerCanopy         = "canopy"
	LayerAGB            = "agb"
	LayerForestHealth   = "forest_health"
	LayerForestType     = "forest_type"
	LayerLandcover      = "landcover"
	LayerLossYear       = "loss_year"
	LayerGain           = "gain"
	LayerFireLossYear   = "fire_loss_year"
	LayerTemperature    = "temperature"
	LayerMinTemperature = "min_temperature"
	LayerPrecipitation  = "precipitation"
	LayerSoil           = "soil"
)

// Catalogue returns the full layer set keyed by name.
func Catalogue() map[string]Layer {
	out := make(map[string]Layer, len(catalogue))
	for _, l := range catalogue {
		out[l.Name] = l
	}
	return out
}

// Lookup returns the named layer.
func Lookup(name string) (Layer, bool) {
	for _, l := range catalogue {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

var catalogue = []Layer{
	{
		Name: LayerSlope, Table: "nepal_slope", Kind: Categorical,
		Classes: map[int]Class{
			1: {Label: "gentle", AltLabel: "flat"},
			2: {Label: "moderate"},
			3: {Label: "steep"},
			4: {Label: "very_steep"},
		},
		// 0 is nodata/water, never counted.
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerAspect, Table: "nepal_aspect", Kind: Categorical,
		Classes: map[int]Class{
			0: {Label: "Flat"},
			1: {Label: "N"}, 2: {Label: "NE"}, 3: {Label: "E"}, 4: {Label: "SE"},
			5: {Label: "S"}, 6: {Label: "SW"}, 7: {Label: "W"}, 8: {Label: "NW"},
		},
		// Flat terrain counts toward percentages but a flat-dominated
		// area still reports its strongest directional class.
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerCanopy, Table: "nepal_canopy_cover", Kind: Categorical,
		Classes: map[int]Class{
			1: {Label: "very_sparse"}, 2: {Label: "sparse"},
			3: {Label: "medium"}, 4: {Label: "dense"},
		},
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerForestHealth, Table: "nepal_forest_health", Kind: Categorical,
		Classes: map[int]Class{
			1: {Label: "stressed"}, 2: {Label: "poor"}, 3: {Label: "fair"},
			4: {Label: "good"}, 5: {Label: "excellent"},
		},
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerForestType, Table: "nepal_forest_type", Kind: Categorical,
		Classes: map[int]Class{
			1: {Label: "sal"}, 2: {Label: "terai_mixed_hardwood"},
			3: {Label: "chir_pine"}, 4: {Label: "upper_mixed_hardwood"},
			5: {Label: "fir"}, 6: {Label: "khair_sissoo"},
		},
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerLandcover, Table: "nepal_esa_landcover", Kind: Categorical,
		Classes: map[int]Class{
			10: {Label: "tree_cover"}, 20: {Label: "shrubland"},
			30: {Label: "grassland"}, 40: {Label: "cropland"},
			50: {Label: "built_up"}, 60: {Label: "bare_sparse"},
			70: {Label: "snow_ice"}, 80: {Label: "water"},
			90: {Label: "wetland"}, 100: {Label: "moss_lichen"},
		},
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerLossYear, Table: "nepal_forest_loss_year", Kind: Categorical,
		// Codes are years since 2000; 0 means no loss.
		Classes:              map[int]Class{},
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerGain, Table: "nepal_forest_gain", Kind: Categorical,
		Classes: map[int]Class{
			0: {Label: "no_gain"}, 1: {Label: "gain"},
		},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerFireLossYear, Table: "nepal_fire_loss_year", Kind: Categorical,
		Classes:              map[int]Class{},
		ExcludeFromPercent:   []int{0},
		ExcludeFromDominance: []int{0},
	},
	{
		Name: LayerElevation, Table: "nepal_srtm_elevation", Kind: Continuous,
		NoData: []float64{-32768},
	},
	{
		Name: LayerAGB, Table: "nepal_agb", Kind: Continuous,
		NoData: []float64{-9999},
	},
	{
		// Annual mean temperature, stored as tenths of a degree Celsius.
		Name: LayerTemperature, Table: "nepal_bio1_temperature", Kind: Continuous,
		NoData: []float64{-32768}, Scale: 0.1,
	},
	{
		// Minimum temperature of the coldest month, tenths of a degree.
		Name: LayerMinTemperature, Table: "nepal_bio6_min_temperature", Kind: Continuous,
		NoData: []float64{-32768}, Scale: 0.1,
	},
	{
		Name: LayerPrecipitation, Table: "nepal_bio12_precipitation", Kind: Continuous,
		NoData: []float64{-32768},
	},
	{
		Name: LayerSoil, Table: "nepal_soilgrids", Kind: Multiband,
		NoData: []float64{-32768},
		Bands: []Band{
			{Index: 1, Name: "clay"},
			{Index: 2, Name: "sand"},
			{Index: 3, Name: "silt"},
			{Index: 4, Name: "ph"},
			{Index: 5, Name: "soc"},
			{Index: 6, Name: "nitrogen"},
			{Index: 7, Name: "cec"},
			{Index: 8, Name: "bulk_density"},
		},
	},
}

// Tables returns every raster table name, for the startup health check.
func Tables() []string {
	out := make([]string, 0, len(catalogue))
	for _, l := range catalogue {
		out = append(out, l.Table)
	}
	return out
}
