// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the analysis domain types: calculations,
// option masks, boundaries and result documents.
package datatypes

import (
	"time"

	"github.com/ctessum/geom"
	"github.com/google/uuid"

	"github.com/vankosh/vankosh/services/analysis/proximity"
	"github.com/vankosh/vankosh/services/analysis/raster"
)

// Status is the calculation lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	// StatusSucceeded means every polygon document is error-free.
	StatusSucceeded Status = "succeeded"
	// StatusFailedPartial means at least one polygon produced results
	// and at least one slot carries an error.
	StatusFailedPartial Status = "failed_partial"
	// StatusFailed means no polygon succeeded.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailedPartial, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailedPartial || s == StatusFailed
}

// Options is the analysis option mask. Raster flags are honoured only
// while the master switch is on.
type Options struct {
	RunRasterAnalysis bool `json:"run_raster_analysis"`

	RunElevation     bool `json:"run_elevation"`
	RunSlope         bool `json:"run_slope"`
	RunAspect        bool `json:"run_aspect"`
	RunCanopy        bool `json:"run_canopy"`
	RunBiomass       bool `json:"run_biomass"`
	RunForestHealth  bool `json:"run_forest_health"`
	RunForestType    bool `json:"run_forest_type"`
	RunLandcover     bool `json:"run_landcover"`
	RunForestLoss    bool `json:"run_forest_loss"`
	RunForestGain    bool `json:"run_forest_gain"`
	RunFireLoss      bool `json:"run_fire_loss"`
	RunTemperature   bool `json:"run_temperature"`
	RunPrecipitation bool `json:"run_precipitation"`
	RunSoil          bool `json:"run_soil"`

	RunProximity bool `json:"run_proximity"`

	// Downstream collaborators triggered after core analysis succeeds;
	// out of scope here but carried through the mask.
	AutoGenerateFieldbook bool `json:"auto_generate_fieldbook"`
	AutoGenerateSampling  bool `json:"auto_generate_sampling"`
}

// EverythingOn returns a mask with all analyses enabled.
func EverythingOn() Options {
	return Options{
		RunRasterAnalysis: true,
		RunElevation:      true, RunSlope: true, RunAspect: true,
		RunCanopy: true, RunBiomass: true, RunForestHealth: true,
		RunForestType: true, RunLandcover: true, RunForestLoss: true,
		RunForestGain: true, RunFireLoss: true, RunTemperature: true,
		RunPrecipitation: true, RunSoil: true,
		RunProximity: true,
	}
}

// layerOrder fixes the raster enumeration order. The temperature flag
// covers both bioclim temperature layers.
var layerOrder = []struct {
	name    string
	enabled func(Options) bool
}{
	{raster.LayerElevation, func(o Options) bool { return o.RunElevation }},
	{raster.LayerSlope, func(o Options) bool { return o.RunSlope }},
	{raster.LayerAspect, func(o Options) bool { return o.RunAspect }},
	{raster.LayerCanopy, func(o Options) bool { return o.RunCanopy }},
	{raster.LayerAGB, func(o Options) bool { return o.RunBiomass }},
	{raster.LayerForestHealth, func(o Options) bool { return o.RunForestHealth }},
	{raster.LayerForestType, func(o Options) bool { return o.RunForestType }},
	{raster.LayerLandcover, func(o Options) bool { return o.RunLandcover }},
	{raster.LayerLossYear, func(o Options) bool { return o.RunForestLoss }},
	{raster.LayerGain, func(o Options) bool { return o.RunForestGain }},
	{raster.LayerFireLossYear, func(o Options) bool { return o.RunFireLoss }},
	{raster.LayerTemperature, func(o Options) bool { return o.RunTemperature }},
	{raster.LayerMinTemperature, func(o Options) bool { return o.RunTemperature }},
	{raster.LayerPrecipitation, func(o Options) bool { return o.RunPrecipitation }},
	{raster.LayerSoil, func(o Options) bool { return o.RunSoil }},
}

// SelectedLayers returns the raster layers to run, in the fixed order.
// The master switch disables all of them.
func (o Options) SelectedLayers() []string {
	if !o.RunRasterAnalysis {
		return nil
	}
	var out []string
	for _, entry := range layerOrder {
		if entry.enabled(o) {
			out = append(out, entry.name)
		}
	}
	return out
}

// Block is one boundary polygon with its optional name.
type Block struct {
	Name    string       `json:"name,omitempty"`
	Polygon geom.Polygon `json:"-"`
}

// Boundary is the ordered polygon sequence of one calculation.
type Boundary struct {
	Blocks []Block `json:"blocks"`
}

// SlotError is the error payload attached to one failed slot of a
// polygon document.
type SlotError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// LayerSlot is one (polygon, layer) outcome: a result or an error,
// never both.
type LayerSlot struct {
	Layer  string         `json:"layer"`
	Result *raster.Result `json:"result,omitempty"`
	Error  *SlotError     `json:"error,omitempty"`
}

// PolygonDocument is one polygon's full analysis output. The slice is
// dense and ordered: slot i corresponds to the i-th selected layer, so
// a reader always sees a prefix of the fixed order.
type PolygonDocument struct {
	Index     int     `json:"index"`
	BlockName string  `json:"block_name,omitempty"`
	AreaHa    float64 `json:"area_ha"`

	Layers    []LayerSlot       `json:"layers,omitempty"`
	Proximity *proximity.Result `json:"proximity,omitempty"`
	// ProximityError is set when the whole proximity block failed
	// before any direction ran.
	ProximityError *SlotError `json:"proximity_error,omitempty"`

	// TimedOut marks the polygon cut short by the request deadline.
	TimedOut bool `json:"timed_out,omitempty"`
}

// HasErrors reports whether any slot of the document failed.
func (d *PolygonDocument) HasErrors() bool {
	if d.ProximityError != nil || d.TimedOut {
		return true
	}
	for i := range d.Layers {
		if d.Layers[i].Error != nil {
			return true
		}
	}
	if d.Proximity != nil && len(d.Proximity.Errors) > 0 {
		return true
	}
	return false
}

// AggregateDocument is the boundary-level roll-up across polygons.
type AggregateDocument struct {
	TotalAreaHa float64 `json:"total_area_ha"`

	// Layers keyed by layer name: categorical counts summed then
	// percent/dominant recomputed; continuous means cell-weighted.
	Layers map[string]*raster.Result `json:"layers,omitempty"`

	Proximity *proximity.Result `json:"proximity,omitempty"`

	// Roll-up columns persisted beside the blob.
	DominantSlope  string  `json:"dominant_slope,omitempty"`
	DominantAspect string  `json:"dominant_aspect,omitempty"`
	CarbonStockT   float64 `json:"carbon_stock_t,omitempty"`
}

// Calculation is one boundary analysis run.
type Calculation struct {
	ID    uuid.UUID `json:"id"`
	Owner string    `json:"owner"`
	// ForestName is required and non-empty.
	ForestName string `json:"forest_name"`

	Boundary Boundary `json:"boundary"`
	Options  Options  `json:"options"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Polygons  []PolygonDocument  `json:"polygons,omitempty"`
	Aggregate *AggregateDocument `json:"aggregate,omitempty"`

	// Annotation is the only field mutable after the run terminates.
	Annotation string `json:"annotation,omitempty"`
}
