// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"strconv"

	"github.com/vankosh/vankosh/services/analysis/datatypes"
	"github.com/vankosh/vankosh/services/analysis/proximity"
	"github.com/vankosh/vankosh/services/analysis/raster"
)

// carbonFraction converts above-ground biomass (t/ha) to carbon stock.
const carbonFraction = 0.47

// BuildAggregate rolls the per-polygon documents up to one boundary
// document: categorical class counts are summed and the percentages and
// dominant recomputed from the sums, continuous means are weighted by
// valid cell count, proximity name sets are unioned per direction.
// Failed slots simply contribute nothing.
func BuildAggregate(docs []datatypes.PolygonDocument) *datatypes.AggregateDocument {
	agg := &datatypes.AggregateDocument{}

	perLayer := make(map[string][]*raster.Result)
	var proxResults []*proximity.Result
	layerOrder := make([]string, 0, 16)

	for i := range docs {
		doc := &docs[i]
		agg.TotalAreaHa += doc.AreaHa
		for _, slot := range doc.Layers {
			if slot.Result == nil {
				continue
			}
			if _, seen := perLayer[slot.Layer]; !seen {
				layerOrder = append(layerOrder, slot.Layer)
			}
			perLayer[slot.Layer] = append(perLayer[slot.Layer], slot.Result)
		}
		if doc.Proximity != nil {
			proxResults = append(proxResults, doc.Proximity)
		}
	}

	if len(perLayer) > 0 {
		agg.Layers = make(map[string]*raster.Result, len(perLayer))
		for _, name := range layerOrder {
			layer, ok := raster.Lookup(name)
			if !ok {
				continue
			}
			agg.Layers[name] = combineLayer(layer, perLayer[name])
		}
	}
	if len(proxResults) > 0 {
		agg.Proximity = proximity.Merge(proxResults)
	}

	if slope, ok := agg.Layers[raster.LayerSlope]; ok {
		agg.DominantSlope = slope.DominantClass
	}
	if aspect, ok := agg.Layers[raster.LayerAspect]; ok {
		agg.DominantAspect = aspect.DominantClass
	}
	if agb, ok := agg.Layers[raster.LayerAGB]; ok && agb.Stats != nil {
		agg.CarbonStockT = agb.Stats.Mean * agg.TotalAreaHa * carbonFraction
	}
	return agg
}

func combineLayer(layer raster.Layer, results []*raster.Result) *raster.Result {
	switch layer.Kind {
	case raster.Categorical:
		summed := make(map[int]int64)
		for _, r := range results {
			for codeStr, n := range r.PerClass {
				code, err := strconv.Atoi(codeStr)
				if err != nil {
					continue
				}
				summed[code] += n
			}
		}
		return raster.AssembleCategorical(layer, summed)

	case raster.Continuous:
		combined := &raster.Result{Layer: layer.Name}
		stats := combineStats(collectStats(results))
		combined.TotalCells = stats.Count
		if stats.Count > 0 {
			combined.Stats = &stats
		}
		return combined

	case raster.Multiband:
		combined := &raster.Result{Layer: layer.Name, Bands: map[string]raster.Stats{}}
		for _, band := range layer.Bands {
			var parts []raster.Stats
			for _, r := range results {
				if s, ok := r.Bands[band.Name]; ok && s.Count > 0 {
					parts = append(parts, s)
				}
			}
			stats := combineStats(parts)
			combined.Bands[band.Name] = stats
			if stats.Count > combined.TotalCells {
				combined.TotalCells = stats.Count
			}
		}
		if combined.TotalCells > 0 {
			combined.SoilTexture = raster.SoilTexture(
				combined.Bands["clay"].Mean,
				combined.Bands["sand"].Mean,
				combined.Bands["silt"].Mean)
		}
		return combined
	}
	return &raster.Result{Layer: layer.Name}
}

func collectStats(results []*raster.Result) []raster.Stats {
	var out []raster.Stats
	for _, r := range results {
		if r.Stats != nil && r.Stats.Count > 0 {
			out = append(out, *r.Stats)
		}
	}
	return out
}

// combineStats merges partial stats with a cell-weighted mean.
func combineStats(parts []raster.Stats) raster.Stats {
	var out raster.Stats
	var weighted float64
	for _, p := range parts {
		if p.Count == 0 {
			continue
		}
		if out.Count == 0 || p.Min < out.Min {
			out.Min = p.Min
		}
		if out.Count == 0 || p.Max > out.Max {
			out.Max = p.Max
		}
		weighted += p.Mean * float64(p.Count)
		out.Count += p.Count
	}
	if out.Count > 0 {
		out.Mean = weighted / float64(out.Count)
	}
	return out
}
