// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package raster

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/vankosh/vankosh/pkg/errkind"
)

// Stats is the continuous-layer aggregate, after sentinel filtering and
// scaling.
type Stats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Result is one (polygon, layer) document. All fields are primitives,
// lists of primitives or string-keyed maps of primitives, so it
// serialises to the persisted blob without translation.
type Result struct {
	Layer      string `json:"layer"`
	TotalCells int64  `json:"total_cells"`

	// Categorical fields. PerClass is keyed by numeric class code;
	// PerClassPercent by class label (falling back to the code when the
	// codebook has no entry, as with loss years).
	PerClass        map[string]int64   `json:"per_class,omitempty"`
	PerClassPercent map[string]float64 `json:"per_class_percent,omitempty"`
	DominantClass   string             `json:"dominant_class,omitempty"`

	// Continuous fields.
	Stats *Stats `json:"stats,omitempty"`

	// Multiband fields.
	Bands       map[string]Stats `json:"bands,omitempty"`
	SoilTexture string           `json:"soil_texture,omitempty"`
}

// Sampler reads raw raster values for a polygon. The PostGIS
// implementation lives in sampler.go; tests substitute fixed counts.
type Sampler interface {
	// ClassCounts returns pixel counts per class code for the polygon,
	// nodata included as whatever code the raster stores.
	ClassCounts(ctx context.Context, layer Layer, polygonWKT string) (map[int]int64, error)
	// BandStats returns raw (unscaled, sentinel-unfiltered at the
	// aggregate level) summary stats for one band.
	BandStats(ctx context.Context, layer Layer, band int, polygonWKT string) (Stats, error)
}

// Aggregate produces the result document for one (polygon, layer) pair.
// A polygon with no raster overlap yields {total_cells: 0}, not an
// error.
func Aggregate(ctx context.Context, s Sampler, layer Layer, polygonWKT string) (*Result, error) {
	switch layer.Kind {
	case Categorical:
		counts, err := s.ClassCounts(ctx, layer, polygonWKT)
		if err != nil {
			return nil, err
		}
		return AssembleCategorical(layer, counts), nil

	case Continuous:
		stats, err := s.BandStats(ctx, layer, 1, polygonWKT)
		if err != nil {
			return nil, err
		}
		return assembleContinuous(layer, stats), nil

	case Multiband:
		res := &Result{Layer: layer.Name, Bands: make(map[string]Stats, len(layer.Bands))}
		for _, b := range layer.Bands {
			stats, err := s.BandStats(ctx, layer, b.Index, polygonWKT)
			if err != nil {
				return nil, err
			}
			scaleStats(&stats, layer.ScaleFactor())
			res.Bands[b.Name] = stats
			if stats.Count > res.TotalCells {
				res.TotalCells = stats.Count
			}
		}
		res.SoilTexture = SoilTexture(
			res.Bands["clay"].Mean, res.Bands["sand"].Mean, res.Bands["silt"].Mean)
		if res.TotalCells == 0 {
			res.SoilTexture = ""
		}
		return res, nil
	}
	return nil, errkind.New(errkind.Internal, "layer %s has unknown kind %q", layer.Name, layer.Kind)
}

// AssembleCategorical folds raw class counts into the histogram
// document: excluded codes dropped, percentages renormalised to sum
// 100 ± 0.01, dominant taken over the dominance-eligible codes.
func AssembleCategorical(layer Layer, counts map[int]int64) *Result {
	res := &Result{Layer: layer.Name}

	dropPercent := toSet(layer.ExcludeFromPercent)
	dropDominant := toSet(layer.ExcludeFromDominance)

	codes := make([]int, 0, len(counts))
	var total int64
	for code, n := range counts {
		if n <= 0 || dropPercent[code] {
			continue
		}
		codes = append(codes, code)
		total += n
	}
	res.TotalCells = total
	if total == 0 {
		return res
	}
	sort.Ints(codes)

	res.PerClass = make(map[string]int64, len(codes))
	res.PerClassPercent = make(map[string]float64, len(codes))

	// Round each share to two decimals, then spread the rounding
	// residual over the largest remainders so the entries sum to 100.
	type share struct {
		code      int
		rounded   float64
		remainder float64
	}
	shares := make([]share, 0, len(codes))
	var sum float64
	for _, code := range codes {
		exact := float64(counts[code]) / float64(total) * 100
		floored := math.Floor(exact*100) / 100
		shares = append(shares, share{code, floored, exact - floored})
		sum += floored
	}
	steps := int(math.Round((100 - sum) * 100))
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return shares[order[a]].remainder > shares[order[b]].remainder
	})
	for i := 0; i < steps && i < len(order); i++ {
		shares[order[i]].rounded = math.Round((shares[order[i]].rounded+0.01)*100) / 100
	}

	var dominantCode int
	var dominantCount int64 = -1
	for _, sh := range shares {
		res.PerClass[strconv.Itoa(sh.code)] = counts[sh.code]
		res.PerClassPercent[layer.classLabel(sh.code)] = sh.rounded
		if !dropDominant[sh.code] && counts[sh.code] > dominantCount {
			dominantCode, dominantCount = sh.code, counts[sh.code]
		}
	}
	if dominantCount > 0 {
		res.DominantClass = layer.classLabel(dominantCode)
	}
	return res
}

func (l Layer) classLabel(code int) string {
	if c, ok := l.Classes[code]; ok && c.Label != "" {
		return c.Label
	}
	return strconv.Itoa(code)
}

func assembleContinuous(layer Layer, raw Stats) *Result {
	res := &Result{Layer: layer.Name, TotalCells: raw.Count}
	if raw.Count == 0 {
		return res
	}
	scaleStats(&raw, layer.ScaleFactor())
	res.Stats = &raw
	return res
}

func scaleStats(s *Stats, factor float64) {
	if factor == 1 || s.Count == 0 {
		return
	}
	s.Min *= factor
	s.Max *= factor
	s.Mean *= factor
}

// Soil texture thresholds on the clay/sand/silt band means (percent by
// weight). Checked in order; anything not clay-, sand- or silt-heavy is
// loam.
const (
	clayTextureMin = 40.0
	sandTextureMin = 50.0
	siltTextureMin = 40.0
)

// SoilTexture derives the texture class from the three particle-size
// means.
func SoilTexture(clayMean, sandMean, siltMean float64) string {
	switch {
	case clayMean >= clayTextureMin:
		return "Clay"
	case sandMean >= sandTextureMin:
		return "Sand"
	case siltMean >= siltTextureMin:
		return "Silt"
	default:
		return "Loam"
	}
}

func toSet(codes []int) map[int]bool {
	out := make(map[int]bool, len(codes))
	for _, c := range codes {
		out[c] = true
	}
	return out
}
