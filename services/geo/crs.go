// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package geo provides coordinate reference system detection and
// projection for the two CRSs relevant to Nepal, plus the small geometry
// helpers shared by the analysis and inventory cores.
//
// # Coordinate Systems
//
// Field data from Nepal arrives in one of three systems:
//
//   - WGS84 geographic (EPSG:4326), longitude 80.0–88.3, latitude 26.3–30.5
//   - UTM zone 44N (EPSG:32644), western Nepal (longitude < 87°)
//   - UTM zone 45N (EPSG:32645), eastern Nepal (longitude >= 87°)
//
// Detection classifies coordinate samples by value range; the ranges are
// disjoint, so no tie-break is needed for Nepal data. Swapped
// latitude/longitude columns are recognised and reported rather than
// rejected.
//
// # Thread Safety
//
// All functions are pure; projector construction parses proj4 definitions
// once per call and the returned transformer is safe for concurrent use.
package geo

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// System identifies a coordinate reference system (or a detection verdict).
type System string

const (
	// WGS84Geographic is geographic longitude/latitude, EPSG:4326.
	WGS84Geographic System = "WGS84"
	// UTM44N is UTM zone 44 north, EPSG:32644.
	UTM44N System = "UTM-44N"
	// UTM45N is UTM zone 45 north, EPSG:32645.
	UTM45N System = "UTM-45N"
	// Unknown means no system matched the samples.
	Unknown System = "unknown"
	// SwappedAxes means X holds latitudes and Y holds longitudes.
	SwappedAxes System = "swapped"
)

// IsValid reports whether s names a concrete, storable system.
func (s System) IsValid() bool {
	return s == WGS84Geographic || s == UTM44N || s == UTM45N
}

// Projected reports whether s is a metric (projected) system.
func (s System) Projected() bool {
	return s == UTM44N || s == UTM45N
}

// Confidence grades a detection result.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Detection is the result of classifying coordinate samples.
type Detection struct {
	System     System     `json:"system"`
	Confidence Confidence `json:"confidence"`
}

// Nepal bounding ranges per system. Geographic bounds double as the
// "Nepal bounds" row-level check in the inventory validator.
const (
	NepalLonMin = 80.0
	NepalLonMax = 88.3
	NepalLatMin = 26.3
	NepalLatMax = 30.5

	utmEastingMin  = 200_000.0
	utmEastingMax  = 900_000.0
	utmNorthingMin = 2_800_000.0
	utmNorthingMax = 3_500_000.0

	// utmZoneSplitEasting separates 44N from 45N samples: points west of
	// the zone's central meridian carry eastings below 500k.
	utmZoneSplitEasting = 500_000.0

	// zoneBoundaryLon is the 44N/45N boundary meridian. UTM zone 44
	// spans 78–84 degrees east and zone 45 spans 84–90, so central and
	// eastern Nepal (Kathmandu included) project into 45N.
	zoneBoundaryLon = 84.0
)

// DetectCRS classifies paired coordinate samples into one of the known
// systems. Empty input and mismatched lengths yield Unknown/low.
//
// An Unknown result is not an error: the caller either applies a user
// override or fails with errkind.CRSUndetectable.
func DetectCRS(xs, ys []float64) Detection {
	if len(xs) == 0 || len(xs) != len(ys) {
		return Detection{System: Unknown, Confidence: ConfidenceLow}
	}

	switch {
	case allInRange(xs, NepalLonMin, NepalLonMax) && allInRange(ys, NepalLatMin, NepalLatMax):
		return Detection{System: WGS84Geographic, Confidence: ConfidenceHigh}

	case allInRange(xs, utmEastingMin, utmEastingMax) && allInRange(ys, utmNorthingMin, utmNorthingMax):
		if mean(xs) < utmZoneSplitEasting {
			return Detection{System: UTM44N, Confidence: ConfidenceHigh}
		}
		return Detection{System: UTM45N, Confidence: ConfidenceHigh}

	case allInRange(xs, NepalLatMin, NepalLatMax) && allInRange(ys, NepalLonMin, NepalLonMax):
		// Latitudes in the X column: the file has its axes exchanged.
		return Detection{System: SwappedAxes, Confidence: ConfidenceHigh}
	}
	return Detection{System: Unknown, Confidence: ConfidenceLow}
}

// ZoneForLongitude picks the UTM zone covering the given WGS84 longitude.
func ZoneForLongitude(lon float64) System {
	if lon < zoneBoundaryLon {
		return UTM44N
	}
	return UTM45N
}

// UTMForCentroid picks the UTM zone for a WGS84 polygon by its centroid.
func UTMForCentroid(p geom.Polygon) System {
	return ZoneForLongitude(p.Centroid().X)
}

// proj4 definitions for the supported systems.
var proj4Defs = map[System]string{
	WGS84Geographic: "+proj=longlat +datum=WGS84 +no_defs",
	UTM44N:          "+proj=utm +zone=44 +datum=WGS84 +units=m +no_defs",
	UTM45N:          "+proj=utm +zone=45 +datum=WGS84 +units=m +no_defs",
}

// EPSG codes for the supported systems, for SQL that needs an SRID.
var epsgCodes = map[System]int{
	WGS84Geographic: 4326,
	UTM44N:          32644,
	UTM45N:          32645,
}

// EPSG returns the SRID for a concrete system.
func EPSG(s System) (int, error) {
	code, ok := epsgCodes[s]
	if !ok {
		return 0, fmt.Errorf("no EPSG code for system %q", s)
	}
	return code, nil
}

// Projector builds a point transformer from one concrete system to another.
func Projector(from, to System) (proj.Transformer, error) {
	srcDef, ok := proj4Defs[from]
	if !ok {
		return nil, fmt.Errorf("unsupported source system %q", from)
	}
	dstDef, ok := proj4Defs[to]
	if !ok {
		return nil, fmt.Errorf("unsupported destination system %q", to)
	}
	src, err := proj.Parse(srcDef)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", from, err)
	}
	dst, err := proj.Parse(dstDef)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", to, err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("building transform %s -> %s: %w", from, to, err)
	}
	return t, nil
}

func allInRange(vs []float64, lo, hi float64) bool {
	for _, v := range vs {
		if v < lo || v > hi {
			return false
		}
	}
	return true
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
