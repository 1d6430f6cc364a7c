// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validator

import (
	"math"
	"sort"
	"strings"
)

// DiameterType says whether a numeric column holds diameters or girths
// (circumference at breast height).
type DiameterType string

const (
	TypeDiameter DiameterType = "diameter"
	TypeGirth    DiameterType = "girth"
)

// DetectionConfidence grades the diameter-type decision.
type DetectionConfidence string

const (
	DetectHigh   DetectionConfidence = "high"
	DetectMedium DetectionConfidence = "medium"
	DetectLow    DetectionConfidence = "low"
)

// DiameterDetection is the diameter-vs-girth verdict for a column.
type DiameterDetection struct {
	Type       DiameterType        `json:"type"`
	Confidence DetectionConfidence `json:"confidence"`
	// RequiresConfirmation flags the ambiguous case where the caller
	// should ask the user before processing.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`
}

// Convert maps a raw column value to a diameter in centimetres.
func (d DiameterDetection) Convert(x float64) float64 {
	if d.Type == TypeGirth {
		return x / math.Pi
	}
	return x
}

// girth/diameter name markers, checked against the normalised header.
var (
	girthMarkers    = []string{"girth", "gbh", "circumference"}
	diameterMarkers = []string{"diameter", "dbh", "dia"}
)

// Statistical decision bounds (centimetres). Nepali broadleaf stands
// rarely average above 100 cm DBH, while girth columns routinely do.
const (
	girthMeanMin    = 100.0
	diameterMeanMax = 50.0
	girthP75Min     = 80.0
)

// DetectDiameterType decides whether the column holds diameters or
// girths, first by column name, then by value distribution.
func DetectDiameterType(columnName string, samples []float64) DiameterDetection {
	name := normalizeHeader(columnName)
	for _, m := range girthMarkers {
		if strings.Contains(name, m) {
			return DiameterDetection{Type: TypeGirth, Confidence: DetectHigh}
		}
	}
	for _, m := range diameterMarkers {
		if strings.Contains(name, m) {
			return DiameterDetection{Type: TypeDiameter, Confidence: DetectHigh}
		}
	}

	if len(samples) == 0 {
		return DiameterDetection{Type: TypeDiameter, Confidence: DetectLow, RequiresConfirmation: true}
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	switch {
	case mean > girthMeanMin:
		return DiameterDetection{Type: TypeGirth, Confidence: DetectHigh}
	case mean < diameterMeanMax:
		return DiameterDetection{Type: TypeDiameter, Confidence: DetectHigh}
	}

	if percentile(samples, 0.75) > girthP75Min {
		return DiameterDetection{Type: TypeGirth, Confidence: DetectMedium}
	}
	return DiameterDetection{Type: TypeDiameter, Confidence: DetectMedium}
}

// percentile returns the nearest-rank p-quantile of vs.
func percentile(vs []float64, p float64) float64 {
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
