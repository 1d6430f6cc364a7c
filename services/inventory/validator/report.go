// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validator

import (
	"github.com/vankosh/vankosh/services/geo"
)

// Severity partitions issues into the three report lists.
type Severity string

const (
	// SeverityFatal bars processing.
	SeverityFatal Severity = "fatal"
	// SeverityWarning allows processing after acknowledgement.
	SeverityWarning Severity = "warning"
	// SeverityInfo records an auto-applied correction.
	SeverityInfo Severity = "info"
)

// Issue kinds beyond the errkind set; these name auto-corrections and
// consistency findings rather than failures.
const (
	KindGirthToDiameter  = "girth_to_diameter"
	KindSpeciesCorrected = "species_corrected"
	KindHeightDefaulted  = "height_defaulted"
	KindSwapColumns      = "swap_columns"
	KindAxesSwapped      = "axes_swapped"
	KindDuplicateCoords  = "duplicate_coordinates"
	KindPerfectGrid      = "perfect_grid"
	KindHDRatio          = "hd_ratio_outlier"
	KindOutsideNepal     = "outside_nepal_bounds"
	KindOverSpeciesMax   = "over_species_max"
	KindClassDefaulted   = "class_defaulted"
)

// Issue is one finding, row-scoped when Row > 0.
type Issue struct {
	Row        int     `json:"row_number,omitempty"`
	Column     string  `json:"column,omitempty"`
	Original   string  `json:"original,omitempty"`
	Corrected  string  `json:"corrected,omitempty"`
	Severity   Severity `json:"severity"`
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SampleConversion illustrates one girth-to-diameter conversion in the
// report.
type SampleConversion struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Report is the full validation result for one upload. Rebuilding it
// from the same input bytes yields an identical document.
type Report struct {
	// Columns maps each detected role to the original header name.
	Columns map[string]string `json:"columns"`

	CRS     geo.Detection `json:"crs"`
	UserCRS geo.System    `json:"user_crs,omitempty"`

	DiameterType      DiameterDetection  `json:"diameter_type"`
	SampleConversions []SampleConversion `json:"sample_conversions,omitempty"`

	RowCount int `json:"row_count"`

	Fatal    []Issue `json:"fatal_errors"`
	Warnings []Issue `json:"warnings"`
	Info     []Issue `json:"info"`

	ReadyForProcessing bool `json:"ready_for_processing"`
}

func (r *Report) add(i Issue) {
	switch i.Severity {
	case SeverityFatal:
		r.Fatal = append(r.Fatal, i)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, i)
	default:
		r.Info = append(r.Info, i)
	}
}

// fatalf appends a fatal issue.
func (r *Report) fatalf(i Issue) {
	i.Severity = SeverityFatal
	r.add(i)
}
