// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/pkg/validation"
	"github.com/vankosh/vankosh/services/geo"
)

// StartCalculationRequest starts one boundary analysis.
type StartCalculationRequest struct {
	Principal  string   `json:"principal" validate:"required"`
	ForestName string   `json:"forest_name" validate:"required"`
	Boundary   Boundary `json:"boundary"`
	Options    Options  `json:"options"`
}

// Validate checks shape and polygon validity.
func (r *StartCalculationRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return errkind.Wrap(errkind.InvalidInput, err, "invalid calculation request")
	}
	if len(r.Boundary.Blocks) == 0 {
		return errkind.New(errkind.InvalidInput, "boundary must contain at least one polygon")
	}
	for i, block := range r.Boundary.Blocks {
		if err := geo.ValidatePolygon(block.Polygon); err != nil {
			return errkind.Wrap(errkind.InvalidInput, err, "boundary polygon %d", i)
		}
	}
	return nil
}

// AnnotateCalculationRequest updates the annotation on a terminal
// calculation, the only permitted mutation of a finished record.
type AnnotateCalculationRequest struct {
	Principal     string `json:"principal" validate:"required"`
	CalculationID string `json:"calculation_id" validate:"required,uuid"`
	Annotation    string `json:"annotation" validate:"max=4096"`
}

// Validate checks shape.
func (r *AnnotateCalculationRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return errkind.Wrap(errkind.InvalidInput, err, "invalid annotation request")
	}
	return nil
}
