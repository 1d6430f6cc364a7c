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

// ExportFormat selects an export serializer.
type ExportFormat string

const (
	FormatCSV     ExportFormat = "csv"
	FormatGeoJSON ExportFormat = "geojson"
)

// IsValid reports whether f is a supported format.
func (f ExportFormat) IsValid() bool {
	return f == FormatCSV || f == FormatGeoJSON
}

// UploadInventoryRequest submits a tabular tree file for validation.
type UploadInventoryRequest struct {
	Principal string `json:"principal" validate:"required"`
	Data      []byte `json:"data" validate:"required"`

	// UserCRS optionally overrides coordinate-system detection when the
	// data alone is ambiguous.
	UserCRS geo.System `json:"user_crs,omitempty"`
	// AllowSwap accepts lat/lon column order and auto-corrects it
	// instead of failing the upload.
	AllowSwap bool `json:"allow_swap,omitempty"`

	// GridSpacingM overrides the configured retention-grid spacing.
	// Zero means use the service default.
	GridSpacingM float64 `json:"grid_spacing_m,omitempty" validate:"omitempty,gt=0"`

	// CalculationID optionally links the inventory to a boundary
	// calculation over the same forest.
	CalculationID string `json:"calculation_id,omitempty" validate:"omitempty,uuid"`
}

// Validate checks shape.
func (r *UploadInventoryRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return errkind.Wrap(errkind.InvalidInput, err, "invalid upload request")
	}
	if r.UserCRS != "" && !r.UserCRS.IsValid() {
		return errkind.New(errkind.InvalidInput, "unknown coordinate system %q", r.UserCRS)
	}
	return nil
}

// ProcessInventoryRequest runs the volume and retention pipeline over a
// validated upload. The same bytes must be resubmitted; processing
// revalidates them so the derived rows match the acknowledged report.
type ProcessInventoryRequest struct {
	Principal   string `json:"principal" validate:"required"`
	InventoryID string `json:"inventory_id" validate:"required,uuid"`
	Data        []byte `json:"data" validate:"required"`

	UserCRS   geo.System `json:"user_crs,omitempty"`
	AllowSwap bool       `json:"allow_swap,omitempty"`
}

// Validate checks shape.
func (r *ProcessInventoryRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return errkind.Wrap(errkind.InvalidInput, err, "invalid process request")
	}
	if r.UserCRS != "" && !r.UserCRS.IsValid() {
		return errkind.New(errkind.InvalidInput, "unknown coordinate system %q", r.UserCRS)
	}
	return nil
}

// ExportRequest serialises a processed inventory.
type ExportRequest struct {
	Principal   string       `json:"principal" validate:"required"`
	InventoryID string       `json:"inventory_id" validate:"required,uuid"`
	Format      ExportFormat `json:"format" validate:"required"`
}

// Validate checks shape and the format selector.
func (r *ExportRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return errkind.Wrap(errkind.InvalidInput, err, "invalid export request")
	}
	if !r.Format.IsValid() {
		return errkind.New(errkind.InvalidInput, "unsupported export format %q", r.Format)
	}
	return nil
}
