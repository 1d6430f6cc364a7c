// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the tree inventory domain types shared by
// the validator, volume engine, retention selector, stores and exporters.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// Classification is a tree's post-processing role.
type Classification string

const (
	// MotherTree is the retention tree selected for its grid cell.
	MotherTree Classification = "Mother Tree"
	// FellingTree is a non-seedling tree not selected for retention.
	FellingTree Classification = "Felling Tree"
	// Seedling is any tree with DBH below 10 cm; never harvested and
	// never eligible for retention.
	Seedling Classification = "Seedling"
)

// IsValid reports whether c is a recognised classification.
func (c Classification) IsValid() bool {
	return c == MotherTree || c == FellingTree || c == Seedling
}

// QualityClass grades stem quality A (best) to C. The validator defaults
// missing values to ClassB.
type QualityClass string

const (
	ClassA QualityClass = "A"
	ClassB QualityClass = "B"
	ClassC QualityClass = "C"
)

// IsValid reports whether q is a recognised quality class.
func (q QualityClass) IsValid() bool {
	return q == ClassA || q == ClassB || q == ClassC
}

// SeedlingMaxDBHCm is the exclusive DBH bound below which a tree is a
// seedling. A tree at exactly 10.0 cm is the smallest felling-eligible
// tree.
const SeedlingMaxDBHCm = 10.0

// Volumes holds the per-tree derived quantities in fixed units.
type Volumes struct {
	StemM3         float64 `json:"stem_volume"`
	BranchM3       float64 `json:"branch_volume"`
	TreeM3         float64 `json:"tree_volume"`
	GrossM3        float64 `json:"gross_volume"`
	NetM3          float64 `json:"net_volume"`
	NetCft         float64 `json:"net_volume_cft"`
	FirewoodM3     float64 `json:"firewood_m3"`
	FirewoodChatta float64 `json:"firewood_chatta"`
}

// Tree is one normalised inventory row.
//
// Location is always WGS84 after validation, regardless of the upload's
// CRS. GridCellID is set only on mother trees.
type Tree struct {
	ID        int64 `json:"id"`
	RowNumber int   `json:"row_number"`

	SpeciesCode    int    `json:"species_code"`
	ScientificName string `json:"species"`
	LocalName      string `json:"local_name,omitempty"`

	DBHCm       float64      `json:"dia_cm"`
	HeightM     float64      `json:"height_m"`
	HeightKnown bool         `json:"height_known"`
	Quality     QualityClass `json:"tree_class"`

	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`

	Volumes        Volumes        `json:"volumes"`
	Classification Classification `json:"classification"`
	GridCellID     int64          `json:"grid_cell_id,omitempty"`
	Remark         string         `json:"remark,omitempty"`
}

// IsSeedling reports whether the tree falls under the seedling bound.
func (t *Tree) IsSeedling() bool {
	return t.DBHCm < SeedlingMaxDBHCm
}

// Status is the inventory lifecycle state.
type Status string

const (
	StatusValidated  Status = "validated"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusValidated, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Summary aggregates an inventory's persisted trees. It is a pure
// function of the tree rows (see Summarize) so recomputation reproduces
// the stored values exactly.
type Summary struct {
	TreeCount     int `json:"tree_count"`
	MotherCount   int `json:"mother_count"`
	FellingCount  int `json:"felling_count"`
	SeedlingCount int `json:"seedling_count"`

	TotalStemM3      float64 `json:"total_stem_m3"`
	TotalBranchM3    float64 `json:"total_branch_m3"`
	TotalNetM3       float64 `json:"total_net_m3"`
	TotalNetCft      float64 `json:"total_net_cft"`
	TotalFirewoodM3  float64 `json:"total_firewood_m3"`
	TotalFirewoodCht float64 `json:"total_firewood_chatta"`
}

// Summarize folds tree rows into a Summary in row order, which keeps the
// floating-point accumulation deterministic.
func Summarize(trees []Tree) Summary {
	var s Summary
	s.TreeCount = len(trees)
	for i := range trees {
		t := &trees[i]
		switch t.Classification {
		case MotherTree:
			s.MotherCount++
		case FellingTree:
			s.FellingCount++
		case Seedling:
			s.SeedlingCount++
		}
		s.TotalStemM3 += t.Volumes.StemM3
		s.TotalBranchM3 += t.Volumes.BranchM3
		s.TotalNetM3 += t.Volumes.NetM3
		s.TotalNetCft += t.Volumes.NetCft
		s.TotalFirewoodM3 += t.Volumes.FirewoodM3
		s.TotalFirewoodCht += t.Volumes.FirewoodChatta
	}
	return s
}

// Inventory is one uploaded tree record set.
type Inventory struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`

	// CalculationID optionally links the inventory to a boundary
	// calculation over the same forest.
	CalculationID *uuid.UUID `json:"calculation_id,omitempty"`

	GridSpacingM float64 `json:"grid_spacing_m"`
	// TargetCRS is the projected system used for metric operations
	// (grid selection), chosen from the data's extent.
	TargetCRS string `json:"target_crs"`

	Status  Status  `json:"status"`
	Summary Summary `json:"summary"`
}
