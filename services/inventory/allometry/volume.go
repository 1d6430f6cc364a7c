// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package allometry computes per-tree volumes from species coefficients.
//
// The functional form is fixed; the coefficients are catalog data:
//
//	stem (m3)   = exp(a + b*ln(DBH) + c*ln(H)) / 1000
//	branch (m3) = stem * exp(a1 + b1*ln(DBH))
//	tree        = stem + branch
//	gross       = tree
//	net         = stem * (1 - m)
//	firewood    = branch*s + stem*m*bg
//
// with DBH in centimetres and height in metres. The equation evaluates
// in the order written above, in double precision, with no intermediate
// rounding; rounding happens only at serialisation. This keeps volume
// outputs bitwise-identical across runs for equal inputs.
package allometry

import (
	"math"

	"github.com/vankosh/vankosh/services/inventory/datatypes"
	"github.com/vankosh/vankosh/services/species"
)

// Unit conversion factors.
const (
	// CubicFeetPerM3 converts cubic metres to cubic feet.
	CubicFeetPerM3 = 35.3146667
	// ChattaPerM3 converts firewood cubic metres to chatta, the local
	// stacked-firewood unit.
	ChattaPerM3 = 3.624
)

// Result couples the computed volumes with the derived classification.
// Classification here is either Seedling or FellingTree; the retention
// selector later promotes chosen felling trees to mother trees.
type Result struct {
	Volumes        datatypes.Volumes
	Classification datatypes.Classification
	// EffectiveHeightM is the height used in the computation: the
	// measured height, or the species-default height when the tree is a
	// seedling or the measurement is missing.
	EffectiveHeightM float64
}

// DefaultHeight estimates height from DBH via the species' typical H/D
// ratio (height m per cm of DBH, times 100).
func DefaultHeight(sp *species.Species, dbhCm float64) float64 {
	return dbhCm * sp.TypicalHDRatio() / 100
}

// Compute derives the volume set for one tree.
//
// Seedlings (DBH < 10 cm) ignore the measured height, take the species
// default instead, and produce firewood-only outputs. Non-seedlings with
// no measured height also fall back to the species default; the
// validator reports that substitution separately.
func Compute(sp *species.Species, dbhCm, heightM float64, heightKnown bool) Result {
	if dbhCm < datatypes.SeedlingMaxDBHCm {
		return computeSeedling(sp, dbhCm)
	}

	h := heightM
	if !heightKnown {
		h = DefaultHeight(sp, dbhCm)
	}

	stem := stemVolumeM3(sp, dbhCm, h)
	branch := stem * branchRatio(sp, dbhCm)
	tree := stem + branch
	gross := tree
	net := stem * (1 - sp.M)
	firewood := branch*sp.S + stem*sp.M*sp.BG

	return Result{
		Volumes: datatypes.Volumes{
			StemM3:         stem,
			BranchM3:       branch,
			TreeM3:         tree,
			GrossM3:        gross,
			NetM3:          net,
			NetCft:         net * CubicFeetPerM3,
			FirewoodM3:     firewood,
			FirewoodChatta: firewood * ChattaPerM3,
		},
		Classification:   datatypes.FellingTree,
		EffectiveHeightM: h,
	}
}

// computeSeedling produces the firewood-only seedling outputs. The whole
// above-ground volume counts as firewood; merchantable volumes are zero.
func computeSeedling(sp *species.Species, dbhCm float64) Result {
	h := DefaultHeight(sp, dbhCm)
	stem := stemVolumeM3(sp, dbhCm, h)
	branch := stem * branchRatio(sp, dbhCm)
	firewood := stem + branch

	return Result{
		Volumes: datatypes.Volumes{
			FirewoodM3:     firewood,
			FirewoodChatta: firewood * ChattaPerM3,
		},
		Classification:   datatypes.Seedling,
		EffectiveHeightM: h,
	}
}

// stemVolumeM3 evaluates the logarithmic allometric stem equation. The
// coefficients yield volume in cubic decimetres, hence the /1000.
func stemVolumeM3(sp *species.Species, dbhCm, heightM float64) float64 {
	return math.Exp(sp.A+sp.B*math.Log(dbhCm)+sp.C*math.Log(heightM)) / 1000
}

// branchRatio evaluates the branch-to-stem power form.
func branchRatio(sp *species.Species, dbhCm float64) float64 {
	return math.Exp(sp.A1 + sp.B1*math.Log(dbhCm))
}
