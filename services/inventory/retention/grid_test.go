// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
)

// plotTrees lays out n trees on a regular lattice inside a square plot
// of the given side (metres), anchored near Bharatpur, and returns them
// with WGS84 locations.
func plotTrees(t *testing.T, n int, sideM float64) []datatypes.Tree {
	t.Helper()
	inv, err := geo.Projector(geo.UTM44N, geo.WGS84Geographic)
	require.NoError(t, err)

	// Projected anchor inside zone 44N (central Nepal lowlands).
	const originX, originY = 300_000.0, 3_060_000.0

	cols := 1
	for cols*cols < n {
		cols++
	}
	step := sideM / float64(cols)

	trees := make([]datatypes.Tree, 0, n)
	for i := 0; i < n; i++ {
		x := originX + (float64(i%cols)+0.5)*step
		y := originY + (float64(i/cols)+0.5)*step
		lon, lat, err := inv(x, y)
		require.NoError(t, err)
		trees = append(trees, datatypes.Tree{
			ID: int64(i + 1), RowNumber: i + 1,
			DBHCm: 25, Longitude: lon, Latitude: lat,
		})
	}
	return trees
}

func classCounts(as []Assignment) (mother, felling, seedling int) {
	for _, a := range as {
		switch a.Classification {
		case datatypes.MotherTree:
			mother++
		case datatypes.FellingTree:
			felling++
		case datatypes.Seedling:
			seedling++
		}
	}
	return
}

// Seed scenario: 99 trees on a quarter-hectare plot with 20 m spacing
// produce one mother per occupied cell (a 3x3 grid) and felling trees
// for the remainder.
func TestSelectQuarterHectarePlot(t *testing.T) {
	trees := plotTrees(t, 99, 50)
	as, err := Select(trees, 20, geo.UTM44N)
	require.NoError(t, err)
	require.Len(t, as, 99)

	mother, felling, seedling := classCounts(as)
	assert.Equal(t, 9, mother)
	assert.Equal(t, 90, felling)
	assert.Zero(t, seedling)

	// Exactly one mother per occupied cell.
	seen := map[int64]bool{}
	for _, a := range as {
		if a.Classification == datatypes.MotherTree {
			assert.False(t, seen[a.GridCellID], "cell %d selected twice", a.GridCellID)
			seen[a.GridCellID] = true
		} else {
			assert.Zero(t, a.GridCellID)
		}
	}
}

func TestSelectConservation(t *testing.T) {
	trees := plotTrees(t, 40, 60)
	// Sprinkle seedlings.
	trees[3].DBHCm = 4
	trees[17].DBHCm = 9.9

	as, err := Select(trees, 20, geo.UTM44N)
	require.NoError(t, err)
	mother, felling, seedling := classCounts(as)
	assert.Equal(t, len(trees), mother+felling+seedling)
	assert.Equal(t, 2, seedling)
}

// A coarser grid merges cells, so the felling count cannot decrease.
func TestSelectSpacingMonotonicity(t *testing.T) {
	trees := plotTrees(t, 60, 80)
	fine, err := Select(trees, 10, geo.UTM44N)
	require.NoError(t, err)
	coarse, err := Select(trees, 40, geo.UTM44N)
	require.NoError(t, err)

	_, fellingFine, _ := classCounts(fine)
	_, fellingCoarse, _ := classCounts(coarse)
	assert.GreaterOrEqual(t, fellingCoarse, fellingFine)
}

// Exercised on exact projected coordinates so the two candidates are
// genuinely equidistant from the centroid.
func TestAssignCellsTieBreakSmallestID(t *testing.T) {
	trees := []datatypes.Tree{
		{ID: 7, DBHCm: 30},
		{ID: 2, DBHCm: 30},
	}
	// One 20 m cell anchored at the leftmost tree; the centroid sits at
	// x=10 between two trees 10 m away on either side.
	eligible := []projected{
		{idx: 0, x: 0, y: 10},
		{idx: 1, x: 20, y: 10},
	}
	out := []Assignment{
		{TreeID: 7, Classification: datatypes.FellingTree},
		{TreeID: 2, Classification: datatypes.FellingTree},
	}
	assignCells(trees, eligible, 20, out)

	assert.Equal(t, datatypes.MotherTree, out[1].Classification)
	assert.Equal(t, datatypes.FellingTree, out[0].Classification)
	assert.Equal(t, int64(1), out[1].GridCellID)
}

func TestSelectRejectsBadInput(t *testing.T) {
	_, err := Select(nil, 0, geo.UTM44N)
	assert.Error(t, err)
	_, err = Select(nil, 20, geo.WGS84Geographic)
	assert.Error(t, err)
}

func TestSelectAllSeedlings(t *testing.T) {
	trees := plotTrees(t, 5, 20)
	for i := range trees {
		trees[i].DBHCm = 3
	}
	as, err := Select(trees, 20, geo.UTM44N)
	require.NoError(t, err)
	mother, felling, seedling := classCounts(as)
	assert.Zero(t, mother)
	assert.Zero(t, felling)
	assert.Equal(t, 5, seedling)
}
