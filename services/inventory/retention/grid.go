// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retention selects one mother (retention) tree per occupied
// grid cell.
//
// The inventory extent is tiled into a square metric grid; in every cell
// that holds at least one eligible tree, the tree nearest the cell
// centroid is preserved from harvest. Seedlings are never eligible.
package retention

import (
	"fmt"
	"math"
	"sort"

	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
)

// Assignment is the selector's verdict for one tree.
type Assignment struct {
	TreeID         int64
	Classification datatypes.Classification
	// GridCellID is set only for mother trees. Cells are numbered
	// row-major from the bottom-left corner of the extent, starting at 1.
	GridCellID int64
}

// Select partitions trees into mother, felling and seedling roles.
//
// Trees must carry WGS84 locations; they are projected into zone for the
// metric grid. spacingM is the grid side in metres. The returned
// assignments cover every input tree exactly once, in input order.
//
// Tie-break: when two trees are equidistant from a cell centroid the
// smaller tree ID wins.
func Select(trees []datatypes.Tree, spacingM float64, zone geo.System) ([]Assignment, error) {
	if spacingM <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %g", spacingM)
	}
	if !zone.Projected() {
		return nil, fmt.Errorf("target CRS %q is not a projected system", zone)
	}

	out := make([]Assignment, len(trees))
	var eligible []projected

	transform, err := geo.Projector(geo.WGS84Geographic, zone)
	if err != nil {
		return nil, fmt.Errorf("building projector: %w", err)
	}

	for i := range trees {
		t := &trees[i]
		if t.IsSeedling() {
			out[i] = Assignment{TreeID: t.ID, Classification: datatypes.Seedling}
			continue
		}
		// Provisional: promoted below if selected.
		out[i] = Assignment{TreeID: t.ID, Classification: datatypes.FellingTree}
		x, y, err := transform(t.Longitude, t.Latitude)
		if err != nil {
			return nil, fmt.Errorf("projecting tree %d: %w", t.ID, err)
		}
		eligible = append(eligible, projected{idx: i, x: x, y: y})
	}
	assignCells(trees, eligible, spacingM, out)
	return out, nil
}

// projected is an eligible tree in metric coordinates.
type projected struct {
	idx  int
	x, y float64
}

// assignCells tiles the extent of the projected points and promotes the
// centroid-nearest tree of each occupied cell to mother.
func assignCells(trees []datatypes.Tree, eligible []projected, spacingM float64, out []Assignment) {
	if len(eligible) == 0 {
		return
	}

	minX, minY := eligible[0].x, eligible[0].y
	maxX, maxY := minX, minY
	for _, p := range eligible[1:] {
		minX = math.Min(minX, p.x)
		minY = math.Min(minY, p.y)
		maxX = math.Max(maxX, p.x)
		maxY = math.Max(maxY, p.y)
	}

	nCols := int(math.Ceil((maxX - minX) / spacingM))
	if nCols < 1 {
		nCols = 1
	}
	nRows := int(math.Ceil((maxY - minY) / spacingM))
	if nRows < 1 {
		nRows = 1
	}

	// Bucket eligible trees by cell.
	cells := make(map[int64][]projected)
	for _, p := range eligible {
		col := int((p.x - minX) / spacingM)
		if col >= nCols {
			col = nCols - 1
		}
		row := int((p.y - minY) / spacingM)
		if row >= nRows {
			row = nRows - 1
		}
		id := int64(row)*int64(nCols) + int64(col) + 1
		cells[id] = append(cells[id], p)
	}

	// Deterministic cell visit order.
	ids := make([]int64, 0, len(cells))
	for id := range cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		row := (id - 1) / int64(nCols)
		col := (id - 1) % int64(nCols)
		cx := minX + (float64(col)+0.5)*spacingM
		cy := minY + (float64(row)+0.5)*spacingM

		members := cells[id]
		best := members[0]
		bestDist := distSq(best.x, best.y, cx, cy)
		for _, p := range members[1:] {
			d := distSq(p.x, p.y, cx, cy)
			if d < bestDist || (d == bestDist && trees[p.idx].ID < trees[best.idx].ID) {
				best, bestDist = p, d
			}
		}
		out[best.idx].Classification = datatypes.MotherTree
		out[best.idx].GridCellID = id
	}
}

func distSq(x1, y1, x2, y2 float64) float64 {
	dx, dy := x1-x2, y1-y2
	return dx*dx + dy*dy
}
