// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export renders a processed inventory as CSV or GeoJSON.
//
// Both formats carry the same per-tree fields; GeoJSON moves the
// location into the feature geometry. Rows appear in input order, so an
// export is reproducible from the same tree set.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
)

// csvHeader fixes the column order of the CSV export.
var csvHeader = []string{
	"species", "dia_cm", "height_m", "tree_class",
	"longitude", "latitude",
	"stem_volume", "branch_volume", "tree_volume", "gross_volume",
	"net_volume", "net_volume_cft", "firewood_m3", "firewood_chatta",
	"remark", "grid_cell_id",
}

// CSV renders the trees as a UTF-8 CSV document.
func CSV(trees []datatypes.Tree) ([]byte, error) {
	if len(trees) == 0 {
		return nil, errkind.New(errkind.NoTrees, "inventory has no trees to export")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "writing CSV header")
	}
	for i := range trees {
		t := &trees[i]
		rec := []string{
			t.ScientificName,
			num(t.DBHCm),
			heightField(t),
			string(t.Quality),
			coord(t.Longitude),
			coord(t.Latitude),
			vol(t.Volumes.StemM3),
			vol(t.Volumes.BranchM3),
			vol(t.Volumes.TreeM3),
			vol(t.Volumes.GrossM3),
			vol(t.Volumes.NetM3),
			vol(t.Volumes.NetCft),
			vol(t.Volumes.FirewoodM3),
			vol(t.Volumes.FirewoodChatta),
			remarkField(t),
			gridCellField(t),
		}
		if err := w.Write(rec); err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "writing CSV row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "flushing CSV")
	}
	return buf.Bytes(), nil
}

// feature mirrors one GeoJSON feature of the export collection.
type feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

// GeoJSON renders the trees as a FeatureCollection of WGS84 points with
// the tree fields as feature properties.
func GeoJSON(trees []datatypes.Tree) ([]byte, error) {
	if len(trees) == 0 {
		return nil, errkind.New(errkind.NoTrees, "inventory has no trees to export")
	}

	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(trees))}
	for i := range trees {
		t := &trees[i]
		g, err := geojson.ToGeoJSON(geom.Point{X: t.Longitude, Y: t.Latitude})
		if err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "encoding tree point")
		}
		props := map[string]any{
			"species":         t.ScientificName,
			"dia_cm":          t.DBHCm,
			"tree_class":      string(t.Quality),
			"stem_volume":     t.Volumes.StemM3,
			"branch_volume":   t.Volumes.BranchM3,
			"tree_volume":     t.Volumes.TreeM3,
			"gross_volume":    t.Volumes.GrossM3,
			"net_volume":      t.Volumes.NetM3,
			"net_volume_cft":  t.Volumes.NetCft,
			"firewood_m3":     t.Volumes.FirewoodM3,
			"firewood_chatta": t.Volumes.FirewoodChatta,
		}
		if t.HeightKnown || t.HeightM > 0 {
			props["height_m"] = t.HeightM
		}
		if r := remarkField(t); r != "" {
			props["remark"] = r
		}
		if t.Classification == datatypes.MotherTree {
			props["grid_cell_id"] = t.GridCellID
		}
		fc.Features = append(fc.Features, feature{Type: "Feature", Geometry: g, Properties: props})
	}

	out, err := json.Marshal(fc)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "encoding feature collection")
	}
	return out, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func vol(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// heightField leaves the column empty when no height was recorded or
// defaulted.
func heightField(t *datatypes.Tree) string {
	if !t.HeightKnown && t.HeightM == 0 {
		return ""
	}
	return num(t.HeightM)
}

// remarkField prefers the explicit remark and falls back to the
// classification, which is what field books print in that column.
func remarkField(t *datatypes.Tree) string {
	if t.Remark != "" {
		return t.Remark
	}
	return string(t.Classification)
}

func gridCellField(t *datatypes.Tree) string {
	if t.Classification != datatypes.MotherTree {
		return ""
	}
	return strconv.FormatInt(t.GridCellID, 10)
}
