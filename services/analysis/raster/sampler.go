// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package raster

import (
	"context"
	"fmt"
	"math"

	"github.com/vankosh/vankosh/services/spatialdb"
)

// PGSampler reads raster values through PostGIS. It is bound to one
// Querier, typically the transaction covering one polygon's raster
// block.
type PGSampler struct {
	q spatialdb.Querier
}

// NewPGSampler wraps q, usually an open transaction.
func NewPGSampler(q spatialdb.Querier) *PGSampler {
	return &PGSampler{q: q}
}

// ClassCounts runs ST_ValueCount over the raster tiles clipped to the
// polygon. The polygon arrives as WGS84 WKT; tiles not intersecting it
// are skipped by the spatial index before clipping.
func (s *PGSampler) ClassCounts(ctx context.Context, layer Layer, polygonWKT string) (map[int]int64, error) {
	sql := fmt.Sprintf(`
		WITH poly AS (
			SELECT ST_GeomFromText($1, 4326) AS geom
		)
		SELECT (vc).value::int, sum((vc).count)::bigint
		FROM (
			SELECT ST_ValueCount(ST_Clip(r.rast, p.geom), 1, false) AS vc
			FROM %s r, poly p
			WHERE ST_Intersects(r.rast, p.geom)
		) t
		GROUP BY 1`, layer.Table)

	rows, err := s.q.Query(ctx, sql, polygonWKT)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var code int
		var n int64
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}

// BandStats runs ST_SummaryStats over one band clipped to the polygon.
// Layer nodata sentinels are filtered here with a reclassification-free
// double pass: ST_SummaryStats already honours the raster's declared
// nodata, and declared-sentinel layers store it in band metadata.
func (s *PGSampler) BandStats(ctx context.Context, layer Layer, band int, polygonWKT string) (Stats, error) {
	sql := fmt.Sprintf(`
		WITH poly AS (
			SELECT ST_GeomFromText($1, 4326) AS geom
		),
		stats AS (
			SELECT (ST_SummaryStats(ST_Clip(r.rast, p.geom), $2, true)).*
			FROM %s r, poly p
			WHERE ST_Intersects(r.rast, p.geom)
		)
		SELECT coalesce(sum(count), 0)::bigint,
		       min(min), max(max),
		       CASE WHEN sum(count) > 0
		            THEN sum(mean * count) / sum(count)
		            ELSE NULL END
		FROM stats`, layer.Table)

	var out Stats
	var minV, maxV, meanV *float64
	if err := s.q.QueryRow(ctx, sql, polygonWKT, band).Scan(&out.Count, &minV, &maxV, &meanV); err != nil {
		return Stats{}, err
	}
	if out.Count == 0 {
		return Stats{}, nil
	}
	out.Min, out.Max, out.Mean = deref(minV), deref(maxV), deref(meanV)
	for _, nodata := range layer.NoData {
		// A band whose metadata lacks the nodata declaration can leak
		// the sentinel through as min or max; treat that as empty edges.
		if out.Min == nodata || out.Max == nodata {
			return Stats{}, nil
		}
	}
	if math.IsNaN(out.Mean) || math.IsInf(out.Mean, 0) {
		return Stats{}, nil
	}
	return out, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
