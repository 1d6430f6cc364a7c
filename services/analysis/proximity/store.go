// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package proximity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vankosh/vankosh/services/spatialdb"
)

// featureTables maps classes to their PostGIS tables. Each table has a
// text `name` column and a gist-indexed `geom` column in WGS84.
var featureTables = map[FeatureClass]string{
	Settlements: "nepal_settlements",
	Roads:       "nepal_roads",
	Rivers:      "nepal_rivers",
	Ridges:      "nepal_ridges",
}

// FeatureTables returns every vector table name, for the startup health
// check.
func FeatureTables() []string {
	out := make([]string, 0, len(FeatureClasses))
	for _, class := range FeatureClasses {
		out = append(out, featureTables[class])
	}
	return out
}

// PGSearcher answers direction queries against PostGIS, one
// transaction per call.
type PGSearcher struct {
	db spatialdb.Beginner
}

// NewPGSearcher builds a searcher over the pool.
func NewPGSearcher(db spatialdb.Beginner) *PGSearcher {
	return &PGSearcher{db: db}
}

// FeaturesInDirection finds the unique names of class features within
// p.DistanceM metres of the polygon boundary whose representative
// point falls in the dir quadrant of the centroid. Distance uses the
// geography cast, never raw degrees.
func (s *PGSearcher) FeaturesInDirection(ctx context.Context, p Params, class FeatureClass, dir Direction) ([]string, error) {
	table, ok := featureTables[class]
	if !ok {
		return nil, fmt.Errorf("unknown feature class %q", class)
	}

	from, to := Bounds(dir)
	azimuthCond := "az >= $5 AND az < $6"
	if from > to { // north wraps through 0
		azimuthCond = "(az >= $5 OR az < $6)"
	}

	sql := fmt.Sprintf(`
		WITH poly AS (
			SELECT ST_GeomFromText($1, 4326) AS geom,
			       ST_SetSRID(ST_MakePoint($2, $3), 4326) AS centroid
		),
		nearby AS (
			SELECT DISTINCT f.name,
			       degrees(ST_Azimuth(p.centroid, ST_PointOnSurface(f.geom))) AS az
			FROM %s f, poly p
			WHERE f.name IS NOT NULL AND f.name <> ''
			  AND ST_DWithin(f.geom::geography, p.geom::geography, $4)
		)
		SELECT name FROM nearby WHERE %s ORDER BY name`, table, azimuthCond)

	var names []string
	err := spatialdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql,
			p.PolygonWKT, p.Centroid.X, p.Centroid.Y, p.DistanceM, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
