// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package spatialdb owns the PostGIS connection: pool construction,
// startup health checks, the per-unit transaction bracket and transient
// error retry.
//
// Every independently recoverable unit of work (one polygon's raster
// block, one proximity direction, one tree batch) runs inside its own
// transaction via WithTx, so a failure rolls back that unit and nothing
// else.
package spatialdb

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vankosh/vankosh/pkg/config"
	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/pkg/logging"
)

// Querier is the query surface shared by pools, connections and
// transactions. Stores accept it so tests can substitute stubs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connect builds the pgx pool from the database configuration and
// verifies connectivity with a ping.
func Connect(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errkind.Wrap(errkind.DBFatal, err, "parsing database config")
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errkind.Wrap(errkind.DBFatal, err, "creating connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errkind.Wrap(Classify(err), err, "pinging database")
	}
	return pool, nil
}

// WithTx runs fn inside its own transaction: commit on nil, rollback
// otherwise. The rollback error is ignored because fn's error is the
// one worth reporting.
func WithTx(ctx context.Context, db Beginner, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return errkind.Wrap(Classify(err), err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(Classify(err), err, "committing transaction")
	}
	return nil
}

// Health is the startup health-check result.
type Health struct {
	PostGISVersion string `json:"postgis_version"`
	// MissingIndexes lists feature tables without a gist index; any
	// entry makes the deployment misconfigured.
	MissingIndexes []string `json:"missing_indexes,omitempty"`
	// MissingRasterTables lists absent raster layers. These are
	// informational: analysis returns empty results for them.
	MissingRasterTables []string `json:"missing_raster_tables,omitempty"`
}

// OK reports whether the deployment is usable. Missing raster layers do
// not fail the check; missing spatial indexes do.
func (h Health) OK() bool {
	return h.PostGISVersion != "" && len(h.MissingIndexes) == 0
}

// HealthCheck verifies the PostGIS extension, gist indexes on the given
// feature tables and the presence of the given raster tables.
func HealthCheck(ctx context.Context, q Querier, featureTables, rasterTables []string) (Health, error) {
	var h Health
	logger := logging.Component("spatialdb.health")

	if err := q.QueryRow(ctx, `SELECT PostGIS_Lib_Version()`).Scan(&h.PostGISVersion); err != nil {
		return h, errkind.Wrap(Classify(err), err, "querying PostGIS version")
	}

	for _, table := range featureTables {
		var n int
		err := q.QueryRow(ctx, `
			SELECT count(*) FROM pg_indexes
			WHERE tablename = $1 AND indexdef ILIKE '%USING gist%'`,
			table).Scan(&n)
		if err != nil {
			return h, errkind.Wrap(Classify(err), err, "checking indexes on %s", table)
		}
		if n == 0 {
			h.MissingIndexes = append(h.MissingIndexes, table)
			logger.Error("feature table has no gist index", "table", table)
		}
	}

	for _, table := range rasterTables {
		var exists bool
		err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists)
		if err != nil {
			return h, errkind.Wrap(Classify(err), err, "checking raster table %s", table)
		}
		if !exists {
			h.MissingRasterTables = append(h.MissingRasterTables, table)
			logger.Info("raster table absent, analyses over it will be empty", "table", table)
		}
	}

	logSummary(logger, h)
	return h, nil
}

func logSummary(logger *slog.Logger, h Health) {
	logger.Info("health check complete",
		"postgis", h.PostGISVersion,
		"missing_indexes", len(h.MissingIndexes),
		"missing_raster_tables", len(h.MissingRasterTables),
		"ok", h.OK())
}
