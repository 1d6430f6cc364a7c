// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists calculations. The full result lives in JSONB
// blobs; the frequently queried roll-ups (area, dominant slope and
// aspect, carbon stock) are typed columns beside them.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/services/analysis/datatypes"
	"github.com/vankosh/vankosh/services/spatialdb"
)

// CalculationStore reads and writes calculation rows.
type CalculationStore struct {
	q spatialdb.Querier
}

// New builds a store over the pool or a transaction.
func New(q spatialdb.Querier) *CalculationStore {
	return &CalculationStore{q: q}
}

// SaveCalculation upserts the calculation keyed (owner, calculation_id),
// so re-saving on every status change is idempotent.
func (s *CalculationStore) SaveCalculation(ctx context.Context, calc *datatypes.Calculation) error {
	polygons, err := json.Marshal(calc.Polygons)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "encoding polygon documents")
	}
	aggregate, err := json.Marshal(calc.Aggregate)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "encoding aggregate document")
	}
	options, err := json.Marshal(calc.Options)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "encoding options")
	}

	var areaHa, carbon float64
	var domSlope, domAspect string
	if calc.Aggregate != nil {
		areaHa = calc.Aggregate.TotalAreaHa
		domSlope = calc.Aggregate.DominantSlope
		domAspect = calc.Aggregate.DominantAspect
		carbon = calc.Aggregate.CarbonStockT
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO calculations (
			calculation_id, owner, forest_name, options, status,
			polygons, aggregate,
			area_ha, dominant_slope, dominant_aspect, carbon_stock_t,
			annotation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (owner, calculation_id) DO UPDATE SET
			status = EXCLUDED.status,
			polygons = EXCLUDED.polygons,
			aggregate = EXCLUDED.aggregate,
			area_ha = EXCLUDED.area_ha,
			dominant_slope = EXCLUDED.dominant_slope,
			dominant_aspect = EXCLUDED.dominant_aspect,
			carbon_stock_t = EXCLUDED.carbon_stock_t`,
		calc.ID, calc.Owner, calc.ForestName, options, string(calc.Status),
		polygons, aggregate,
		areaHa, domSlope, domAspect, carbon,
		calc.Annotation, calc.CreatedAt)
	if err != nil {
		return errkind.Wrap(spatialdb.Classify(err), err, "upserting calculation %s", calc.ID)
	}
	return nil
}

// GetCalculation loads one calculation with its full documents.
func (s *CalculationStore) GetCalculation(ctx context.Context, owner string, id uuid.UUID) (*datatypes.Calculation, error) {
	var (
		calc      datatypes.Calculation
		status    string
		options   []byte
		polygons  []byte
		aggregate []byte
	)
	err := s.q.QueryRow(ctx, `
		SELECT calculation_id, owner, forest_name, options, status,
		       polygons, aggregate, annotation, created_at
		FROM calculations
		WHERE owner = $1 AND calculation_id = $2`,
		owner, id).Scan(
		&calc.ID, &calc.Owner, &calc.ForestName, &options, &status,
		&polygons, &aggregate, &calc.Annotation, &calc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errkind.New(errkind.InvalidInput, "calculation %s not found", id)
	}
	if err != nil {
		return nil, errkind.Wrap(spatialdb.Classify(err), err, "loading calculation %s", id)
	}

	calc.Status = datatypes.Status(status)
	if err := json.Unmarshal(options, &calc.Options); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "decoding options")
	}
	if len(polygons) > 0 {
		if err := json.Unmarshal(polygons, &calc.Polygons); err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "decoding polygon documents")
		}
	}
	if len(aggregate) > 0 && string(aggregate) != "null" {
		if err := json.Unmarshal(aggregate, &calc.Aggregate); err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "decoding aggregate document")
		}
	}
	return &calc, nil
}

// Annotate updates the annotation, the only mutation allowed on a
// terminal record.
func (s *CalculationStore) Annotate(ctx context.Context, owner string, id uuid.UUID, annotation string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE calculations SET annotation = $3
		WHERE owner = $1 AND calculation_id = $2
		  AND status IN ('succeeded', 'failed_partial', 'failed')`,
		owner, id, annotation)
	if err != nil {
		return errkind.Wrap(spatialdb.Classify(err), err, "annotating calculation %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errkind.New(errkind.InvalidInput,
			"calculation %s not found or not in a terminal state", id)
	}
	return nil
}
