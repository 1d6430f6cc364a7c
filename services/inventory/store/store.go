// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists inventories, their tree rows and validation
// logs.
//
// Trees go to the wire in pgx batches of 1,000 rows, primitives only.
// The whole insert shares one transaction: a failure in any batch rolls
// back the entire inventory, never leaving a partial row set behind.
package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
	"github.com/vankosh/vankosh/services/inventory/validator"
	"github.com/vankosh/vankosh/services/spatialdb"
)

// BatchSize is the number of tree rows sent per pgx batch.
const BatchSize = 1000

// InventoryStore reads and writes inventory state.
type InventoryStore struct {
	db spatialdb.Beginner
	q  spatialdb.Querier
}

// New builds a store over the pool. The pool serves plain reads; bulk
// writes open their own transaction.
func New(db spatialdb.Beginner, q spatialdb.Querier) *InventoryStore {
	return &InventoryStore{db: db, q: q}
}

// SaveInventory upserts the inventory header row.
func (s *InventoryStore) SaveInventory(ctx context.Context, inv *datatypes.Inventory) error {
	summary, err := json.Marshal(inv.Summary)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "encoding summary")
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO inventories (
			inventory_id, owner, calculation_id, grid_spacing_m,
			target_crs, status, summary, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (inventory_id) DO UPDATE SET
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			target_crs = EXCLUDED.target_crs`,
		inv.ID, inv.Owner, inv.CalculationID, inv.GridSpacingM,
		inv.TargetCRS, string(inv.Status), summary, inv.CreatedAt)
	if err != nil {
		return errkind.Wrap(spatialdb.Classify(err), err, "upserting inventory %s", inv.ID)
	}
	return nil
}

// GetInventory loads one inventory header.
func (s *InventoryStore) GetInventory(ctx context.Context, owner string, id uuid.UUID) (*datatypes.Inventory, error) {
	var (
		inv     datatypes.Inventory
		status  string
		summary []byte
	)
	err := s.q.QueryRow(ctx, `
		SELECT inventory_id, owner, calculation_id, grid_spacing_m,
		       target_crs, status, summary, created_at
		FROM inventories
		WHERE owner = $1 AND inventory_id = $2`,
		owner, id).Scan(
		&inv.ID, &inv.Owner, &inv.CalculationID, &inv.GridSpacingM,
		&inv.TargetCRS, &status, &summary, &inv.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errkind.New(errkind.InvalidInput, "inventory %s not found", id)
	}
	if err != nil {
		return nil, errkind.Wrap(spatialdb.Classify(err), err, "loading inventory %s", id)
	}
	inv.Status = datatypes.Status(status)
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &inv.Summary); err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "decoding summary")
		}
	}
	return &inv, nil
}

// InsertTrees writes all tree rows for an inventory in one transaction,
// batched 1,000 rows per round trip. Any failure rolls back the whole
// set.
func (s *InventoryStore) InsertTrees(ctx context.Context, inventoryID uuid.UUID, trees []datatypes.Tree) error {
	return spatialdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM inventory_trees WHERE inventory_id = $1`, inventoryID); err != nil {
			return errkind.Wrap(spatialdb.Classify(err), err, "clearing previous tree rows")
		}
		for start := 0; start < len(trees); start += BatchSize {
			end := start + BatchSize
			if end > len(trees) {
				end = len(trees)
			}
			if err := insertBatch(ctx, tx, inventoryID, trees[start:end]); err != nil {
				return err
			}
			// Cancellation is honoured between batches, never inside
			// one.
			if err := ctx.Err(); err != nil {
				return errkind.Wrap(errkind.TimedOut, err, "tree insert interrupted")
			}
		}
		return nil
	})
}

func insertBatch(ctx context.Context, tx pgx.Tx, inventoryID uuid.UUID, trees []datatypes.Tree) error {
	batch := &pgx.Batch{}
	for i := range trees {
		t := &trees[i]
		batch.Queue(`
			INSERT INTO inventory_trees (
				inventory_id, row_number, species_code, scientific_name, local_name,
				dia_cm, height_m, height_known, tree_class,
				geom,
				stem_volume, branch_volume, tree_volume, gross_volume,
				net_volume, net_volume_cft, firewood_m3, firewood_chatta,
				classification, grid_cell_id, remark
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9,
				ST_SetSRID(ST_MakePoint($10, $11), 4326),
				$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
			)`,
			inventoryID, t.RowNumber, t.SpeciesCode, t.ScientificName, t.LocalName,
			t.DBHCm, t.HeightM, t.HeightKnown, string(t.Quality),
			t.Longitude, t.Latitude,
			t.Volumes.StemM3, t.Volumes.BranchM3, t.Volumes.TreeM3, t.Volumes.GrossM3,
			t.Volumes.NetM3, t.Volumes.NetCft, t.Volumes.FirewoodM3, t.Volumes.FirewoodChatta,
			string(t.Classification), t.GridCellID, t.Remark)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range trees {
		if _, err := results.Exec(); err != nil {
			return errkind.Wrap(spatialdb.Classify(err), err, "inserting tree batch")
		}
	}
	return results.Close()
}

// LoadTrees returns an inventory's trees in row order.
func (s *InventoryStore) LoadTrees(ctx context.Context, inventoryID uuid.UUID) ([]datatypes.Tree, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, row_number, species_code, scientific_name, local_name,
		       dia_cm, height_m, height_known, tree_class,
		       ST_X(geom), ST_Y(geom),
		       stem_volume, branch_volume, tree_volume, gross_volume,
		       net_volume, net_volume_cft, firewood_m3, firewood_chatta,
		       classification, grid_cell_id, remark
		FROM inventory_trees
		WHERE inventory_id = $1
		ORDER BY row_number`, inventoryID)
	if err != nil {
		return nil, errkind.Wrap(spatialdb.Classify(err), err, "loading trees for %s", inventoryID)
	}
	defer rows.Close()

	var trees []datatypes.Tree
	for rows.Next() {
		var t datatypes.Tree
		var class, classification string
		if err := rows.Scan(
			&t.ID, &t.RowNumber, &t.SpeciesCode, &t.ScientificName, &t.LocalName,
			&t.DBHCm, &t.HeightM, &t.HeightKnown, &class,
			&t.Longitude, &t.Latitude,
			&t.Volumes.StemM3, &t.Volumes.BranchM3, &t.Volumes.TreeM3, &t.Volumes.GrossM3,
			&t.Volumes.NetM3, &t.Volumes.NetCft, &t.Volumes.FirewoodM3, &t.Volumes.FirewoodChatta,
			&classification, &t.GridCellID, &t.Remark); err != nil {
			return nil, errkind.Wrap(spatialdb.Classify(err), err, "scanning tree row")
		}
		t.Quality = datatypes.QualityClass(class)
		t.Classification = datatypes.Classification(classification)
		trees = append(trees, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(spatialdb.Classify(err), err, "reading tree rows")
	}
	if len(trees) == 0 {
		return nil, errkind.New(errkind.NoTrees, "inventory %s has no trees", inventoryID)
	}
	return trees, nil
}

// SaveValidationLog writes the report row and one child row per issue,
// keyed (inventory_id, row_number) so re-validation overwrites cleanly.
func (s *InventoryStore) SaveValidationLog(ctx context.Context, inventoryID uuid.UUID, report *validator.Report) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "encoding validation report")
	}
	return spatialdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO validation_logs (inventory_id, report, row_count, ready)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (inventory_id) DO UPDATE SET
				report = EXCLUDED.report,
				row_count = EXCLUDED.row_count,
				ready = EXCLUDED.ready`,
			inventoryID, doc, report.RowCount, report.ReadyForProcessing); err != nil {
			return errkind.Wrap(spatialdb.Classify(err), err, "upserting validation log")
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM validation_issues WHERE inventory_id = $1`, inventoryID); err != nil {
			return errkind.Wrap(spatialdb.Classify(err), err, "clearing previous issues")
		}

		batch := &pgx.Batch{}
		queue := func(issues []validator.Issue) {
			for _, issue := range issues {
				batch.Queue(`
					INSERT INTO validation_issues (
						inventory_id, row_number, col, original, corrected,
						severity, kind, message, confidence
					) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					inventoryID, issue.Row, issue.Column, issue.Original, issue.Corrected,
					string(issue.Severity), issue.Kind, issue.Message, issue.Confidence)
			}
		}
		queue(report.Fatal)
		queue(report.Warnings)
		queue(report.Info)
		if batch.Len() == 0 {
			return nil
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				return errkind.Wrap(spatialdb.Classify(err), err, "inserting validation issue")
			}
		}
		return results.Close()
	})
}

// UpdateClassifications applies retention results to stored rows in
// one transaction, batched like the insert.
func (s *InventoryStore) UpdateClassifications(ctx context.Context, inventoryID uuid.UUID, trees []datatypes.Tree) error {
	return spatialdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		for start := 0; start < len(trees); start += BatchSize {
			end := start + BatchSize
			if end > len(trees) {
				end = len(trees)
			}
			batch := &pgx.Batch{}
			for i := start; i < end; i++ {
				t := &trees[i]
				batch.Queue(`
					UPDATE inventory_trees
					SET classification = $3, grid_cell_id = $4
					WHERE inventory_id = $1 AND row_number = $2`,
					inventoryID, t.RowNumber, string(t.Classification), t.GridCellID)
			}
			results := tx.SendBatch(ctx, batch)
			for i := 0; i < batch.Len(); i++ {
				if _, err := results.Exec(); err != nil {
					results.Close()
					return errkind.Wrap(spatialdb.Classify(err), err, "updating classifications")
				}
			}
			if err := results.Close(); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteInventory removes the inventory and all dependent rows.
func (s *InventoryStore) DeleteInventory(ctx context.Context, owner string, id uuid.UUID) error {
	return spatialdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM inventories WHERE owner = $1 AND inventory_id = $2`, owner, id)
		if err != nil {
			return errkind.Wrap(spatialdb.Classify(err), err, "deleting inventory %s", id)
		}
		if tag.RowsAffected() == 0 {
			return errkind.New(errkind.InvalidInput, "inventory %s not found", id)
		}
		for _, stmt := range []string{
			`DELETE FROM inventory_trees WHERE inventory_id = $1`,
			`DELETE FROM validation_issues WHERE inventory_id = $1`,
			`DELETE FROM validation_logs WHERE inventory_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return errkind.Wrap(spatialdb.Classify(err), err, "deleting inventory children")
			}
		}
		return nil
	})
}
