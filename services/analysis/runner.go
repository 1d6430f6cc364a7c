// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/vankosh/vankosh/services/analysis/datatypes"
	"github.com/vankosh/vankosh/services/analysis/raster"
	"github.com/vankosh/vankosh/services/spatialdb"
)

// PGBlockRunner runs a polygon's raster block against PostGIS. The
// whole block shares one read-only transaction; transient failures
// retry the block from the top, and a persistent failure is recorded
// on the failing layer's slot while the layers after it stay unrun.
type PGBlockRunner struct {
	db spatialdb.Beginner
}

// NewPGBlockRunner builds a runner over the pool.
func NewPGBlockRunner(db spatialdb.Beginner) *PGBlockRunner {
	return &PGBlockRunner{db: db}
}

// RunBlock implements BlockRunner.
func (r *PGBlockRunner) RunBlock(ctx context.Context, layers []string, polygonWKT string) []datatypes.LayerSlot {
	var slots []datatypes.LayerSlot

	op := func() error {
		slots = slots[:0]
		return spatialdb.WithTx(ctx, r.db, func(tx pgx.Tx) error {
			sampler := raster.NewPGSampler(tx)
			for _, name := range layers {
				layer, ok := raster.Lookup(name)
				if !ok {
					slots = append(slots, datatypes.LayerSlot{
						Layer: name,
						Error: &datatypes.SlotError{
							Kind:    "INTERNAL",
							Message: "layer not in catalogue",
						},
					})
					continue
				}
				res, err := raster.Aggregate(ctx, sampler, layer, polygonWKT)
				if err != nil {
					slots = append(slots, datatypes.LayerSlot{
						Layer: name,
						Error: &datatypes.SlotError{
							Kind:    string(spatialdb.Classify(err)),
							Message: err.Error(),
						},
					})
					return err
				}
				slots = append(slots, datatypes.LayerSlot{Layer: name, Result: res})
			}
			return nil
		})
	}

	if err := spatialdb.Retry(ctx, op); err != nil && !lastSlotFailed(slots) {
		// Begin or commit failed before any statement ran; pin the
		// error on the first unrun layer so the document shows it.
		layer := ""
		if len(slots) < len(layers) {
			layer = layers[len(slots)]
		}
		slots = append(slots, datatypes.LayerSlot{
			Layer: layer,
			Error: &datatypes.SlotError{
				Kind:    string(spatialdb.Classify(err)),
				Message: err.Error(),
			},
		})
	}
	return slots
}

func lastSlotFailed(slots []datatypes.LayerSlot) bool {
	return len(slots) > 0 && slots[len(slots)-1].Error != nil
}
