// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis drives raster aggregation and proximity analysis
// across a calculation's boundary polygons.
//
// # Execution model
//
// Polygons run sequentially in submission order. Each polygon gets two
// fresh transactions: one covering its raster block, one (inside the
// proximity searcher) per direction. A failure in any unit rolls back
// that unit alone; sibling units and sibling polygons are unaffected.
// Documents commit per polygon, so a deadline mid-run leaves every
// finished polygon intact.
//
// # Thread Safety
//
// Orchestrator is immutable after construction; each Run call owns its
// Calculation exclusively.
package analysis

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/google/uuid"

	"github.com/vankosh/vankosh/pkg/config"
	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/pkg/logging"
	"github.com/vankosh/vankosh/services/analysis/datatypes"
	"github.com/vankosh/vankosh/services/analysis/proximity"
	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/spatialdb"
)

// Store persists calculation state. Implemented by
// services/analysis/store; tests substitute a recorder.
type Store interface {
	SaveCalculation(ctx context.Context, calc *datatypes.Calculation) error
}

// BlockRunner executes one polygon's raster block inside a single
// transaction. All failures are embedded in the returned slots; the
// slice is always a prefix of the requested layer order.
type BlockRunner interface {
	RunBlock(ctx context.Context, layers []string, polygonWKT string) []datatypes.LayerSlot
}

// Orchestrator runs calculations end to end.
type Orchestrator struct {
	blocks   BlockRunner
	searcher proximity.Searcher
	store    Store
	cfg      config.Analysis
	logger   *slog.Logger
}

// New wires the orchestrator to PostGIS through the pool.
func New(db spatialdb.Beginner, store Store, cfg config.Analysis) *Orchestrator {
	return NewWithRunners(NewPGBlockRunner(db), proximity.NewPGSearcher(db), store, cfg)
}

// NewWithRunners accepts explicit runners, used by tests to inject
// failing stubs.
func NewWithRunners(blocks BlockRunner, searcher proximity.Searcher, store Store, cfg config.Analysis) *Orchestrator {
	return &Orchestrator{
		blocks:   blocks,
		searcher: searcher,
		store:    store,
		cfg:      cfg,
		logger:   logging.Component("analysis.orchestrator"),
	}
}

// Start validates the request, registers a pending calculation and runs
// it to its terminal status. The calculation is returned in all cases
// where it was created, including partial and failed outcomes.
func (o *Orchestrator) Start(ctx context.Context, req *datatypes.StartCalculationRequest) (*datatypes.Calculation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	calc := &datatypes.Calculation{
		ID:         uuid.New(),
		Owner:      req.Principal,
		ForestName: req.ForestName,
		Boundary:   req.Boundary,
		Options:    req.Options,
		Status:     datatypes.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.Run(ctx, calc); err != nil {
		return calc, err
	}
	return calc, nil
}

// Run processes every boundary polygon, builds the aggregate and marks
// the terminal status. The returned error covers persistence failures
// only; analysis failures land in the documents.
func (o *Orchestrator) Run(ctx context.Context, calc *datatypes.Calculation) error {
	if calc.ForestName == "" {
		return errkind.New(errkind.InvalidInput, "calculation has no forest name")
	}
	if o.cfg.PolygonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx,
			o.cfg.PolygonTimeout*time.Duration(len(calc.Boundary.Blocks)))
		defer cancel()
	}

	calc.Status = datatypes.StatusRunning
	if err := o.store.SaveCalculation(ctx, calc); err != nil {
		return err
	}

	layers := calc.Options.SelectedLayers()
	timedOut := false

	for i := range calc.Boundary.Blocks {
		if ctx.Err() != nil {
			calc.Polygons = append(calc.Polygons, datatypes.PolygonDocument{
				Index: i, BlockName: calc.Boundary.Blocks[i].Name, TimedOut: true,
			})
			timedOut = true
			break
		}
		doc := o.runPolygon(ctx, calc, i, layers)
		calc.Polygons = append(calc.Polygons, doc)
		if doc.TimedOut {
			timedOut = true
		}

		// Commit the document before moving on so partial results
		// survive a later failure.
		if err := o.store.SaveCalculation(context.WithoutCancel(ctx), calc); err != nil {
			return err
		}
		if timedOut {
			break
		}
	}

	calc.Aggregate = BuildAggregate(calc.Polygons)
	calc.Status = terminalStatus(calc.Polygons, len(calc.Boundary.Blocks), timedOut)
	calculationsByStatus.WithLabelValues(string(calc.Status)).Inc()

	o.logger.Info("calculation finished",
		"calculation_id", calc.ID, "forest", calc.ForestName,
		"polygons", len(calc.Polygons), "status", string(calc.Status))

	return o.store.SaveCalculation(context.WithoutCancel(ctx), calc)
}

func (o *Orchestrator) runPolygon(ctx context.Context, calc *datatypes.Calculation, idx int, layers []string) datatypes.PolygonDocument {
	start := time.Now()
	block := calc.Boundary.Blocks[idx]
	doc := datatypes.PolygonDocument{Index: idx, BlockName: block.Name}

	area, err := areaHa(block.Polygon)
	if err != nil {
		o.logger.Error("polygon area computation failed",
			"calculation_id", calc.ID, "polygon", idx, "error", err)
	}
	doc.AreaHa = area

	wkt := geo.PolygonWKT(block.Polygon)

	if len(layers) > 0 {
		doc.Layers = o.blocks.RunBlock(ctx, layers, wkt)
		for _, slot := range doc.Layers {
			if slot.Error != nil {
				layerFailures.WithLabelValues(slot.Layer).Inc()
			}
		}
	}

	if ctx.Err() != nil {
		doc.TimedOut = true
	} else if calc.Options.RunProximity {
		centroid := block.Polygon.Centroid()
		doc.Proximity = proximity.Analyze(ctx, o.searcher, proximity.Params{
			PolygonWKT: wkt,
			Centroid:   centroid,
			DistanceM:  o.cfg.ProximityDistanceM,
		})
		if ctx.Err() != nil {
			doc.TimedOut = true
		}
	}

	polygonsProcessed.Inc()
	if doc.HasErrors() {
		polygonFailures.Inc()
	}
	polygonDuration.Observe(time.Since(start).Seconds())
	return doc
}

// terminalStatus applies the status rule: succeeded only when every
// polygon document exists and is error-free, failed when none is, and
// failed_partial otherwise (a timeout always degrades to partial).
func terminalStatus(docs []datatypes.PolygonDocument, expected int, timedOut bool) datatypes.Status {
	clean := 0
	for i := range docs {
		if !docs[i].HasErrors() {
			clean++
		}
	}
	switch {
	case timedOut:
		return datatypes.StatusFailedPartial
	case clean == expected && len(docs) == expected:
		return datatypes.StatusSucceeded
	case clean == 0:
		return datatypes.StatusFailed
	default:
		return datatypes.StatusFailedPartial
	}
}

// areaHa measures the polygon in its centroid's UTM zone and converts
// to hectares.
func areaHa(p geom.Polygon) (float64, error) {
	zone := geo.UTMForCentroid(p)
	project, err := geo.Projector(geo.WGS84Geographic, zone)
	if err != nil {
		return 0, err
	}
	projected := make(geom.Polygon, len(p))
	for r, ring := range p {
		projected[r] = make([]geom.Point, len(ring))
		for i, pt := range ring {
			x, y, err := project(pt.X, pt.Y)
			if err != nil {
				return 0, err
			}
			projected[r][i] = geom.Point{X: x, Y: y}
		}
	}
	return math.Abs(projected.Area()) / 10_000, nil
}
