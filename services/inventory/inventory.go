// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inventory orchestrates the tree inventory pipeline: upload
// validation, volume computation, retention selection, persistence and
// export.
//
// An inventory moves validated -> processing -> completed, or to failed
// when the bulk insert cannot commit. Processing revalidates the
// resubmitted bytes so the derived rows always correspond to the report
// the client acknowledged; the whole pipeline is deterministic for
// equal input bytes.
//
// # Thread Safety
//
// Service is safe for concurrent use. Each call works on its own data;
// shared state is limited to the read-only species catalog and the
// connection pool behind the store.
package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vankosh/vankosh/pkg/config"
	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/pkg/logging"
	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/allometry"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
	"github.com/vankosh/vankosh/services/inventory/export"
	"github.com/vankosh/vankosh/services/inventory/retention"
	"github.com/vankosh/vankosh/services/inventory/validator"
	"github.com/vankosh/vankosh/services/species"
)

// Store is the persistence surface the service needs. *store.InventoryStore
// satisfies it; tests substitute stubs.
type Store interface {
	SaveInventory(ctx context.Context, inv *datatypes.Inventory) error
	GetInventory(ctx context.Context, owner string, id uuid.UUID) (*datatypes.Inventory, error)
	InsertTrees(ctx context.Context, inventoryID uuid.UUID, trees []datatypes.Tree) error
	LoadTrees(ctx context.Context, inventoryID uuid.UUID) ([]datatypes.Tree, error)
	SaveValidationLog(ctx context.Context, inventoryID uuid.UUID, report *validator.Report) error
	UpdateClassifications(ctx context.Context, inventoryID uuid.UUID, trees []datatypes.Tree) error
	DeleteInventory(ctx context.Context, owner string, id uuid.UUID) error
}

// UploadResult is the outcome of an upload. Inventory is nil when the
// report carries fatal errors.
type UploadResult struct {
	Report    *validator.Report    `json:"report"`
	Inventory *datatypes.Inventory `json:"inventory,omitempty"`
}

// Service drives the inventory lifecycle.
type Service struct {
	validator *validator.Validator
	catalog   *species.Catalog
	store     Store
	cfg       config.Inventory
	logger    *slog.Logger
}

// New builds the service over a species catalog and a store.
func New(catalog *species.Catalog, store Store, cfg config.Inventory) *Service {
	return &Service{
		validator: validator.New(species.NewMatcher(catalog)),
		catalog:   catalog,
		store:     store,
		cfg:       cfg,
		logger:    logging.Component("inventory"),
	}
}

// Upload validates the tabular bytes and, when no fatal issue is found,
// registers a new inventory in the validated state. The validation
// report is persisted beside the header so the acknowledgement trail
// survives the upload call.
func (s *Service) Upload(ctx context.Context, req *datatypes.UploadInventoryRequest) (*UploadResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	report, trees := s.validator.Validate(req.Data, s.validatorOptions(req.UserCRS, req.AllowSwap))
	if !report.ReadyForProcessing {
		s.logger.Info("upload rejected by validation",
			"owner", req.Principal, "fatal", len(report.Fatal))
		return &UploadResult{Report: report}, nil
	}

	spacing := req.GridSpacingM
	if spacing <= 0 {
		spacing = s.cfg.GridSpacingM
	}

	inv := &datatypes.Inventory{
		ID:           uuid.New(),
		Owner:        req.Principal,
		CreatedAt:    time.Now().UTC(),
		GridSpacingM: spacing,
		TargetCRS:    string(targetZone(trees)),
		Status:       datatypes.StatusValidated,
	}
	if req.CalculationID != "" {
		id, err := uuid.Parse(req.CalculationID)
		if err != nil {
			return nil, errkind.Wrap(errkind.InvalidInput, err, "parsing calculation link")
		}
		inv.CalculationID = &id
	}

	if err := s.store.SaveInventory(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.store.SaveValidationLog(ctx, inv.ID, report); err != nil {
		return nil, err
	}

	s.logger.Info("inventory uploaded",
		"inventory_id", inv.ID, "owner", inv.Owner,
		"rows", report.RowCount, "target_crs", inv.TargetCRS)
	return &UploadResult{Report: report, Inventory: inv}, nil
}

// Process runs the volume and retention pipeline over a validated
// upload and bulk-inserts the derived rows. The insert is all or
// nothing; on failure the inventory lands in the failed state and can
// be reprocessed with the same bytes.
func (s *Service) Process(ctx context.Context, req *datatypes.ProcessInventoryRequest) (*datatypes.Inventory, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(req.InventoryID)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, err, "parsing inventory id")
	}

	inv, err := s.store.GetInventory(ctx, req.Principal, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == datatypes.StatusProcessing {
		return nil, errkind.New(errkind.InvalidInput,
			"inventory %s is already being processed", id)
	}

	report, trees := s.validator.Validate(req.Data, s.validatorOptions(req.UserCRS, req.AllowSwap))
	if !report.ReadyForProcessing {
		return nil, errkind.New(errkind.InvalidInput,
			"resubmitted data has %d fatal validation errors", len(report.Fatal))
	}

	inv.Status = datatypes.StatusProcessing
	if err := s.store.SaveInventory(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.derive(trees, geo.System(inv.TargetCRS), inv.GridSpacingM); err != nil {
		return nil, s.fail(ctx, inv, err)
	}
	inv.Summary = datatypes.Summarize(trees)

	if err := s.store.InsertTrees(ctx, id, trees); err != nil {
		return nil, s.fail(ctx, inv, err)
	}

	inv.Status = datatypes.StatusCompleted
	if err := s.store.SaveInventory(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("inventory processed",
		"inventory_id", id, "trees", inv.Summary.TreeCount,
		"mothers", inv.Summary.MotherCount, "seedlings", inv.Summary.SeedlingCount)
	return inv, nil
}

// derive fills in volumes and classifications in place: allometric
// volumes per tree in row order, then grid retention over the whole
// set. Assignments come back in input order, so they apply by index.
func (s *Service) derive(trees []datatypes.Tree, zone geo.System, spacingM float64) error {
	for i := range trees {
		t := &trees[i]
		sp, ok := s.catalog.ByCode(t.SpeciesCode)
		if !ok {
			return errkind.New(errkind.Internal,
				"row %d: species code %d missing from catalog", t.RowNumber, t.SpeciesCode)
		}
		res := allometry.Compute(sp, t.DBHCm, t.HeightM, t.HeightKnown)
		t.Volumes = res.Volumes
		t.Classification = res.Classification
		if !t.HeightKnown {
			t.HeightM = res.EffectiveHeightM
		}
	}

	assignments, err := retention.Select(trees, spacingM, zone)
	if err != nil {
		return err
	}
	for i, a := range assignments {
		trees[i].Classification = a.Classification
		trees[i].GridCellID = a.GridCellID
	}
	return nil
}

// fail parks the inventory in the failed state, preserving the original
// error for the caller. The status save is best effort on a detached
// context so a cancelled request still records the failure.
func (s *Service) fail(ctx context.Context, inv *datatypes.Inventory, cause error) error {
	inv.Status = datatypes.StatusFailed
	if err := s.store.SaveInventory(context.WithoutCancel(ctx), inv); err != nil {
		s.logger.Error("recording failed status", "inventory_id", inv.ID, "error", err)
	}
	s.logger.Error("inventory processing failed", "inventory_id", inv.ID, "error", cause)
	return cause
}

// Get loads the inventory header and summary.
func (s *Service) Get(ctx context.Context, owner string, id uuid.UUID) (*datatypes.Inventory, error) {
	return s.store.GetInventory(ctx, owner, id)
}

// Trees loads the derived rows of a processed inventory.
func (s *Service) Trees(ctx context.Context, owner string, id uuid.UUID) ([]datatypes.Tree, error) {
	if _, err := s.store.GetInventory(ctx, owner, id); err != nil {
		return nil, err
	}
	return s.store.LoadTrees(ctx, id)
}

// Export serialises a processed inventory in the requested format.
func (s *Service) Export(ctx context.Context, req *datatypes.ExportRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(req.InventoryID)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, err, "parsing inventory id")
	}

	inv, err := s.store.GetInventory(ctx, req.Principal, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != datatypes.StatusCompleted {
		return nil, errkind.New(errkind.InvalidInput,
			"inventory %s is %s, not completed", id, inv.Status)
	}

	trees, err := s.store.LoadTrees(ctx, id)
	if err != nil {
		return nil, err
	}
	switch req.Format {
	case datatypes.FormatGeoJSON:
		return export.GeoJSON(trees)
	default:
		return export.CSV(trees)
	}
}

// Regrid re-runs retention selection over a completed inventory with a
// new grid spacing, updating classifications and cell assignments in
// place. Volumes are untouched; only the mother-tree selection moves.
func (s *Service) Regrid(ctx context.Context, owner string, id uuid.UUID, spacingM float64) (*datatypes.Inventory, error) {
	if spacingM <= 0 {
		return nil, errkind.New(errkind.InvalidInput, "grid spacing must be positive, got %g", spacingM)
	}
	inv, err := s.store.GetInventory(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != datatypes.StatusCompleted {
		return nil, errkind.New(errkind.InvalidInput,
			"inventory %s is %s, not completed", id, inv.Status)
	}

	trees, err := s.store.LoadTrees(ctx, id)
	if err != nil {
		return nil, err
	}
	assignments, err := retention.Select(trees, spacingM, geo.System(inv.TargetCRS))
	if err != nil {
		return nil, err
	}
	for i, a := range assignments {
		trees[i].Classification = a.Classification
		trees[i].GridCellID = a.GridCellID
	}
	if err := s.store.UpdateClassifications(ctx, id, trees); err != nil {
		return nil, err
	}

	inv.GridSpacingM = spacingM
	inv.Summary = datatypes.Summarize(trees)
	if err := s.store.SaveInventory(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Delete removes the inventory with its trees and validation log.
func (s *Service) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	return s.store.DeleteInventory(ctx, owner, id)
}

func (s *Service) validatorOptions(userCRS geo.System, allowSwap bool) validator.Options {
	return validator.Options{
		UserCRS:        userCRS,
		AllowSwap:      allowSwap,
		FuzzyThreshold: s.cfg.FuzzyThreshold,
	}
}

// targetZone picks the projected system for metric grid operations from
// the mean longitude of the validated rows.
func targetZone(trees []datatypes.Tree) geo.System {
	if len(trees) == 0 {
		return geo.UTM45N
	}
	var sum float64
	for i := range trees {
		sum += trees[i].Longitude
	}
	return geo.ZoneForLongitude(sum / float64(len(trees)))
}
