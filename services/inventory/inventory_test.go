// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vankosh/vankosh/pkg/config"
	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
	"github.com/vankosh/vankosh/services/inventory/validator"
	"github.com/vankosh/vankosh/services/species"
)

// memStore keeps everything in maps; fail hooks inject store errors.
type memStore struct {
	invs    map[uuid.UUID]*datatypes.Inventory
	trees   map[uuid.UUID][]datatypes.Tree
	reports map[uuid.UUID]*validator.Report

	failInsert  bool
	reclassCall int
	statuses    []datatypes.Status
}

func newMemStore() *memStore {
	return &memStore{
		invs:    make(map[uuid.UUID]*datatypes.Inventory),
		trees:   make(map[uuid.UUID][]datatypes.Tree),
		reports: make(map[uuid.UUID]*validator.Report),
	}
}

func (m *memStore) SaveInventory(_ context.Context, inv *datatypes.Inventory) error {
	cp := *inv
	m.invs[inv.ID] = &cp
	m.statuses = append(m.statuses, inv.Status)
	return nil
}

func (m *memStore) GetInventory(_ context.Context, owner string, id uuid.UUID) (*datatypes.Inventory, error) {
	inv, ok := m.invs[id]
	if !ok || inv.Owner != owner {
		return nil, errkind.New(errkind.InvalidInput, "inventory %s not found", id)
	}
	cp := *inv
	return &cp, nil
}

func (m *memStore) InsertTrees(_ context.Context, id uuid.UUID, trees []datatypes.Tree) error {
	if m.failInsert {
		return errkind.New(errkind.DBFatal, "synthetic insert failure")
	}
	m.trees[id] = append([]datatypes.Tree(nil), trees...)
	return nil
}

func (m *memStore) LoadTrees(_ context.Context, id uuid.UUID) ([]datatypes.Tree, error) {
	trees := m.trees[id]
	if len(trees) == 0 {
		return nil, errkind.New(errkind.NoTrees, "inventory %s has no trees", id)
	}
	return append([]datatypes.Tree(nil), trees...), nil
}

func (m *memStore) SaveValidationLog(_ context.Context, id uuid.UUID, report *validator.Report) error {
	m.reports[id] = report
	return nil
}

func (m *memStore) UpdateClassifications(_ context.Context, id uuid.UUID, trees []datatypes.Tree) error {
	m.reclassCall++
	m.trees[id] = append([]datatypes.Tree(nil), trees...)
	return nil
}

func (m *memStore) DeleteInventory(_ context.Context, owner string, id uuid.UUID) error {
	if _, ok := m.invs[id]; !ok {
		return errkind.New(errkind.InvalidInput, "inventory %s not found", id)
	}
	delete(m.invs, id)
	delete(m.trees, id)
	delete(m.reports, id)
	return nil
}

func testCatalog(t *testing.T) *species.Catalog {
	t.Helper()
	cat, err := species.NewCatalog([]species.Species{
		{
			Code: 1, ScientificName: "Shorea robusta", LocalName: "Sal",
			A: -2.4554, B: 1.9026, C: 0.8352,
			A1: -0.3412, B1: -1.1100, S: 0.36, M: 0.10, BG: 0.32,
			MaxDBHCm: 180, MaxHeightM: 45, HDRatioMin: 60, HDRatioMax: 120,
			Active: true,
		},
		{
			Code: 2, ScientificName: "Pinus roxburghii", LocalName: "Khote salla",
			A: -2.9770, B: 1.9235, C: 1.0019,
			A1: -0.5850, B1: -0.9305, S: 0.41, M: 0.12, BG: 0.30,
			MaxDBHCm: 150, MaxHeightM: 50, HDRatioMin: 70, HDRatioMax: 140,
			Active: true,
		},
	})
	require.NoError(t, err)
	return cat
}

func testService(t *testing.T, store Store) *Service {
	t.Helper()
	return New(testCatalog(t), store, config.Inventory{GridSpacingM: 20, FuzzyThreshold: 0.85})
}

func csvBytes(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

// cleanUpload has two felling-size Sal, one pine and one Sal seedling,
// spread far enough apart for one mother tree per 20 m grid cell.
func cleanUpload() []byte {
	return csvBytes(
		"species,dia_cm,height_m,tree_class,longitude,latitude",
		"Sal,25,15,B,85.3200,27.6800",
		"Sal,32,18,A,85.32005,27.68005",
		"Pinus roxburghii,40,32,A,85.3260,27.6860",
		"Sal,5,2,B,85.3230,27.6830",
	)
}

func uploaded(t *testing.T, s *Service, store *memStore) *datatypes.Inventory {
	t.Helper()
	res, err := s.Upload(context.Background(), &datatypes.UploadInventoryRequest{
		Principal: "user-1",
		Data:      cleanUpload(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Inventory)
	return res.Inventory
}

func TestUploadCleanFile(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)

	res, err := s.Upload(context.Background(), &datatypes.UploadInventoryRequest{
		Principal: "user-1",
		Data:      cleanUpload(),
	})
	require.NoError(t, err)

	require.True(t, res.Report.ReadyForProcessing, "fatal: %v", res.Report.Fatal)
	require.NotNil(t, res.Inventory)
	assert.Equal(t, datatypes.StatusValidated, res.Inventory.Status)
	assert.Equal(t, "user-1", res.Inventory.Owner)
	assert.InDelta(t, 20.0, res.Inventory.GridSpacingM, 1e-9)
	// East of the 84E boundary.
	assert.Equal(t, string(geo.UTM45N), res.Inventory.TargetCRS)

	assert.Contains(t, store.invs, res.Inventory.ID)
	assert.Contains(t, store.reports, res.Inventory.ID)
}

func TestUploadFatalReturnsReportOnly(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)

	data := csvBytes(
		"species,dia_cm,height_m,tree_class,longitude,latitude",
		"Quercus nonexistia,25,15,B,85.32,27.68",
	)
	res, err := s.Upload(context.Background(), &datatypes.UploadInventoryRequest{
		Principal: "user-1",
		Data:      data,
	})
	require.NoError(t, err)

	assert.False(t, res.Report.ReadyForProcessing)
	assert.Nil(t, res.Inventory)
	assert.Empty(t, store.invs)
	assert.Empty(t, store.reports)
}

func TestUploadRejectsBadRequest(t *testing.T) {
	s := testService(t, newMemStore())

	_, err := s.Upload(context.Background(), &datatypes.UploadInventoryRequest{Data: cleanUpload()})
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))

	_, err = s.Upload(context.Background(), &datatypes.UploadInventoryRequest{
		Principal: "user-1", Data: cleanUpload(), UserCRS: geo.System("EPSG:3857"),
	})
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func TestProcessLifecycle(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := uploaded(t, s, store)

	got, err := s.Process(context.Background(), &datatypes.ProcessInventoryRequest{
		Principal:   "user-1",
		InventoryID: inv.ID.String(),
		Data:        cleanUpload(),
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusCompleted, got.Status)
	assert.Contains(t, store.statuses, datatypes.StatusProcessing)

	trees := store.trees[inv.ID]
	require.Len(t, trees, 4)

	// Row 5 is the seedling: firewood only, no merchantable volume.
	seedling := trees[3]
	assert.Equal(t, datatypes.Seedling, seedling.Classification)
	assert.Zero(t, seedling.Volumes.StemM3)
	assert.Greater(t, seedling.Volumes.FirewoodM3, 0.0)

	// The two close Sal share a cell: exactly one of them is the mother.
	mothers := 0
	for _, tr := range trees[:3] {
		assert.Greater(t, tr.Volumes.StemM3, 0.0)
		if tr.Classification == datatypes.MotherTree {
			mothers++
			assert.NotZero(t, tr.GridCellID)
		}
	}
	assert.GreaterOrEqual(t, mothers, 1)

	sum := got.Summary
	assert.Equal(t, 4, sum.TreeCount)
	assert.Equal(t, 1, sum.SeedlingCount)
	assert.Equal(t, mothers, sum.MotherCount)
	assert.Equal(t, 3-mothers, sum.FellingCount)
	assert.Greater(t, sum.TotalNetM3, 0.0)
	assert.InDelta(t, sum.TotalNetM3*35.3146667, sum.TotalNetCft, 1e-6)
}

func TestProcessInsertFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := uploaded(t, s, store)

	store.failInsert = true
	_, err := s.Process(context.Background(), &datatypes.ProcessInventoryRequest{
		Principal:   "user-1",
		InventoryID: inv.ID.String(),
		Data:        cleanUpload(),
	})
	require.Error(t, err)
	assert.Equal(t, errkind.DBFatal, errkind.KindOf(err))
	assert.Equal(t, datatypes.StatusFailed, store.invs[inv.ID].Status)

	// A failed inventory can be reprocessed with the same bytes.
	store.failInsert = false
	got, err := s.Process(context.Background(), &datatypes.ProcessInventoryRequest{
		Principal:   "user-1",
		InventoryID: inv.ID.String(),
		Data:        cleanUpload(),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, got.Status)
}

func TestProcessUnknownInventory(t *testing.T) {
	s := testService(t, newMemStore())
	_, err := s.Process(context.Background(), &datatypes.ProcessInventoryRequest{
		Principal:   "user-1",
		InventoryID: uuid.NewString(),
		Data:        cleanUpload(),
	})
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func TestProcessRejectsFatalResubmission(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := uploaded(t, s, store)

	bad := csvBytes(
		"species,dia_cm,height_m,tree_class,longitude,latitude",
		"Quercus nonexistia,25,15,B,85.32,27.68",
	)
	_, err := s.Process(context.Background(), &datatypes.ProcessInventoryRequest{
		Principal:   "user-1",
		InventoryID: inv.ID.String(),
		Data:        bad,
	})
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func processed(t *testing.T, s *Service, store *memStore) *datatypes.Inventory {
	t.Helper()
	inv := uploaded(t, s, store)
	got, err := s.Process(context.Background(), &datatypes.ProcessInventoryRequest{
		Principal:   "user-1",
		InventoryID: inv.ID.String(),
		Data:        cleanUpload(),
	})
	require.NoError(t, err)
	return got
}

func TestExportCSVAndGeoJSON(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := processed(t, s, store)

	out, err := s.Export(context.Background(), &datatypes.ExportRequest{
		Principal: "user-1", InventoryID: inv.ID.String(), Format: datatypes.FormatCSV,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "species,dia_cm,height_m"))
	assert.Contains(t, string(out), "Shorea robusta")

	out, err = s.Export(context.Background(), &datatypes.ExportRequest{
		Principal: "user-1", InventoryID: inv.ID.String(), Format: datatypes.FormatGeoJSON,
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"FeatureCollection"`)
}

func TestExportRequiresCompleted(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := uploaded(t, s, store)

	_, err := s.Export(context.Background(), &datatypes.ExportRequest{
		Principal: "user-1", InventoryID: inv.ID.String(), Format: datatypes.FormatCSV,
	})
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func TestExportRejectsBadFormat(t *testing.T) {
	s := testService(t, newMemStore())
	_, err := s.Export(context.Background(), &datatypes.ExportRequest{
		Principal: "user-1", InventoryID: uuid.NewString(), Format: "xlsx",
	})
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func TestRegrid(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := processed(t, s, store)
	before := inv.Summary.MotherCount

	// A much wider grid cannot select more mothers than the tight one.
	got, err := s.Regrid(context.Background(), "user-1", inv.ID, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, store.reclassCall)
	assert.InDelta(t, 500.0, got.GridSpacingM, 1e-9)
	assert.LessOrEqual(t, got.Summary.MotherCount, before)
	assert.Equal(t, inv.Summary.TreeCount, got.Summary.TreeCount)

	_, err = s.Regrid(context.Background(), "user-1", inv.ID, -1)
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func TestDelete(t *testing.T) {
	store := newMemStore()
	s := testService(t, store)
	inv := uploaded(t, s, store)

	require.NoError(t, s.Delete(context.Background(), "user-1", inv.ID))
	_, err := s.Get(context.Background(), "user-1", inv.ID)
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}
