// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vankosh/vankosh/pkg/config"
	"github.com/vankosh/vankosh/services/analysis/datatypes"
	"github.com/vankosh/vankosh/services/analysis/proximity"
	"github.com/vankosh/vankosh/services/analysis/raster"
)

// stubBlocks returns one successful slot per layer, except the layers
// listed in fail for the given polygon call index.
type stubBlocks struct {
	calls int
	fail  map[int]string // call index -> failing layer
}

func (s *stubBlocks) RunBlock(_ context.Context, layers []string, _ string) []datatypes.LayerSlot {
	call := s.calls
	s.calls++
	var slots []datatypes.LayerSlot
	for _, name := range layers {
		if s.fail[call] == name {
			slots = append(slots, datatypes.LayerSlot{
				Layer: name,
				Error: &datatypes.SlotError{Kind: "DB_FATAL", Message: "synthetic"},
			})
			// Layers after a failure stay unrun.
			return slots
		}
		layer, _ := raster.Lookup(name)
		slots = append(slots, datatypes.LayerSlot{
			Layer:  name,
			Result: raster.AssembleCategorical(layer, map[int]int64{1: 10, 2: 20}),
		})
	}
	return slots
}

type stubSearcher struct{}

func (stubSearcher) FeaturesInDirection(_ context.Context, _ proximity.Params, _ proximity.FeatureClass, _ proximity.Direction) ([]string, error) {
	return []string{"Bharatpur"}, nil
}

type recordingStore struct {
	saves    int
	statuses []datatypes.Status
}

func (r *recordingStore) SaveCalculation(_ context.Context, calc *datatypes.Calculation) error {
	r.saves++
	r.statuses = append(r.statuses, calc.Status)
	return nil
}

func testBoundary(n int) datatypes.Boundary {
	var b datatypes.Boundary
	for i := 0; i < n; i++ {
		offset := float64(i) * 0.2
		b.Blocks = append(b.Blocks, datatypes.Block{
			Name: "block",
			Polygon: geom.Polygon{{
				{X: 84.4 + offset, Y: 27.6}, {X: 84.5 + offset, Y: 27.6},
				{X: 84.5 + offset, Y: 27.7}, {X: 84.4 + offset, Y: 27.7},
				{X: 84.4 + offset, Y: 27.6},
			}},
		})
	}
	return b
}

func testCalc(n int) *datatypes.Calculation {
	opts := datatypes.Options{
		RunRasterAnalysis: true, RunSlope: true, RunAspect: true,
		RunProximity: true,
	}
	return &datatypes.Calculation{
		ID: uuid.New(), Owner: "user-1", ForestName: "Kankali CF",
		Boundary: testBoundary(n), Options: opts,
		Status: datatypes.StatusPending,
	}
}

func TestStartRunsToTerminalStatus(t *testing.T) {
	store := &recordingStore{}
	o := NewWithRunners(&stubBlocks{}, stubSearcher{}, store, config.Analysis{})

	calc, err := o.Start(context.Background(), &datatypes.StartCalculationRequest{
		Principal:  "user-1",
		ForestName: "Kankali CF",
		Boundary:   testBoundary(1),
		Options:    datatypes.Options{RunRasterAnalysis: true, RunSlope: true},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, calc.ID)
	assert.Equal(t, "user-1", calc.Owner)
	assert.Equal(t, datatypes.StatusSucceeded, calc.Status)
	assert.False(t, calc.CreatedAt.IsZero())
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	o := NewWithRunners(&stubBlocks{}, stubSearcher{}, &recordingStore{}, config.Analysis{})

	_, err := o.Start(context.Background(), &datatypes.StartCalculationRequest{
		Principal: "user-1",
		Boundary:  testBoundary(1),
	})
	assert.Error(t, err)
}

func TestRunAllPolygonsSucceed(t *testing.T) {
	store := &recordingStore{}
	o := NewWithRunners(&stubBlocks{}, stubSearcher{}, store, config.Analysis{ProximityDistanceM: 3000})

	calc := testCalc(2)
	require.NoError(t, o.Run(context.Background(), calc))

	assert.Equal(t, datatypes.StatusSucceeded, calc.Status)
	require.Len(t, calc.Polygons, 2)
	for i, doc := range calc.Polygons {
		assert.Equal(t, i, doc.Index)
		assert.Len(t, doc.Layers, 2)
		assert.False(t, doc.HasErrors())
		assert.Greater(t, doc.AreaHa, 0.0)
		require.NotNil(t, doc.Proximity)
	}

	require.NotNil(t, calc.Aggregate)
	assert.Greater(t, calc.Aggregate.TotalAreaHa, 0.0)
	assert.NotNil(t, calc.Aggregate.Layers[raster.LayerSlope])

	// Running save, one per polygon, terminal save.
	assert.Equal(t, 4, store.saves)
	assert.Equal(t, datatypes.StatusRunning, store.statuses[0])
}

// One polygon's raster failure degrades the calculation to
// failed_partial without touching the other polygon's document.
func TestRunPartialFailure(t *testing.T) {
	store := &recordingStore{}
	blocks := &stubBlocks{fail: map[int]string{0: raster.LayerAspect}}
	o := NewWithRunners(blocks, stubSearcher{}, store, config.Analysis{})

	calc := testCalc(2)
	require.NoError(t, o.Run(context.Background(), calc))

	assert.Equal(t, datatypes.StatusFailedPartial, calc.Status)
	require.Len(t, calc.Polygons, 2)

	first := calc.Polygons[0]
	assert.True(t, first.HasErrors())
	// Slope committed before aspect failed; the slots are a prefix.
	require.Len(t, first.Layers, 2)
	assert.NotNil(t, first.Layers[0].Result)
	assert.NotNil(t, first.Layers[1].Error)

	assert.False(t, calc.Polygons[1].HasErrors())
}

func TestRunAllPolygonsFail(t *testing.T) {
	store := &recordingStore{}
	blocks := &stubBlocks{fail: map[int]string{0: raster.LayerSlope, 1: raster.LayerSlope}}
	o := NewWithRunners(blocks, stubSearcher{}, store, config.Analysis{})

	calc := testCalc(2)
	calc.Options.RunProximity = false
	require.NoError(t, o.Run(context.Background(), calc))

	assert.Equal(t, datatypes.StatusFailed, calc.Status)
}

func TestRunDeadlineMarksTimedOut(t *testing.T) {
	store := &recordingStore{}
	o := NewWithRunners(&stubBlocks{}, stubSearcher{}, store, config.Analysis{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calc := testCalc(2)
	require.NoError(t, o.Run(ctx, calc))

	assert.Equal(t, datatypes.StatusFailedPartial, calc.Status)
	require.NotEmpty(t, calc.Polygons)
	assert.True(t, calc.Polygons[0].TimedOut)
}

func TestRunRejectsMissingForestName(t *testing.T) {
	o := NewWithRunners(&stubBlocks{}, stubSearcher{}, &recordingStore{}, config.Analysis{})
	err := o.Run(context.Background(), &datatypes.Calculation{})
	assert.Error(t, err)
}

func TestRunStoreFailureSurfaces(t *testing.T) {
	o := NewWithRunners(&stubBlocks{}, stubSearcher{}, failingStore{}, config.Analysis{})
	err := o.Run(context.Background(), testCalc(1))
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) SaveCalculation(context.Context, *datatypes.Calculation) error {
	return errors.New("save failed")
}

func TestTerminalStatus(t *testing.T) {
	clean := datatypes.PolygonDocument{}
	bad := datatypes.PolygonDocument{
		Layers: []datatypes.LayerSlot{{Error: &datatypes.SlotError{Kind: "DB_FATAL"}}},
	}

	cases := []struct {
		name     string
		docs     []datatypes.PolygonDocument
		expected int
		timedOut bool
		want     datatypes.Status
	}{
		{"all clean", []datatypes.PolygonDocument{clean, clean}, 2, false, datatypes.StatusSucceeded},
		{"one bad", []datatypes.PolygonDocument{clean, bad}, 2, false, datatypes.StatusFailedPartial},
		{"all bad", []datatypes.PolygonDocument{bad, bad}, 2, false, datatypes.StatusFailed},
		{"timed out", []datatypes.PolygonDocument{clean}, 2, true, datatypes.StatusFailedPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, terminalStatus(tc.docs, tc.expected, tc.timedOut))
		})
	}
}
