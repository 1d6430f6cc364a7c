// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package proximity finds named features near a forest polygon and
// groups them by compass direction around the polygon centroid.
//
// Every (feature class, direction) query runs inside its own
// transaction. A failure nulls that one slot, is logged, and the loop
// continues; the other slots commit independently. Collapsing these
// into one long-lived transaction would let a single failed statement
// poison every later direction.
package proximity

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ctessum/geom"

	"github.com/vankosh/vankosh/pkg/logging"
)

// Direction is one compass quadrant around the polygon centroid.
type Direction string

const (
	North Direction = "north"
	East  Direction = "east"
	South Direction = "south"
	West  Direction = "west"
)

// Directions is the fixed processing order.
var Directions = []Direction{North, East, South, West}

// Quadrant bounds in degrees azimuth (clockwise from north). North
// wraps through 0.
var quadrants = map[Direction][2]float64{
	North: {315, 45},
	East:  {45, 135},
	South: {135, 225},
	West:  {225, 315},
}

// Bounds returns the azimuth interval [from, to) of a direction.
func Bounds(d Direction) (from, to float64) {
	b := quadrants[d]
	return b[0], b[1]
}

// FeatureClass names one vector layer.
type FeatureClass string

const (
	Settlements FeatureClass = "settlements"
	Roads       FeatureClass = "roads"
	Rivers      FeatureClass = "rivers"
	Ridges      FeatureClass = "ridges"
)

// FeatureClasses is the fixed enumeration order.
var FeatureClasses = []FeatureClass{Settlements, Roads, Rivers, Ridges}

// DirectionSet holds the unique feature names per quadrant for one
// class. A nil slice means that direction's query failed; an empty
// non-nil slice means it succeeded and found nothing.
type DirectionSet struct {
	North []string `json:"features_north"`
	East  []string `json:"features_east"`
	South []string `json:"features_south"`
	West  []string `json:"features_west"`
}

func (s *DirectionSet) set(d Direction, names []string) {
	switch d {
	case North:
		s.North = names
	case East:
		s.East = names
	case South:
		s.South = names
	case West:
		s.West = names
	}
}

// Get returns the slice for one direction.
func (s *DirectionSet) Get(d Direction) []string {
	switch d {
	case North:
		return s.North
	case East:
		return s.East
	case South:
		return s.South
	default:
		return s.West
	}
}

// Result maps feature classes to their direction sets, plus the errors
// of failed slots keyed "class/direction".
type Result struct {
	Classes map[FeatureClass]*DirectionSet `json:"classes"`
	Errors  map[string]string              `json:"errors,omitempty"`
}

// Params fixes one polygon's query inputs.
type Params struct {
	// PolygonWKT is the boundary polygon in WGS84 WKT.
	PolygonWKT string
	// Centroid of the polygon, WGS84. Directions are measured from it.
	Centroid geom.Point
	// DistanceM is the search radius from the polygon boundary, metres.
	DistanceM float64
}

// Searcher fetches the unique feature names of one class within one
// quadrant, inside its own transaction. The PostGIS implementation is
// in store.go; tests substitute failing stubs to exercise isolation.
type Searcher interface {
	FeaturesInDirection(ctx context.Context, p Params, class FeatureClass, dir Direction) ([]string, error)
}

// Analyze runs the class × direction grid in fixed order. Failed slots
// stay nil in the result and are recorded in Errors; sibling slots are
// unaffected.
func Analyze(ctx context.Context, s Searcher, p Params) *Result {
	logger := logging.Component("analysis.proximity")

	res := &Result{Classes: make(map[FeatureClass]*DirectionSet, len(FeatureClasses))}
	for _, class := range FeatureClasses {
		set := &DirectionSet{}
		res.Classes[class] = set
		for _, dir := range Directions {
			names, err := s.FeaturesInDirection(ctx, p, class, dir)
			if err != nil {
				if res.Errors == nil {
					res.Errors = make(map[string]string)
				}
				res.Errors[string(class)+"/"+string(dir)] = err.Error()
				logDirectionFailure(logger, class, dir, err)
				continue
			}
			if names == nil {
				names = []string{}
			}
			sort.Strings(names)
			set.set(dir, names)
		}
	}
	return res
}

func logDirectionFailure(logger *slog.Logger, class FeatureClass, dir Direction, err error) {
	logger.Error("proximity direction failed, continuing with remaining directions",
		"class", string(class), "direction", string(dir), "error", err)
}

// Merge unions per-direction name sets across polygons for the
// boundary aggregate.
func Merge(results []*Result) *Result {
	merged := &Result{Classes: make(map[FeatureClass]*DirectionSet, len(FeatureClasses))}
	for _, class := range FeatureClasses {
		set := &DirectionSet{}
		merged.Classes[class] = set
		for _, dir := range Directions {
			seen := map[string]bool{}
			found := false
			for _, r := range results {
				src, ok := r.Classes[class]
				if !ok || src.Get(dir) == nil {
					continue
				}
				found = true
				for _, name := range src.Get(dir) {
					seen[name] = true
				}
			}
			if !found {
				continue
			}
			names := make([]string, 0, len(seen))
			for name := range seen {
				names = append(names, name)
			}
			sort.Strings(names)
			set.set(dir, names)
		}
	}
	return merged
}
