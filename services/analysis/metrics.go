// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	polygonsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vankosh_analysis_polygons_processed_total",
		Help: "Polygons fully processed, with or without slot errors.",
	})
	polygonFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vankosh_analysis_polygon_failures_total",
		Help: "Polygons whose document carries at least one error entry.",
	})
	layerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vankosh_analysis_layer_failures_total",
		Help: "Raster layer aggregations that failed.",
	}, []string{"layer"})
	calculationsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vankosh_analysis_calculations_total",
		Help: "Calculations finished, by terminal status.",
	}, []string{"status"})
	polygonDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vankosh_analysis_polygon_duration_seconds",
		Help:    "Wall time spent on one polygon, raster and proximity included.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
