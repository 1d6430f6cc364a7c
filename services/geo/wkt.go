// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"
)

// PolygonWKT renders a polygon as a WKT literal suitable for
// ST_GeomFromText. Coordinates are written with enough precision to
// round-trip float64 values.
func PolygonWKT(p geom.Polygon) string {
	var b strings.Builder
	b.WriteString("POLYGON(")
	for i, ring := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for j, pt := range ring {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%.10g %.10g", pt.X, pt.Y)
		}
		// WKT rings must be explicitly closed.
		if len(ring) > 0 && !ring[0].Equals(ring[len(ring)-1]) {
			fmt.Fprintf(&b, ",%.10g %.10g", ring[0].X, ring[0].Y)
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// ValidatePolygon checks the structural invariants required of an input
// polygon: a non-empty exterior ring with at least three distinct
// vertices, finite coordinates, and positive area. Topological validity
// (self-intersection) is left to the spatial database's ST_IsValid.
func ValidatePolygon(p geom.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	for i, ring := range p {
		n := len(ring)
		if n > 0 && ring[0].Equals(ring[n-1]) {
			n-- // ignore an explicit closing vertex
		}
		if n < 3 {
			return fmt.Errorf("ring %d has %d distinct vertices, need at least 3", i, n)
		}
		for _, pt := range ring {
			if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
				return fmt.Errorf("ring %d contains a non-finite coordinate", i)
			}
		}
	}
	if p.Area() <= 0 {
		return fmt.Errorf("polygon area must be positive")
	}
	return nil
}
