// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package species holds the canonical tree species catalog and the
// matcher that resolves free-text species tokens against it.
//
// The catalog is loaded once at process start and treated as immutable
// afterwards; replacing it requires a restart. All matcher state is
// derived from the catalog at construction, so Match is safe for
// concurrent use.
package species

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Species is one canonical catalog record with its allometric
// coefficients.
//
// The coefficients (A, B, C) parameterise the logarithmic stem-volume
// equation, (A1, B1) the branch-ratio form, and (S, M, BG) the
// firewood/top/recovery ratios. They are table data: the volume engine
// applies one fixed functional form to whatever values the table carries.
type Species struct {
	Code           int      `json:"code"`
	ScientificName string   `json:"scientific_name"`
	LocalName      string   `json:"local_name,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`

	A  float64 `json:"a"`
	B  float64 `json:"b"`
	C  float64 `json:"c"`
	A1 float64 `json:"a1"`
	B1 float64 `json:"b1"`
	S  float64 `json:"s"`
	M  float64 `json:"m"`
	BG float64 `json:"bg"`

	MaxDBHCm   float64 `json:"max_dbh_cm"`
	MaxHeightM float64 `json:"max_height_m"`
	// Typical height/diameter ratio range (height m over DBH cm, times
	// 100), used for consistency warnings and seedling default heights.
	HDRatioMin float64 `json:"hd_ratio_min"`
	HDRatioMax float64 `json:"hd_ratio_max"`

	Active bool `json:"active"`
}

// Genus returns the first word of the scientific name, lowercased.
func (s *Species) Genus() string {
	parts := strings.Fields(strings.ToLower(s.ScientificName))
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// Epithet returns the second word of the scientific name, lowercased.
func (s *Species) Epithet() string {
	parts := strings.Fields(strings.ToLower(s.ScientificName))
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// TypicalHDRatio returns the midpoint of the typical H/D ratio range,
// falling back to 100 when the range is unset.
func (s *Species) TypicalHDRatio() float64 {
	if s.HDRatioMin <= 0 || s.HDRatioMax <= 0 {
		return 100
	}
	return (s.HDRatioMin + s.HDRatioMax) / 2
}

// Catalog is the immutable set of active species keyed by code.
//
// # Thread Safety
//
// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	byCode  map[int]*Species
	ordered []*Species // sorted by scientific name; deterministic iteration
}

// NewCatalog builds a catalog from records, dropping inactive species.
// Duplicate codes and duplicate active scientific names are rejected.
func NewCatalog(records []Species) (*Catalog, error) {
	c := &Catalog{byCode: make(map[int]*Species, len(records))}
	seenNames := make(map[string]bool, len(records))
	for i := range records {
		sp := records[i]
		if !sp.Active {
			continue
		}
		if sp.ScientificName == "" {
			return nil, fmt.Errorf("species code %d has no scientific name", sp.Code)
		}
		if _, dup := c.byCode[sp.Code]; dup {
			return nil, fmt.Errorf("duplicate species code %d", sp.Code)
		}
		nameKey := strings.ToLower(sp.ScientificName)
		if seenNames[nameKey] {
			return nil, fmt.Errorf("duplicate scientific name %q", sp.ScientificName)
		}
		seenNames[nameKey] = true
		c.byCode[sp.Code] = &sp
		c.ordered = append(c.ordered, &sp)
	}
	if len(c.ordered) == 0 {
		return nil, fmt.Errorf("catalog has no active species")
	}
	sort.Slice(c.ordered, func(i, j int) bool {
		return c.ordered[i].ScientificName < c.ordered[j].ScientificName
	})
	return c, nil
}

// ByCode looks up a species by its numeric code.
func (c *Catalog) ByCode(code int) (*Species, bool) {
	sp, ok := c.byCode[code]
	return sp, ok
}

// All returns the active species in scientific-name order. Callers must
// not mutate the returned slice or records.
func (c *Catalog) All() []*Species {
	return c.ordered
}

// Len returns the number of active species.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// rowQuerier is the subset of pgx used by LoadCatalog, satisfied by
// *pgxpool.Pool and pgx.Tx alike.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadCatalog reads the active species table at process start.
func LoadCatalog(ctx context.Context, q rowQuerier) (*Catalog, error) {
	const sql = `
		SELECT code, scientific_name, COALESCE(local_name, ''),
		       COALESCE(aliases, '{}'),
		       a, b, c, a1, b1, s, m, bg,
		       max_dbh_cm, max_height_m, hd_ratio_min, hd_ratio_max
		FROM species
		WHERE active
		ORDER BY code`

	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("querying species table: %w", err)
	}
	defer rows.Close()

	var records []Species
	for rows.Next() {
		sp := Species{Active: true}
		if err := rows.Scan(
			&sp.Code, &sp.ScientificName, &sp.LocalName, &sp.Aliases,
			&sp.A, &sp.B, &sp.C, &sp.A1, &sp.B1, &sp.S, &sp.M, &sp.BG,
			&sp.MaxDBHCm, &sp.MaxHeightM, &sp.HDRatioMin, &sp.HDRatioMax,
		); err != nil {
			return nil, fmt.Errorf("scanning species row: %w", err)
		}
		records = append(records, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading species table: %w", err)
	}
	return NewCatalog(records)
}
