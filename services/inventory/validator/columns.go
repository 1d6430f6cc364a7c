// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validator

import "strings"

// Role names a column's meaning in the inventory table.
type Role string

const (
	RoleSpecies  Role = "species"
	RoleDiameter Role = "diameter"
	RoleHeight   Role = "height"
	RoleX        Role = "x"
	RoleY        Role = "y"
	RoleClass    Role = "class"
)

// requiredRoles must all be present for processing to proceed.
var requiredRoles = []Role{RoleSpecies, RoleDiameter, RoleX, RoleY}

// roleAliases is the declarative alias table: exact (normalised) header
// names first, then substrings of at least three characters. Field crews
// name columns freely, so matching is case-insensitive and tolerant of
// decoration like units ("girth_cm").
var roleAliases = map[Role]struct {
	exact      []string
	substrings []string
}{
	RoleX: {
		exact:      []string{"longitude", "long", "lon", "lng", "x", "easting", "coord_x"},
		substrings: []string{"longitude", "easting"},
	},
	RoleY: {
		exact:      []string{"latitude", "lat", "y", "northing", "coord_y"},
		substrings: []string{"latitude", "northing"},
	},
	RoleDiameter: {
		exact:      []string{"dia_cm", "diameter", "dbh", "girth", "gbh"},
		substrings: []string{"diameter", "dbh", "girth", "gbh", "dia"},
	},
	RoleHeight: {
		exact:      []string{"height_m", "height", "tree_height", "ht"},
		substrings: []string{"height"},
	},
	RoleClass: {
		exact:      []string{"class", "tree_class", "quality_class"},
		substrings: []string{"class"},
	},
	RoleSpecies: {
		exact:      []string{"species", "scientific_name", "tree_species"},
		substrings: []string{"species", "scientific"},
	},
}

// rolePriority fixes the claim order so detection is deterministic:
// specific roles claim their columns before the single-letter coordinate
// aliases get a chance to misfire.
var rolePriority = []Role{RoleSpecies, RoleDiameter, RoleHeight, RoleClass, RoleX, RoleY}

// normalizeHeader lowercases and trims a header cell, converting spaces
// and dashes to underscores so "Dia (cm)" and "dia_cm" compare alike.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Trim(h, "\uFEFF") // stray BOM on the first header
	repl := strings.NewReplacer(" ", "_", "-", "_", "(", "", ")", "", ".", "_")
	h = repl.Replace(h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}

// detectColumns maps roles to column indexes. Each column serves at most
// one role; each role claims at most one column (the leftmost match).
func detectColumns(header []string) map[Role]int {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}

	claimed := make(map[int]bool, len(header))
	out := make(map[Role]int)

	match := func(role Role, test func(string, string) bool, patterns []string) {
		if _, done := out[role]; done {
			return
		}
		for _, p := range patterns {
			for i, h := range norm {
				if claimed[i] || h == "" {
					continue
				}
				if test(h, p) {
					out[role] = i
					claimed[i] = true
					return
				}
			}
		}
	}

	// Exact aliases for every role first, then substring fallbacks.
	for _, role := range rolePriority {
		match(role, func(h, p string) bool { return h == p }, roleAliases[role].exact)
	}
	for _, role := range rolePriority {
		match(role, strings.Contains, roleAliases[role].substrings)
	}
	return out
}
