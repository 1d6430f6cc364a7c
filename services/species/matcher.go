// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package species

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// MatchType identifies which strategy produced a match.
type MatchType string

const (
	MatchCode        MatchType = "code"
	MatchExact       MatchType = "exact"
	MatchAlias       MatchType = "alias"
	MatchAbbreviated MatchType = "abbreviated"
	MatchFuzzy       MatchType = "fuzzy"
	MatchNone        MatchType = "none"
)

// Suggestion is a near-miss candidate reported when no match clears the
// threshold.
type Suggestion struct {
	ScientificName string  `json:"scientific_name"`
	Score          float64 `json:"score"`
}

// MatchResult describes the outcome of resolving one species token.
type MatchResult struct {
	Species      *Species     `json:"-"`
	Type         MatchType    `json:"match_type"`
	Confidence   float64      `json:"confidence"`
	MatchedField string       `json:"matched_field,omitempty"`
	Suggestions  []Suggestion `json:"suggestions,omitempty"`
}

// Matched reports whether the result carries a resolved species.
func (r MatchResult) Matched() bool {
	return r.Type != MatchNone
}

// Abbreviated-match base confidences. The final confidence scales up
// toward abbrevCeil with the fraction of the target word the prefix
// covers, keeping every abbreviated hit below an exact match.
const (
	abbrevGenusBase   = 0.70
	abbrevEpithetBase = 0.65
	abbrevPairBase    = 0.80
	abbrevCeil        = 0.95

	// DefaultFuzzyThreshold is the minimum fuzzy score accepted when the
	// caller does not raise it.
	DefaultFuzzyThreshold = 0.85

	maxSuggestions = 5
)

// Matcher resolves species tokens against a catalog.
//
// # Determinism
//
// All strategies are evaluated and the highest-confidence candidate wins,
// so raising the threshold can only demote a match to none, never change
// which species matches. Equal-confidence candidates resolve to the
// lexicographically smallest scientific name.
type Matcher struct {
	catalog *Catalog
}

// NewMatcher builds a matcher over the given catalog.
func NewMatcher(catalog *Catalog) *Matcher {
	return &Matcher{catalog: catalog}
}

// candidate is an internal scoring record.
type candidate struct {
	sp    *Species
	typ   MatchType
	conf  float64
	field string
}

// Match resolves token, accepting only candidates with confidence of at
// least threshold. Fuzzy candidates additionally must clear
// DefaultFuzzyThreshold. A MatchNone result carries up to five
// suggestions ranked by fuzzy score.
func (m *Matcher) Match(token string, threshold float64) MatchResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return MatchResult{Type: MatchNone}
	}

	var cands []candidate

	// Numeric tokens resolve directly by code.
	if code, err := strconv.Atoi(token); err == nil {
		if sp, ok := m.catalog.ByCode(code); ok {
			cands = append(cands, candidate{sp, MatchCode, 1.0, "code"})
		}
	}

	norm := normalizeToken(token)
	cands = append(cands, m.exactCandidates(norm)...)
	cands = append(cands, m.abbreviatedCandidates(norm)...)
	fuzzyFloor := DefaultFuzzyThreshold
	if threshold > fuzzyFloor {
		fuzzyFloor = threshold
	}
	cands = append(cands, m.fuzzyCandidates(norm, fuzzyFloor)...)

	best := pickBest(cands, threshold)
	if best == nil {
		return MatchResult{
			Type:        MatchNone,
			Suggestions: m.suggestions(norm),
		}
	}
	return MatchResult{
		Species:      best.sp,
		Type:         best.typ,
		Confidence:   best.conf,
		MatchedField: best.field,
	}
}

// pickBest returns the highest-confidence candidate at or above
// threshold, breaking confidence ties by scientific name.
func pickBest(cands []candidate, threshold float64) *candidate {
	var best *candidate
	for i := range cands {
		c := &cands[i]
		if c.conf < threshold {
			continue
		}
		if best == nil || c.conf > best.conf ||
			(c.conf == best.conf && c.sp.ScientificName < best.sp.ScientificName) {
			best = c
		}
	}
	return best
}

// normalizeToken lowercases and converts the separators seen in field
// data ("/", "-", "_") to spaces, collapsing runs.
func normalizeToken(token string) string {
	t := strings.ToLower(token)
	for _, sep := range []string{"/", "-", "_"} {
		t = strings.ReplaceAll(t, sep, " ")
	}
	return strings.Join(strings.Fields(t), " ")
}

func (m *Matcher) exactCandidates(norm string) []candidate {
	var out []candidate
	for _, sp := range m.catalog.All() {
		if strings.ToLower(sp.ScientificName) == norm {
			out = append(out, candidate{sp, MatchExact, 1.0, "scientific_name"})
			continue
		}
		if sp.LocalName != "" && strings.ToLower(sp.LocalName) == norm {
			out = append(out, candidate{sp, MatchExact, 1.0, "local_name"})
			continue
		}
		for _, alias := range sp.Aliases {
			if strings.ToLower(alias) == norm {
				out = append(out, candidate{sp, MatchAlias, 1.0, "alias"})
				break
			}
		}
	}
	return out
}

// abbreviatedCandidates handles tokens like "sho rob", "s robusta" or
// "shorea" that prefix-match the genus and/or epithet.
func (m *Matcher) abbreviatedCandidates(norm string) []candidate {
	parts := strings.Fields(norm)
	var out []candidate
	switch len(parts) {
	case 1:
		p := parts[0]
		if len(p) < 3 {
			return nil
		}
		for _, sp := range m.catalog.All() {
			if genus := sp.Genus(); genus != "" && strings.HasPrefix(genus, p) && p != genus {
				out = append(out, candidate{sp, MatchAbbreviated,
					scalePrefix(abbrevGenusBase, len(p), len(genus)), "genus"})
			}
			if epithet := sp.Epithet(); epithet != "" && strings.HasPrefix(epithet, p) && p != epithet {
				out = append(out, candidate{sp, MatchAbbreviated,
					scalePrefix(abbrevEpithetBase, len(p), len(epithet)), "epithet"})
			}
		}
	case 2:
		g, e := parts[0], parts[1]
		for _, sp := range m.catalog.All() {
			genus, epithet := sp.Genus(), sp.Epithet()
			if genus == "" || epithet == "" {
				continue
			}
			if strings.HasPrefix(genus, g) && strings.HasPrefix(epithet, e) {
				ratio := (float64(len(g))/float64(len(genus)) +
					float64(len(e))/float64(len(epithet))) / 2
				out = append(out, candidate{sp, MatchAbbreviated,
					abbrevPairBase + (abbrevCeil-abbrevPairBase)*ratio, "genus+epithet"})
			}
		}
	}
	return out
}

// scalePrefix lifts base toward abbrevCeil with prefix coverage.
func scalePrefix(base float64, prefixLen, wordLen int) float64 {
	return base + (abbrevCeil-base)*float64(prefixLen)/float64(wordLen)
}

func (m *Matcher) fuzzyCandidates(norm string, floor float64) []candidate {
	var out []candidate
	for _, sp := range m.catalog.All() {
		score, field := bestFuzzyScore(norm, sp)
		if score >= floor {
			out = append(out, candidate{sp, MatchFuzzy, score, field})
		}
	}
	return out
}

// bestFuzzyScore returns the best token-sort ratio between the token and
// any of the species' names.
func bestFuzzyScore(norm string, sp *Species) (float64, string) {
	best, field := 0.0, ""
	try := func(name, f string) {
		if name == "" {
			return
		}
		if s := tokenSortRatio(norm, strings.ToLower(name)); s > best {
			best, field = s, f
		}
	}
	try(sp.ScientificName, "scientific_name")
	try(sp.LocalName, "local_name")
	for _, alias := range sp.Aliases {
		try(alias, "alias")
	}
	return best, field
}

// tokenSortRatio computes a Levenshtein similarity ratio on the
// whitespace-tokenised, sorted forms of a and b, so word order does not
// penalise the score.
func tokenSortRatio(a, b string) float64 {
	sa := sortedTokens(a)
	sb := sortedTokens(b)
	if sa == "" || sb == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(sa, sb)
	longest := len([]rune(sa))
	if l := len([]rune(sb)); l > longest {
		longest = l
	}
	return 1 - float64(dist)/float64(longest)
}

func sortedTokens(s string) string {
	fields := strings.Fields(normalizeToken(s))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// suggestions ranks the five closest catalog entries by fuzzy score for
// inclusion in validation reports.
func (m *Matcher) suggestions(norm string) []Suggestion {
	type scored struct {
		name  string
		score float64
	}
	all := make([]scored, 0, m.catalog.Len())
	for _, sp := range m.catalog.All() {
		score, _ := bestFuzzyScore(norm, sp)
		all = append(all, scored{sp.ScientificName, score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].name < all[j].name
	})
	n := maxSuggestions
	if len(all) < n {
		n = len(all)
	}
	out := make([]Suggestion, 0, n)
	for _, s := range all[:n] {
		if s.score <= 0 {
			break
		}
		out = append(out, Suggestion{ScientificName: s.name, Score: s.score})
	}
	return out
}
