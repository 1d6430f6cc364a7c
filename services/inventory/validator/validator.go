// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validator checks and normalises uploaded tree inventory
// tables.
//
// The pipeline is a fixed sequence of concrete steps: structure and
// encoding, column role detection, CRS detection, diameter-type
// detection, per-row range checks, species resolution and cross-row
// consistency. Each step appends issues to the report; none of them
// aborts the run, so the user sees every problem in one pass.
//
// # Determinism
//
// Validate is a pure function of its input bytes and options: issues
// are appended in row order and every detection rule is deterministic,
// so the same upload always produces an identical report.
package validator

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/pkg/logging"
	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/datatypes"
	"github.com/vankosh/vankosh/services/species"
)

// Row-level bounds.
const (
	dbhAbsMinCm = 1.0
	dbhAbsMaxCm = 200.0

	heightMinM = 1.3
	heightMaxM = 50.0

	hdRatioMin = 30.0
	hdRatioMax = 150.0

	// duplicateRadiusM: coordinates closer than this are flagged as
	// probable duplicates.
	duplicateRadiusM = 1.0

	// columnSwapFraction: above this share of rows with height > DBH,
	// the height and diameter columns are probably exchanged.
	columnSwapFraction = 0.5

	// abbrevAcceptThreshold is the confidence floor passed to the
	// species matcher; abbreviated matches at or above it resolve
	// without user interaction.
	abbrevAcceptThreshold = 0.70

	sampleConversionCount = 3
	metersPerDegree       = 111_320.0
)

// Options tune one validation run.
type Options struct {
	// UserCRS overrides CRS detection when set to a concrete system.
	UserCRS geo.System
	// AllowSwap permits automatic correction of exchanged
	// latitude/longitude columns.
	AllowSwap bool
	// FuzzyThreshold is the minimum fuzzy species-match confidence to
	// auto-apply; zero means the default 0.85.
	FuzzyThreshold float64
}

// Validator runs the inventory validation pipeline.
//
// # Thread Safety
//
// Validator is immutable after construction and safe for concurrent use.
type Validator struct {
	matcher *species.Matcher
	logger  *slog.Logger
}

// New builds a validator over the given species matcher.
func New(matcher *species.Matcher) *Validator {
	return &Validator{
		matcher: matcher,
		logger:  logging.Component("inventory.validator"),
	}
}

// Validate checks the CSV upload and, when no fatal issue is found,
// returns the normalised tree rows (diameter in cm, height in m or
// absent, location in WGS84, species resolved, class defaulted).
func (v *Validator) Validate(data []byte, opts Options) (*Report, []datatypes.Tree) {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = species.DefaultFuzzyThreshold
	}

	report := &Report{Columns: map[string]string{}}

	header, rows := v.parseTable(data, report)
	if header == nil {
		report.ReadyForProcessing = false
		return report, nil
	}
	report.RowCount = len(rows)

	roles := detectColumns(header)
	for role, idx := range roles {
		report.Columns[string(role)] = strings.TrimSpace(header[idx])
	}
	for _, role := range requiredRoles {
		if _, ok := roles[role]; !ok {
			report.fatalf(Issue{
				Column:  string(role),
				Kind:    string(errkind.InvalidInput),
				Message: fmt.Sprintf("no column found for required role %q", role),
			})
		}
	}
	if len(report.Fatal) > 0 {
		return report, nil
	}

	raw := v.parseRows(rows, roles, report)

	sys := v.resolveCRS(raw, opts, report)
	if len(report.Fatal) > 0 && sys == geo.Unknown {
		return report, nil
	}

	v.detectGirth(header[roles[RoleDiameter]], raw, report)

	trees := v.checkRows(raw, sys, opts, report)
	v.crossRowChecks(raw, sys, report)

	report.ReadyForProcessing = len(report.Fatal) == 0
	if !report.ReadyForProcessing {
		v.logger.Info("validation found fatal issues",
			"rows", report.RowCount, "fatal", len(report.Fatal))
		return report, nil
	}
	return report, trees
}

// rawRow carries one data row through the pipeline.
type rawRow struct {
	fileRow int // 1-based row number in the file, header included

	speciesToken string
	diaRaw       string
	heightRaw    string
	classRaw     string
	xRaw, yRaw   string

	x, y       float64
	coordsOK   bool
	dia        float64 // converted to cm after girth detection
	diaOK      bool
	height     float64
	hasHeight  bool
	heightOK   bool
}

// parseTable decodes the CSV bytes, stripping a BOM and trailing empty
// rows. A nil header return means the structure is unusable.
func (v *Validator) parseTable(data []byte, report *Report) ([]string, [][]string) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.fatalf(Issue{
				Kind:    string(errkind.InvalidInput),
				Message: fmt.Sprintf("malformed CSV: %v", err),
			})
			return nil, nil
		}
		records = append(records, rec)
	}

	// Trim trailing all-empty rows (spreadsheet exports pad these).
	trimmed := 0
	for len(records) > 0 && isEmptyRow(records[len(records)-1]) {
		records = records[:len(records)-1]
		trimmed++
	}
	if trimmed > 0 {
		report.add(Issue{
			Severity: SeverityInfo,
			Kind:     string(errkind.InvalidInput),
			Message:  fmt.Sprintf("dropped %d trailing empty row(s)", trimmed),
		})
	}

	if len(records) < 2 {
		report.fatalf(Issue{
			Kind:    string(errkind.InvalidInput),
			Message: "file must contain a header row and at least one data row",
		})
		return nil, nil
	}
	return records[0], records[1:]
}

func isEmptyRow(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseRows extracts the role columns from every data row, recording
// per-row parse failures.
func (v *Validator) parseRows(rows [][]string, roles map[Role]int, report *Report) []*rawRow {
	cell := func(rec []string, role Role) string {
		idx, ok := roles[role]
		if !ok || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	out := make([]*rawRow, 0, len(rows))
	for i, rec := range rows {
		row := &rawRow{
			fileRow:      i + 2, // header is row 1
			speciesToken: cell(rec, RoleSpecies),
			diaRaw:       cell(rec, RoleDiameter),
			heightRaw:    cell(rec, RoleHeight),
			classRaw:     cell(rec, RoleClass),
			xRaw:         cell(rec, RoleX),
			yRaw:         cell(rec, RoleY),
		}

		var err1, err2 error
		row.x, err1 = strconv.ParseFloat(row.xRaw, 64)
		row.y, err2 = strconv.ParseFloat(row.yRaw, 64)
		row.coordsOK = err1 == nil && err2 == nil
		if !row.coordsOK {
			report.fatalf(Issue{
				Row: row.fileRow, Column: string(RoleX),
				Original: row.xRaw + "," + row.yRaw,
				Kind:     string(errkind.InvalidInput),
				Message:  "coordinates are not numeric",
			})
		}

		row.dia, err1 = strconv.ParseFloat(row.diaRaw, 64)
		row.diaOK = err1 == nil
		if !row.diaOK {
			report.fatalf(Issue{
				Row: row.fileRow, Column: string(RoleDiameter),
				Original: row.diaRaw,
				Kind:     string(errkind.InvalidInput),
				Message:  "diameter is not numeric",
			})
		}

		if row.heightRaw != "" {
			row.height, err1 = strconv.ParseFloat(row.heightRaw, 64)
			row.hasHeight = true
			row.heightOK = err1 == nil
			if !row.heightOK {
				report.fatalf(Issue{
					Row: row.fileRow, Column: string(RoleHeight),
					Original: row.heightRaw,
					Kind:     string(errkind.InvalidInput),
					Message:  "height is not numeric",
				})
			}
		}
		out = append(out, row)
	}
	return out
}

// resolveCRS detects the upload's coordinate system, reconciles it with
// a user override and applies the axis-swap correction when permitted.
func (v *Validator) resolveCRS(raw []*rawRow, opts Options, report *Report) geo.System {
	var xs, ys []float64
	for _, r := range raw {
		if r.coordsOK {
			xs = append(xs, r.x)
			ys = append(ys, r.y)
		}
	}

	det := geo.DetectCRS(xs, ys)
	report.CRS = det
	report.UserCRS = opts.UserCRS

	if det.System == geo.SwappedAxes {
		if !opts.AllowSwap {
			report.fatalf(Issue{
				Kind:    string(errkind.CoordsSwapped),
				Message: "longitude and latitude columns appear swapped; resubmit with auto-swap enabled or corrected columns",
			})
			return geo.Unknown
		}
		for _, r := range raw {
			r.x, r.y = r.y, r.x
		}
		report.add(Issue{
			Severity:  SeverityWarning,
			Kind:      KindAxesSwapped,
			Corrected: "swap",
			Message:   "longitude and latitude columns were swapped and have been corrected",
		})
		report.CRS = geo.Detection{System: geo.WGS84Geographic, Confidence: det.Confidence}
		det = report.CRS
	}

	switch {
	case det.System == geo.Unknown && opts.UserCRS.IsValid():
		report.CRS = geo.Detection{System: opts.UserCRS, Confidence: geo.ConfidenceLow}
		return opts.UserCRS
	case det.System == geo.Unknown:
		report.fatalf(Issue{
			Kind:    string(errkind.CRSUndetectable),
			Message: "coordinate system could not be detected and none was specified",
		})
		return geo.Unknown
	case opts.UserCRS.IsValid() && opts.UserCRS != det.System:
		// Detection wins: the value ranges are unambiguous for Nepal.
		report.add(Issue{
			Severity:  SeverityWarning,
			Kind:      string(errkind.CRSMismatch),
			Original:  string(opts.UserCRS),
			Corrected: string(det.System),
			Message:   fmt.Sprintf("specified CRS %s disagrees with detected %s; using detected", opts.UserCRS, det.System),
		})
	}
	return det.System
}

// detectGirth runs the diameter-type decision and converts the rows in
// place when the column holds girths.
func (v *Validator) detectGirth(columnName string, raw []*rawRow, report *Report) {
	var samples []float64
	for _, r := range raw {
		if r.diaOK {
			samples = append(samples, r.dia)
		}
	}
	det := DetectDiameterType(columnName, samples)
	report.DiameterType = det

	if det.RequiresConfirmation {
		report.add(Issue{
			Severity: SeverityWarning,
			Column:   columnName,
			Kind:     string(errkind.GirthAmbiguous),
			Message:  "could not decide between diameter and girth; assuming diameter, confirmation required",
		})
	}
	if det.Type != TypeGirth {
		return
	}

	for _, r := range raw {
		if r.diaOK {
			if len(report.SampleConversions) < sampleConversionCount {
				report.SampleConversions = append(report.SampleConversions, SampleConversion{
					From: round1(r.dia),
					To:   round1(det.Convert(r.dia)),
				})
			}
			r.dia = det.Convert(r.dia)
		}
	}
	report.add(Issue{
		Severity: SeverityInfo,
		Column:   columnName,
		Kind:     KindGirthToDiameter,
		Message:  fmt.Sprintf("column holds girth values; converted to diameter (girth/π), e.g. %s", formatSamples(report.SampleConversions)),
	})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatSamples(samples []SampleConversion) string {
	parts := make([]string, len(samples))
	for i, s := range samples {
		parts[i] = fmt.Sprintf("%.1f→%.1f", s.From, s.To)
	}
	return strings.Join(parts, ", ")
}

// checkRows applies the per-row range checks and species resolution,
// producing normalised trees for the rows that pass.
func (v *Validator) checkRows(raw []*rawRow, sys geo.System, opts Options, report *Report) []datatypes.Tree {
	var toWGS84 func(x, y float64) (float64, float64, error)
	if sys.Projected() {
		t, err := geo.Projector(sys, geo.WGS84Geographic)
		if err != nil {
			report.fatalf(Issue{
				Kind:    string(errkind.Internal),
				Message: fmt.Sprintf("building %s projector: %v", sys, err),
			})
			return nil
		}
		toWGS84 = t
	}

	trees := make([]datatypes.Tree, 0, len(raw))
	for _, r := range raw {
		tree, ok := v.checkRow(r, toWGS84, opts, report)
		if ok {
			trees = append(trees, tree)
		}
	}
	return trees
}

func (v *Validator) checkRow(r *rawRow, toWGS84 func(x, y float64) (float64, float64, error), opts Options, report *Report) (datatypes.Tree, bool) {
	var tree datatypes.Tree
	tree.RowNumber = r.fileRow
	ok := r.coordsOK && r.diaOK && (!r.hasHeight || r.heightOK)

	// Coordinates.
	if r.coordsOK {
		if r.x == 0 && r.y == 0 {
			report.fatalf(Issue{
				Row: r.fileRow, Column: string(RoleX), Original: "0,0",
				Kind:    string(errkind.RangeFatal),
				Message: "coordinates (0,0) are not a valid tree location",
			})
			ok = false
		} else {
			lon, lat := r.x, r.y
			if toWGS84 != nil {
				var err error
				lon, lat, err = toWGS84(r.x, r.y)
				if err != nil {
					report.fatalf(Issue{
						Row: r.fileRow, Column: string(RoleX),
						Kind:    string(errkind.RangeFatal),
						Message: fmt.Sprintf("coordinates cannot be projected: %v", err),
					})
					ok = false
				}
			}
			switch {
			case !ok:
			case lon < -180 || lon > 180 || lat < -90 || lat > 90 || math.IsNaN(lon) || math.IsNaN(lat):
				report.fatalf(Issue{
					Row: r.fileRow, Column: string(RoleX),
					Original: fmt.Sprintf("%g,%g", r.x, r.y),
					Kind:     string(errkind.RangeFatal),
					Message:  "coordinates fall outside world bounds",
				})
				ok = false
			case lon < geo.NepalLonMin || lon > geo.NepalLonMax || lat < geo.NepalLatMin || lat > geo.NepalLatMax:
				report.add(Issue{
					Row: r.fileRow, Column: string(RoleX),
					Original: fmt.Sprintf("%g,%g", r.x, r.y),
					Severity: SeverityWarning,
					Kind:     KindOutsideNepal,
					Message:  "coordinates fall outside Nepal bounds",
				})
				fallthrough
			default:
				tree.Longitude, tree.Latitude = lon, lat
			}
		}
	}

	// Diameter.
	if r.diaOK {
		switch {
		case r.dia < dbhAbsMinCm || r.dia > dbhAbsMaxCm:
			report.fatalf(Issue{
				Row: r.fileRow, Column: string(RoleDiameter), Original: r.diaRaw,
				Kind:    string(errkind.RangeFatal),
				Message: fmt.Sprintf("diameter %.1f cm outside the accepted range [%g, %g]", r.dia, dbhAbsMinCm, dbhAbsMaxCm),
			})
			ok = false
		default:
			tree.DBHCm = r.dia
		}
	}

	// Height.
	if r.hasHeight && r.heightOK {
		if r.height < heightMinM || r.height > heightMaxM {
			report.fatalf(Issue{
				Row: r.fileRow, Column: string(RoleHeight), Original: r.heightRaw,
				Kind:    string(errkind.RangeFatal),
				Message: fmt.Sprintf("height %.1f m outside the accepted range [%g, %g]", r.height, heightMinM, heightMaxM),
			})
			ok = false
		} else {
			tree.HeightM = r.height
			tree.HeightKnown = true
			if r.diaOK && tree.DBHCm > 0 {
				ratio := r.height / tree.DBHCm * 100
				if ratio < hdRatioMin || ratio > hdRatioMax {
					report.add(Issue{
						Row: r.fileRow, Column: string(RoleHeight),
						Original: r.heightRaw,
						Severity: SeverityWarning,
						Kind:     KindHDRatio,
						Message:  fmt.Sprintf("height/diameter ratio %.0f outside the typical range [%g, %g]", ratio, hdRatioMin, hdRatioMax),
					})
				}
			}
		}
	} else if !r.hasHeight && r.diaOK && r.dia >= datatypes.SeedlingMaxDBHCm {
		report.add(Issue{
			Row: r.fileRow, Column: string(RoleHeight),
			Severity: SeverityInfo,
			Kind:     KindHeightDefaulted,
			Message:  "height missing; species-typical height will be used",
		})
	}

	// Quality class.
	switch strings.ToUpper(r.classRaw) {
	case "":
		tree.Quality = datatypes.ClassB
	case "A":
		tree.Quality = datatypes.ClassA
	case "B":
		tree.Quality = datatypes.ClassB
	case "C":
		tree.Quality = datatypes.ClassC
	default:
		tree.Quality = datatypes.ClassB
		report.add(Issue{
			Row: r.fileRow, Column: string(RoleClass), Original: r.classRaw,
			Corrected: string(datatypes.ClassB),
			Severity:  SeverityWarning,
			Kind:      KindClassDefaulted,
			Message:   fmt.Sprintf("unrecognised quality class %q; defaulted to B", r.classRaw),
		})
	}

	// Species.
	match := v.matcher.Match(r.speciesToken, abbrevAcceptThreshold)
	switch {
	case !match.Matched(),
		match.Type == species.MatchFuzzy && match.Confidence < opts.FuzzyThreshold:
		msg := fmt.Sprintf("species %q not recognised", r.speciesToken)
		if len(match.Suggestions) > 0 {
			names := make([]string, 0, len(match.Suggestions))
			for _, s := range match.Suggestions {
				names = append(names, s.ScientificName)
			}
			msg += "; closest: " + strings.Join(names, ", ")
		}
		report.fatalf(Issue{
			Row: r.fileRow, Column: string(RoleSpecies), Original: r.speciesToken,
			Kind:    string(errkind.SpeciesUnknown),
			Message: msg,
		})
		ok = false
	default:
		tree.SpeciesCode = match.Species.Code
		tree.ScientificName = match.Species.ScientificName
		tree.LocalName = match.Species.LocalName

		if match.Type == species.MatchFuzzy {
			report.add(Issue{
				Row: r.fileRow, Column: string(RoleSpecies),
				Original:   r.speciesToken,
				Corrected:  match.Species.ScientificName,
				Severity:   SeverityWarning,
				Kind:       KindSpeciesCorrected,
				Message:    fmt.Sprintf("species %q corrected to %q", r.speciesToken, match.Species.ScientificName),
				Confidence: match.Confidence,
			})
		} else if match.Type == species.MatchAbbreviated {
			report.add(Issue{
				Row: r.fileRow, Column: string(RoleSpecies),
				Original:   r.speciesToken,
				Corrected:  match.Species.ScientificName,
				Severity:   SeverityInfo,
				Kind:       KindSpeciesCorrected,
				Message:    fmt.Sprintf("abbreviated species %q expanded to %q", r.speciesToken, match.Species.ScientificName),
				Confidence: match.Confidence,
			})
		}

		// Plausibility against the species' maximum, inside the
		// absolute range.
		if ok && match.Species.MaxDBHCm > 0 && tree.DBHCm > match.Species.MaxDBHCm {
			report.add(Issue{
				Row: r.fileRow, Column: string(RoleDiameter), Original: r.diaRaw,
				Severity: SeverityWarning,
				Kind:     KindOverSpeciesMax,
				Message: fmt.Sprintf("diameter %.1f cm exceeds the recorded maximum %.0f cm for %s",
					tree.DBHCm, match.Species.MaxDBHCm, match.Species.ScientificName),
			})
		}
	}

	return tree, ok
}

// crossRowChecks covers the findings that only emerge across the whole
// table: exchanged height/diameter columns, duplicate positions and
// artificial (gridded) spatial distributions.
func (v *Validator) crossRowChecks(raw []*rawRow, sys geo.System, report *Report) {
	// Column swap: heights larger than diameters on most rows.
	withHeight, swappedLooking := 0, 0
	for _, r := range raw {
		if r.hasHeight && r.heightOK && r.diaOK {
			withHeight++
			if r.height > r.dia {
				swappedLooking++
			}
		}
	}
	if withHeight > 0 && float64(swappedLooking)/float64(withHeight) > columnSwapFraction {
		report.fatalf(Issue{
			Column:    string(RoleHeight),
			Corrected: KindSwapColumns,
			Kind:      KindSwapColumns,
			Message: fmt.Sprintf("%d of %d rows have height greater than diameter; the columns are probably exchanged",
				swappedLooking, withHeight),
		})
	}

	// Local metric coordinates for the proximity checks: projected
	// uploads are already in metres, geographic ones get an equirectangular
	// approximation around the mean latitude.
	var pts []metricPoint
	if sys.Projected() {
		for _, r := range raw {
			if r.coordsOK {
				pts = append(pts, metricPoint{row: r.fileRow, x: r.x, y: r.y})
			}
		}
	} else {
		var latSum float64
		n := 0
		for _, r := range raw {
			if r.coordsOK {
				latSum += r.y
				n++
			}
		}
		if n == 0 {
			return
		}
		cosLat := math.Cos(latSum / float64(n) * math.Pi / 180)
		for _, r := range raw {
			if r.coordsOK {
				pts = append(pts, metricPoint{
					row: r.fileRow,
					x:   r.x * metersPerDegree * cosLat,
					y:   r.y * metersPerDegree,
				})
			}
		}
	}
	if len(pts) == 0 {
		return
	}

	// Duplicates within ~1 m.
	seen := make(map[[2]int64]int, len(pts))
	for _, p := range pts {
		key := [2]int64{int64(math.Round(p.x / duplicateRadiusM)), int64(math.Round(p.y / duplicateRadiusM))}
		if first, dup := seen[key]; dup {
			report.add(Issue{
				Row: p.row, Column: string(RoleX),
				Severity: SeverityWarning,
				Kind:     KindDuplicateCoords,
				Message:  fmt.Sprintf("coordinates within ~1 m of row %d", first),
			})
		} else {
			seen[key] = p.row
		}
	}

	// Perfect grid: all points on a uniform lattice suggests synthetic
	// rather than surveyed positions.
	if len(pts) >= 9 && isUniformLattice(pts) {
		report.add(Issue{
			Severity: SeverityInfo,
			Kind:     KindPerfectGrid,
			Message:  "tree positions form a perfectly regular grid; verify they are surveyed, not generated",
		})
	}
}

// metricPoint is a tree position in approximate local metres.
type metricPoint struct {
	row  int
	x, y float64
}

// isUniformLattice reports whether the points sit on a regular
// rectangular lattice (to ~0.5 m).
func isUniformLattice(pts []metricPoint) bool {
	const tol = 0.5
	xs := uniqueSorted(pts, func(p metricPoint) float64 { return p.x }, tol)
	ys := uniqueSorted(pts, func(p metricPoint) float64 { return p.y }, tol)

	if len(xs) < 2 || len(ys) < 2 {
		return false
	}
	if len(xs)*len(ys) != len(pts) {
		return false
	}
	return uniformSpacing(xs, tol) && uniformSpacing(ys, tol)
}

func uniqueSorted(pts []metricPoint, get func(metricPoint) float64, tol float64) []float64 {
	vs := make([]float64, len(pts))
	for i, p := range pts {
		vs[i] = get(p)
	}
	sort.Float64s(vs)
	out := vs[:0]
	for _, v := range vs {
		if len(out) == 0 || v-out[len(out)-1] > tol {
			out = append(out, v)
		}
	}
	return out
}

func uniformSpacing(vs []float64, tol float64) bool {
	if len(vs) < 3 {
		return true
	}
	step := vs[1] - vs[0]
	for i := 2; i < len(vs); i++ {
		if math.Abs((vs[i]-vs[i-1])-step) > tol {
			return false
		}
	}
	return true
}
