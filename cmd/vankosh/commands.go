// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vankosh/vankosh/services/analysis/proximity"
	"github.com/vankosh/vankosh/services/analysis/raster"
	"github.com/vankosh/vankosh/services/geo"
	"github.com/vankosh/vankosh/services/inventory/validator"
	"github.com/vankosh/vankosh/services/spatialdb"
	"github.com/vankosh/vankosh/services/species"
)

var (
	rootCmd = &cobra.Command{
		Use:   "vankosh",
		Short: "Forest boundary analysis and tree inventory tooling",
		Long: `Vankosh drives the geospatial analysis engine for community forest
management: boundary raster and proximity analysis, tree inventory
validation and volume computation over a PostGIS store.`,
	}

	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Verify the spatial database is usable",
		Long: `Checks the PostGIS extension, the gist indexes on every vector
feature table, and the presence of the raster layer tables. A missing
spatial index is a configuration error and fails the check; a missing
raster layer only degrades the analyses that need it.`,
		RunE: runHealthcheck,
	}

	speciesFile string
	userCRS     string
	allowSwap   bool

	validateCmd = &cobra.Command{
		Use:   "validate [inventory.csv]",
		Short: "Validate a tree inventory file without uploading it",
		Long: `Runs the full upload validation pipeline over a local CSV file and
prints the validation report as JSON. The species catalog is loaded
from the database, or from a JSON file with --species for offline use.
Exits non-zero when the file has fatal errors.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}

	speciesCmd = &cobra.Command{
		Use:   "species",
		Short: "Inspect the species catalog",
	}
	speciesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the active species with their allometric coefficients",
		RunE:  runSpeciesList,
	}
)

func init() {
	validateCmd.Flags().StringVar(&speciesFile, "species", "",
		"JSON species catalog for offline validation (default: load from database)")
	validateCmd.Flags().StringVar(&userCRS, "crs", "",
		"declared coordinate system (WGS84, UTM-44N, UTM-45N)")
	validateCmd.Flags().BoolVar(&allowSwap, "allow-swap", false,
		"auto-correct swapped lat/lon column order instead of failing")
	speciesListCmd.Flags().StringVar(&speciesFile, "species", "",
		"JSON species catalog to list instead of the database")
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pool, err := spatialdb.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	health, err := spatialdb.HealthCheck(ctx, pool, proximity.FeatureTables(), raster.Tables())
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(health, "", "  ")
	fmt.Println(string(out))
	if !health.OK() {
		return fmt.Errorf("spatial database is misconfigured: %d feature tables lack a gist index",
			len(health.MissingIndexes))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	catalog, err := loadCatalog(cmd.Context())
	if err != nil {
		return err
	}

	v := validator.New(species.NewMatcher(catalog))
	report, _ := v.Validate(data, validator.Options{
		UserCRS:        geo.System(userCRS),
		AllowSwap:      allowSwap,
		FuzzyThreshold: cfg.Inventory.FuzzyThreshold,
	})

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !report.ReadyForProcessing {
		return fmt.Errorf("%s has %d fatal validation errors", args[0], len(report.Fatal))
	}
	return nil
}

func runSpeciesList(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	for _, sp := range catalog.All() {
		local := sp.LocalName
		if local == "" {
			local = "-"
		}
		fmt.Printf("%4d  %-35s %-20s max DBH %5.1f cm  max height %4.1f m\n",
			sp.Code, sp.ScientificName, local, sp.MaxDBHCm, sp.MaxHeightM)
	}
	return nil
}

// loadCatalog reads the species catalog from --species when given,
// otherwise from the database.
func loadCatalog(ctx context.Context) (*species.Catalog, error) {
	if speciesFile != "" {
		data, err := os.ReadFile(speciesFile)
		if err != nil {
			return nil, fmt.Errorf("reading species catalog %s: %w", speciesFile, err)
		}
		var records []species.Species
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing species catalog %s: %w", speciesFile, err)
		}
		return species.NewCatalog(records)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pool, err := spatialdb.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return species.LoadCatalog(ctx, pool)
}
