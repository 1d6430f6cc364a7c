// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads service configuration from a YAML file with
// environment-variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Database holds PostGIS connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// MaxConns bounds the pgx pool size.
	MaxConns int32 `yaml:"max_conns"`
}

// DSN assembles a libpq-style connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Analysis holds tunables for the analysis orchestrator.
type Analysis struct {
	// ProximityDistanceM is the search radius for the vector proximity
	// analyser, in metres.
	ProximityDistanceM float64 `yaml:"proximity_distance_m"`
	// PolygonTimeout bounds one polygon's processing.
	PolygonTimeout time.Duration `yaml:"polygon_timeout"`
}

// Inventory holds tunables for the tree inventory core.
type Inventory struct {
	// GridSpacingM is the default retention-grid spacing, in metres.
	GridSpacingM float64 `yaml:"grid_spacing_m"`
	// FuzzyThreshold is the minimum species fuzzy-match confidence.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// Logging mirrors pkg/logging.Config in YAML form.
type Logging struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	JSON    bool   `yaml:"json"`
	Service string `yaml:"service"`
}

// Config is the root configuration document.
type Config struct {
	Database  Database  `yaml:"database"`
	Analysis  Analysis  `yaml:"analysis"`
	Inventory Inventory `yaml:"inventory"`
	Logging   Logging   `yaml:"logging"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "vankosh",
			Name:     "vankosh",
			SSLMode:  "disable",
			MaxConns: 16,
		},
		Analysis: Analysis{
			ProximityDistanceM: 3000,
			PolygonTimeout:     5 * time.Minute,
		},
		Inventory: Inventory{
			GridSpacingM:   20,
			FuzzyThreshold: 0.85,
		},
		Logging: Logging{Level: "info", Service: "vankosh"},
	}
}

// Load reads path (optional) over Defaults() and applies environment
// overrides. A missing file is not an error; a malformed file is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if cfg.Inventory.GridSpacingM <= 0 {
		return cfg, fmt.Errorf("inventory.grid_spacing_m must be positive, got %g", cfg.Inventory.GridSpacingM)
	}
	return cfg, nil
}

// applyEnv overlays VANKOSH_DB_* variables so deployments can keep
// credentials out of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("VANKOSH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("VANKOSH_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("VANKOSH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("VANKOSH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("VANKOSH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
}
