// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vankosh/vankosh/pkg/config"
	"github.com/vankosh/vankosh/pkg/logging"
)

var (
	cfg        config.Config
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"path to the YAML configuration file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger := logging.New(logging.Config{
			Level:   logging.ParseLevel(cfg.Logging.Level),
			LogDir:  cfg.Logging.Dir,
			JSON:    cfg.Logging.JSON,
			Service: cfg.Logging.Service,
		})
		logger.SetDefault()
		return nil
	}

	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(speciesCmd)
	speciesCmd.AddCommand(speciesListCmd)
}
