// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation helpers shared by the
// request datatypes.
//
// Struct validation runs through a single go-playground/validator instance;
// the free functions cover the domain checks that do not map onto tags.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates s against its `validate:` tags.
func Struct(s any) error {
	if err := instance().Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// NonEmpty returns an error when the trimmed value is empty.
func NonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	return nil
}

// InRange returns an error when v lies outside [lo, hi].
func InRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be in [%g, %g], got %g", field, lo, hi, v)
	}
	return nil
}

// Positive returns an error when v is not strictly positive.
func Positive(field string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %g", field, v)
	}
	return nil
}
