// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package errkind classifies errors produced by the analysis and inventory
// cores into a closed set of kinds.
//
// Every error that crosses a component boundary carries a Kind so that
// callers (and persisted result documents) can react without string
// matching. Errors wrap their cause and support errors.Is / errors.As.
package errkind

import (
	"errors"
	"fmt"
)

// Kind identifies an error category.
type Kind string

const (
	// InvalidInput covers malformed shapes and missing required fields.
	InvalidInput Kind = "INVALID_INPUT"

	// CRSUndetectable means coordinate samples matched no known system
	// and the caller supplied no override.
	CRSUndetectable Kind = "CRS_UNDETECTABLE"

	// CRSMismatch means a user-specified CRS disagrees with detection.
	CRSMismatch Kind = "CRS_MISMATCH"

	// SpeciesUnknown means a species token resolved to no catalog record.
	SpeciesUnknown Kind = "SPECIES_UNKNOWN"

	// GirthAmbiguous means the diameter-vs-girth decision needs user
	// confirmation.
	GirthAmbiguous Kind = "GIRTH_AMBIGUOUS"

	// CoordsSwapped means longitude and latitude columns appear exchanged.
	CoordsSwapped Kind = "COORDS_SWAPPED"

	// RangeFatal means a value fell outside its absolute bounds.
	RangeFatal Kind = "RANGE_FATAL"

	// DBTransient marks retryable database failures (connection loss,
	// serialization conflicts, deadlocks).
	DBTransient Kind = "DB_TRANSIENT"

	// DBFatal marks non-retryable database failures.
	DBFatal Kind = "DB_FATAL"

	// NoOverlap is informational: a polygon does not intersect a layer.
	NoOverlap Kind = "NO_OVERLAP"

	// NoTrees means an export was requested for an empty inventory.
	NoTrees Kind = "NO_TREES"

	// TimedOut marks a request-deadline expiry mid-run.
	TimedOut Kind = "TIMED_OUT"

	// Internal is the catch-all for unexpected conditions.
	Internal Kind = "INTERNAL"
)

// Error couples a Kind with a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: cause}
}

// Error returns "KIND: message" with the cause appended when present.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// KindOf returns the Kind carried by err, or Internal if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
