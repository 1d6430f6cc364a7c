// Copyright (C) 2026 Vankosh Labs (maintainers@vankosh.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package spatialdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vankosh/vankosh/pkg/errkind"
	"github.com/vankosh/vankosh/pkg/logging"
)

const (
	retryInitialInterval = 50 * time.Millisecond
	retryMultiplier      = 2.0
	retryMaxAttempts     = 3
)

// Classify maps a database error to its kind. Connection failures
// (SQLSTATE class 08), serialization failures (40001) and deadlocks
// (40P01) are transient; everything else from the database is fatal.
func Classify(err error) errkind.Kind {
	if err == nil {
		return errkind.Internal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errkind.TimedOut
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		if strings.HasPrefix(code, "08") || code == "40001" || code == "40P01" {
			return errkind.DBTransient
		}
		return errkind.DBFatal
	}
	// pgconn reports broken connections without a SQLSTATE.
	if pgconn.SafeToRetry(err) {
		return errkind.DBTransient
	}
	return errkind.DBFatal
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Classify(err) == errkind.DBTransient
}

// Retry runs op up to three times, backing off 50 ms, 100 ms between
// attempts. Only transient errors are retried; any other error returns
// immediately.
func Retry(ctx context.Context, op func() error) error {
	logger := logging.Component("spatialdb.retry")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = 0

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("transient database error, will retry",
			"attempt", attempt, "error", err)
		return err
	}

	// retryMaxAttempts-1 retries after the first attempt.
	return backoff.Retry(wrapped,
		backoff.WithMaxRetries(backoff.WithContext(b, ctx), retryMaxAttempts-1))
}
