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
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/vankosh/vankosh/pkg/errkind"
)

func pgErr(code string) error {
	return &pgconn.PgError{Code: code, Message: "synthetic"}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errkind.Kind
	}{
		{"connection failure class 08", pgErr("08006"), errkind.DBTransient},
		{"serialization failure", pgErr("40001"), errkind.DBTransient},
		{"deadlock", pgErr("40P01"), errkind.DBTransient},
		{"syntax error", pgErr("42601"), errkind.DBFatal},
		{"constraint violation", pgErr("23505"), errkind.DBFatal},
		{"deadline", context.DeadlineExceeded, errkind.TimedOut},
		{"plain error", errors.New("boom"), errkind.DBFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return pgErr("40001")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterThreeAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return pgErr("08006")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryFatal(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return pgErr("42601")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
