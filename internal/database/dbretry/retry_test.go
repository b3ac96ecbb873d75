package dbretry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripnest/internal/database/dbretry"
)

var fastPolicy = dbretry.Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  time.Second,
	MaxRetries:      3,
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"syntax", errors.New("syntax error at or near SELECT"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	var attempts int
	result, err := dbretry.Retry(t.Context(), fastPolicy, func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentErrors(t *testing.T) {
	t.Parallel()

	errConstraint := errors.New("duplicate key value violates unique constraint")

	var attempts int
	_, err := dbretry.Retry(t.Context(), fastPolicy, func(context.Context) (int, error) {
		attempts++
		return 0, errConstraint
	})

	require.ErrorIs(t, err, errConstraint)
	assert.Equal(t, 1, attempts)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	errTransient := errors.New("broken pipe")

	var attempts int
	_, err := dbretry.Retry(t.Context(), fastPolicy, func(context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, int(fastPolicy.MaxRetries)+1, attempts)
}
