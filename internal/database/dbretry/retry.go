// Package dbretry retries transient PostgreSQL failures with exponential backoff.
package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Policy bounds how long and how often an operation is retried.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultPolicy is used by Operation, NoResult and Transaction.
var DefaultPolicy = Policy{ //nolint:gochecknoglobals // -
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsedTime:  30 * time.Second,
	MaxRetries:      5,
}

// retryableCodes are SQLSTATE codes worth another attempt.
var retryableCodes = map[string]struct{}{ //nolint:gochecknoglobals // -
	"08000": {}, // connection_exception
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08003": {}, // connection_does_not_exist
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"08006": {}, // connection_failure
	"08007": {}, // transaction_resolution_unknown
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53000": {}, // insufficient_resources
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// IsRetryableError checks if the given error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		_, ok := retryableCodes[pgerr.Field('C')]
		return ok
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network failures surface from the driver as plain errors
	errMsg := err.Error()
	for _, fragment := range []string{
		"connection reset by peer",
		"broken pipe",
		"connection refused",
		"i/o timeout",
		"EOF",
	} {
		if strings.Contains(errMsg, fragment) {
			return true
		}
	}

	return false
}

// Retry runs operation under policy until it succeeds, fails permanently or
// the policy is exhausted.
func Retry[T any](
	ctx context.Context, policy Policy, operation func(context.Context) (T, error),
) (T, error) {
	var (
		result  T
		lastErr error
	)

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(policy.InitialInterval),
		backoff.WithMaxInterval(policy.MaxInterval),
		backoff.WithMaxElapsedTime(policy.MaxElapsedTime),
	), policy.MaxRetries)

	err := backoff.Retry(func() error {
		var err error
		result, err = operation(ctx)
		lastErr = err
		if err != nil && !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if lastErr != nil {
			// Report the database error rather than the context error
			return result, fmt.Errorf("database operation failed: %w", lastErr)
		}
		return result, err
	}

	return result, nil
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	return Retry(ctx, DefaultPolicy, operation)
}

// NoResult wraps a database operation that doesn't return a result.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	_, err := Retry(ctx, DefaultPolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// Transaction wraps a database transaction with retry logic.
func Transaction(ctx context.Context, db *bun.DB, fn func(context.Context, bun.Tx) error) error {
	return NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, fn)
	})
}
