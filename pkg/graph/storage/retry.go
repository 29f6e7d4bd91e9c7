package storage

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const maxStoreRetries = 4

// runWithRetry retries fn with bounded exponential backoff on transient
// storage errors (timeouts, connection loss, Neo4j transient failures).
// Domain errors pass through untouched so callers can handle them; only the
// store-facing call sites retry, never the pure components.
func runWithRetry(ctx context.Context, logger *logrus.Logger, operation string, fn func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxStoreRetries), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		logger.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err.Error(),
		}).Warn("Transient storage error, retrying")
		return err
	}, policy)
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// The v4 driver renders server errors with their full status code;
	// Neo.TransientError.* is the retryable class.
	return strings.Contains(err.Error(), "TransientError")
}
