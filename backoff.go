package nuvom

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const ioMaxTries = 4

// retryBackend runs a backend I/O operation with bounded exponential
// backoff. Transient failures are retried a small number of times; once
// the budget is spent the error escalates as ErrBackendUnavailable.
func retryBackend(ctx context.Context, what string, op func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 50 * time.Millisecond
	expo.MaxInterval = time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(ioMaxTries))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, what, err)
	}
	return nil
}
