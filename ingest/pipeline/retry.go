// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v3"
)

// RetryConfig bounds optimistic concurrency retries.
type RetryConfig struct {
	MaxAttempts    int           `help:"maximum attempts of a compare-and-swap update before the work is handed back to the queue" default:"100"`
	InitialBackoff time.Duration `help:"wait after the first version conflict" default:"10ms"`
	MaxBackoff     time.Duration `help:"maximum wait between two attempts" default:"1s"`
}

var errVersionConflict = errors.New("version conflict")

// RetryCAS calls attempt until it reports success. Attempt returns false
// when it lost a version race and should be repeated with fresh state. Errors
// returned by attempt stop the loop immediately.
//
// When config.MaxAttempts attempts all conflict, RetryCAS fails with
// ErrRetriesExhausted.
func RetryCAS(ctx context.Context, config RetryConfig, attempt func(ctx context.Context) (bool, error)) (err error) {
	defer mon.Task()(&ctx)(&err)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.InitialBackoff
	policy.MaxInterval = config.MaxBackoff
	policy.MaxElapsedTime = 0

	maxAttempts := max(config.MaxAttempts, 1)

	attempts := 0
	err = backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		ok, err := attempt(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errVersionConflict
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxAttempts-1)), ctx))

	mon.IntVal("cas_attempts").Observe(int64(attempts))

	if errors.Is(err, errVersionConflict) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrRetriesExhausted.New("gave up after %d attempts", attempts)
	}
	return err
}
