package client

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/simple-container-com/go-aws-lambda-sdk/pkg/util/retry"
)

// withRetry runs action up to RetryAttempts times, sleeping RetryBackoff*attempt between attempts
// and not at all after the last one.
// Only errors the classifier marks retryable are attempted again; anything else, and any error
// once ctx is done, is returned right away.
func withRetry[T any](ctx context.Context, o *gammaClient, log zerolog.Logger, op string, action func() (T, error)) (T, error) {
	var zero T
	var fatalErr, lastErr error
	res, err := retry.With(retry.Config[T]{
		AttemptErrorCallback: func(attempt int, err error) {
			if attempt >= o.settings.RetryAttempts() {
				return
			}
			backoff := o.settings.retryBackoff * time.Duration(attempt)
			log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", backoff).Msg("transient failure, retrying")
			_ = sleep(ctx, o.clock, backoff)
		},
		Action: func() (T, error) {
			if fatalErr != nil {
				return zero, nil
			}
			res, err := action()
			if err == nil {
				return res, nil
			}
			lastErr = err
			if ctx.Err() != nil || !IsRetryable(err) {
				fatalErr = err
				return zero, nil
			}
			return zero, err
		},
		MaxRetries: o.settings.RetryAttempts(),
	})
	switch {
	case fatalErr != nil:
		return zero, fatalErr
	case err != nil && lastErr != nil:
		return zero, lastErr
	case err != nil:
		return zero, err
	}
	return lo.FromPtr(res), nil
}
