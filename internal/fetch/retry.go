// Package fetch retrieves rendered pages through the headless browser,
// with retry for the flaky-by-design upstream sites.
package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetries is how many times an operation is re-attempted after the
// initial failure.
const DefaultRetries = 2

// Retry runs op up to 1+retries times, doubling the delay between
// attempts starting from unit. It returns the last error when all
// attempts fail, or early when the context is cancelled.
func Retry(ctx context.Context, retries uint64, unit time.Duration, op func() error) error {
	if unit <= 0 {
		unit = time.Second
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = unit
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
}
