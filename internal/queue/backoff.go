package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff doubles the delay per attempt starting at initial and
// capped at max. Attempt 1 waits initial. Delays carry no jitter so retry
// times are reproducible.
func ExponentialBackoff(initial, max time.Duration) BackoffFunc {
	if max < initial {
		max = initial
	}
	return func(attempt int) time.Duration {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = max
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()

		d := initial
		for i := 0; i < attempt; i++ {
			d = b.NextBackOff()
		}
		return d
	}
}
