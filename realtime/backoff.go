package realtime

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff produces reconnect delays: exponential with jitter, capped.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	attempt    int
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, multiplier: 2.0}
}

// next returns the delay before the following attempt.
func (b *backoff) next() time.Duration {
	delay := time.Duration(float64(b.initial) * math.Pow(b.multiplier, float64(b.attempt)))
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempt++

	// Up to 25% jitter to avoid synchronized reconnect storms.
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return delay + time.Duration(rand.Int64N(int64(delay/4)+1))
}

// reset restarts the progression after a successful connection.
func (b *backoff) reset() {
	b.attempt = 0
}
