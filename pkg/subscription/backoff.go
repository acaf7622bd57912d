package subscription

import (
	"math/rand"
	"time"
)

// Receive backoff bounds.
const (
	receiveBackoffInitial = 10 * time.Millisecond
	receiveBackoffMax     = time.Second
	receiveBackoffJitter  = 0.25
)

// backoff calculates exponential delays with jitter for transient socket
// read errors. Not safe for concurrent use; only the receiver loop uses it.
type backoff struct {
	current time.Duration
	initial time.Duration
	max     time.Duration
	jitter  float64

	attempts int
	rng      *rand.Rand
}

func newReceiveBackoff() *backoff {
	return &backoff{
		current: receiveBackoffInitial,
		initial: receiveBackoffInitial,
		max:     receiveBackoffMax,
		jitter:  receiveBackoffJitter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and doubles the base delay up to max.
func (b *backoff) Next() time.Duration {
	delay := b.current
	if b.jitter > 0 {
		delay += time.Duration(float64(b.current) * b.jitter * b.rng.Float64())
	}

	b.attempts++
	b.current = min(b.current*2, b.max)
	return delay
}

// Reset returns to the initial delay after a successful read.
func (b *backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}
