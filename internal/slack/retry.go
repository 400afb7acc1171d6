package slack

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = time.Minute
)

// RetryPolicy bounds how a failed call is retried. Auth and permanent errors
// are never retried; rate-limited and transient errors are retried up to
// MaxRetries times.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Jitter returns a value in [0, 1). Nil means math/rand.
	Jitter func() float64
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: defaultBaseDelay, MaxDelay: defaultMaxDelay}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := &jitteredBackOff{base: p.BaseDelay, max: p.MaxDelay, jitter: p.Jitter}
	if b.base <= 0 {
		b.base = defaultBaseDelay
	}
	if b.max < b.base {
		b.max = max(defaultMaxDelay, b.base)
	}
	if b.jitter == nil {
		b.jitter = rand.Float64
	}
	return b
}

// jitteredBackOff yields base*2^n*[1, 1.5) for attempt n, capped at max. The
// sequence never shrinks, and below the cap each delay is strictly longer
// than the previous one.
type jitteredBackOff struct {
	base, max time.Duration
	jitter    func() float64

	attempt int
	last    time.Duration
}

func (b *jitteredBackOff) NextBackOff() time.Duration {
	d := b.base
	for i := 0; i < b.attempt && d < b.max; i++ {
		d *= 2
	}
	d = min(d, b.max)
	d += time.Duration(float64(d) * 0.5 * b.jitter())
	d = max(min(d, b.max), b.last)
	b.attempt++
	b.last = d
	return d
}

func (b *jitteredBackOff) Reset() {
	b.attempt = 0
	b.last = 0
}
