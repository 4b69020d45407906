package workflow

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry defaults.
const (
	DefaultRetryLimit      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	DefaultMultiplier      = 2.0
	DefaultJitter          = 0.2
)

// RetryPolicy controls how failed attempts of a node are repeated.
// Limit counts attempts, the first one included.
type RetryPolicy struct {
	Limit           int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64 // randomization factor in [0, 1]
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Limit:           DefaultRetryLimit,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		Jitter:          DefaultJitter,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	q := p
	if q.Limit <= 0 {
		q.Limit = DefaultRetryLimit
	}

	if q.InitialInterval <= 0 {
		q.InitialInterval = DefaultInitialInterval
	}

	if q.MaxInterval <= 0 {
		q.MaxInterval = DefaultMaxInterval
	}

	if q.MaxInterval < q.InitialInterval {
		q.MaxInterval = q.InitialInterval
	}

	if q.Multiplier < 1 {
		q.Multiplier = DefaultMultiplier
	}

	q.Jitter = min(max(q.Jitter, 0), 1)

	return q
}

// allows reports whether another attempt may follow the given number of attempts.
func (p RetryPolicy) allows(attempts int) bool {
	return attempts < p.Limit
}

// newBackOff returns the delay sequence for one node. Each node keeps its own.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.Reset()

	return b
}
