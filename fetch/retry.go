package fetch

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy maps (attempt number, transport error) to the backoff delay
// before the next attempt. Returning retry=false stops retrying and lets
// the error surface. The attempt number is 1-based: it is 1 when the first
// physical attempt failed.
//
// A policy is consulted only for transport-level failures that occur
// before response headers arrive. Redirects and status codes never reach
// the policy.
type RetryPolicy func(attempt int, err error) (delay time.Duration, retry bool)

// Default retry behavior.
const (
	// DefaultRetries is the number of re-attempts the default policy allows.
	DefaultRetries = 2

	// retryJitterRange bounds the uniform jitter added to each backoff delay.
	retryJitterRange = 100 * time.Millisecond
)

// DefaultRetryPolicy stops after DefaultRetries re-attempts or on a
// non-retryable error, and otherwise backs off exponentially:
// 2^attempt seconds plus up to 100ms of uniform jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicyWithLimit(DefaultRetries)
}

// RetryPolicyWithLimit behaves like DefaultRetryPolicy with a custom
// re-attempt budget.
func RetryPolicyWithLimit(retries uint) RetryPolicy {
	return RetryPolicyWithClassifier(retries, DefaultClassifier)
}

// RetryPolicyWithClassifier builds an exponential-backoff policy with a
// custom transient-error classifier.
func RetryPolicyWithClassifier(retries uint, classify RetryClassifier) RetryPolicy {
	return func(attempt int, err error) (time.Duration, bool) {
		if attempt > int(retries) {
			return 0, false
		}
		if !classify(err) {
			return 0, false
		}
		return exponentialDelay(attempt), true
	}
}

// NoRetry never retries. Transport errors surface immediately.
func NoRetry() RetryPolicy {
	return func(int, error) (time.Duration, bool) {
		return 0, false
	}
}

// exponentialDelay computes 2^attempt seconds plus uniform jitter in
// [0, 100ms). Jitter prevents synchronized retry storms across clients.
func exponentialDelay(attempt int) time.Duration {
	//nolint:gosec // intentional weak rand for jitter (not cryptographic)
	jitter := time.Duration(rand.Int64N(int64(retryJitterRange)))
	return time.Duration(1<<uint(attempt))*time.Second + jitter
}

// RetryConfig describes an exponential backoff schedule in the shape used
// by cenkalti/backoff. Use ExponentialPolicy to turn it into a RetryPolicy.
type RetryConfig struct {
	// MaxRetries is the maximum number of re-attempts. Zero disables retries.
	MaxRetries uint

	// InitialInterval is the first backoff interval.
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	MaxInterval time.Duration

	// Multiplier controls exponential growth of backoff intervals.
	Multiplier float64

	// JitterFactor randomizes each interval (0.0-1.0).
	JitterFactor float64
}

// DefaultRetryConfig returns balanced defaults: 2 re-attempts starting at
// 1s, doubling, capped at 30s, with ±50% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultRetries,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// AggressiveRetryConfig returns a schedule for operations that must
// succeed: 5 re-attempts with a fast 200ms start, capped at 60s. More
// retries mean more load on struggling services; keep it for idempotent
// calls.
func AggressiveRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// ConservativeRetryConfig returns a schedule for rate-limited or
// expensive services: 2 re-attempts with a slow 1s start, capped at 10s.
func ConservativeRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// ExponentialPolicy builds a RetryPolicy from a RetryConfig using
// cenkalti/backoff's ExponentialBackOff for interval generation and
// DefaultClassifier for the retry decision.
func ExponentialPolicy(cfg RetryConfig) RetryPolicy {
	return BackOffPolicy(cfg.MaxRetries, func() backoff.BackOff {
		jitter := cfg.JitterFactor
		if jitter <= 0 {
			jitter = 0.5
		}
		return &backoff.ExponentialBackOff{
			InitialInterval:     cfg.InitialInterval,
			RandomizationFactor: jitter,
			Multiplier:          cfg.Multiplier,
			MaxInterval:         cfg.MaxInterval,
		}
	})
}

// BackOffPolicy adapts any cenkalti/backoff strategy into a RetryPolicy.
// A policy value is shared by every logical request that carries it, so
// the strategy is replayed from a fresh instance to the attempt's position
// on each call; the closure itself holds no mutable state and is safe for
// concurrent requests.
func BackOffPolicy(retries uint, next func() backoff.BackOff) RetryPolicy {
	return func(attempt int, err error) (time.Duration, bool) {
		if attempt > int(retries) {
			return 0, false
		}
		if !DefaultClassifier(err) {
			return 0, false
		}

		b := next()
		b.Reset()
		delay := backoff.Stop
		for i := 0; i < attempt; i++ {
			delay = b.NextBackOff()
			if delay == backoff.Stop {
				return 0, false
			}
		}
		return delay, true
	}
}
