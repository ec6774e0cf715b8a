// Package retry implements RetryPolicy (C9): the bounded-exponential
// backoff and per-error-class retry limits of spec §4.10, expressed as
// explicit Outcome values rather than the original's raise-to-retry
// exception idiom (self.retry(...) in Celery).
//
// DBTransientPolicy wraps a github.com/cenkalti/backoff/v5 exponential
// BackOff; the other policies compute their delays directly in this file.
package retry

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Outcome is what a task handler returns after a failed attempt: either
// retry after Delay, or give up permanently.
type Outcome struct {
	ShouldRetry bool
	Delay       time.Duration
	Reason      string
}

// Done reports a terminal, non-retryable outcome.
func Done() Outcome { return Outcome{} }

// RetryAfter reports a retryable outcome with the given delay.
func RetryAfter(delay time.Duration, reason string) Outcome {
	return Outcome{ShouldRetry: true, Delay: delay, Reason: reason}
}

// Policy decides, given a zero-based attempt count, whether to retry and
// after what delay.
type Policy interface {
	// Next returns the outcome for the given attempt (0 on first failure).
	Next(attempt int) Outcome
}

// exponentialPolicy retries up to maxRetries times with delay computed by
// delayFn(attempt).
type exponentialPolicy struct {
	maxRetries int
	delayFn    func(attempt int) time.Duration
	reason     string
}

func (p exponentialPolicy) Next(attempt int) Outcome {
	if attempt >= p.maxRetries {
		return Done()
	}

	return RetryAfter(p.delayFn(attempt), p.reason)
}

// DispatcherLockPolicy: lock unavailable and queue non-empty — 3 retries,
// delay 20*2^n seconds.
func DispatcherLockPolicy() Policy {
	return exponentialPolicy{
		maxRetries: 3,
		reason:     "dispatcher lock unavailable",
		delayFn: func(attempt int) time.Duration {
			return time.Duration(20*pow2(attempt)) * time.Second
		},
	}
}

// ProcessorLockPolicy: lock unavailable — 5 retries, delay
// min(rand(M/2, M), 18000s) where M = 200*3^n.
func ProcessorLockPolicy() Policy {
	return processorLockPolicy{maxRetries: 5}
}

type processorLockPolicy struct {
	maxRetries int
}

func (p processorLockPolicy) Next(attempt int) Outcome {
	if attempt >= p.maxRetries {
		return Done()
	}

	m := 200 * pow3(attempt)
	lo, hi := m/2, m

	delaySeconds := lo
	if hi > lo {
		delaySeconds = lo + rand.Int64N(hi-lo+1) //nolint:gosec // jitter, not security-sensitive
	}

	if delaySeconds > 18000 {
		delaySeconds = 18000
	}

	return RetryAfter(time.Duration(delaySeconds)*time.Second, "processor lock unavailable")
}

// RawFileMissingPolicy: FileNotInStorage — exactly 1 retry after 20s.
func RawFileMissingPolicy() Policy {
	return exponentialPolicy{
		maxRetries: 1,
		reason:     "raw upload file not yet visible in storage",
		delayFn:    func(int) time.Duration { return 20 * time.Second },
	}
}

// DBTransientPolicy: deadlocks/connection errors — up to 3 retries using
// the backoff library's default exponential curve.
func DBTransientPolicy() Policy {
	return backoffPolicy{
		maxRetries: 3,
		backoff:    backoff.NewExponentialBackOff(),
		reason:     "transient database error",
	}
}

type backoffPolicy struct {
	maxRetries int
	backoff    *backoff.ExponentialBackOff
	reason     string
}

func (p backoffPolicy) Next(attempt int) Outcome {
	if attempt >= p.maxRetries {
		return Done()
	}

	return RetryAfter(p.backoff.NextBackOff(), p.reason)
}

// NotifierWaitForCIWebhookPolicy: CI status unknown, webhook expected to
// wake us — 5 retries, delay 180*2^n seconds.
func NotifierWaitForCIWebhookPolicy() Policy {
	return exponentialPolicy{
		maxRetries: 5,
		reason:     "waiting for CI status via webhook",
		delayFn: func(attempt int) time.Duration {
			return time.Duration(180*pow2(attempt)) * time.Second
		},
	}
}

// NotifierWaitForCINoWebhookPolicy: CI status unknown, no webhook
// configured — 10 retries, delay 15*2^n seconds.
func NotifierWaitForCINoWebhookPolicy() Policy {
	return exponentialPolicy{
		maxRetries: 10,
		reason:     "waiting for CI status via polling",
		delayFn: func(attempt int) time.Duration {
			return time.Duration(15*pow2(attempt)) * time.Second
		},
	}
}

// NotifierRateLimitPolicy: apps rate-limited — 10 retries, delay
// max(60, seconds_to_next_hour).
func NotifierRateLimitPolicy(now func() time.Time) Policy {
	if now == nil {
		now = time.Now
	}

	return exponentialPolicy{
		maxRetries: 10,
		reason:     "git app rate limited",
		delayFn: func(int) time.Duration {
			return SecondsToNextHour(now())
		},
	}
}

// SecondsToNextHour returns max(60s, time remaining to the next wall-clock
// hour boundary), matching the spec's `max(60, seconds_to_next_hour)` rule.
func SecondsToNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)

	remaining := next.Sub(now)
	if remaining < 60*time.Second {
		return 60 * time.Second
	}

	return remaining
}

// Debounce computes the Dispatcher's debounce retry delay: max(30, delay-age).
func Debounce(delay, age time.Duration) time.Duration {
	remaining := delay - age
	if remaining < 30*time.Second {
		return 30 * time.Second
	}

	return remaining
}

func pow2(n int) int64 {
	result := int64(1)
	for range n {
		result *= 2
	}

	return result
}

func pow3(n int) int64 {
	result := int64(1)
	for range n {
		result *= 3
	}

	return result
}
