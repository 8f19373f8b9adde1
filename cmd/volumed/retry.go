package main

import "time"

// retryPolicy bounds repeated attempts against an unreliable link.
// DDC/CI drops transactions routinely, so every read and write runs
// under one of these instead of an ad hoc loop.
type retryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

var ddcRetry = retryPolicy{MaxAttempts: ddcMaxAttempts, Delay: ddcRetryDelay}

// run invokes fn until it reports success or attempts run out, sleeping
// Delay between failed attempts (not after the last one). Reports
// whether any attempt succeeded.
func (p retryPolicy) run(fn func(attempt int) bool) bool {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if fn(i + 1) {
			return true
		}
		if i < attempts-1 && p.Delay > 0 {
			time.Sleep(p.Delay)
		}
	}
	return false
}
