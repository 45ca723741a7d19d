package dashboard

import "time"

// RetryPolicy bounds how often a failed fetch is re-issued. The delay is
// flat between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is one initial try plus two retries 1.5s apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 1500 * time.Millisecond}

// ShouldRetry reports whether another attempt follows attempt (1-based)
// having failed.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}
