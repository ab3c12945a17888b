package scheduler

import "time"

// RetryPolicy is the exponential backoff budget for recipient deliveries
type RetryPolicy struct {
	MaxRetries  int           // attempts allowed after the first failure
	BaseBackoff time.Duration // delay unit doubled per attempt
}

// DefaultRetryPolicy returns the production retry budget
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseBackoff: 60 * time.Second}
}

// RetryDecision is the outcome of applying the policy to one failed attempt
type RetryDecision struct {
	RetryCount int           // attempt count to persist
	Terminal   bool          // retry budget exhausted
	Delay      time.Duration // backoff before the next attempt, zero when terminal
}

// Next applies the policy to a failure given the attempts already recorded.
// The delay doubles per attempt: base, 2*base, 4*base.
func (p RetryPolicy) Next(retryCount int) RetryDecision {
	attempt := retryCount + 1
	if attempt > p.MaxRetries {
		return RetryDecision{RetryCount: attempt, Terminal: true}
	}
	return RetryDecision{
		RetryCount: attempt,
		Delay:      time.Duration(1<<(attempt-1)) * p.BaseBackoff,
	}
}

// PostponeDelay is the deferral used when an attempt is blocked without
// failing (limiter denial, enqueue error). It does not consume the retry
// budget.
func (p RetryPolicy) PostponeDelay() time.Duration {
	d := p.BaseBackoff / 6
	if d < 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
