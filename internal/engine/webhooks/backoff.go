package webhooks

import "time"

// NextDelay returns the wait before the given attempt number is retried:
// base doubling per attempt, capped at max. attempt is 1-based (the delay
// scheduled after attempt N failed).
func NextDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
