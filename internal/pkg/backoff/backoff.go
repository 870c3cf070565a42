// Package backoff provides the exponential retry delay used by broker
// adapters for transient I/O failures.
package backoff

import "time"

const (
	baseDelay = 500 * time.Millisecond
	maxDelay  = 30 * time.Second
)

// Delay 返回第 attempt 次重试前的等待时长：baseDelay * 2^attempt，封顶 maxDelay。
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		return baseDelay
	}
	if attempt > 30 {
		return maxDelay
	}
	d := baseDelay * time.Duration(1<<attempt)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
