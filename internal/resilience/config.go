package resilience

import (
	"time"
)

// FetchRetryConfig is the retry policy for document downloads. Backoff
// is exponential with jitter so a struggling insurer site is not hammered.
func FetchRetryConfig(maxAttempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	return cfg
}

// CompletionRetryConfig is the retry policy for chat completion calls.
// The delay between attempts is fixed; completion failures are usually
// capacity related and a constant pause matches the service guidance.
func CompletionRetryConfig(maxAttempts, delaySecs int) RetryConfig {
	cfg := RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Duration(delaySecs) * time.Second,
		Multiplier:     1.0,
		JitterFraction: 0,
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return cfg
}
