// Package queue implements the bounded, fingerprint-keyed FIFO queues
// that buffer query submissions and replies between receipt and
// execution, plus the two plain FIFO log deques.
package queue

// Config parameterizes a single keyed queue's overflow policy.
type Config struct {
	// WarnLimit is the depth past which every insertion emits a warning.
	WarnLimit int
	// DropLimit is the depth at which new insertions are rejected.
	DropLimit int
	// MaxSendAttempts bounds per-entry retries; entries at or above this
	// are evicted by Trim and counted as drops.
	MaxSendAttempts int
}

// DefaultConfig returns the documented defaults for a keyed queue.
func DefaultConfig() Config {
	return Config{
		WarnLimit:       1000,
		DropLimit:       5000,
		MaxSendAttempts: 5,
	}
}
