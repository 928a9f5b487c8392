package domain

import (
	"context"
	"time"
)

// OutcomeClass partitions every send attempt into the four cases the
// dispatcher must treat differently.
type OutcomeClass int

const (
	// OutcomeSent means the provider accepted the message.
	OutcomeSent OutcomeClass = iota
	// OutcomeRateLimited means the provider throttled the send and supplied
	// a retry-after duration.
	OutcomeRateLimited
	// OutcomeRejected means the destination is permanently unreachable
	// (blocked or invalid) and must be deactivated, not retried.
	OutcomeRejected
	// OutcomeTransient covers every other failure (timeouts, 5xx); worth a
	// bounded retry.
	OutcomeTransient
)

func (c OutcomeClass) String() string {
	switch c {
	case OutcomeSent:
		return "sent"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single send attempt against the message
// provider.
type Outcome struct {
	Class      OutcomeClass
	RetryAfter time.Duration // set when Class is OutcomeRateLimited
	Err        error         // nil when Class is OutcomeSent
}

// Sink delivers a formatted alert to one destination. Implementations must
// classify every failure into an OutcomeClass rather than returning a bare
// error, so the dispatcher can choose between retrying, sleeping, and
// deactivating the destination.
type Sink interface {
	SendAlert(ctx context.Context, chatID, text string) Outcome
}
