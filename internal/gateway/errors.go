// Package gateway executes read and write queries against the backing
// run database and inserts records into the monitoring database,
// classifying every failure into the small taxonomy the pipeline
// switches on.
package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindNone Kind = iota
	KindConnectionLost
	KindConstraintViolation
	KindSyntax
	KindTimeout
)

// Error wraps an underlying driver error with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (k Kind) String() string {
	switch k {
	case KindConnectionLost:
		return "connection-lost"
	case KindConstraintViolation:
		return "constraint-violation"
	case KindSyntax:
		return "syntax"
	case KindTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// KindOf extracts the Kind from err, or KindNone if err isn't a gateway Error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindNone
}

// Retryable reports whether the pipeline should retry the query rather
// than surface the failure to the client.
func (k Kind) Retryable() bool {
	return k == KindConnectionLost || k == KindTimeout
}
