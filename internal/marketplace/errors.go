package marketplace

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationLost means the marketplace redirected away from its
	// authenticated host, usually to a login page. It is never retried.
	ErrAuthenticationLost = errors.New("marketplace authentication lost")

	// ErrRetriesExhausted wraps the last transient failure once the retry
	// policy gives up.
	ErrRetriesExhausted = errors.New("marketplace retries exhausted")
)

// Reasons a request is treated as transient.
const (
	ReasonNetwork   = "network"
	ReasonStatus    = "status"
	ReasonRedirect  = "redirect"
	ReasonMalformed = "malformed"
)

// TransientError is a recoverable marketplace failure.
type TransientError struct {
	Endpoint string
	Reason   string
	Status   int
	URL      string
	Err      error
}

func (e *TransientError) Error() string {
	switch e.Reason {
	case ReasonStatus:
		return fmt.Sprintf("%s: http %d", e.Endpoint, e.Status)
	case ReasonRedirect:
		return fmt.Sprintf("%s: landed on %s", e.Endpoint, e.URL)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable marketplace failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
