package domain

import (
	"strings"
)

// AuthError reports invalid credentials or a registration conflict.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "authentication failed"
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a failed room fetch, message fetch or send. Op names
// the gateway operation ("fetch_rooms", "fetch_messages", "send_message", ...).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op + ": transport failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError carries every problem found by local form validation. It is
// resolved client-side and never reaches the Gateway.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
