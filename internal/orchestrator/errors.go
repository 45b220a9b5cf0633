package orchestrator

import "errors"

var (
	ErrAuthenticationFailure = errors.New("orchestrator: authentication failed")
	ErrRegistrationTimeout   = errors.New("orchestrator: registration timed out")
	ErrRegistrationRejected  = errors.New("orchestrator: registration rejected by server")

	// ErrRetryExhausted is terminal. It wraps the last attempt's error.
	ErrRetryExhausted = errors.New("orchestrator: retry attempts exhausted")

	// ErrBusy is returned by Start while an attempt sequence is active.
	ErrBusy = errors.New("orchestrator: connection sequence already in progress")

	// ErrRoleViolation is returned when a responder tries to open peer
	// negotiation.
	ErrRoleViolation = errors.New("orchestrator: role does not permit this message")

	ErrLinkClosed = errors.New("orchestrator: peer link closed")
)
