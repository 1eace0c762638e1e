package sigv4gate

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when authentication fails
	ErrUnauthorized = errors.New("unauthorized")
)

// Authentication failure reasons. Every one of them wraps ErrUnauthorized.
var (
	ErrBodyRead           = fmt.Errorf("read request body: %w", ErrUnauthorized)
	ErrBodyTooLarge       = fmt.Errorf("request body too large: %w", ErrUnauthorized)
	ErrMalformedSignature = fmt.Errorf("malformed signature: %w", ErrUnauthorized)
	ErrSignatureMismatch  = fmt.Errorf("signature mismatch: %w", ErrUnauthorized)
	ErrClockSkew          = fmt.Errorf("clock skew exceeded: %w", ErrUnauthorized)
	ErrUnknownSigningKey  = fmt.Errorf("unknown signing key: %w", ErrUnauthorized)
)

// Reason classifies why a request failed authentication.
// It is only ever logged or counted, never sent to the client.
type Reason string

const (
	ReasonTransportRead     Reason = "transport_read_failure"
	ReasonBodyTooLarge      Reason = "body_too_large"
	ReasonMalformed         Reason = "malformed_signature_headers"
	ReasonMismatch          Reason = "signature_mismatch"
	ReasonClockSkew         Reason = "clock_skew_exceeded"
	ReasonUnknownSigningKey Reason = "unknown_signing_key"
)

// Reasons lists every Reason in a stable order.
var Reasons = []Reason{
	ReasonTransportRead,
	ReasonBodyTooLarge,
	ReasonMalformed,
	ReasonMismatch,
	ReasonClockSkew,
	ReasonUnknownSigningKey,
}

// ReasonOf maps an authentication error to its Reason.
// Errors it does not recognise are reported as a signature mismatch.
func ReasonOf(err error) Reason {
	switch {
	case errors.Is(err, ErrBodyRead):
		return ReasonTransportRead
	case errors.Is(err, ErrBodyTooLarge):
		return ReasonBodyTooLarge
	case errors.Is(err, ErrMalformedSignature):
		return ReasonMalformed
	case errors.Is(err, ErrClockSkew):
		return ReasonClockSkew
	case errors.Is(err, ErrUnknownSigningKey):
		return ReasonUnknownSigningKey
	default:
		return ReasonMismatch
	}
}
