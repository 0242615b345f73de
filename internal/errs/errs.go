// Package errs defines the error taxonomy shared by the completion path.
//
// DESIGN: Every failure that can reach the extension carries a Kind so the
// router can log it and the UI can phrase it:
//   - config:    missing/invalid API key or endpoint (provider named)
//   - provider:  non-2xx HTTP from the provider (raw body included)
//   - response:  zero choices or a body that cannot be parsed
//   - lookup:    unknown prompt id
//   - transport: network failure before any HTTP status was received
//   - invalid:   malformed request (empty model, no messages, no text)
//   - forbidden: message type not permitted for the caller's origin
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindConfig    Kind = "config"
	KindProvider  Kind = "provider"
	KindResponse  Kind = "response"
	KindLookup    Kind = "lookup"
	KindTransport Kind = "transport"
	KindInvalid   Kind = "invalid"
	KindForbidden Kind = "forbidden"
	KindInternal  Kind = "internal"
)

// Error is a classified error.
type Error struct {
	Kind     Kind
	Provider string // optional
	Status   int    // HTTP status for KindProvider
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New creates a classified error.
func New(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Config reports a configuration problem for the named provider.
func Config(provider, format string, args ...any) error {
	return &Error{Kind: KindConfig, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// Provider reports a non-2xx response.
func Provider(provider string, status int, body string) error {
	return &Error{
		Kind:     KindProvider,
		Provider: provider,
		Status:   status,
		Message:  fmt.Sprintf("%s API returned status %d: %s", provider, status, body),
	}
}

// Response reports a response that could not be turned into text.
func Response(provider, format string, args ...any) error {
	return &Error{Kind: KindResponse, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// Transport reports a network failure.
func Transport(provider string, cause error) error {
	return &Error{
		Kind:     KindTransport,
		Provider: provider,
		Message:  fmt.Sprintf("network error: failed to reach %s", provider),
		Cause:    cause,
	}
}

// Lookup reports a missing entity.
func Lookup(format string, args ...any) error {
	return &Error{Kind: KindLookup, Message: fmt.Sprintf(format, args...)}
}

// Invalid reports a malformed request.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a permission error.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
