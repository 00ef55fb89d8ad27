// Package apperr defines the error taxonomy shared by the client orchestrators.
//
// Every failure that reaches a user is one of the types below. UserMessage turns
// any error into a single localized line; the wrapped cause stays available to
// errors.Is / errors.As and to the logs.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

var (
	ErrInitializationFailed = errors.New("session initialization failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrNotAdmin             = errors.New("admin role required")
	ErrSendInProgress       = errors.New("a message is already being sent")
	ErrMoodAlreadySaved     = errors.New("mood already saved today")
	ErrMissingCredential    = errors.New("language model credential is not configured")
	ErrCancelled            = errors.New("cancelled by user")
)

// ValidationError is a local input rejection. Nothing was sent or mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthReason is the normalized category of an authentication failure.
type AuthReason string

const (
	ReasonInvalidCredentials AuthReason = "invalid_credentials"
	ReasonUnconfirmedEmail   AuthReason = "unconfirmed_email"
	ReasonAlreadyRegistered  AuthReason = "already_registered"
	ReasonRateLimited        AuthReason = "rate_limited"
	ReasonNetwork            AuthReason = "network"
	ReasonUnknown            AuthReason = "unknown"
)

// AuthError carries a normalized reason and its localized message.
type AuthError struct {
	Reason  AuthReason
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConfigError reports a missing or unusable configuration value.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Key == "GEMINI_API_KEY" {
		return ErrMissingCredential
	}
	return nil
}

// BackendError wraps a data-layer failure of a named operation.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend wraps err unless it is nil.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// ProtocolError is a malformed reply from a remote service.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Detail
}

// IsNetwork reports whether err comes from the transport rather than the remote service.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// UserMessage returns the one line shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Message
	}

	switch {
	case errors.Is(err, ErrInitializationFailed):
		return MsgInitFailed
	case errors.Is(err, ErrNotAuthenticated):
		return MsgNotAuthenticated
	case errors.Is(err, ErrNotAdmin):
		return MsgNotAdmin
	case errors.Is(err, ErrSendInProgress):
		return MsgBusy
	case errors.Is(err, ErrMoodAlreadySaved):
		return MsgMoodAlreadySaved
	case errors.Is(err, ErrMissingCredential):
		return MsgApologyMissingKey
	case errors.Is(err, ErrCancelled):
		return MsgCancelled
	}

	var ce *ConfigError
	if errors.As(err, &ce) {
		if ce.Message != "" {
			return ce.Message
		}
		return MsgFeatureOff
	}
	if IsNetwork(err) {
		return MsgNetwork
	}
	var be *BackendError
	if errors.As(err, &be) {
		return MsgSaveFailed
	}
	return MsgGeneric
}
