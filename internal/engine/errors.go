package engine

import (
	"errors"
	"fmt"
)

// DispatchError is the engine-generated terminal error for a request.
//
// Every request ends with exactly one of a rule-produced response or a
// DispatchError; the caller never waits on a loop that silently stalled.
type DispatchError struct {
	// Code identifies the failure category.
	Code DispatchErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the request.
	FlowToken string

	// Passes and Steps record how far dispatch got.
	Passes int
	Steps  int

	// Err is the underlying cause, if any.
	Err error
}

// DispatchErrorCode categorizes dispatch failures.
type DispatchErrorCode string

const (
	// ErrCodeNoResponse indicates a fixed point was reached without a respond entry.
	ErrCodeNoResponse DispatchErrorCode = "NO_RESPONSE"

	// ErrCodeExhausted indicates the pass or step budget was exceeded.
	ErrCodeExhausted DispatchErrorCode = "EXHAUSTED"

	// ErrCodeTimeout indicates the request context expired mid-dispatch.
	ErrCodeTimeout DispatchErrorCode = "TIMEOUT"
)

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s (flow=%s, passes=%d, steps=%d)", e.Code, e.Message, e.FlowToken, e.Passes, e.Steps)
}

// Unwrap returns the underlying cause.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

func isCode(err error, code DispatchErrorCode) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNoResponse reports whether err is a NO_RESPONSE dispatch error.
func IsNoResponse(err error) bool { return isCode(err, ErrCodeNoResponse) }

// IsExhausted reports whether err is an EXHAUSTED dispatch error.
func IsExhausted(err error) bool { return isCode(err, ErrCodeExhausted) }

// IsTimeout reports whether err is a TIMEOUT dispatch error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// ConfigError reports an invalid rule set. Returned from New; never at
// dispatch time.
type ConfigError struct {
	SyncID  string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.SyncID == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: sync %s: %s", e.SyncID, e.Message)
}

func configErrorf(syncID, format string, args ...any) *ConfigError {
	return &ConfigError{SyncID: syncID, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err contains a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
