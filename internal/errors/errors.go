// Package errors provides standardized error codes for the focusflow host.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (store, bus, state, timer, audio, relay)
//   - error: The specific error type within that domain
//
// None of these errors are shown to the person using the timer. They exist so
// logs and the relay status endpoint can say which layer degraded.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Store domain - shared key-value store
	CodeStoreUnavailable  = "store.unavailable"   // No store in this context (degraded mode)
	CodeStoreReadFailed   = "store.read_failed"   // Get or Keys failed
	CodeStoreWriteFailed  = "store.write_failed"  // Put or Delete failed
	CodeStoreDecodeFailed = "store.decode_failed" // Persisted JSON is malformed

	// Bus domain - cross-tab message relay
	CodeBusUnavailable     = "bus.unavailable"      // Not connected to the relay
	CodeBusSendFailed      = "bus.send_failed"      // Envelope could not be written
	CodeBusInvalidEnvelope = "bus.invalid_envelope" // Envelope missing required fields

	// State domain - replicated timer state
	CodeStateInvalid = "state.invalid" // TimerState violates an invariant

	// Timer domain - engine operations
	CodeTimerInvalidDuration      = "timer.invalid_duration"       // Minutes out of range
	CodeTimerActivityOutsideBreak = "timer.activity_outside_break" // Break activity chosen during focus

	// Audio domain - completion sound
	CodeAudioPlayFailed = "audio.play_failed" // Player returned an error

	// Relay domain - background process
	CodeRelayRateLimited = "relay.rate_limited" // Tab exceeded its inbound message budget

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
type CodedError struct {
	Code    string // Stable error code (e.g., "store.decode_failed")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common constructors.

// StoreRead creates a "store.read_failed" error for the given key.
func StoreRead(key string, cause error) *CodedError {
	return Wrap(CodeStoreReadFailed, fmt.Sprintf("read %s", key), cause)
}

// StoreWrite creates a "store.write_failed" error for the given key.
func StoreWrite(key string, cause error) *CodedError {
	return Wrap(CodeStoreWriteFailed, fmt.Sprintf("write %s", key), cause)
}

// Decode creates a "store.decode_failed" error for the given key.
func Decode(key string, cause error) *CodedError {
	return Wrap(CodeStoreDecodeFailed, fmt.Sprintf("decode %s", key), cause)
}

// InvalidState creates a "state.invalid" error.
func InvalidState(reason string) *CodedError {
	return New(CodeStateInvalid, reason)
}

// InvalidEnvelope creates a "bus.invalid_envelope" error.
func InvalidEnvelope(reason string) *CodedError {
	return New(CodeBusInvalidEnvelope, reason)
}

// InvalidDuration creates a "timer.invalid_duration" error.
func InvalidDuration(minutes, min, max int) *CodedError {
	return New(CodeTimerInvalidDuration, fmt.Sprintf("duration %d minutes outside [%d, %d]", minutes, min, max))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
