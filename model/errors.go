package model

import "fmt"

// ErrorCode classifies engine errors for the RPC error payload.
type ErrorCode string

const (
	// ErrInvalidReference marks a command naming an entity that does not exist.
	ErrInvalidReference ErrorCode = "invalid_reference"
	// ErrConstraintViolation marks a command that would break a document invariant.
	ErrConstraintViolation ErrorCode = "constraint_violation"
	// ErrConflict marks a compare-and-apply submission with a stale revision.
	ErrConflict ErrorCode = "conflict"
	// ErrRoutingCycle marks a graph compile aborted by a routing cycle.
	ErrRoutingCycle ErrorCode = "routing_cycle"
	// ErrAssetDecode marks an asset whose decode failed; the asset stays unusable.
	ErrAssetDecode ErrorCode = "asset_decode"
	// ErrDuplicate marks a resubmitted client request id inside the dedup window.
	ErrDuplicate ErrorCode = "duplicate_request"
	// ErrProtocol marks a malformed RPC message; connection-scoped.
	ErrProtocol ErrorCode = "protocol"
	// ErrIncompatibleVersion marks an unsupported protocol version.
	ErrIncompatibleVersion ErrorCode = "incompatible_version"
	// ErrUnauthorized marks a request without a valid session token.
	ErrUnauthorized ErrorCode = "unauthorized"
	// ErrInternal marks everything the taxonomy does not cover.
	ErrInternal ErrorCode = "internal"
)

// Error is the engine error type carried across the RPC bus.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code, mapping unknown errors to ErrInternal.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrInternal
}
