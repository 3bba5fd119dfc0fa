package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error code.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "0"
	CodeConfiguration      ErrorCode = "configuration"
	CodeUpstreamRPC        ErrorCode = "upstream_rpc"
	CodeVerificationFailed ErrorCode = "verification_failed"
	CodeFilterNotFound     ErrorCode = "filter_not_found"
	CodeServerStartup      ErrorCode = "server_startup"
)

// Sentinels for errors.Is. Matching is done by code only.
var (
	ErrConfiguration      = &ErrorResponse{Code: CodeConfiguration}
	ErrUpstreamRPC        = &ErrorResponse{Code: CodeUpstreamRPC}
	ErrVerificationFailed = &ErrorResponse{Code: CodeVerificationFailed}
	ErrFilterNotFound     = &ErrorResponse{Code: CodeFilterNotFound}
	ErrServerStartup      = &ErrorResponse{Code: CodeServerStartup}
)

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Details string    `json:"details,omitempty"`

	cause error
}

// Error returns the human readable description.
func (e *ErrorResponse) Error() string {
	switch {
	case e.Details != "" && e.cause != nil:
		return e.Details + ": " + e.cause.Error()
	case e.Details != "":
		return e.Details
	case e.cause != nil:
		return e.cause.Error()
	}
	return string(e.Code)
}

func (e *ErrorResponse) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *ErrorResponse with the same code.
func (e *ErrorResponse) Is(target error) bool {
	t, ok := target.(*ErrorResponse)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, cause error, format string, args ...interface{}) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Details: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// Configuration is returned when no usable execution endpoint is configured.
func Configuration(format string, args ...interface{}) error {
	return newError(CodeConfiguration, nil, format, args...)
}

// UpstreamRPC wraps a transport or decoding failure against an execution endpoint.
func UpstreamRPC(method string, cause error) error {
	return newError(CodeUpstreamRPC, cause, "upstream %s failed", method)
}

// VerificationFailed is returned when a value does not match its proof or the
// verified head needed to check it is unavailable.
func VerificationFailed(format string, args ...interface{}) error {
	return newError(CodeVerificationFailed, nil, format, args...)
}

// VerificationFailedWithCause is VerificationFailed keeping the underlying error.
func VerificationFailedWithCause(cause error, format string, args ...interface{}) error {
	return newError(CodeVerificationFailed, cause, format, args...)
}

func FilterNotFound(id uint64) error {
	return newError(CodeFilterNotFound, nil, "filter not found: %#x", id)
}

func ServerStartup(cause error, format string, args ...interface{}) error {
	return newError(CodeServerStartup, cause, format, args...)
}

// CodeOf returns the code of the first ErrorResponse in err's chain, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Code
	}
	return CodeUnknown
}
