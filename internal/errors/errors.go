package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess           Code = 0
	CodeInternal          Code = 1
	CodeUsage             Code = 2
	CodeConfig            Code = 3
	CodeAuth              Code = 10
	CodeRateLimited       Code = 11
	CodeUnavailable       Code = 12
	CodeUnsupported       Code = 13
	CodeInvalidAddress    Code = 20
	CodeContractRead      Code = 21
	CodeContractCall      Code = 22
	CodeInsufficientFunds Code = 23
	CodeBlocked           Code = 30
)

// String returns the stable wire name for the code, used in envelopes
// and tool error text.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInternal:
		return "internal"
	case CodeUsage:
		return "usage"
	case CodeConfig:
		return "config"
	case CodeAuth:
		return "auth"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeInvalidAddress:
		return "invalid_address"
	case CodeContractRead:
		return "contract_read"
	case CodeContractCall:
		return "contract_call"
	case CodeInsufficientFunds:
		return "insufficient_funds"
	case CodeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if kitErr, ok := As(err); ok {
		return int(kitErr.Code)
	}
	return int(CodeInternal)
}
