package domainerrors

import "errors"

// Code names a failure in business terms. The HTTP layer maps it to a status.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodePayloadTooLarge    Code = "payload_too_large"

	// Tenant authorization outcomes. Each names the reason a call was denied.
	CodeTenantNotAssigned Code = "tenant_not_assigned"
	CodeTenantInactive    Code = "tenant_inactive"
	CodeTenantMismatch    Code = "tenant_mismatch"
	CodeNullTenant        Code = "null_tenant"
	CodeResolutionTimeout Code = "resolution_timeout"
	CodeQuotaExceeded     Code = "quota_exceeded"
	CodeStorage           Code = "storage_error"
)

// Error carries a Code through every layer between the stores and the handlers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches msg to err. code applies only when err carries no Code yet;
// an inner code always wins.
func Wrap(err error, code Code, msg string) error {
	var inner *Error
	if errors.As(err, &inner) {
		code = inner.Code
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err carries code. Foreign and nil errors never match.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CodeOf returns the domain code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsAuthorizationFailure reports whether err is a deliberate denial.
// Callers must surface these and never retry them.
func IsAuthorizationFailure(err error) bool {
	switch CodeOf(err) {
	case CodeUnauthorized, CodeForbidden, CodeTenantNotAssigned, CodeTenantInactive,
		CodeTenantMismatch, CodeNullTenant, CodeResolutionTimeout:
		return err != nil
	}
	return false
}

// IsRetryable reports whether err is a transient infrastructure failure.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeStorage, CodeTimeout:
		return err != nil
	}
	return false
}
