package gateway

import (
	"errors"
	"fmt"

	"tenantguard/internal/ownership"
)

// DeniedError is returned for every authorization denial. It unwraps to the
// decision's domain error, so dErrors.HasCode and IsAuthorizationFailure
// work on it directly.
type DeniedError struct {
	Decision ownership.Decision
	// Stage is the last stage reached before the denial.
	Stage  Stage
	Stages []Stage
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied at %s: %s", e.Stage, e.Decision.Reason)
}

func (e *DeniedError) Unwrap() error {
	return e.Decision.Err()
}

// AsDenied extracts a DeniedError from err.
func AsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
