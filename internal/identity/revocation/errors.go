package revocation

import "errors"

var errPrimaryUnavailable = errors.New("revocation store unavailable")

// IsUnavailable reports whether err came from an open breaker rather than the store.
func IsUnavailable(err error) bool {
	return errors.Is(err, errPrimaryUnavailable)
}
