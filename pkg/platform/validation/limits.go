package validation

import (
	"fmt"

	dErrors "tenantguard/pkg/domain-errors"
)

// MaxBodySize caps JSON request bodies (64 KB).
const MaxBodySize = 64 * 1024

// Gateway request limits.
const (
	// MaxFilterConditions bounds the conditions in one query filter.
	MaxFilterConditions = 32

	// MaxPinnedIDs bounds the ids a targeted call may name with "in".
	MaxPinnedIDs = 500

	// MaxOrderColumns bounds the order-by clause.
	MaxOrderColumns = 4

	// MaxQueryLimit is the largest page a read may request.
	MaxQueryLimit = 1000

	// MaxPayloadColumns bounds the columns in a create or update payload.
	MaxPayloadColumns = 64

	// MaxDependents bounds the child rows created with one parent.
	MaxDependents = 1000
)

// String lengths.
const (
	MaxTenantNameLength = 128
	MaxEmailLength      = 255
	MaxTokenLength      = 8192
)

// CheckSliceCount fails when count exceeds max.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength fails when value is longer than max bytes.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckRange fails when value is outside [min, max].
func CheckRange(fieldName string, value, min, max int) error {
	if value < min || value > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be between %d and %d", fieldName, min, max))
	}
	return nil
}
