// Package validation holds request size limits enforced at the HTTP boundary.
package validation

import (
	"fmt"

	dErrors "credtrust/pkg/domain-errors"
)

// Slice element count limits
const (
	// MaxCredentialTypes is the maximum number of extra types on an issued credential.
	MaxCredentialTypes = 10

	// MaxDisclosedFields is the maximum number of field paths per presentation.
	MaxDisclosedFields = 100

	// MaxPredicates is the maximum number of predicate proofs per presentation.
	MaxPredicates = 50
)

// String element length limits
const (
	MaxCredentialIDLength = 512
	MaxHolderIDLength     = 512
	MaxReasonLength       = 500
	MaxFieldPathLength    = 256
	MaxLabelLength        = 100
	MaxTwoFactorCodeLen   = 32
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}

// FirstError returns the first non-nil error.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
