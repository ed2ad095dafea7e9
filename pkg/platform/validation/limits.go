package validation

import (
	"fmt"
	"unicode/utf8"

	dErrors "nestdesk/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (1 MiB).
	MaxBodySize = 1 << 20
)

// String length limits
const (
	// MaxNoteRunes is the longest note accepted, counted in characters.
	MaxNoteRunes = 10000

	// MaxExtractBytes caps the text scanned for ticket references.
	MaxExtractBytes = 64 << 10
)

// CheckStringLength validates that a string does not exceed max bytes.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckRuneLength validates that a string does not exceed max characters.
func CheckRuneLength(fieldName, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d characters", fieldName, max))
	}
	return nil
}

// CheckRequired validates that a string is not empty.
func CheckRequired(fieldName, value string) error {
	if value == "" {
		return dErrors.New(dErrors.CodeValidation, fieldName+" is required")
	}
	return nil
}
