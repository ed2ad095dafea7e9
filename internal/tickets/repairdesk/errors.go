package repairdesk

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for vendor calls.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorProviderOutage ErrorCategory = "provider_outage"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorInternal       ErrorCategory = "internal"
)

// VendorError wraps a failed RepairDesk call with its category.
type VendorError struct {
	Category   ErrorCategory
	Endpoint   string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *VendorError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("repairdesk %s [%s]: %s: %v", e.Endpoint, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("repairdesk %s [%s]: %s", e.Endpoint, e.Category, e.Message)
}

func (e *VendorError) Unwrap() error {
	return e.Underlying
}

// NewVendorError classifies timeouts, outages and rate limiting as retryable.
func NewVendorError(category ErrorCategory, endpoint, message string, underlying error) *VendorError {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited

	return &VendorError{
		Category:   category,
		Endpoint:   endpoint,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// ErrCircuitOpen is wrapped by calls rejected while the breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

func IsRetryable(err error) bool {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// CategoryOf extracts the category, defaulting to ErrorInternal.
func CategoryOf(err error) ErrorCategory {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ErrorInternal
}

func IsNotFound(err error) bool {
	return CategoryOf(err) == ErrorNotFound
}
