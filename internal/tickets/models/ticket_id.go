package models

import (
	"strings"

	dErrors "nestdesk/pkg/domain-errors"
)

const displayPrefix = "T-"

// TicketID is a validated display identifier. The zero value is invalid.
type TicketID struct {
	digits string
}

// ParseTicketID accepts "12345", "T-12345", "t-12345", "T12345" and "t12345".
// Surrounding whitespace is ignored and leading zeros are kept.
func ParseTicketID(raw string) (TicketID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TicketID{}, dErrors.New(dErrors.CodeInvalidInput, "ticket identifier is required")
	}

	for _, prefix := range []string{"T-", "t-", "T", "t"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}

	if s == "" || !isDigits(s) {
		return TicketID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid ticket identifier: "+strings.TrimSpace(raw))
	}
	return TicketID{digits: s}, nil
}

// MustParseTicketID panics on invalid input. Intended for tests and constants.
func MustParseTicketID(raw string) TicketID {
	id, err := ParseTicketID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// Display returns the canonical "T-<digits>" form.
func (t TicketID) Display() string {
	if t.digits == "" {
		return ""
	}
	return displayPrefix + t.digits
}

// Bare returns the digits without prefix.
func (t TicketID) Bare() string {
	return t.digits
}

func (t TicketID) IsZero() bool {
	return t.digits == ""
}

func (t TicketID) String() string {
	return t.Display()
}

func (t TicketID) MarshalText() ([]byte, error) {
	return []byte(t.Display()), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
