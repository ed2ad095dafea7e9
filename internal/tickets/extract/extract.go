// Package extract finds ticket references in free text such as chat
// messages and technician notes.
package extract

import (
	"regexp"

	"nestdesk/internal/tickets/models"
)

// ticketRef matches T-123 and t-123, T123 (uppercase only, so "t2 chip"
// is not a ticket), and case-insensitively: ticket 123, ticket no. 123,
// ticket number 123, ticket #123, ticket T-123.
var ticketRef = regexp.MustCompile(
	`(?i:\bticket\s*(?:(?:no\.?|number|:)\s*)?#?\s*(?:t-?)?(\d+)\b)` +
		`|\b[Tt]-(\d+)\b` +
		`|\bT(\d+)\b`,
)

// TicketNumbers returns the distinct tickets referenced in text, in the
// order they first appear.
func TicketNumbers(text string) []models.TicketID {
	var out []models.TicketID
	seen := make(map[string]struct{})

	for _, m := range ticketRef.FindAllStringSubmatch(text, -1) {
		var digits string
		for _, g := range m[1:] {
			if g != "" {
				digits = g
				break
			}
		}
		id, err := models.ParseTicketID(digits)
		if err != nil {
			continue
		}
		if _, dup := seen[id.Display()]; dup {
			continue
		}
		seen[id.Display()] = struct{}{}
		out = append(out, id)
	}
	return out
}
