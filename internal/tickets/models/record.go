package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InternalID is the vendor's opaque ticket id. The API returns it either as
// a JSON string or a JSON number; it is always handled as a string here.
type InternalID string

func (id *InternalID) UnmarshalJSON(data []byte) error {
	s, err := flexString(data)
	if err != nil {
		return fmt.Errorf("internal id: %w", err)
	}
	*id = InternalID(s)
	return nil
}

func (id InternalID) String() string {
	return string(id)
}

// OrderID is the display identifier as stored by the vendor, string or number.
type OrderID string

func (o *OrderID) UnmarshalJSON(data []byte) error {
	s, err := flexString(data)
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	*o = OrderID(s)
	return nil
}

// TicketID parses the stored order id. ok is false when it is not a ticket identifier.
func (o OrderID) TicketID() (TicketID, bool) {
	id, err := ParseTicketID(string(o))
	return id, err == nil
}

func flexString(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", data)
	}
	return n.String(), nil
}

// Summary is the part of a ticket record the resolver understands.
type Summary struct {
	ID      InternalID `json:"id"`
	OrderID OrderID    `json:"order_id"`
}

// Record is one cached ticket. Fields other than the summary id and order id
// are kept verbatim so a load followed by a replace does not lose vendor data.
type Record struct {
	Summary Summary
	raw     json.RawMessage
}

// NewRecord builds a minimal record carrying only the summary.
func NewRecord(orderID string, internalID string) Record {
	return Record{Summary: Summary{ID: InternalID(internalID), OrderID: OrderID(orderID)}}
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var probe struct {
		Summary Summary `json:"summary"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	r.Summary = probe.Summary
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	return json.Marshal(struct {
		Summary summaryJSON `json:"summary"`
	}{summaryJSON{ID: string(r.Summary.ID), OrderID: string(r.Summary.OrderID)}})
}

type summaryJSON struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
}

// Raw returns the record as received from the vendor, or nil for constructed records.
func (r Record) Raw() json.RawMessage {
	return r.raw
}

// Records is an ordered ticket listing.
type Records []Record

// FindByDisplay returns the first record whose order id normalizes to id.
// Records without an internal id never match.
func (rs Records) FindByDisplay(id TicketID) (Record, bool) {
	want := id.Display()
	for _, r := range rs {
		if r.Summary.ID == "" {
			continue
		}
		got, ok := r.Summary.OrderID.TicketID()
		if ok && got.Display() == want {
			return r, true
		}
	}
	return Record{}, false
}
