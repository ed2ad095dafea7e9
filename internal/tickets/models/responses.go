package models

import "encoding/json"

type InternalIDResponse struct {
	Ticket     string `json:"ticket"`
	InternalID string `json:"internal_id"`
	Tier       Tier   `json:"tier"`
}

type TicketResponse struct {
	Ticket     string          `json:"ticket"`
	InternalID string          `json:"internal_id"`
	Data       json.RawMessage `json:"data"`
}

type NoteResponse struct {
	Ticket     string `json:"ticket"`
	InternalID string `json:"internal_id"`
	Added      bool   `json:"added"`
}

type ExtractResponse struct {
	Tickets []string `json:"tickets"`
}

type RefreshResponse struct {
	Records int `json:"records"`
}

// TicketView is a resolved ticket with its vendor detail payload.
type TicketView struct {
	Resolution Resolution
	Data       json.RawMessage
}

func NewInternalIDResponse(res Resolution) *InternalIDResponse {
	return &InternalIDResponse{
		Ticket:     res.TicketID.Display(),
		InternalID: res.InternalID.String(),
		Tier:       res.Tier,
	}
}

func NewTicketResponse(view *TicketView) *TicketResponse {
	return &TicketResponse{
		Ticket:     view.Resolution.TicketID.Display(),
		InternalID: view.Resolution.InternalID.String(),
		Data:       view.Data,
	}
}

func NewExtractResponse(ids []TicketID) *ExtractResponse {
	tickets := make([]string, 0, len(ids))
	for _, id := range ids {
		tickets = append(tickets, id.Display())
	}
	return &ExtractResponse{Tickets: tickets}
}
