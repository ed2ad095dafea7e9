// Package service exposes ticket operations to the HTTP handler and the CLI.
package service

import (
	"context"
	"log/slog"

	"nestdesk/internal/tickets/extract"
	"nestdesk/internal/tickets/models"
	"nestdesk/internal/tickets/repairdesk"
	"nestdesk/internal/tickets/resolver"
)

// Resolver turns display identifiers into internal ids.
type Resolver interface {
	Lookup(ctx context.Context, raw string) (models.Resolution, error)
	Refresh(ctx context.Context) (int, error)
}

// Vendor is the RepairDesk surface used once a ticket is resolved.
type Vendor interface {
	GetTicket(ctx context.Context, id string) (*repairdesk.TicketDetail, error)
	AddNote(ctx context.Context, req repairdesk.NoteRequest) error
}

type Service struct {
	resolver Resolver
	vendor   Vendor
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(r Resolver, vendor Vendor, opts ...Option) *Service {
	s := &Service{
		resolver: r,
		vendor:   vendor,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InternalID resolves raw. Unknown tickets are a CodeNotFound error.
func (s *Service) InternalID(ctx context.Context, raw string) (models.Resolution, error) {
	return s.resolver.Lookup(ctx, raw)
}

// Ticket resolves raw and fetches the vendor's detail payload for it.
func (s *Service) Ticket(ctx context.Context, raw string) (*models.TicketView, error) {
	res, err := s.resolver.Lookup(ctx, raw)
	if err != nil {
		return nil, err
	}

	detail, err := s.vendor.GetTicket(ctx, res.InternalID.String())
	if err != nil {
		s.logger.WarnContext(ctx, "fetching ticket detail failed",
			"ticket", res.TicketID.Display(),
			"internal_id", res.InternalID.String(),
			"error", err,
		)
		return nil, resolver.ToDomainError(err, "fetching ticket "+res.TicketID.Display()+" failed")
	}
	return &models.TicketView{Resolution: res, Data: detail.Raw}, nil
}

// AddNote resolves raw and attaches the note to the vendor ticket.
func (s *Service) AddNote(ctx context.Context, raw string, req models.AddNoteRequest) (models.Resolution, error) {
	res, err := s.resolver.Lookup(ctx, raw)
	if err != nil {
		return models.Resolution{}, err
	}

	err = s.vendor.AddNote(ctx, repairdesk.NoteRequest{
		ID:     res.InternalID,
		Note:   req.Note,
		Type:   req.NoteType(),
		IsFlag: req.IsFlag,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "adding ticket note failed",
			"ticket", res.TicketID.Display(),
			"error", err,
		)
		return models.Resolution{}, resolver.ToDomainError(err, "adding note to "+res.TicketID.Display()+" failed")
	}

	s.logger.InfoContext(ctx, "ticket note added", "ticket", res.TicketID.Display(), "flagged", req.IsFlag)
	return res, nil
}

// Extract lists ticket references found in text.
func (s *Service) Extract(text string) []models.TicketID {
	return extract.TicketNumbers(text)
}

// RefreshCache forces a full listing and cache replace.
func (s *Service) RefreshCache(ctx context.Context) (int, error) {
	return s.resolver.Refresh(ctx)
}
