package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nestdesk/internal/tickets/models"
	dErrors "nestdesk/pkg/domain-errors"
	"nestdesk/pkg/platform/httputil"
	"nestdesk/pkg/requestcontext"
)

// Service defines the ticket operations the HTTP layer exposes.
type Service interface {
	InternalID(ctx context.Context, raw string) (models.Resolution, error)
	Ticket(ctx context.Context, raw string) (*models.TicketView, error)
	AddNote(ctx context.Context, raw string, req models.AddNoteRequest) (models.Resolution, error)
	Extract(text string) []models.TicketID
	RefreshCache(ctx context.Context) (int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/tickets/extract", h.HandleExtract)
	r.Post("/tickets/cache/refresh", h.HandleRefreshCache)
	r.Get("/tickets/{ticket}", h.HandleGetTicket)
	r.Get("/tickets/{ticket}/internal-id", h.HandleInternalID)
	r.Post("/tickets/{ticket}/notes", h.HandleAddNote)
}

// HandleInternalID answers with the vendor id for a display identifier.
func (h *Handler) HandleInternalID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticket := chi.URLParam(r, "ticket")

	res, err := h.service.InternalID(ctx, ticket)
	if err != nil {
		h.writeFailure(ctx, w, "resolve ticket failed", ticket, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.NewInternalIDResponse(res))
}

// HandleGetTicket returns the vendor's detail payload for a ticket.
func (h *Handler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticket := chi.URLParam(r, "ticket")

	view, err := h.service.Ticket(ctx, ticket)
	if err != nil {
		h.writeFailure(ctx, w, "get ticket failed", ticket, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.NewTicketResponse(view))
}

// HandleAddNote posts a note on a ticket.
func (h *Handler) HandleAddNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ticket := chi.URLParam(r, "ticket")

	req, ok := httputil.DecodeAndPrepare[models.AddNoteRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	res, err := h.service.AddNote(ctx, ticket, *req)
	if err != nil {
		h.writeFailure(ctx, w, "add note failed", ticket, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &models.NoteResponse{
		Ticket:     res.TicketID.Display(),
		InternalID: res.InternalID.String(),
		Added:      true,
	})
}

// HandleExtract lists ticket references found in free text.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	requestID := requestcontext.RequestID(r.Context())

	req, ok := httputil.DecodeAndPrepare[models.ExtractRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.NewExtractResponse(h.service.Extract(req.Text)))
}

// HandleRefreshCache forces a full listing and cache replace.
func (h *Handler) HandleRefreshCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.RefreshCache(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "cache refresh failed", "", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &models.RefreshResponse{Records: n})
}

// writeFailure logs client errors quietly and everything else loudly.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg, ticket string, err error) {
	attrs := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if ticket != "" {
		attrs = append(attrs, "ticket", ticket)
	}

	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeBadRequest:
		h.logger.InfoContext(ctx, msg, attrs...)
	default:
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
