// Package resolver maps display ticket identifiers to RepairDesk internal ids.
//
// Resolution tries three tiers in order and stops at the first hit:
//
//  1. the local cache file
//  2. the vendor's per-ticket endpoint, queried with the bare number
//  3. a full paginated listing, which also replaces the cache file
//
// Failures inside a tier are logged and fall through to the next tier. An
// unparseable identifier and a cancelled context are returned as errors, as is
// a miss whose full listing could not be fetched.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"nestdesk/internal/tickets/metrics"
	"nestdesk/internal/tickets/models"
	"nestdesk/internal/tickets/repairdesk"
	"nestdesk/internal/tickets/tracer"
	dErrors "nestdesk/pkg/domain-errors"
)

const DefaultPageSize = 50

// ErrVendorUnreachable is returned by Resolve when no tier matched and the full
// listing failed, so absence could not be confirmed. The listing error is
// wrapped alongside it.
var ErrVendorUnreachable = errors.New("vendor unreachable")

// VendorClient is the subset of the RepairDesk client the resolver needs.
type VendorClient interface {
	GetTicket(ctx context.Context, id string) (*repairdesk.TicketDetail, error)
	// ListAll returns whatever it fetched before failing along with the error.
	ListAll(ctx context.Context, size int) (models.Records, error)
}

// CacheStore persists the full listing.
type CacheStore interface {
	Load(ctx context.Context) (models.Records, error)
	Replace(ctx context.Context, records models.Records) error
	Path() string
}

type Config struct {
	PageSize int
}

type Resolver struct {
	pageSize int
	vendor   VendorClient
	cache    CacheStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	refresh  singleflight.Group
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = t
	}
}

func New(cfg Config, vendor VendorClient, cache CacheStore, opts ...Option) *Resolver {
	r := &Resolver{
		pageSize: cfg.PageSize,
		vendor:   vendor,
		cache:    cache,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   tracer.NewNoop(),
	}
	if r.pageSize <= 0 {
		r.pageSize = DefaultPageSize
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type tier struct {
	name models.Tier
	run  func(ctx context.Context, id models.TicketID) models.TierResult
}

// Resolve runs the tiers for raw. A ticket that no tier knows is reported as
// Found == false with a nil error, unless the full listing failed, in which
// case the error wraps ErrVendorUnreachable.
func (r *Resolver) Resolve(ctx context.Context, raw string) (models.Resolution, error) {
	id, err := models.ParseTicketID(raw)
	if err != nil {
		return models.Resolution{}, err
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, tracer.SpanResolve, tracer.String(tracer.AttrTicket, id.Display()))
	res, err := r.resolve(ctx, id)
	span.SetAttributes(
		tracer.String(tracer.AttrTier, string(res.Tier)),
		tracer.Bool(tracer.AttrFound, res.Found),
	)
	span.End(err)

	if err == nil {
		r.metrics.RecordResolution(string(res.Tier), res.Found, time.Since(start).Seconds())
	}
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, id models.TicketID) (models.Resolution, error) {
	tiers := []tier{
		{models.TierCache, r.probeCache},
		{models.TierDirect, r.lookupDirect},
		{models.TierListing, r.scanListing},
	}

	var listingErr error
	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return models.Resolution{TicketID: id}, err
		}

		result := r.runTier(ctx, t, id)
		r.metrics.RecordTierOutcome(string(t.name), result.Outcome.String())
		if t.name == models.TierListing && result.Outcome == models.OutcomeTransportError {
			listingErr = result.Err
		}

		switch result.Outcome {
		case models.OutcomeHit:
			r.logger.InfoContext(ctx, "ticket resolved",
				"ticket", id.Display(),
				"internal_id", result.InternalID.String(),
				"tier", string(t.name),
			)
			return models.Resolution{
				TicketID:   id,
				InternalID: result.InternalID,
				Found:      true,
				Tier:       t.name,
			}, nil
		case models.OutcomeTransportError, models.OutcomeMiss:
			continue
		}
	}

	if err := ctx.Err(); err != nil {
		return models.Resolution{TicketID: id}, err
	}
	if listingErr != nil {
		r.logger.WarnContext(ctx, "ticket unresolved, vendor unreachable",
			"ticket", id.Display(),
			"error", listingErr,
		)
		return models.Resolution{TicketID: id, Tier: models.TierNone},
			fmt.Errorf("resolving %s: %w: %w", id.Display(), ErrVendorUnreachable, listingErr)
	}
	r.logger.InfoContext(ctx, "ticket not found", "ticket", id.Display())
	return models.Resolution{TicketID: id, Tier: models.TierNone}, nil
}

func (r *Resolver) runTier(ctx context.Context, t tier, id models.TicketID) models.TierResult {
	ctx, span := r.tracer.Start(ctx, spanFor(t.name), tracer.String(tracer.AttrTicket, id.Display()))
	result := t.run(ctx, id)
	span.SetAttributes(tracer.String(tracer.AttrOutcome, result.Outcome.String()))
	span.End(result.Err)
	return result
}

func spanFor(t models.Tier) string {
	switch t {
	case models.TierCache:
		return tracer.SpanCacheProbe
	case models.TierDirect:
		return tracer.SpanDirectLookup
	default:
		return tracer.SpanFullListing
	}
}

func (r *Resolver) probeCache(ctx context.Context, id models.TicketID) models.TierResult {
	records, err := r.cache.Load(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "ticket cache unavailable",
			"ticket", id.Display(),
			"path", r.cache.Path(),
			"error", err,
		)
		return models.Miss()
	}
	r.metrics.SetCacheRecords(len(records))

	if rec, ok := records.FindByDisplay(id); ok {
		return models.Hit(rec.Summary.ID)
	}
	return models.Miss()
}

func (r *Resolver) lookupDirect(ctx context.Context, id models.TicketID) models.TierResult {
	detail, err := r.vendor.GetTicket(ctx, id.Bare())
	if err == nil {
		err = checkOwner(detail, id)
	}
	if err == nil {
		return models.Hit(detail.InternalID)
	}

	switch repairdesk.CategoryOf(err) {
	case repairdesk.ErrorNotFound, repairdesk.ErrorBadData:
		r.logger.InfoContext(ctx, "direct ticket lookup missed",
			"ticket", id.Display(),
			"endpoint", "tickets.get",
			"error", err,
		)
		return models.Miss()
	default:
		r.logger.WarnContext(ctx, "direct ticket lookup failed",
			"ticket", id.Display(),
			"endpoint", "tickets.get",
			"error", err,
		)
		return models.TransportError(err)
	}
}

// checkOwner rejects a detail payload that is not for id. The per-ticket
// endpoint also answers for internal ids, so a display number that collides
// with another ticket's internal id returns that other ticket.
func checkOwner(detail *repairdesk.TicketDetail, id models.TicketID) error {
	owner, ok := detail.OrderID.TicketID()
	if !ok {
		return repairdesk.NewVendorError(repairdesk.ErrorBadData, "tickets.get",
			fmt.Sprintf("ticket payload has no usable order id %q", detail.OrderID), nil)
	}
	if owner != id {
		return repairdesk.NewVendorError(repairdesk.ErrorBadData, "tickets.get",
			fmt.Sprintf("payload is for %s, not %s", owner.Display(), id.Display()), nil)
	}
	return nil
}

func (r *Resolver) scanListing(ctx context.Context, id models.TicketID) models.TierResult {
	out, err := r.sharedRefresh(ctx)
	if err != nil {
		return models.TransportError(err)
	}

	if rec, ok := out.records.FindByDisplay(id); ok {
		return models.Hit(rec.Summary.ID)
	}
	if out.fetchErr != nil {
		return models.TransportError(out.fetchErr)
	}
	return models.Miss()
}

// refreshOutcome is shared by every caller coalesced onto one refresh.
type refreshOutcome struct {
	records  models.Records
	fetchErr error
	writeErr error
}

// sharedRefresh coalesces concurrent refreshes of the same cache file. The
// fetch runs detached from any single caller's cancellation; each caller
// stops waiting when its own context ends.
func (r *Resolver) sharedRefresh(ctx context.Context) (refreshOutcome, error) {
	ch := r.refresh.DoChan(r.cache.Path(), func() (any, error) {
		return r.fetchAndReplace(context.WithoutCancel(ctx)), nil
	})

	select {
	case <-ctx.Done():
		return refreshOutcome{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			r.logger.DebugContext(ctx, "joined in-flight cache refresh", "path", r.cache.Path())
		}
		return res.Val.(refreshOutcome), nil
	}
}

func (r *Resolver) fetchAndReplace(ctx context.Context) refreshOutcome {
	ctx, span := r.tracer.Start(ctx, tracer.SpanFullListing)
	records, err := r.vendor.ListAll(ctx, r.pageSize)
	span.SetAttributes(
		tracer.Int(tracer.AttrRecordCount, len(records)),
		tracer.Bool(tracer.AttrPartial, err != nil),
	)
	if err != nil {
		r.logger.WarnContext(ctx, "full ticket listing failed",
			"endpoint", "tickets.list",
			"records_fetched", len(records),
			"error", err,
		)
		span.End(err)
		return refreshOutcome{records: records, fetchErr: err}
	}

	if werr := r.cache.Replace(ctx, records); werr != nil {
		r.logger.ErrorContext(ctx, "ticket cache write failed",
			"path", r.cache.Path(),
			"records", len(records),
			"error", werr,
		)
		r.metrics.IncCacheWriteFailures()
		span.AddEvent(tracer.EventCacheWriteFailed)
		span.End(nil)
		return refreshOutcome{records: records, writeErr: werr}
	}

	r.metrics.SetCacheRecords(len(records))
	span.AddEvent(tracer.EventCacheReplaced, tracer.Int(tracer.AttrRecordCount, len(records)))
	span.End(nil)
	r.logger.InfoContext(ctx, "ticket cache refreshed", "path", r.cache.Path(), "records", len(records))
	return refreshOutcome{records: records}
}

// Refresh fetches the full listing and replaces the cache, returning the
// number of records written.
func (r *Resolver) Refresh(ctx context.Context) (int, error) {
	out, err := r.sharedRefresh(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeTimeout, "cache refresh cancelled")
	}
	if out.fetchErr != nil {
		return 0, ToDomainError(out.fetchErr, "ticket listing failed")
	}
	if out.writeErr != nil {
		return 0, dErrors.Wrap(out.writeErr, dErrors.CodeInternal, "ticket cache write failed")
	}
	return len(out.records), nil
}

// Lookup is Resolve for callers that want not-found as an error.
func (r *Resolver) Lookup(ctx context.Context, raw string) (models.Resolution, error) {
	res, err := r.Resolve(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrVendorUnreachable):
			return res, ToDomainError(err, fmt.Sprintf("ticket %s could not be resolved: vendor unavailable", res.TicketID.Display()))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return res, dErrors.Wrap(err, dErrors.CodeTimeout, "ticket resolution interrupted")
		}
		return res, err
	}
	if !res.Found {
		return res, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("ticket %s not found", res.TicketID.Display()))
	}
	return res, nil
}

// ToDomainError maps a vendor failure to a domain error code.
func ToDomainError(err error, msg string) error {
	switch repairdesk.CategoryOf(err) {
	case repairdesk.ErrorNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case repairdesk.ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case repairdesk.ErrorInternal:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
}
