// Package tracer is a small tracing abstraction for ticket resolution.
// NoopTracer serves tests; OTelTracer adapts OpenTelemetry.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer starts spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanResolve      = "ticket.resolve"
	SpanCacheProbe   = "ticket.cache_probe"
	SpanDirectLookup = "ticket.direct_lookup"
	SpanFullListing  = "ticket.full_listing"
)

// Attribute keys.
const (
	AttrTicket      = "ticket.display_id"
	AttrTier        = "ticket.tier"
	AttrFound       = "ticket.found"
	AttrOutcome     = "tier.outcome"
	AttrRecordCount = "cache.records"
	AttrPartial     = "listing.partial"
)

// Event names.
const (
	EventCacheReplaced    = "cache.replaced"
	EventCacheWriteFailed = "cache.write_failed"
	EventRefreshShared    = "refresh.shared"
)
