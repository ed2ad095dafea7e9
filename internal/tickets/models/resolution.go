package models

// Tier names the lookup stage that produced a resolution.
type Tier string

const (
	TierCache   Tier = "cache"
	TierDirect  Tier = "direct"
	TierListing Tier = "listing"
	TierNone    Tier = "none"
)

// Resolution is the result of resolving a display identifier.
// Found is false, with Tier set to TierNone, when no tier matched.
type Resolution struct {
	TicketID   TicketID
	InternalID InternalID
	Found      bool
	Tier       Tier
}

// Outcome classifies a single tier attempt.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "miss"
	}
}

// TierResult is what each tier hands back to the resolver loop.
// Err is set only for OutcomeTransportError and is informational.
type TierResult struct {
	Outcome    Outcome
	InternalID InternalID
	Err        error
}

func Hit(id InternalID) TierResult {
	return TierResult{Outcome: OutcomeHit, InternalID: id}
}

func Miss() TierResult {
	return TierResult{Outcome: OutcomeMiss}
}

func TransportError(err error) TierResult {
	return TierResult{Outcome: OutcomeTransportError, Err: err}
}
