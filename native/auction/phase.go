package auction

// Phase is the time-derived stage of an auction.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseBid
	PhaseReveal
	PhaseSettle
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseBid:
		return "bid"
	case PhaseReveal:
		return "reveal"
	case PhaseSettle:
		return "settle"
	default:
		return "expired"
	}
}

// PhaseOf evaluates the auction's boundaries against now. Each boundary is the
// first instant of the following phase.
func PhaseOf(a *Auction, now int64) Phase {
	switch {
	case a == nil:
		return PhaseExpired
	case now < a.StartTime:
		return PhaseCreated
	case now < a.EndOfBidPhase:
		return PhaseBid
	case now < a.EndOfRevealPhase:
		return PhaseReveal
	case now < a.EndOfSettlePhase:
		return PhaseSettle
	default:
		return PhaseExpired
	}
}
