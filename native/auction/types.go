package auction

import (
	"math/big"
	"strings"
)

// Outcome records how settlement resolved a bid.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeWon
	OutcomeLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	default:
		return "pending"
	}
}

// Valid reports whether the outcome value is within the supported range.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeWon, OutcomeLost:
		return true
	default:
		return false
	}
}

// Auction is the ledger record of a variable supply auction. One record exists
// per collection; the phase is never stored and is derived from the four
// boundary timestamps on every call.
type Auction struct {
	Collection           [20]byte
	Seller               [20]byte
	SellerFundsRecipient [20]byte
	Currency             string
	MinimumViableRevenue *big.Int
	StartTime            int64
	EndOfBidPhase        int64
	EndOfRevealPhase     int64
	EndOfSettlePhase     int64
	TotalBalance         *big.Int
	BidCount             uint64
	RevealCount          uint64
	Settled              bool
	SettledPricePoint    *big.Int
	SettledEditionSize   uint64
	SettledRevenue       *big.Int
	CreatedAt            int64
	SettledAt            int64
}

// Clone returns a deep copy of the auction so callers can mutate the copy
// without touching the stored instance.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.MinimumViableRevenue = cloneBigInt(a.MinimumViableRevenue)
	clone.TotalBalance = cloneBigInt(a.TotalBalance)
	clone.SettledPricePoint = cloneBigInt(a.SettledPricePoint)
	clone.SettledRevenue = cloneBigInt(a.SettledRevenue)
	return &clone
}

// Terminal reports whether the auction can no longer change outcome: it either
// settled or its settle window closed.
func (a *Auction) Terminal(now int64) bool {
	if a == nil {
		return true
	}
	return a.Settled || PhaseOf(a, now) == PhaseExpired
}

// Bid is one sealed bid placed by a bidder on a collection's auction.
type Bid struct {
	Collection      [20]byte
	Bidder          [20]byte
	Commitment      [32]byte
	SentValue       *big.Int
	Revealed        bool
	RevealedAmount  *big.Int
	AvailableRefund *big.Int
	Withdrawn       *big.Int
	Claimed         bool
	Outcome         Outcome
	UnitID          uint64
	PlacedAt        int64
	RevealedAt      int64
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	clone.SentValue = cloneBigInt(b.SentValue)
	clone.RevealedAmount = cloneBigInt(b.RevealedAmount)
	clone.AvailableRefund = cloneBigInt(b.AvailableRefund)
	clone.Withdrawn = cloneBigInt(b.Withdrawn)
	return &clone
}

// CreateParams carries the seller supplied configuration of a new auction.
// A zero StartTime starts the auction immediately.
type CreateParams struct {
	Collection           [20]byte
	SellerFundsRecipient [20]byte
	Currency             string
	MinimumViableRevenue *big.Int
	StartTime            int64
	BidDuration          int64
	RevealDuration       int64
	SettleDuration       int64
}

// Settlement summarises the outcome of a settlement (or a preview of one).
type Settlement struct {
	Collection     [20]byte
	ClearingPrice  *big.Int
	EditionSize    uint64
	Revenue        *big.Int
	MeetsMinimum   bool
	Winners        []Allocation
	LosersRefunded uint64
}

// Allocation describes the unit and refund owed to a single winning bidder.
type Allocation struct {
	Bidder [20]byte
	UnitID uint64
	Refund *big.Int
}

// PricePoint is the edition size and revenue a given clearing price would
// produce.
type PricePoint struct {
	Price       *big.Int
	EditionSize uint64
	Revenue     *big.Int
}

// NormalizeCurrency returns the canonical upper-case symbol of a currency.
func NormalizeCurrency(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
