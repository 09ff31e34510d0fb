package auction

import (
	"math/big"
)

// PlaceBid records a sealed bid and escrows sentValue from the bidder into the
// auction vault. One bid per bidder; there are no top-ups.
func (e *Engine) PlaceBid(bidder, collection [20]byte, commitment [32]byte, sentValue *big.Int) (*Bid, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if PhaseOf(a, now) != PhaseBid {
		return nil, ErrBidsOnlyAllowedDuringBidPhase
	}
	if sentValue == nil || sentValue.Sign() <= 0 {
		return nil, ErrValidBidsMustIncludeValue
	}
	_, exists, err := e.state.BidGet(collection, bidder)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyPlacedBid
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	value := new(big.Int).Set(sentValue)
	if err := e.funds.Escrow(a.Currency, bidder, value); err != nil {
		return nil, collaboratorErr("escrow", err)
	}

	b := &Bid{
		Collection:      collection,
		Bidder:          bidder,
		Commitment:      commitment,
		SentValue:       value,
		RevealedAmount:  big.NewInt(0),
		AvailableRefund: big.NewInt(0),
		Withdrawn:       big.NewInt(0),
		Outcome:         OutcomePending,
		PlacedAt:        now,
	}
	a.TotalBalance = new(big.Int).Add(cloneBigInt(a.TotalBalance), value)
	a.BidCount++
	if err := e.state.BidPut(b); err != nil {
		return nil, err
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	e.emit(NewBidPlacedEvent(a, b))
	return b.Clone(), nil
}
