package auction

import (
	"math/big"
)

// entitlement computes what a claim made at now would pay the bidder.
//   - settled: the refund fixed at settlement
//   - expired without settlement: everything not yet withdrawn
//   - revealed: the reveal-time excess
//   - otherwise nothing until reveal, settlement or expiry
func entitlement(a *Auction, b *Bid, now int64) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	switch {
	case a.Settled:
		return cloneBigInt(b.AvailableRefund)
	case PhaseOf(a, now) == PhaseExpired:
		return fullRefund(b)
	case b.Revealed:
		return revealExcess(b)
	default:
		return big.NewInt(0)
	}
}

// ClaimRefund pays the bidder's current entitlement out of the vault. A drained
// terminal auction is pruned together with its bids.
func (e *Engine) ClaimRefund(bidder, collection [20]byte) (*big.Int, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	b, err := e.loadBid(collection, bidder)
	if err != nil {
		return nil, err
	}
	now := e.now()
	amount := entitlement(a, b, now)
	if amount.Sign() <= 0 {
		return nil, ErrNothingToClaim
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	if err := e.funds.PayOut(a.Currency, bidder, amount); err != nil {
		return nil, collaboratorErr("payout", err)
	}

	b.Withdrawn = new(big.Int).Add(cloneBigInt(b.Withdrawn), amount)
	b.AvailableRefund = big.NewInt(0)
	b.Claimed = true
	a.TotalBalance = new(big.Int).Sub(cloneBigInt(a.TotalBalance), amount)

	if a.Terminal(now) && a.TotalBalance.Sign() == 0 {
		if err := e.removeAuction(collection); err != nil {
			return nil, err
		}
		e.emit(NewRefundClaimedEvent(a, bidder, amount))
		e.emit(NewClearedEvent(a))
		return amount, nil
	}
	if err := e.state.BidPut(b); err != nil {
		return nil, err
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	e.emit(NewRefundClaimedEvent(a, bidder, amount))
	return amount, nil
}
