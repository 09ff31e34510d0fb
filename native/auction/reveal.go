package auction

import (
	"math/big"
)

// RevealBid opens the bidder's commitment. The excess of the escrow over the
// revealed amount becomes withdrawable straight away since it can never be
// owed to the seller.
func (e *Engine) RevealBid(bidder, collection [20]byte, amount *big.Int, salt [32]byte) (*Bid, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if PhaseOf(a, now) != PhaseReveal {
		return nil, ErrRevealsOnlyAllowedDuringRevealPhase
	}
	b, err := e.loadBid(collection, bidder)
	if err != nil {
		return nil, err
	}
	if b.Revealed {
		return nil, ErrAlreadyRevealed
	}
	if amount == nil || !VerifyCommitment(amount, salt, b.Commitment) {
		return nil, ErrCommitmentMismatch
	}
	if amount.Cmp(cloneBigInt(b.SentValue)) > 0 {
		return nil, ErrRevealExceedsEscrow
	}

	b.Revealed = true
	b.RevealedAmount = new(big.Int).Set(amount)
	b.RevealedAt = now
	b.AvailableRefund = revealExcess(b)
	b.Claimed = false
	a.RevealCount++
	if err := e.state.BidPut(b); err != nil {
		return nil, err
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	e.emit(NewBidRevealedEvent(a, b))
	return b.Clone(), nil
}

// revealExcess is SentValue - RevealedAmount - Withdrawn.
func revealExcess(b *Bid) *big.Int {
	out := new(big.Int).Sub(cloneBigInt(b.SentValue), cloneBigInt(b.RevealedAmount))
	out.Sub(out, cloneBigInt(b.Withdrawn))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
