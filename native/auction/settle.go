package auction

import (
	"math/big"
	"sort"
)

type settlementPlan struct {
	settlement *Settlement
	winners    []*Bid
	losers     []*Bid
}

// planSettlement partitions bids around price. Revealed bids at or above the
// price win; everything else, unrevealed bids included, loses. Winners are
// ordered by bidder address so unit ids are assigned deterministically.
func planSettlement(a *Auction, bids []*Bid, price *big.Int) *settlementPlan {
	plan := &settlementPlan{}
	for _, b := range bids {
		if b.Revealed && cloneBigInt(b.RevealedAmount).Cmp(price) >= 0 {
			plan.winners = append(plan.winners, b)
			continue
		}
		plan.losers = append(plan.losers, b)
	}
	sortBids(plan.winners)
	sortBids(plan.losers)

	edition := uint64(len(plan.winners))
	revenue := new(big.Int).Mul(price, new(big.Int).SetUint64(edition))
	s := &Settlement{
		Collection:     a.Collection,
		ClearingPrice:  new(big.Int).Set(price),
		EditionSize:    edition,
		Revenue:        revenue,
		MeetsMinimum:   revenue.Cmp(cloneBigInt(a.MinimumViableRevenue)) >= 0,
		LosersRefunded: uint64(len(plan.losers)),
		Winners:        make([]Allocation, 0, len(plan.winners)),
	}
	for _, w := range plan.winners {
		s.Winners = append(s.Winners, Allocation{Bidder: w.Bidder, Refund: winnerRefund(w, price)})
	}
	plan.settlement = s
	return plan
}

func winnerRefund(b *Bid, price *big.Int) *big.Int {
	out := new(big.Int).Sub(cloneBigInt(b.SentValue), price)
	out.Sub(out, cloneBigInt(b.Withdrawn))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

func fullRefund(b *Bid) *big.Int {
	out := new(big.Int).Sub(cloneBigInt(b.SentValue), cloneBigInt(b.Withdrawn))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// SettleAuction fixes the clearing price, mints one unit per winner and pays
// the revenue to the seller's funds recipient. Every check runs before the
// first collaborator call; the caller is expected to run this inside a state
// transaction so a collaborator failure part-way through leaves nothing
// behind.
func (e *Engine) SettleAuction(caller, collection [20]byte, clearingPrice *big.Int) (*Settlement, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	if caller != a.Seller {
		return nil, ErrUnauthorized
	}
	if a.Settled {
		return nil, ErrAlreadySettled
	}
	now := e.now()
	if PhaseOf(a, now) != PhaseSettle {
		return nil, ErrSettlementWindowViolation
	}
	if clearingPrice == nil || clearingPrice.Sign() <= 0 {
		return nil, ErrInvalidClearingPrice
	}
	bids, err := e.state.BidList(collection)
	if err != nil {
		return nil, err
	}
	plan := planSettlement(a, bids, clearingPrice)
	s := plan.settlement
	if !s.MeetsMinimum {
		return nil, ErrDoesNotMeetMinimumRevenue
	}
	if len(plan.winners) > 0 && e.minter == nil {
		return nil, errNilMinter
	}
	if s.Revenue.Sign() > 0 && e.funds == nil {
		return nil, errNilFunds
	}

	for i, w := range plan.winners {
		unitID, err := e.minter.MintOneUnitTo(collection, w.Bidder)
		if err != nil {
			return nil, collaboratorErr("mint", err)
		}
		s.Winners[i].UnitID = unitID
		w.UnitID = unitID
	}
	if s.Revenue.Sign() > 0 {
		if err := e.funds.PayOut(a.Currency, a.SellerFundsRecipient, s.Revenue); err != nil {
			return nil, collaboratorErr("payout", err)
		}
	}

	for _, w := range plan.winners {
		w.Outcome = OutcomeWon
		w.AvailableRefund = winnerRefund(w, clearingPrice)
		if w.AvailableRefund.Sign() > 0 {
			w.Claimed = false
		}
		if err := e.state.BidPut(w); err != nil {
			return nil, err
		}
	}
	for _, l := range plan.losers {
		l.Outcome = OutcomeLost
		l.AvailableRefund = fullRefund(l)
		if l.AvailableRefund.Sign() > 0 {
			l.Claimed = false
		}
		if err := e.state.BidPut(l); err != nil {
			return nil, err
		}
	}

	a.Settled = true
	a.SettledPricePoint = new(big.Int).Set(clearingPrice)
	a.SettledEditionSize = s.EditionSize
	a.SettledRevenue = new(big.Int).Set(s.Revenue)
	a.SettledAt = now
	a.TotalBalance = new(big.Int).Sub(cloneBigInt(a.TotalBalance), s.Revenue)
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	e.emit(NewSettledEvent(a, s))
	return s, nil
}

// PreviewSettlement reports what settling at price would produce without
// touching state. The minimum revenue check is reported through
// Settlement.MeetsMinimum rather than enforced.
func (e *Engine) PreviewSettlement(collection [20]byte, price *big.Int) (*Settlement, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidClearingPrice
	}
	bids, err := e.state.BidList(collection)
	if err != nil {
		return nil, err
	}
	return planSettlement(a, bids, price).settlement, nil
}

// PricePoints lists, for every distinct revealed amount, the edition size and
// revenue that clearing at that amount would produce. Highest price first.
func (e *Engine) PricePoints(collection [20]byte) ([]PricePoint, error) {
	if _, err := e.loadAuction(collection); err != nil {
		return nil, err
	}
	bids, err := e.state.BidList(collection)
	if err != nil {
		return nil, err
	}
	revealed := make([]*big.Int, 0, len(bids))
	for _, b := range bids {
		if b.Revealed && cloneBigInt(b.RevealedAmount).Sign() > 0 {
			revealed = append(revealed, cloneBigInt(b.RevealedAmount))
		}
	}
	sort.Slice(revealed, func(i, j int) bool { return revealed[i].Cmp(revealed[j]) > 0 })

	points := make([]PricePoint, 0, len(revealed))
	for i, amount := range revealed {
		// Bids sorted descending: every bid up to i clears at amount.
		edition := uint64(i + 1)
		if len(points) > 0 && points[len(points)-1].Price.Cmp(amount) == 0 {
			last := &points[len(points)-1]
			last.EditionSize = edition
			last.Revenue = new(big.Int).Mul(amount, new(big.Int).SetUint64(edition))
			continue
		}
		points = append(points, PricePoint{
			Price:       amount,
			EditionSize: edition,
			Revenue:     new(big.Int).Mul(amount, new(big.Int).SetUint64(edition)),
		})
	}
	return points, nil
}
