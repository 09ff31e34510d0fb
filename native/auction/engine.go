package auction

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"time"

	"vsachain/core/events"
	"vsachain/core/types"
)

type engineState interface {
	AuctionGet(collection [20]byte) (*Auction, bool, error)
	AuctionPut(*Auction) error
	AuctionDelete(collection [20]byte) error
	BidGet(collection, bidder [20]byte) (*Bid, bool, error)
	BidPut(*Bid) error
	BidDelete(collection, bidder [20]byte) error
	BidList(collection [20]byte) ([]*Bid, error)
}

// Minter mints exactly one unit of a collection to a recipient and returns the
// new unit id. Failures must be reported, never swallowed.
type Minter interface {
	MintOneUnitTo(collection, recipient [20]byte) (uint64, error)
}

// Authorizer answers whether caller may manage sales of collection.
type Authorizer interface {
	IsOwnerOrOperator(collection, caller [20]byte) (bool, error)
}

// Funds moves value between participants and the auction vault. The currency
// symbol selects native or token mode.
type Funds interface {
	Escrow(token string, from [20]byte, amount *big.Int) error
	PayOut(token string, to [20]byte, amount *big.Int) error
	Supported(token string) bool
	IsVault(token string, addr [20]byte) bool
}

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

// Engine implements the variable supply auction state machine on top of an
// external state backend and its collaborators.
type Engine struct {
	state           engineState
	minter          Minter
	authorizer      Authorizer
	funds           Funds
	emitter         events.Emitter
	defaultCurrency string
	maxPhase        int64
	nowFn           func() int64
}

// NewEngine creates an auction engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetMinter configures the unit-minting collaborator.
func (e *Engine) SetMinter(m Minter) { e.minter = m }

// SetAuthorizer configures the collection authorization oracle.
func (e *Engine) SetAuthorizer(a Authorizer) { e.authorizer = a }

// SetFunds configures the escrow vault.
func (e *Engine) SetFunds(f Funds) { e.funds = f }

// SetDefaultCurrency sets the currency used when a create request omits one.
func (e *Engine) SetDefaultCurrency(symbol string) { e.defaultCurrency = NormalizeCurrency(symbol) }

// SetMaxPhaseDuration caps each of the three phase durations. Zero disables
// the cap.
func (e *Engine) SetMaxPhaseDuration(seconds int64) { e.maxPhase = seconds }

// SetNowFunc overrides the time source used by the engine. Passing nil
// restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func collaboratorErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaboratorFailure, op, err)
}

func (e *Engine) loadAuction(collection [20]byte) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	a, ok, err := e.state.AuctionGet(collection)
	if err != nil {
		return nil, err
	}
	if !ok || a == nil {
		return nil, ErrAuctionDoesNotExist
	}
	return a, nil
}

func (e *Engine) loadBid(collection, bidder [20]byte) (*Bid, error) {
	b, ok, err := e.state.BidGet(collection, bidder)
	if err != nil {
		return nil, err
	}
	if !ok || b == nil {
		return nil, ErrBidDoesNotExist
	}
	return b, nil
}

func (e *Engine) authorized(collection, caller [20]byte) (bool, error) {
	if e.authorizer == nil {
		return false, errNilAuthorizer
	}
	ok, err := e.authorizer.IsOwnerOrOperator(collection, caller)
	if err != nil {
		return false, collaboratorErr("authorize", err)
	}
	return ok, nil
}

// removeAuction deletes the auction and every bid recorded against it.
func (e *Engine) removeAuction(collection [20]byte) error {
	bids, err := e.state.BidList(collection)
	if err != nil {
		return err
	}
	for _, b := range bids {
		if err := e.state.BidDelete(collection, b.Bidder); err != nil {
			return err
		}
	}
	return e.state.AuctionDelete(collection)
}

// CreateAuction opens a new auction on collection. A live auction without bids
// is superseded when the caller is authorized on the collection; a terminal
// auction blocks creation until its refunds have been drained.
func (e *Engine) CreateAuction(caller [20]byte, params CreateParams) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if params.SellerFundsRecipient == ([20]byte{}) {
		return nil, ErrInvalidFundsRecipient
	}
	if params.BidDuration <= 0 || params.RevealDuration <= 0 || params.SettleDuration <= 0 {
		return nil, ErrInvalidDuration
	}
	if e.maxPhase > 0 && (params.BidDuration > e.maxPhase || params.RevealDuration > e.maxPhase || params.SettleDuration > e.maxPhase) {
		return nil, fmt.Errorf("%w: phase longer than %ds", ErrInvalidDuration, e.maxPhase)
	}
	minimum := cloneBigInt(params.MinimumViableRevenue)
	if minimum.Sign() < 0 {
		return nil, ErrInvalidMinimum
	}
	currency := NormalizeCurrency(params.Currency)
	if currency == "" {
		currency = e.defaultCurrency
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	if currency == "" || !e.funds.Supported(currency) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, params.Currency)
	}
	if e.funds.IsVault(currency, params.SellerFundsRecipient) {
		return nil, fmt.Errorf("%w: recipient is the %s vault", ErrInvalidFundsRecipient, currency)
	}
	now := e.now()
	start := params.StartTime
	if start == 0 {
		start = now
	}
	if start < now {
		return nil, fmt.Errorf("%w: start time in the past", ErrInvalidDuration)
	}
	endBid := start + params.BidDuration
	endReveal := endBid + params.RevealDuration
	endSettle := endReveal + params.SettleDuration
	if endBid <= start || endReveal <= endBid || endSettle <= endReveal {
		return nil, fmt.Errorf("%w: phase boundaries overflow", ErrInvalidDuration)
	}
	ok, err := e.authorized(params.Collection, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	existing, found, err := e.state.AuctionGet(params.Collection)
	if err != nil {
		return nil, err
	}
	var superseded *Auction
	if found && existing != nil {
		switch {
		case existing.Terminal(now) && cloneBigInt(existing.TotalBalance).Sign() > 0:
			return nil, fmt.Errorf("%w: outstanding refunds", ErrDuplicateLiveAuction)
		case existing.Terminal(now):
			// Drained terminal record; nothing left to protect.
		case existing.BidCount == 0:
			superseded = existing
		default:
			return nil, ErrDuplicateLiveAuction
		}
		if err := e.removeAuction(params.Collection); err != nil {
			return nil, err
		}
	}

	a := &Auction{
		Collection:           params.Collection,
		Seller:               caller,
		SellerFundsRecipient: params.SellerFundsRecipient,
		Currency:             currency,
		MinimumViableRevenue: minimum,
		StartTime:            start,
		EndOfBidPhase:        endBid,
		EndOfRevealPhase:     endReveal,
		EndOfSettlePhase:     endSettle,
		TotalBalance:         big.NewInt(0),
		SettledPricePoint:    big.NewInt(0),
		SettledRevenue:       big.NewInt(0),
		CreatedAt:            now,
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	if superseded != nil {
		e.emit(NewCancelledEvent(superseded, "superseded"))
	}
	e.emit(NewCreatedEvent(a))
	return a.Clone(), nil
}

// CancelAuction clears an auction that has not received any bid.
func (e *Engine) CancelAuction(caller, collection [20]byte) error {
	a, err := e.loadAuction(collection)
	if err != nil {
		return err
	}
	if caller != a.Seller {
		ok, err := e.authorized(collection, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
	}
	if a.Settled || a.BidCount > 0 {
		return ErrAuctionAlreadyActive
	}
	if err := e.removeAuction(collection); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(a, "cancelled"))
	return nil
}

// Auction returns the auction recorded for collection.
func (e *Engine) Auction(collection [20]byte) (*Auction, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// Phase evaluates the phase clock for collection's auction.
func (e *Engine) Phase(collection [20]byte) (Phase, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return PhaseExpired, err
	}
	return PhaseOf(a, e.now()), nil
}

// Bid returns the bidder's record with AvailableRefund reflecting what a claim
// made now would pay.
func (e *Engine) Bid(collection, bidder [20]byte) (*Bid, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	b, err := e.loadBid(collection, bidder)
	if err != nil {
		return nil, err
	}
	out := b.Clone()
	out.AvailableRefund = entitlement(a, b, e.now())
	return out, nil
}

// Bids lists every bid on collection ordered by bidder address.
func (e *Engine) Bids(collection [20]byte) ([]*Bid, error) {
	a, err := e.loadAuction(collection)
	if err != nil {
		return nil, err
	}
	bids, err := e.state.BidList(collection)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]*Bid, 0, len(bids))
	for _, b := range bids {
		clone := b.Clone()
		clone.AvailableRefund = entitlement(a, b, now)
		out = append(out, clone)
	}
	sortBids(out)
	return out, nil
}

func sortBids(bids []*Bid) {
	sort.Slice(bids, func(i, j int) bool {
		return bytes.Compare(bids[i].Bidder[:], bids[j].Bidder[:]) < 0
	})
}
