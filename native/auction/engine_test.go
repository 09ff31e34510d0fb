package auction

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"testing"

	"vsachain/core/events"
)

type mockState struct {
	auctions map[[20]byte]*Auction
	bids     map[[20]byte]map[[20]byte]*Bid
}

func newMockState() *mockState {
	return &mockState{
		auctions: make(map[[20]byte]*Auction),
		bids:     make(map[[20]byte]map[[20]byte]*Bid),
	}
}

func (m *mockState) AuctionGet(collection [20]byte) (*Auction, bool, error) {
	a, ok := m.auctions[collection]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) AuctionPut(a *Auction) error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	m.auctions[a.Collection] = a.Clone()
	return nil
}

func (m *mockState) AuctionDelete(collection [20]byte) error {
	delete(m.auctions, collection)
	return nil
}

func (m *mockState) BidGet(collection, bidder [20]byte) (*Bid, bool, error) {
	b, ok := m.bids[collection][bidder]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockState) BidPut(b *Bid) error {
	if b == nil {
		return fmt.Errorf("nil bid")
	}
	if m.bids[b.Collection] == nil {
		m.bids[b.Collection] = make(map[[20]byte]*Bid)
	}
	m.bids[b.Collection][b.Bidder] = b.Clone()
	return nil
}

func (m *mockState) BidDelete(collection, bidder [20]byte) error {
	delete(m.bids[collection], bidder)
	return nil
}

func (m *mockState) BidList(collection [20]byte) ([]*Bid, error) {
	out := make([]*Bid, 0, len(m.bids[collection]))
	for _, b := range m.bids[collection] {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bidder[:], out[j].Bidder[:]) < 0 })
	return out, nil
}

type mockFunds struct {
	balances map[string]map[[20]byte]*big.Int
	vault    map[string]*big.Int
	failPay  bool
}

func newMockFunds() *mockFunds {
	return &mockFunds{
		balances: map[string]map[[20]byte]*big.Int{"VSA": {}, "USDX": {}},
		vault:    map[string]*big.Int{"VSA": big.NewInt(0), "USDX": big.NewInt(0)},
	}
}

func (f *mockFunds) credit(token string, addr [20]byte, amount int64) {
	f.balances[token][addr] = new(big.Int).Add(f.balance(token, addr), big.NewInt(amount))
}

func (f *mockFunds) balance(token string, addr [20]byte) *big.Int {
	if bal, ok := f.balances[token][addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (f *mockFunds) Supported(token string) bool {
	_, ok := f.balances[token]
	return ok
}

func (f *mockFunds) IsVault(token string, addr [20]byte) bool {
	return addr == mockVaultAddress(token)
}

func mockVaultAddress(token string) [20]byte {
	var addr [20]byte
	copy(addr[:], "vault/"+token)
	return addr
}

func (f *mockFunds) Escrow(token string, from [20]byte, amount *big.Int) error {
	bal := f.balance(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	f.balances[token][from] = bal.Sub(bal, amount)
	f.vault[token] = new(big.Int).Add(f.vault[token], amount)
	return nil
}

func (f *mockFunds) PayOut(token string, to [20]byte, amount *big.Int) error {
	if f.failPay {
		return fmt.Errorf("payout disabled")
	}
	if f.vault[token].Cmp(amount) < 0 {
		return fmt.Errorf("vault underflow")
	}
	f.vault[token] = new(big.Int).Sub(f.vault[token], amount)
	f.balances[token][to] = new(big.Int).Add(f.balance(token, to), amount)
	return nil
}

type mockMinter struct {
	next   uint64
	minted map[uint64][20]byte
	failAt int
	calls  int
}

func (m *mockMinter) MintOneUnitTo(collection, recipient [20]byte) (uint64, error) {
	m.calls++
	if m.failAt > 0 && m.calls == m.failAt {
		return 0, fmt.Errorf("mint %d refused", m.calls)
	}
	m.next++
	if m.minted == nil {
		m.minted = make(map[uint64][20]byte)
	}
	m.minted[m.next] = recipient
	return m.next, nil
}

type mockAuthorizer struct {
	allowed map[[20]byte]bool
}

func (a mockAuthorizer) IsOwnerOrOperator(collection, caller [20]byte) (bool, error) {
	return a.allowed[caller], nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	testCollection = newTestAddress(0xC0)
	testSeller     = newTestAddress(0xE0)
	testRecipient  = newTestAddress(0xE1)
	testOperator   = newTestAddress(0xE2)
	testStranger   = newTestAddress(0xEF)
)

const (
	testStart      = int64(1_000)
	testEndBid     = int64(1_100)
	testEndReveal  = int64(1_200)
	testEndSettle  = int64(1_300)
	testPhaseWidth = int64(100)
)

type harness struct {
	engine  *Engine
	state   *mockState
	funds   *mockFunds
	minter  *mockMinter
	emitter *recordingEmitter
	now     int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine:  NewEngine(),
		state:   newMockState(),
		funds:   newMockFunds(),
		minter:  &mockMinter{},
		emitter: &recordingEmitter{},
		now:     testStart,
	}
	h.engine.SetState(h.state)
	h.engine.SetFunds(h.funds)
	h.engine.SetMinter(h.minter)
	h.engine.SetAuthorizer(mockAuthorizer{allowed: map[[20]byte]bool{testSeller: true, testOperator: true}})
	h.engine.SetEmitter(h.emitter)
	h.engine.SetDefaultCurrency("vsa")
	h.engine.SetNowFunc(func() int64 { return h.now })
	return h
}

func (h *harness) create(t *testing.T, minimum int64) *Auction {
	t.Helper()
	a, err := h.engine.CreateAuction(testSeller, CreateParams{
		Collection:           testCollection,
		SellerFundsRecipient: testRecipient,
		MinimumViableRevenue: big.NewInt(minimum),
		BidDuration:          testPhaseWidth,
		RevealDuration:       testPhaseWidth,
		SettleDuration:       testPhaseWidth,
	})
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return a
}

func testSalt(fill byte) [32]byte {
	var salt [32]byte
	copy(salt[:], bytes.Repeat([]byte{fill}, 32))
	return salt
}

func (h *harness) bid(t *testing.T, bidder [20]byte, amount, sent int64) {
	t.Helper()
	h.funds.credit("VSA", bidder, sent)
	commitment, err := Commit(big.NewInt(amount), testSalt(bidder[0]))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := h.engine.PlaceBid(bidder, testCollection, commitment, big.NewInt(sent)); err != nil {
		t.Fatalf("place bid: %v", err)
	}
}

func (h *harness) reveal(t *testing.T, bidder [20]byte, amount int64) {
	t.Helper()
	if _, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(amount), testSalt(bidder[0])); err != nil {
		t.Fatalf("reveal bid: %v", err)
	}
}

// assertAccounting checks that the vault holds exactly the auction's balance
// and that the auction's balance equals what bidders could still withdraw or
// have yet to resolve.
func (h *harness) assertAccounting(t *testing.T) {
	t.Helper()
	a, ok := h.state.auctions[testCollection]
	if !ok {
		if h.funds.vault["VSA"].Sign() != 0 {
			t.Fatalf("vault holds %s with no auction", h.funds.vault["VSA"])
		}
		return
	}
	if a.TotalBalance.Cmp(h.funds.vault["VSA"]) != 0 {
		t.Fatalf("total balance %s != vault %s", a.TotalBalance, h.funds.vault["VSA"])
	}
	sum := big.NewInt(0)
	for _, b := range h.state.bids[testCollection] {
		sum.Add(sum, b.SentValue)
		sum.Sub(sum, b.Withdrawn)
	}
	if a.Settled {
		sum.Sub(sum, a.SettledRevenue)
	}
	if sum.Cmp(a.TotalBalance) != 0 {
		t.Fatalf("bid ledger %s != total balance %s", sum, a.TotalBalance)
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	h := newHarness(t)
	base := CreateParams{
		Collection:           testCollection,
		SellerFundsRecipient: testRecipient,
		BidDuration:          10,
		RevealDuration:       10,
		SettleDuration:       10,
	}
	cases := []struct {
		name   string
		caller [20]byte
		mutate func(*CreateParams)
		want   error
	}{
		{"missing recipient", testSeller, func(p *CreateParams) { p.SellerFundsRecipient = [20]byte{} }, ErrInvalidFundsRecipient},
		{"vault recipient", testSeller, func(p *CreateParams) { p.SellerFundsRecipient = mockVaultAddress("VSA") }, ErrInvalidFundsRecipient},
		{"token vault recipient", testSeller, func(p *CreateParams) { p.Currency = "USDX"; p.SellerFundsRecipient = mockVaultAddress("USDX") }, ErrInvalidFundsRecipient},
		{"zero bid duration", testSeller, func(p *CreateParams) { p.BidDuration = 0 }, ErrInvalidDuration},
		{"zero settle duration", testSeller, func(p *CreateParams) { p.SettleDuration = 0 }, ErrInvalidDuration},
		{"past start", testSeller, func(p *CreateParams) { p.StartTime = testStart - 1 }, ErrInvalidDuration},
		{"unknown currency", testSeller, func(p *CreateParams) { p.Currency = "DOGE" }, ErrInvalidCurrency},
		{"negative minimum", testSeller, func(p *CreateParams) { p.MinimumViableRevenue = big.NewInt(-1) }, ErrInvalidMinimum},
		{"stranger", testStranger, func(p *CreateParams) {}, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			tc.mutate(&params)
			if _, err := h.engine.CreateAuction(tc.caller, params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(h.state.auctions) != 0 {
				t.Fatalf("rejected create persisted state")
			}
		})
	}
}

func TestCreateAuctionDefaultsAndBoundaries(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, 3)
	if a.StartTime != testStart || a.EndOfBidPhase != testEndBid || a.EndOfRevealPhase != testEndReveal || a.EndOfSettlePhase != testEndSettle {
		t.Fatalf("unexpected boundaries: %+v", a)
	}
	if a.Currency != "VSA" || a.TotalBalance.Sign() != 0 || a.Seller != testSeller {
		t.Fatalf("unexpected auction: %+v", a)
	}
	if got := h.emitter.types(); len(got) != 1 || got[0] != EventTypeAuctionCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateAuctionRejectsLiveDuplicateAndSupersedesEmpty(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)

	// No bids yet: an operator may supersede.
	superseding := CreateParams{
		Collection:           testCollection,
		SellerFundsRecipient: testRecipient,
		MinimumViableRevenue: big.NewInt(5),
		BidDuration:          50,
		RevealDuration:       50,
		SettleDuration:       50,
	}
	a, err := h.engine.CreateAuction(testOperator, superseding)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if a.Seller != testOperator || a.EndOfBidPhase != testStart+50 {
		t.Fatalf("auction not replaced: %+v", a)
	}
	got := h.emitter.types()
	if got[len(got)-2] != EventTypeAuctionCancelled || got[len(got)-1] != EventTypeAuctionCreated {
		t.Fatalf("unexpected events: %v", got)
	}

	h.funds.credit("VSA", newTestAddress(0x01), 10)
	commitment, _ := Commit(big.NewInt(5), testSalt(1))
	if _, err := h.engine.PlaceBid(newTestAddress(0x01), testCollection, commitment, big.NewInt(10)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := h.engine.CreateAuction(testSeller, superseding); !errors.Is(err, ErrDuplicateLiveAuction) {
		t.Fatalf("expected duplicate live auction, got %v", err)
	}
}

func TestTerminalAuctionBlocksCreationUntilDrained(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	bidder := newTestAddress(0x01)
	h.bid(t, bidder, 5, 8)

	h.now = testEndSettle
	params := CreateParams{
		Collection:           testCollection,
		SellerFundsRecipient: testRecipient,
		BidDuration:          10,
		RevealDuration:       10,
		SettleDuration:       10,
	}
	if _, err := h.engine.CreateAuction(testSeller, params); !errors.Is(err, ErrDuplicateLiveAuction) {
		t.Fatalf("expected outstanding refunds error, got %v", err)
	}

	amount, err := h.engine.ClaimRefund(bidder, testCollection)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount.Int64() != 8 {
		t.Fatalf("expected full escrow refund, got %s", amount)
	}
	if _, ok := h.state.auctions[testCollection]; ok {
		t.Fatalf("drained expired auction not pruned")
	}
	if got := h.emitter.types(); got[len(got)-1] != EventTypeAuctionCleared {
		t.Fatalf("expected cleared event, got %v", got)
	}
	if _, err := h.engine.CreateAuction(testSeller, params); err != nil {
		t.Fatalf("create after drain: %v", err)
	}
}

func TestCancelAuction(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	if err := h.engine.CancelAuction(testStranger, testCollection); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.engine.CancelAuction(testSeller, testCollection); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := h.engine.CancelAuction(testSeller, testCollection); !errors.Is(err, ErrAuctionDoesNotExist) {
		t.Fatalf("expected missing auction, got %v", err)
	}

	h.create(t, 0)
	h.bid(t, newTestAddress(0x01), 1, 1)
	if err := h.engine.CancelAuction(testSeller, testCollection); !errors.Is(err, ErrAuctionAlreadyActive) {
		t.Fatalf("expected already active, got %v", err)
	}
}

func TestPlaceBidPreconditions(t *testing.T) {
	h := newHarness(t)
	bidder := newTestAddress(0x01)
	var commitment [32]byte

	if _, err := h.engine.PlaceBid(bidder, testCollection, commitment, big.NewInt(1)); !errors.Is(err, ErrAuctionDoesNotExist) {
		t.Fatalf("expected missing auction, got %v", err)
	}
	h.create(t, 0)
	if _, err := h.engine.PlaceBid(bidder, testCollection, commitment, big.NewInt(0)); !errors.Is(err, ErrValidBidsMustIncludeValue) {
		t.Fatalf("expected value required, got %v", err)
	}
	if _, err := h.engine.PlaceBid(bidder, testCollection, commitment, big.NewInt(5)); !errors.Is(err, ErrCollaboratorFailure) {
		t.Fatalf("expected escrow failure without balance, got %v", err)
	}
	if len(h.state.bids[testCollection]) != 0 {
		t.Fatalf("failed escrow left a bid behind")
	}
	h.bid(t, bidder, 3, 5)
	h.funds.credit("VSA", bidder, 5)
	if _, err := h.engine.PlaceBid(bidder, testCollection, commitment, big.NewInt(5)); !errors.Is(err, ErrAlreadyPlacedBid) {
		t.Fatalf("expected duplicate bid, got %v", err)
	}
	h.now = testEndBid
	if _, err := h.engine.PlaceBid(newTestAddress(0x02), testCollection, commitment, big.NewInt(5)); !errors.Is(err, ErrBidsOnlyAllowedDuringBidPhase) {
		t.Fatalf("expected bid phase violation, got %v", err)
	}

	a := h.state.auctions[testCollection]
	if a.TotalBalance.Int64() != 5 || a.BidCount != 1 {
		t.Fatalf("unexpected auction counters: %+v", a)
	}
	h.assertAccounting(t)
}

func TestBidBeforeStartRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(testSeller, CreateParams{
		Collection:           testCollection,
		SellerFundsRecipient: testRecipient,
		StartTime:            testStart + 50,
		BidDuration:          10,
		RevealDuration:       10,
		SettleDuration:       10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var commitment [32]byte
	h.funds.credit("VSA", newTestAddress(0x01), 5)
	if _, err := h.engine.PlaceBid(newTestAddress(0x01), testCollection, commitment, big.NewInt(5)); !errors.Is(err, ErrBidsOnlyAllowedDuringBidPhase) {
		t.Fatalf("expected bid phase violation before start, got %v", err)
	}
}

func TestRevealBid(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	bidder := newTestAddress(0x01)
	other := newTestAddress(0x02)
	h.bid(t, bidder, 4, 10)
	h.bid(t, other, 12, 12)

	if _, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(4), testSalt(0x01)); !errors.Is(err, ErrRevealsOnlyAllowedDuringRevealPhase) {
		t.Fatalf("expected reveal phase violation, got %v", err)
	}
	h.now = testEndBid
	if _, err := h.engine.RevealBid(testStranger, testCollection, big.NewInt(4), testSalt(0x01)); !errors.Is(err, ErrBidDoesNotExist) {
		t.Fatalf("expected missing bid, got %v", err)
	}
	if _, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(5), testSalt(0x01)); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected commitment mismatch, got %v", err)
	}
	if _, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(4), testSalt(0x09)); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected commitment mismatch for wrong salt, got %v", err)
	}

	b, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(4), testSalt(0x01))
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if !b.Revealed || b.RevealedAmount.Int64() != 4 || b.AvailableRefund.Int64() != 6 {
		t.Fatalf("unexpected revealed bid: %+v", b)
	}
	if _, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(4), testSalt(0x01)); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("expected already revealed, got %v", err)
	}

	// Pre-reveal-close accounting: sent == refund + withdrawn + revealed.
	stored := h.state.bids[testCollection][bidder]
	sum := new(big.Int).Add(stored.AvailableRefund, stored.Withdrawn)
	sum.Add(sum, stored.RevealedAmount)
	if sum.Cmp(stored.SentValue) != 0 {
		t.Fatalf("bid accounting broken: %+v", stored)
	}

	// Reveal-time excess is withdrawable immediately.
	amount, err := h.engine.ClaimRefund(bidder, testCollection)
	if err != nil || amount.Int64() != 6 {
		t.Fatalf("claim excess: %v %v", amount, err)
	}
	if _, err := h.engine.ClaimRefund(other, testCollection); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("unrevealed bidder must wait, got %v", err)
	}
	h.assertAccounting(t)
}

func TestRevealExceedsEscrow(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	bidder := newTestAddress(0x01)
	h.bid(t, bidder, 20, 10)
	h.now = testEndBid
	if _, err := h.engine.RevealBid(bidder, testCollection, big.NewInt(20), testSalt(0x01)); !errors.Is(err, ErrRevealExceedsEscrow) {
		t.Fatalf("expected reveal exceeds escrow, got %v", err)
	}
	if h.state.bids[testCollection][bidder].Revealed {
		t.Fatalf("failed reveal marked bid revealed")
	}
}

var scenarioBids = []int64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 6, 6, 11}

// scenarioHarness places and reveals the thirteen reference bids. Every bidder
// over-escrows by two units.
func scenarioHarness(t *testing.T, minimum int64) (*harness, [][20]byte) {
	t.Helper()
	h := newHarness(t)
	h.create(t, minimum)
	bidders := make([][20]byte, len(scenarioBids))
	for i, amount := range scenarioBids {
		bidders[i] = newTestAddress(byte(i + 1))
		h.bid(t, bidders[i], amount, amount+2)
	}
	h.now = testEndBid
	for i, amount := range scenarioBids {
		h.reveal(t, bidders[i], amount)
	}
	h.assertAccounting(t)
	h.now = testEndReveal
	return h, bidders
}

func TestSettlementScenarios(t *testing.T) {
	cases := []struct {
		name        string
		price       int64
		editionSize uint64
		revenue     int64
	}{
		{"A: clear at 1", 1, 13, 13},
		{"B: clear at 6", 6, 3, 18},
		{"C: clear at 11", 11, 1, 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, bidders := scenarioHarness(t, 0)
			s, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(tc.price))
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if s.EditionSize != tc.editionSize || s.Revenue.Int64() != tc.revenue {
				t.Fatalf("expected edition %d revenue %d, got %d %s", tc.editionSize, tc.revenue, s.EditionSize, s.Revenue)
			}
			a := h.state.auctions[testCollection]
			if !a.Settled || a.SettledEditionSize != tc.editionSize {
				t.Fatalf("auction not settled: %+v", a)
			}
			if new(big.Int).Mul(a.SettledPricePoint, new(big.Int).SetUint64(a.SettledEditionSize)).Cmp(a.SettledRevenue) != 0 {
				t.Fatalf("settled revenue inconsistent: %+v", a)
			}
			if got := h.funds.balance("VSA", testRecipient); got.Int64() != tc.revenue {
				t.Fatalf("recipient received %s", got)
			}
			if len(h.minter.minted) != int(tc.editionSize) {
				t.Fatalf("minted %d units", len(h.minter.minted))
			}
			h.assertAccounting(t)

			for i, amount := range scenarioBids {
				b := h.state.bids[testCollection][bidders[i]]
				sent := amount + 2
				if amount >= tc.price {
					if b.Outcome != OutcomeWon || b.AvailableRefund.Int64() != sent-tc.price || b.UnitID == 0 {
						t.Fatalf("winner %d: %+v", i, b)
					}
					if h.minter.minted[b.UnitID] != bidders[i] {
						t.Fatalf("unit %d minted to wrong bidder", b.UnitID)
					}
				} else if b.Outcome != OutcomeLost || b.AvailableRefund.Int64() != sent {
					t.Fatalf("loser %d: %+v", i, b)
				}
			}

			total := int64(0)
			for _, bidder := range bidders {
				amount, err := h.engine.ClaimRefund(bidder, testCollection)
				if err != nil {
					t.Fatalf("claim: %v", err)
				}
				total += amount.Int64()
			}
			if h.funds.vault["VSA"].Sign() != 0 {
				t.Fatalf("vault not drained: %s", h.funds.vault["VSA"])
			}
			if _, ok := h.state.auctions[testCollection]; ok {
				t.Fatalf("drained auction not pruned")
			}
			sent := int64(0)
			for _, amount := range scenarioBids {
				sent += amount + 2
			}
			if total+tc.revenue != sent {
				t.Fatalf("refunds %d + revenue %d != escrow %d", total, tc.revenue, sent)
			}
		})
	}
}

func TestSettlementBelowMinimumLeavesStateUntouched(t *testing.T) {
	h, _ := scenarioHarness(t, 30)
	before := h.state.auctions[testCollection].Clone()
	eventsBefore := len(h.emitter.events)

	// Clearing at 11 sells one unit for 11 < 30.
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(11)); !errors.Is(err, ErrDoesNotMeetMinimumRevenue) {
		t.Fatalf("expected minimum revenue failure, got %v", err)
	}
	after := h.state.auctions[testCollection]
	if after.Settled || after.TotalBalance.Cmp(before.TotalBalance) != 0 {
		t.Fatalf("failed settlement mutated auction: %+v", after)
	}
	if h.minter.calls != 0 || len(h.emitter.events) != eventsBefore {
		t.Fatalf("failed settlement had side effects")
	}
	for _, b := range h.state.bids[testCollection] {
		if b.Outcome != OutcomePending {
			t.Fatalf("failed settlement touched bid %+v", b)
		}
	}

	// Clearing at 6 sells three units for 18 < 30; at 1 sells 13 for 13.
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(6)); !errors.Is(err, ErrDoesNotMeetMinimumRevenue) {
		t.Fatalf("expected minimum revenue failure, got %v", err)
	}
	h.engine.SetNowFunc(func() int64 { return testEndSettle - 1 })
	// 13 * 1 = 13 still below 30: the auction remains settleable but unsold.
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(1)); !errors.Is(err, ErrDoesNotMeetMinimumRevenue) {
		t.Fatalf("expected minimum revenue failure, got %v", err)
	}
}

func TestSettlementRetryWithinWindow(t *testing.T) {
	h, _ := scenarioHarness(t, 3)
	// 11 * 1 = 11 >= 3, but first attempt a price nobody meets.
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(12)); !errors.Is(err, ErrDoesNotMeetMinimumRevenue) {
		t.Fatalf("expected minimum revenue failure, got %v", err)
	}
	s, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(6))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.EditionSize != 3 || s.Revenue.Int64() != 18 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(6)); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}
}

func TestSettlementPreconditions(t *testing.T) {
	h, _ := scenarioHarness(t, 0)
	if _, err := h.engine.SettleAuction(testOperator, testCollection, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-seller, got %v", err)
	}
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(0)); !errors.Is(err, ErrInvalidClearingPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	h.now = testEndReveal - 1
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(1)); !errors.Is(err, ErrSettlementWindowViolation) {
		t.Fatalf("expected window violation during reveal, got %v", err)
	}
	h.now = testEndSettle
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(1)); !errors.Is(err, ErrSettlementWindowViolation) {
		t.Fatalf("expected window violation after expiry, got %v", err)
	}
}

func TestSettlementBoundaryIsInclusive(t *testing.T) {
	for _, tc := range []struct {
		price int64
		wins  bool
	}{{7, true}, {8, false}} {
		h := newHarness(t)
		h.create(t, 0)
		bidder := newTestAddress(0x01)
		h.bid(t, bidder, 7, 9)
		h.now = testEndBid
		h.reveal(t, bidder, 7)
		h.now = testEndReveal
		s, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(tc.price))
		if err != nil {
			t.Fatalf("settle at %d: %v", tc.price, err)
		}
		if (s.EditionSize == 1) != tc.wins {
			t.Fatalf("price %d: expected win=%v, edition %d", tc.price, tc.wins, s.EditionSize)
		}
	}
}

func TestNonRevealerLosesAndIsFullyRefunded(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	revealer := newTestAddress(0x01)
	silent := newTestAddress(0x02)
	h.bid(t, revealer, 5, 5)
	h.bid(t, silent, 50, 60)
	h.now = testEndBid
	h.reveal(t, revealer, 5)
	h.now = testEndReveal

	s, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(5))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.EditionSize != 1 || s.LosersRefunded != 1 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if _, err := h.engine.ClaimRefund(revealer, testCollection); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("winner paying exactly the price has nothing to claim, got %v", err)
	}
	amount, err := h.engine.ClaimRefund(silent, testCollection)
	if err != nil || amount.Int64() != 60 {
		t.Fatalf("non-revealer refund: %v %v", amount, err)
	}
	h.assertAccounting(t)
}

func TestZeroEditionSettlement(t *testing.T) {
	h, _ := scenarioHarness(t, 0)
	s, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(100))
	if err != nil {
		t.Fatalf("zero edition settle with zero minimum: %v", err)
	}
	if s.EditionSize != 0 || s.Revenue.Sign() != 0 || h.minter.calls != 0 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	h.assertAccounting(t)
}

func TestMintFailureAbortsSettlement(t *testing.T) {
	h, _ := scenarioHarness(t, 0)
	h.minter.failAt = 2
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(6)); !errors.Is(err, ErrCollaboratorFailure) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
	if h.state.auctions[testCollection].Settled {
		t.Fatalf("auction marked settled after mint failure")
	}
	if h.funds.balance("VSA", testRecipient).Sign() != 0 {
		t.Fatalf("revenue paid despite mint failure")
	}
	// The engine does not undo the unit minted before the failure; the node
	// runs settlement inside a state overlay that is discarded on error. See
	// TestNodeSettlementRollsBackWhenMintFailsMidway in core.
	if len(h.minter.minted) != 1 || h.minter.calls != 2 {
		t.Fatalf("expected one unit minted before the failing call, got %d after %d calls", len(h.minter.minted), h.minter.calls)
	}
}

func TestClaimRefundIsIdempotentAndMonotonic(t *testing.T) {
	h, bidders := scenarioHarness(t, 0)
	winner := bidders[12]

	before, err := h.engine.Bid(testCollection, winner)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if before.AvailableRefund.Int64() != 2 {
		t.Fatalf("expected reveal excess 2, got %s", before.AvailableRefund)
	}
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(6)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	after, err := h.engine.Bid(testCollection, winner)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if after.AvailableRefund.Cmp(before.AvailableRefund) < 0 {
		t.Fatalf("available refund decreased without a claim: %s -> %s", before.AvailableRefund, after.AvailableRefund)
	}
	first, err := h.engine.ClaimRefund(winner, testCollection)
	if err != nil || first.Int64() != 13-6 {
		t.Fatalf("first claim: %v %v", first, err)
	}
	if _, err := h.engine.ClaimRefund(winner, testCollection); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("second claim must not pay, got %v", err)
	}
	if got := h.funds.balance("VSA", winner); got.Int64() != 7 {
		t.Fatalf("winner balance %s", got)
	}
	h.assertAccounting(t)
}

func TestClaimExcessBeforeSettlementThenWin(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	bidder := newTestAddress(0x01)
	h.bid(t, bidder, 10, 15)
	h.now = testEndBid
	h.reveal(t, bidder, 10)
	excess, err := h.engine.ClaimRefund(bidder, testCollection)
	if err != nil || excess.Int64() != 5 {
		t.Fatalf("excess claim: %v %v", excess, err)
	}
	h.now = testEndReveal
	if _, err := h.engine.SettleAuction(testSeller, testCollection, big.NewInt(4)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	rest, err := h.engine.ClaimRefund(bidder, testCollection)
	if err != nil || rest.Int64() != 6 {
		t.Fatalf("post settlement claim: %v %v", rest, err)
	}
	if got := h.funds.balance("VSA", bidder); got.Int64() != 11 {
		t.Fatalf("bidder paid %d in total, expected to keep 11", 15-got.Int64())
	}
	if _, ok := h.state.auctions[testCollection]; ok {
		t.Fatalf("drained settled auction not pruned")
	}
}

func TestClaimRefundPayoutFailureLeavesBid(t *testing.T) {
	h, bidders := scenarioHarness(t, 0)
	h.funds.failPay = true
	if _, err := h.engine.ClaimRefund(bidders[0], testCollection); !errors.Is(err, ErrCollaboratorFailure) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
	if b := h.state.bids[testCollection][bidders[0]]; b.Claimed || b.Withdrawn.Sign() != 0 {
		t.Fatalf("failed payout updated bid: %+v", b)
	}
}

func TestPreviewAndPricePoints(t *testing.T) {
	h, _ := scenarioHarness(t, 15)
	points, err := h.engine.PricePoints(testCollection)
	if err != nil {
		t.Fatalf("price points: %v", err)
	}
	want := []struct {
		price, edition, revenue int64
	}{{11, 1, 11}, {6, 3, 18}, {1, 13, 13}}
	if len(points) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(points))
	}
	for i, w := range want {
		if points[i].Price.Int64() != w.price || int64(points[i].EditionSize) != w.edition || points[i].Revenue.Int64() != w.revenue {
			t.Fatalf("point %d: %+v", i, points[i])
		}
	}

	preview, err := h.engine.PreviewSettlement(testCollection, big.NewInt(11))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.MeetsMinimum || preview.EditionSize != 1 {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if h.state.auctions[testCollection].Settled || h.minter.calls != 0 {
		t.Fatalf("preview mutated state")
	}
}

func TestPhaseAccessor(t *testing.T) {
	h := newHarness(t)
	h.create(t, 0)
	for _, tc := range []struct {
		now  int64
		want Phase
	}{
		{testStart, PhaseBid},
		{testEndBid, PhaseReveal},
		{testEndReveal, PhaseSettle},
		{testEndSettle, PhaseExpired},
	} {
		h.now = tc.now
		got, err := h.engine.Phase(testCollection)
		if err != nil {
			t.Fatalf("phase: %v", err)
		}
		if got != tc.want {
			t.Fatalf("at %d expected %s, got %s", tc.now, tc.want, got)
		}
	}
}
