package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vsachain/core/events"
	"vsachain/core/genesis"
	"vsachain/core/state"
	"vsachain/core/types"
	"vsachain/native/auction"
	"vsachain/native/bank"
	"vsachain/native/collection"
	"vsachain/observability"
	vsaotel "vsachain/observability/otel"
	"vsachain/storage"
)

var (
	// ErrInvalidNonce is returned when a signed request does not carry the
	// caller's current account nonce.
	ErrInvalidNonce = errors.New("core: invalid nonce")
	// ErrFaucetDisabled is returned by Credit when the node was started without
	// a faucet.
	ErrFaucetDisabled = errors.New("core: faucet disabled")
)

var genesisMarkerKey = []byte("meta/genesis")

// Caller identifies the verified signer of a mutating request.
type Caller struct {
	Address [20]byte
	Nonce   uint64
}

// Options configures a node.
type Options struct {
	NativeToken      string
	Tokens           []string
	MaxPhaseDuration int64
	Faucet           bool
	Logger           *slog.Logger
	// Clock returns the current unix time in seconds. Defaults to the wall clock.
	Clock func() int64
}

// Node is the central controller, wiring state, the native engines and the
// committed event stream together. State-changing operations are serialized
// and applied atomically.
type Node struct {
	db          storage.Database
	state       *state.Manager
	stateMu     sync.RWMutex
	feed        *events.Feed
	sinks       []events.Emitter
	nativeToken string
	tokens      []string
	maxPhase    int64
	faucet      bool
	clock       func() int64
	logger      *slog.Logger
	metrics     *observability.AuctionMetrics
	tracer      trace.Tracer

	reportedDrops uint64
}

// engines bundles the engines bound to one state view.
type engines struct {
	view        *state.View
	auction     *auction.Engine
	collections *collection.Engine
	vault       *bank.Vault
}

func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database must not be nil")
	}
	native := types.NormalizeSymbol(opts.NativeToken)
	if native == "" {
		return nil, errors.New("core: native token symbol required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	n := &Node{
		db:          db,
		state:       state.NewManager(db),
		feed:        events.NewFeed(),
		nativeToken: native,
		maxPhase:    opts.MaxPhaseDuration,
		faucet:      opts.Faucet,
		clock:       clock,
		logger:      logger.With(slog.String("component", "node")),
		metrics:     observability.Auction(),
		tracer:      vsaotel.Tracer(),
	}
	seen := map[string]struct{}{native: {}}
	for _, token := range opts.Tokens {
		symbol := types.NormalizeSymbol(token)
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		n.tokens = append(n.tokens, symbol)
	}
	n.logger.Info("node initialised",
		slog.String("native", native),
		slog.Any("tokens", n.tokens))
	return n, nil
}

// Feed exposes the committed event stream.
func (n *Node) Feed() *events.Feed { return n.feed }

// AddSink registers an additional consumer of committed events. Sinks are
// invoked synchronously after each commit and must not block.
func (n *Node) AddSink(sink events.Emitter) {
	if sink == nil {
		return
	}
	n.stateMu.Lock()
	n.sinks = append(n.sinks, sink)
	n.stateMu.Unlock()
}

// Now returns the node clock in unix seconds.
func (n *Node) Now() int64 { return n.clock() }

// NativeToken returns the native currency symbol.
func (n *Node) NativeToken() string { return n.nativeToken }

// Currencies lists every accepted auction currency, native first.
func (n *Node) Currencies() []string {
	return append([]string{n.nativeToken}, n.tokens...)
}

// VaultAddress returns the escrow account of a currency.
func (n *Node) VaultAddress(currency string) ([20]byte, error) {
	symbol := types.NormalizeSymbol(currency)
	if !n.supported(symbol) {
		return [20]byte{}, fmt.Errorf("%w: %s", bank.ErrUnsupportedToken, currency)
	}
	return bank.VaultAddress(symbol), nil
}

func (n *Node) supported(symbol string) bool {
	if symbol == n.nativeToken {
		return true
	}
	for _, token := range n.tokens {
		if token == symbol {
			return true
		}
	}
	return false
}

func (n *Node) newEngines(view *state.View, emitter events.Emitter) *engines {
	vault := bank.NewVault(n.nativeToken, n.tokens...)
	vault.SetState(view)
	vault.SetEmitter(emitter)

	collections := collection.NewEngine()
	collections.SetState(view)
	collections.SetEmitter(emitter)
	collections.SetNowFunc(n.clock)

	engine := auction.NewEngine()
	engine.SetState(view)
	engine.SetMinter(collections)
	engine.SetAuthorizer(collections)
	engine.SetFunds(vault)
	engine.SetDefaultCurrency(n.nativeToken)
	engine.SetMaxPhaseDuration(n.maxPhase)
	engine.SetNowFunc(n.clock)
	engine.SetEmitter(emitter)

	return &engines{view: view, auction: engine, collections: collections, vault: vault}
}

// apply runs fn inside one state transaction. Events are published only when
// the transaction commits. For signed requests the caller nonce must match and
// is consumed whether or not fn succeeds, so a rejected request cannot be
// replayed.
func (n *Node) apply(ctx context.Context, op string, caller *Caller, fn func(*engines) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := n.tracer.Start(ctx, "node."+op, trace.WithAttributes(attribute.String("vsa.operation", op)))
	defer span.End()

	start := time.Now()
	n.stateMu.Lock()
	err := n.applyLocked(caller, fn)
	n.stateMu.Unlock()
	n.metrics.ObserveOperation(op, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Debug("operation rejected", slog.String("operation", op), slog.Any("error", err))
		return err
	}
	return nil
}

func (n *Node) applyLocked(caller *Caller, fn func(*engines) error) error {
	if caller != nil {
		account, err := n.state.AccountGet(caller.Address)
		if err != nil {
			return err
		}
		if account.Nonce != caller.Nonce {
			return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, account.Nonce, caller.Nonce)
		}
	}

	tx := n.state.Begin()
	buffer := events.NewBuffer()
	if err := fn(n.newEngines(&tx.View, buffer)); err != nil {
		tx.Discard()
		if caller != nil {
			if _, nonceErr := n.state.IncrementNonce(caller.Address); nonceErr != nil {
				return errors.Join(err, nonceErr)
			}
		}
		return err
	}
	if caller != nil {
		if _, err := tx.IncrementNonce(caller.Address); err != nil {
			tx.Discard()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	n.publish(buffer.Events())
	return nil
}

func (n *Node) publish(emitted []events.Event) {
	if len(emitted) == 0 {
		return
	}
	touched := make(map[string]struct{})
	sinks := append(events.Multi{n.feed}, n.sinks...)
	for _, evt := range emitted {
		typed := events.ToTyped(evt)
		n.metrics.RecordEvent(typed.Type, typed.Attributes)
		if typed.Type == events.TypeTransfer {
			observability.Events().RecordTransfer(typed.Attr("asset"), typed.Attr("memo"))
			touched[typed.Attr("asset")] = struct{}{}
		}
		sinks.Emit(evt)
	}
	for currency := range touched {
		if balance, err := n.state.Balance(bank.VaultAddress(currency), currency); err == nil {
			n.metrics.SetEscrow(currency, balance)
		}
	}
	if dropped := n.feed.Dropped(); dropped > n.reportedDrops {
		observability.Events().RecordDropped(int(dropped - n.reportedDrops))
		n.reportedDrops = dropped
	}
}

// InitGenesis applies the genesis spec once. Later calls on a database that
// already holds genesis state are no-ops and report false.
func (n *Node) InitGenesis(ctx context.Context, spec *genesis.GenesisSpec) (bool, error) {
	if spec == nil {
		return false, errors.New("core: genesis spec must not be nil")
	}
	var marker uint64
	applied, err := n.state.KVGet(genesisMarkerKey, &marker)
	if err != nil {
		return false, err
	}
	if applied {
		n.logger.Info("genesis already applied", slog.Int64("genesisTime", int64(marker)))
		return false, nil
	}
	if err := spec.Validate(); err != nil {
		return false, fmt.Errorf("core: genesis: %w", err)
	}
	err = n.apply(ctx, "genesis", nil, func(e *engines) error {
		if err := genesis.Apply(spec, e.vault, e.collections); err != nil {
			return err
		}
		return e.view.KVPut(genesisMarkerKey, uint64(spec.GenesisTimestamp().Unix()))
	})
	if err != nil {
		return false, err
	}
	n.logger.Info("genesis applied",
		slog.Int("allocations", len(spec.Allocations())),
		slog.Int("collections", len(spec.Collections)))
	return true, nil
}

// --- Auction operations ---

func (n *Node) CreateAuction(ctx context.Context, caller Caller, params auction.CreateParams) (*auction.Auction, error) {
	var created *auction.Auction
	err := n.apply(ctx, "auction_create", &caller, func(e *engines) error {
		var err error
		created, err = e.auction.CreateAuction(caller.Address, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (n *Node) CancelAuction(ctx context.Context, caller Caller, collectionAddr [20]byte) error {
	return n.apply(ctx, "auction_cancel", &caller, func(e *engines) error {
		return e.auction.CancelAuction(caller.Address, collectionAddr)
	})
}

func (n *Node) PlaceBid(ctx context.Context, caller Caller, collectionAddr [20]byte, commitment [32]byte, sentValue *big.Int) (*auction.Bid, error) {
	var placed *auction.Bid
	err := n.apply(ctx, "auction_placeBid", &caller, func(e *engines) error {
		var err error
		placed, err = e.auction.PlaceBid(caller.Address, collectionAddr, commitment, sentValue)
		return err
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (n *Node) RevealBid(ctx context.Context, caller Caller, collectionAddr [20]byte, amount *big.Int, salt [32]byte) (*auction.Bid, error) {
	var revealed *auction.Bid
	err := n.apply(ctx, "auction_reveal", &caller, func(e *engines) error {
		var err error
		revealed, err = e.auction.RevealBid(caller.Address, collectionAddr, amount, salt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return revealed, nil
}

func (n *Node) SettleAuction(ctx context.Context, caller Caller, collectionAddr [20]byte, price *big.Int) (*auction.Settlement, error) {
	var settlement *auction.Settlement
	err := n.apply(ctx, "auction_settle", &caller, func(e *engines) error {
		var err error
		settlement, err = e.auction.SettleAuction(caller.Address, collectionAddr, price)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("auction settled",
		slog.String("collection", fmt.Sprintf("%x", collectionAddr)),
		slog.String("price", settlement.ClearingPrice.String()),
		slog.Uint64("editionSize", settlement.EditionSize))
	return settlement, nil
}

func (n *Node) ClaimRefund(ctx context.Context, caller Caller, collectionAddr [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.apply(ctx, "auction_claimRefund", &caller, func(e *engines) error {
		var err error
		amount, err = e.auction.ClaimRefund(caller.Address, collectionAddr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// --- Administrative operations ---

func (n *Node) RegisterCollection(ctx context.Context, addr, owner [20]byte, name, symbol string) (*collection.Collection, error) {
	var registered *collection.Collection
	err := n.apply(ctx, "collection_register", nil, func(e *engines) error {
		var err error
		registered, err = e.collections.Register(addr, owner, name, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

// SetCollectionOperator grants or revokes an operator on behalf of the
// collection owner.
func (n *Node) SetCollectionOperator(ctx context.Context, addr, operator [20]byte, enabled bool) (*collection.Collection, error) {
	var updated *collection.Collection
	err := n.apply(ctx, "collection_setOperator", nil, func(e *engines) error {
		current, err := e.collections.Collection(addr)
		if err != nil {
			return err
		}
		updated, err = e.collections.SetOperator(current.Owner, addr, operator, enabled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Credit mints balance out of thin air. Only available when the faucet is on.
func (n *Node) Credit(ctx context.Context, token string, to [20]byte, amount *big.Int) error {
	if !n.faucet {
		return ErrFaucetDisabled
	}
	return n.apply(ctx, "vsa_credit", nil, func(e *engines) error {
		return e.vault.Credit(token, to, amount)
	})
}

// --- Reads against committed state ---

func (n *Node) read(fn func(*engines) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return fn(n.newEngines(&n.state.View, events.NoopEmitter{}))
}

func (n *Node) Auction(collectionAddr [20]byte) (*auction.Auction, error) {
	var out *auction.Auction
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.auction.Auction(collectionAddr)
		return err
	})
	return out, err
}

func (n *Node) AuctionPhase(collectionAddr [20]byte) (auction.Phase, error) {
	var out auction.Phase
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.auction.Phase(collectionAddr)
		return err
	})
	return out, err
}

// Auctions lists every stored auction ordered by collection address.
func (n *Node) Auctions() ([]*auction.Auction, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.state.AuctionList()
}

func (n *Node) Bid(collectionAddr, bidder [20]byte) (*auction.Bid, error) {
	var out *auction.Bid
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.auction.Bid(collectionAddr, bidder)
		return err
	})
	return out, err
}

func (n *Node) Bids(collectionAddr [20]byte) ([]*auction.Bid, error) {
	var out []*auction.Bid
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.auction.Bids(collectionAddr)
		return err
	})
	return out, err
}

func (n *Node) PreviewSettlement(collectionAddr [20]byte, price *big.Int) (*auction.Settlement, error) {
	var out *auction.Settlement
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.auction.PreviewSettlement(collectionAddr, price)
		return err
	})
	return out, err
}

func (n *Node) PricePoints(collectionAddr [20]byte) ([]auction.PricePoint, error) {
	var out []auction.PricePoint
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.auction.PricePoints(collectionAddr)
		return err
	})
	return out, err
}

func (n *Node) Collection(addr [20]byte) (*collection.Collection, error) {
	var out *collection.Collection
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.collections.Collection(addr)
		return err
	})
	return out, err
}

func (n *Node) UnitOwner(addr [20]byte, id uint64) ([20]byte, error) {
	var out [20]byte
	err := n.read(func(e *engines) error {
		var err error
		out, err = e.collections.OwnerOf(addr, id)
		return err
	})
	return out, err
}

func (n *Node) Balance(addr [20]byte, token string) (*big.Int, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.state.Balance(addr, types.NormalizeSymbol(token))
}

// Nonce returns the next nonce a signed request from addr must carry.
func (n *Node) Nonce(addr [20]byte) (uint64, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	account, err := n.state.AccountGet(addr)
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

// EscrowReport compares a vault balance with the value auctions in that
// currency still owe.
type EscrowReport struct {
	Currency    string
	Vault       *big.Int
	Outstanding *big.Int
	Auctions    int
}

// Balanced reports whether the vault holds exactly what auctions owe.
func (r EscrowReport) Balanced() bool {
	return r.Vault.Cmp(r.Outstanding) == 0
}

// EscrowAudit checks every vault against the sum of TotalBalance of the
// auctions denominated in its currency.
func (n *Node) EscrowAudit() ([]EscrowReport, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	auctions, err := n.state.AuctionList()
	if err != nil {
		return nil, err
	}
	reports := make(map[string]*EscrowReport)
	for _, currency := range n.Currencies() {
		balance, err := n.state.Balance(bank.VaultAddress(currency), currency)
		if err != nil {
			return nil, err
		}
		reports[currency] = &EscrowReport{Currency: currency, Vault: balance, Outstanding: big.NewInt(0)}
	}
	for _, a := range auctions {
		report, ok := reports[strings.ToUpper(a.Currency)]
		if !ok {
			return nil, fmt.Errorf("core: auction %x uses unknown currency %q", a.Collection, a.Currency)
		}
		report.Outstanding.Add(report.Outstanding, a.TotalBalance)
		report.Auctions++
	}
	out := make([]EscrowReport, 0, len(reports))
	for _, report := range reports {
		out = append(out, *report)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// Close releases the underlying database.
func (n *Node) Close() error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.db.Close()
}
