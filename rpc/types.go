package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"vsachain/crypto"
	"vsachain/native/auction"
	"vsachain/native/collection"
)

// AuctionResult is the JSON view of an auction. Amounts are decimal strings.
type AuctionResult struct {
	Collection           string `json:"collection"`
	Seller               string `json:"seller"`
	FundsRecipient       string `json:"fundsRecipient"`
	Currency             string `json:"currency"`
	MinimumViableRevenue string `json:"minimumViableRevenue"`
	StartTime            int64  `json:"startTime"`
	EndOfBidPhase        int64  `json:"endOfBidPhase"`
	EndOfRevealPhase     int64  `json:"endOfRevealPhase"`
	EndOfSettlePhase     int64  `json:"endOfSettlePhase"`
	Phase                string `json:"phase"`
	TotalBalance         string `json:"totalBalance"`
	BidCount             uint64 `json:"bidCount"`
	RevealCount          uint64 `json:"revealCount"`
	Settled              bool   `json:"settled"`
	PricePoint           string `json:"pricePoint,omitempty"`
	EditionSize          uint64 `json:"editionSize,omitempty"`
	Revenue              string `json:"revenue,omitempty"`
	CreatedAt            int64  `json:"createdAt"`
	SettledAt            int64  `json:"settledAt,omitempty"`
}

// BidResult is the JSON view of a sealed bid.
type BidResult struct {
	Collection      string `json:"collection"`
	Bidder          string `json:"bidder"`
	Commitment      string `json:"commitment"`
	SentValue       string `json:"sentValue"`
	Revealed        bool   `json:"revealed"`
	RevealedAmount  string `json:"revealedAmount"`
	AvailableRefund string `json:"availableRefund"`
	Withdrawn       string `json:"withdrawn"`
	Claimed         bool   `json:"claimed"`
	Outcome         string `json:"outcome"`
	UnitID          uint64 `json:"unitId,omitempty"`
	PlacedAt        int64  `json:"placedAt"`
	RevealedAt      int64  `json:"revealedAt,omitempty"`
}

type AllocationResult struct {
	Bidder string `json:"bidder"`
	UnitID uint64 `json:"unitId,omitempty"`
	Refund string `json:"refund"`
}

// SettlementResult describes a settlement or a preview of one.
type SettlementResult struct {
	Collection     string             `json:"collection"`
	ClearingPrice  string             `json:"clearingPrice"`
	EditionSize    uint64             `json:"editionSize"`
	Revenue        string             `json:"revenue"`
	MeetsMinimum   bool               `json:"meetsMinimum"`
	Winners        []AllocationResult `json:"winners"`
	LosersRefunded uint64             `json:"losersRefunded"`
}

type PricePointResult struct {
	Price       string `json:"price"`
	EditionSize uint64 `json:"editionSize"`
	Revenue     string `json:"revenue"`
}

type CollectionResult struct {
	Address    string   `json:"address"`
	Owner      string   `json:"owner"`
	Name       string   `json:"name"`
	Symbol     string   `json:"symbol"`
	Operators  []string `json:"operators"`
	Minted     uint64   `json:"minted"`
	NextUnitID uint64   `json:"nextUnitId"`
	CreatedAt  int64    `json:"createdAt"`
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func auctionResult(a *auction.Auction, now int64) AuctionResult {
	res := AuctionResult{
		Collection:           crypto.FormatAddress(a.Collection),
		Seller:               crypto.FormatAddress(a.Seller),
		FundsRecipient:       crypto.FormatAddress(a.SellerFundsRecipient),
		Currency:             a.Currency,
		MinimumViableRevenue: formatAmount(a.MinimumViableRevenue),
		StartTime:            a.StartTime,
		EndOfBidPhase:        a.EndOfBidPhase,
		EndOfRevealPhase:     a.EndOfRevealPhase,
		EndOfSettlePhase:     a.EndOfSettlePhase,
		Phase:                auction.PhaseOf(a, now).String(),
		TotalBalance:         formatAmount(a.TotalBalance),
		BidCount:             a.BidCount,
		RevealCount:          a.RevealCount,
		Settled:              a.Settled,
		CreatedAt:            a.CreatedAt,
	}
	if a.Settled {
		res.PricePoint = formatAmount(a.SettledPricePoint)
		res.EditionSize = a.SettledEditionSize
		res.Revenue = formatAmount(a.SettledRevenue)
		res.SettledAt = a.SettledAt
	}
	return res
}

func bidResult(b *auction.Bid) BidResult {
	return BidResult{
		Collection:      crypto.FormatAddress(b.Collection),
		Bidder:          crypto.FormatAddress(b.Bidder),
		Commitment:      hexutil.Encode(b.Commitment[:]),
		SentValue:       formatAmount(b.SentValue),
		Revealed:        b.Revealed,
		RevealedAmount:  formatAmount(b.RevealedAmount),
		AvailableRefund: formatAmount(b.AvailableRefund),
		Withdrawn:       formatAmount(b.Withdrawn),
		Claimed:         b.Claimed,
		Outcome:         b.Outcome.String(),
		UnitID:          b.UnitID,
		PlacedAt:        b.PlacedAt,
		RevealedAt:      b.RevealedAt,
	}
}

func settlementResult(s *auction.Settlement) SettlementResult {
	res := SettlementResult{
		Collection:     crypto.FormatAddress(s.Collection),
		ClearingPrice:  formatAmount(s.ClearingPrice),
		EditionSize:    s.EditionSize,
		Revenue:        formatAmount(s.Revenue),
		MeetsMinimum:   s.MeetsMinimum,
		Winners:        make([]AllocationResult, 0, len(s.Winners)),
		LosersRefunded: s.LosersRefunded,
	}
	for _, w := range s.Winners {
		res.Winners = append(res.Winners, AllocationResult{
			Bidder: crypto.FormatAddress(w.Bidder),
			UnitID: w.UnitID,
			Refund: formatAmount(w.Refund),
		})
	}
	return res
}

func collectionResult(c *collection.Collection) CollectionResult {
	ops := make([]string, 0, len(c.Operators))
	for _, op := range c.Operators {
		ops = append(ops, crypto.FormatAddress(op))
	}
	return CollectionResult{
		Address:    crypto.FormatAddress(c.Address),
		Owner:      crypto.FormatAddress(c.Owner),
		Name:       c.Name,
		Symbol:     c.Symbol,
		Operators:  ops,
		Minted:     c.Minted,
		NextUnitID: c.NextUnitID,
		CreatedAt:  c.CreatedAt,
	}
}

// parseAmount accepts a non-negative base-10 integer or a 0x-prefixed hex
// quantity. Leading zeros are read as decimal, never octal.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		amount, err := hexutil.DecodeBig(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return amount, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be an integer", field)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return amount, nil
}

func parseBytes32(field, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("%s: %w", field, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("%s must be 32 bytes", field)
	}
	copy(out[:], raw)
	return out, nil
}

func parseAddressField(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}
