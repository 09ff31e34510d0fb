package state

import (
	"fmt"
	"math/big"

	"vsachain/native/auction"
)

var (
	auctionPrefix = []byte("auction/")
	bidPrefix     = []byte("bid/")
)

type storedAuction struct {
	Collection           [20]byte
	Seller               [20]byte
	SellerFundsRecipient [20]byte
	Currency             string
	MinimumViableRevenue *big.Int
	StartTime            uint64
	EndOfBidPhase        uint64
	EndOfRevealPhase     uint64
	EndOfSettlePhase     uint64
	TotalBalance         *big.Int
	BidCount             uint64
	RevealCount          uint64
	Settled              bool
	SettledPricePoint    *big.Int
	SettledEditionSize   uint64
	SettledRevenue       *big.Int
	CreatedAt            uint64
	SettledAt            uint64
}

func newStoredAuction(a *auction.Auction) (*storedAuction, error) {
	if a == nil {
		return nil, fmt.Errorf("auction: nil record")
	}
	for _, ts := range []int64{a.StartTime, a.EndOfBidPhase, a.EndOfRevealPhase, a.EndOfSettlePhase, a.CreatedAt, a.SettledAt} {
		if ts < 0 {
			return nil, fmt.Errorf("auction: negative timestamp %d", ts)
		}
	}
	return &storedAuction{
		Collection:           a.Collection,
		Seller:               a.Seller,
		SellerFundsRecipient: a.SellerFundsRecipient,
		Currency:             a.Currency,
		MinimumViableRevenue: nonNil(a.MinimumViableRevenue),
		StartTime:            uint64(a.StartTime),
		EndOfBidPhase:        uint64(a.EndOfBidPhase),
		EndOfRevealPhase:     uint64(a.EndOfRevealPhase),
		EndOfSettlePhase:     uint64(a.EndOfSettlePhase),
		TotalBalance:         nonNil(a.TotalBalance),
		BidCount:             a.BidCount,
		RevealCount:          a.RevealCount,
		Settled:              a.Settled,
		SettledPricePoint:    nonNil(a.SettledPricePoint),
		SettledEditionSize:   a.SettledEditionSize,
		SettledRevenue:       nonNil(a.SettledRevenue),
		CreatedAt:            uint64(a.CreatedAt),
		SettledAt:            uint64(a.SettledAt),
	}, nil
}

func (s *storedAuction) toAuction() *auction.Auction {
	return &auction.Auction{
		Collection:           s.Collection,
		Seller:               s.Seller,
		SellerFundsRecipient: s.SellerFundsRecipient,
		Currency:             s.Currency,
		MinimumViableRevenue: nonNil(s.MinimumViableRevenue),
		StartTime:            int64(s.StartTime),
		EndOfBidPhase:        int64(s.EndOfBidPhase),
		EndOfRevealPhase:     int64(s.EndOfRevealPhase),
		EndOfSettlePhase:     int64(s.EndOfSettlePhase),
		TotalBalance:         nonNil(s.TotalBalance),
		BidCount:             s.BidCount,
		RevealCount:          s.RevealCount,
		Settled:              s.Settled,
		SettledPricePoint:    nonNil(s.SettledPricePoint),
		SettledEditionSize:   s.SettledEditionSize,
		SettledRevenue:       nonNil(s.SettledRevenue),
		CreatedAt:            int64(s.CreatedAt),
		SettledAt:            int64(s.SettledAt),
	}
}

type storedBid struct {
	Collection      [20]byte
	Bidder          [20]byte
	Commitment      [32]byte
	SentValue       *big.Int
	Revealed        bool
	RevealedAmount  *big.Int
	AvailableRefund *big.Int
	Withdrawn       *big.Int
	Claimed         bool
	Outcome         uint8
	UnitID          uint64
	PlacedAt        uint64
	RevealedAt      uint64
}

func newStoredBid(b *auction.Bid) (*storedBid, error) {
	if b == nil {
		return nil, fmt.Errorf("bid: nil record")
	}
	if b.PlacedAt < 0 || b.RevealedAt < 0 {
		return nil, fmt.Errorf("bid: negative timestamp")
	}
	if !b.Outcome.Valid() {
		return nil, fmt.Errorf("bid: invalid outcome %d", b.Outcome)
	}
	return &storedBid{
		Collection:      b.Collection,
		Bidder:          b.Bidder,
		Commitment:      b.Commitment,
		SentValue:       nonNil(b.SentValue),
		Revealed:        b.Revealed,
		RevealedAmount:  nonNil(b.RevealedAmount),
		AvailableRefund: nonNil(b.AvailableRefund),
		Withdrawn:       nonNil(b.Withdrawn),
		Claimed:         b.Claimed,
		Outcome:         uint8(b.Outcome),
		UnitID:          b.UnitID,
		PlacedAt:        uint64(b.PlacedAt),
		RevealedAt:      uint64(b.RevealedAt),
	}, nil
}

func (s *storedBid) toBid() *auction.Bid {
	return &auction.Bid{
		Collection:      s.Collection,
		Bidder:          s.Bidder,
		Commitment:      s.Commitment,
		SentValue:       nonNil(s.SentValue),
		Revealed:        s.Revealed,
		RevealedAmount:  nonNil(s.RevealedAmount),
		AvailableRefund: nonNil(s.AvailableRefund),
		Withdrawn:       nonNil(s.Withdrawn),
		Claimed:         s.Claimed,
		Outcome:         auction.Outcome(s.Outcome),
		UnitID:          s.UnitID,
		PlacedAt:        int64(s.PlacedAt),
		RevealedAt:      int64(s.RevealedAt),
	}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func auctionKey(collection [20]byte) []byte {
	return append(append([]byte{}, auctionPrefix...), collection[:]...)
}

func bidCollectionPrefix(collection [20]byte) []byte {
	return append(append([]byte{}, bidPrefix...), collection[:]...)
}

func bidKey(collection, bidder [20]byte) []byte {
	return append(bidCollectionPrefix(collection), bidder[:]...)
}

// AuctionGet loads the auction recorded for collection.
func (v *View) AuctionGet(collection [20]byte) (*auction.Auction, bool, error) {
	var stored storedAuction
	ok, err := v.KVGet(auctionKey(collection), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toAuction(), true, nil
}

// AuctionPut persists the auction under its collection key.
func (v *View) AuctionPut(a *auction.Auction) error {
	stored, err := newStoredAuction(a)
	if err != nil {
		return err
	}
	return v.KVPut(auctionKey(a.Collection), stored)
}

// AuctionDelete removes the auction record; bids are removed separately.
func (v *View) AuctionDelete(collection [20]byte) error {
	return v.KVDelete(auctionKey(collection))
}

// AuctionList returns every auction in collection order.
func (v *View) AuctionList() ([]*auction.Auction, error) {
	var (
		out     []*auction.Auction
		iterErr error
	)
	err := v.kv.iterate(auctionPrefix, func(_, value []byte) bool {
		var stored storedAuction
		if iterErr = decode(value, &stored); iterErr != nil {
			return false
		}
		out = append(out, stored.toAuction())
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// BidGet loads bidder's bid on collection.
func (v *View) BidGet(collection, bidder [20]byte) (*auction.Bid, bool, error) {
	var stored storedBid
	ok, err := v.KVGet(bidKey(collection, bidder), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toBid(), true, nil
}

// BidPut persists the bid.
func (v *View) BidPut(b *auction.Bid) error {
	stored, err := newStoredBid(b)
	if err != nil {
		return err
	}
	return v.KVPut(bidKey(b.Collection, b.Bidder), stored)
}

// BidDelete removes a single bid.
func (v *View) BidDelete(collection, bidder [20]byte) error {
	return v.KVDelete(bidKey(collection, bidder))
}

// BidList returns every bid on collection ordered by bidder address.
func (v *View) BidList(collection [20]byte) ([]*auction.Bid, error) {
	var (
		out     []*auction.Bid
		iterErr error
	)
	err := v.kv.iterate(bidCollectionPrefix(collection), func(_, value []byte) bool {
		var stored storedBid
		if iterErr = decode(value, &stored); iterErr != nil {
			return false
		}
		out = append(out, stored.toBid())
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}
