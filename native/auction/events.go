package auction

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vsachain/core/types"
)

const (
	EventTypeAuctionCreated   = "auction.created"
	EventTypeAuctionCancelled = "auction.cancelled"
	EventTypeBidPlaced        = "auction.bid"
	EventTypeBidRevealed      = "auction.revealed"
	EventTypeAuctionSettled   = "auction.settled"
	EventTypeRefundClaimed    = "auction.refund_claimed"
	EventTypeAuctionCleared   = "auction.cleared"
)

// NewCreatedEvent returns the canonical payload for a newly created auction.
func NewCreatedEvent(a *Auction) *types.Event { return newAuctionEvent(EventTypeAuctionCreated, a) }

// NewCancelledEvent is emitted when a seller cancels or supersedes an auction
// without bids. Reason is "cancelled" or "superseded".
func NewCancelledEvent(a *Auction, reason string) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionCancelled, a)
	if reason != "" {
		evt.Attributes["reason"] = reason
	}
	return evt
}

// NewBidPlacedEvent carries the sealed bid and the updated auction snapshot.
func NewBidPlacedEvent(a *Auction, b *Bid) *types.Event {
	evt := newAuctionEvent(EventTypeBidPlaced, a)
	if b == nil {
		return evt
	}
	evt.Attributes["bidder"] = hex.EncodeToString(b.Bidder[:])
	evt.Attributes["commitment"] = hex.EncodeToString(b.Commitment[:])
	evt.Attributes["sentValue"] = cloneBigInt(b.SentValue).String()
	return evt
}

// NewBidRevealedEvent is emitted when a bidder opens their commitment.
func NewBidRevealedEvent(a *Auction, b *Bid) *types.Event {
	evt := newAuctionEvent(EventTypeBidRevealed, a)
	if b == nil {
		return evt
	}
	evt.Attributes["bidder"] = hex.EncodeToString(b.Bidder[:])
	evt.Attributes["revealedAmount"] = cloneBigInt(b.RevealedAmount).String()
	evt.Attributes["availableRefund"] = cloneBigInt(b.AvailableRefund).String()
	return evt
}

// NewSettledEvent records the clearing price and the resulting edition.
func NewSettledEvent(a *Auction, s *Settlement) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionSettled, a)
	if s == nil {
		return evt
	}
	evt.Attributes["losers"] = strconv.FormatUint(s.LosersRefunded, 10)
	winners := make([]byte, 0, len(s.Winners)*41)
	for i, w := range s.Winners {
		if i > 0 {
			winners = append(winners, ',')
		}
		winners = append(winners, hex.EncodeToString(w.Bidder[:])...)
	}
	evt.Attributes["winners"] = string(winners)
	return evt
}

// NewRefundClaimedEvent is emitted for every successful withdrawal.
func NewRefundClaimedEvent(a *Auction, bidder [20]byte, amount *big.Int) *types.Event {
	evt := newAuctionEvent(EventTypeRefundClaimed, a)
	evt.Attributes["bidder"] = hex.EncodeToString(bidder[:])
	evt.Attributes["amount"] = cloneBigInt(amount).String()
	return evt
}

// NewClearedEvent is emitted when a drained terminal auction is pruned.
func NewClearedEvent(a *Auction) *types.Event { return newAuctionEvent(EventTypeAuctionCleared, a) }

func newAuctionEvent(eventType string, a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(a.Collection[:])
	attrs["seller"] = hex.EncodeToString(a.Seller[:])
	attrs["fundsRecipient"] = hex.EncodeToString(a.SellerFundsRecipient[:])
	attrs["currency"] = a.Currency
	attrs["minimumViableRevenue"] = cloneBigInt(a.MinimumViableRevenue).String()
	attrs["startTime"] = strconv.FormatInt(a.StartTime, 10)
	attrs["endOfBidPhase"] = strconv.FormatInt(a.EndOfBidPhase, 10)
	attrs["endOfRevealPhase"] = strconv.FormatInt(a.EndOfRevealPhase, 10)
	attrs["endOfSettlePhase"] = strconv.FormatInt(a.EndOfSettlePhase, 10)
	attrs["totalBalance"] = cloneBigInt(a.TotalBalance).String()
	attrs["bidCount"] = strconv.FormatUint(a.BidCount, 10)
	attrs["revealCount"] = strconv.FormatUint(a.RevealCount, 10)
	if a.Settled {
		attrs["pricePoint"] = cloneBigInt(a.SettledPricePoint).String()
		attrs["editionSize"] = strconv.FormatUint(a.SettledEditionSize, 10)
		attrs["revenue"] = cloneBigInt(a.SettledRevenue).String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
