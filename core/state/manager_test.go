package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vsachain/core/types"
	"vsachain/native/auction"
	"vsachain/native/collection"
	"vsachain/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestKVRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	type record struct {
		Name  string
		Value *big.Int
	}
	require.NoError(t, m.KVPut([]byte("k"), &record{Name: "x", Value: big.NewInt(9)}))

	var out record
	ok, err := m.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", out.Name)
	require.Equal(t, int64(9), out.Value.Int64())

	ok, err = m.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, m.KVPut(nil, &out))
}

func TestTxCommitIsAtomic(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.AccountPut(addr(1), &types.Account{Nonce: 1}))

	tx := m.Begin()
	acc, err := tx.AccountGet(addr(2))
	require.NoError(t, err)
	acc.SetBalance("VSA", big.NewInt(5))
	require.NoError(t, tx.AccountPut(addr(2), acc))
	require.NoError(t, tx.KVDelete(accountKey(addr(1))))

	// Uncommitted writes are visible inside the transaction only.
	bal, err := tx.Balance(addr(2), "VSA")
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.Int64())
	bal, err = m.Balance(addr(2), "VSA")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
	require.Equal(t, 2, tx.Pending())

	require.NoError(t, tx.Commit())
	bal, err = m.Balance(addr(2), "VSA")
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.Int64())
	has, err := db.Has(accountKey(addr(1)))
	require.NoError(t, err)
	require.False(t, has)

	require.Error(t, tx.Commit())
}

func TestTxDiscardLeavesStateUntouched(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	tx := m.Begin()
	_, err := tx.IncrementNonce(addr(3))
	require.NoError(t, err)
	tx.Discard()

	acc, err := m.AccountGet(addr(3))
	require.NoError(t, err)
	require.Zero(t, acc.Nonce)
	_, err = tx.AccountGet(addr(3))
	require.Error(t, err)
}

func TestAuctionAndBidStorage(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	col := addr(0xC0)
	a := &auction.Auction{
		Collection:           col,
		Seller:               addr(0xE0),
		SellerFundsRecipient: addr(0xE1),
		Currency:             "VSA",
		MinimumViableRevenue: big.NewInt(3),
		StartTime:            10,
		EndOfBidPhase:        20,
		EndOfRevealPhase:     30,
		EndOfSettlePhase:     40,
		TotalBalance:         big.NewInt(12),
		BidCount:             2,
	}
	require.NoError(t, m.AuctionPut(a))
	got, ok, err := m.AuctionGet(col)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(40), got.EndOfSettlePhase)
	require.Equal(t, int64(12), got.TotalBalance.Int64())
	require.Zero(t, got.SettledRevenue.Sign())

	tx := m.Begin()
	for _, fill := range []byte{0x09, 0x01, 0x05} {
		require.NoError(t, tx.BidPut(&auction.Bid{
			Collection: col,
			Bidder:     addr(fill),
			SentValue:  big.NewInt(int64(fill)),
			Outcome:    auction.OutcomeWon,
			UnitID:     uint64(fill),
		}))
	}
	// A bid on another collection must not leak into the listing.
	require.NoError(t, tx.BidPut(&auction.Bid{Collection: addr(0xC1), Bidder: addr(0x02)}))
	require.NoError(t, m.BidPut(&auction.Bid{Collection: col, Bidder: addr(0x07), SentValue: big.NewInt(7)}))
	require.NoError(t, tx.BidDelete(col, addr(0x07)))

	bids, err := tx.BidList(col)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, addr(0x01), bids[0].Bidder)
	require.Equal(t, addr(0x05), bids[1].Bidder)
	require.Equal(t, addr(0x09), bids[2].Bidder)
	require.Equal(t, auction.OutcomeWon, bids[0].Outcome)
	require.Zero(t, bids[0].Withdrawn.Sign())
	require.NoError(t, tx.Commit())

	bids, err = m.BidList(col)
	require.NoError(t, err)
	require.Len(t, bids, 3)

	require.NoError(t, m.AuctionDelete(col))
	_, ok, err = m.AuctionGet(col)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, m.AuctionPut(&auction.Auction{Collection: col, StartTime: -1}))
}

func TestCollectionStorage(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	c := &collection.Collection{
		Address:    addr(0xC0),
		Owner:      addr(0x01),
		Name:       "Genesis",
		Symbol:     "GEN",
		Operators:  [][20]byte{addr(0x02), addr(0x03)},
		NextUnitID: 4,
		Minted:     3,
		CreatedAt:  55,
	}
	require.NoError(t, m.CollectionPut(c))
	got, ok, err := m.CollectionGet(addr(0xC0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c, got)

	require.NoError(t, m.UnitPut(&collection.Unit{Collection: addr(0xC0), ID: 2, Owner: addr(0x09), MintedAt: 60}))
	unit, ok, err := m.UnitGet(addr(0xC0), 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, addr(0x09), unit.Owner)
	_, ok, err = m.UnitGet(addr(0xC0), 3)
	require.NoError(t, err)
	require.False(t, ok)
}
