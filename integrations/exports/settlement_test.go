package exports

import (
	"bytes"
	"encoding/csv"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"vsachain/crypto"
	"vsachain/native/auction"
)

func fixture() (*auction.Auction, []*auction.Bid) {
	var coll, seller, winner, loser [20]byte
	coll[19], seller[19], winner[19], loser[19] = 0xC0, 0x5E, 0xA1, 0xA2
	a := &auction.Auction{
		Collection:         coll,
		Seller:             seller,
		Currency:           "VSA",
		Settled:            true,
		SettledPricePoint:  big.NewInt(6),
		SettledEditionSize: 1,
		SettledRevenue:     big.NewInt(6),
	}
	bids := []*auction.Bid{
		{
			Bidder:          winner,
			SentValue:       big.NewInt(10),
			Revealed:        true,
			RevealedAmount:  big.NewInt(8),
			AvailableRefund: big.NewInt(4),
			Outcome:         auction.OutcomeWon,
			UnitID:          1,
		},
		{
			Bidder:          loser,
			SentValue:       big.NewInt(5),
			Revealed:        true,
			RevealedAmount:  big.NewInt(5),
			AvailableRefund: big.NewInt(5),
			Outcome:         auction.OutcomeLost,
		},
	}
	return a, bids
}

func TestSettlementRowsFlattenBids(t *testing.T) {
	a, bids := fixture()
	rows := SettlementRows(a, append(bids, nil))
	require.Len(t, rows, 2)
	require.Equal(t, crypto.FormatAddress(a.Collection), rows[0].Collection)
	require.Equal(t, "won", rows[0].Outcome)
	require.Equal(t, "6", rows[0].PricePoint)
	require.Equal(t, "0", rows[1].Withdrawn)
	require.Equal(t, "lost", rows[1].Outcome)
	require.Nil(t, SettlementRows(nil, bids))
}

func TestSettlementCSVChecksumStable(t *testing.T) {
	a, bids := fixture()
	rows := SettlementRows(a, bids)
	first, sum1, err := SettlementCSV(rows)
	require.NoError(t, err)
	second, sum2, err := SettlementCSV(rows)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, sum1, sum2)

	records, err := csv.NewReader(bytes.NewReader(first)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, "1", records[1][12])
}

func TestExporterWritesCSVAndParquet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	exporter, err := NewExporter(dir)
	require.NoError(t, err)
	exporter.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	a, bids := fixture()
	rows := SettlementRows(a, bids)

	report, err := exporter.Export("CSV", "vsa1/../x", rows)
	require.NoError(t, err)
	require.Equal(t, FormatCSV, report.Format)
	require.Equal(t, 2, report.Rows)
	require.Equal(t, dir, filepath.Dir(report.Path))
	require.True(t, strings.HasSuffix(report.Path, "settlement-vsa1____x-20260102T030405Z.csv"))
	data, err := os.ReadFile(report.Path)
	require.NoError(t, err)
	_, sum, err := SettlementCSV(rows)
	require.NoError(t, err)
	require.Equal(t, sum, report.Checksum)
	require.NotEmpty(t, data)

	report, err = exporter.Export(FormatParquet, "c0", rows)
	require.NoError(t, err)
	require.Len(t, report.Checksum, 64)

	fr, err := local.NewLocalFileReader(report.Path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.EqualValues(t, 2, pr.GetNumRows())
	out := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&out))
	require.Equal(t, "won", out[0].Outcome)
	require.EqualValues(t, 1, out[0].UnitID)
	require.Equal(t, "5", out[1].AvailableRefund)

	_, err = exporter.Export("xlsx", "c0", rows)
	require.Error(t, err)
}

func TestNewExporterRequiresDir(t *testing.T) {
	_, err := NewExporter("  ")
	require.Error(t, err)
}
