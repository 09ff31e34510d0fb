package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"vsachain/crypto"
	"vsachain/native/auction"
	"vsachain/observability/metrics"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// SettlementRow is one bid of an auction as it stands at export time.
type SettlementRow struct {
	Collection      string
	Seller          string
	Currency        string
	Settled         bool
	PricePoint      string
	EditionSize     uint64
	Revenue         string
	Bidder          string
	SentValue       string
	Revealed        bool
	RevealedAmount  string
	Outcome         string
	UnitID          uint64
	AvailableRefund string
	Withdrawn       string
}

// Report is the file written by an export.
type Report struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Rows     int    `json:"rows"`
	Checksum string `json:"checksum"`
}

// SettlementRows flattens an auction and its bids, bids ordered as given.
func SettlementRows(a *auction.Auction, bids []*auction.Bid) []SettlementRow {
	if a == nil {
		return nil
	}
	rows := make([]SettlementRow, 0, len(bids))
	for _, bid := range bids {
		if bid == nil {
			continue
		}
		row := SettlementRow{
			Collection:      crypto.FormatAddress(a.Collection),
			Seller:          crypto.FormatAddress(a.Seller),
			Currency:        a.Currency,
			Settled:         a.Settled,
			PricePoint:      amount(a.SettledPricePoint),
			EditionSize:     a.SettledEditionSize,
			Revenue:         amount(a.SettledRevenue),
			Bidder:          crypto.FormatAddress(bid.Bidder),
			SentValue:       amount(bid.SentValue),
			Revealed:        bid.Revealed,
			RevealedAmount:  amount(bid.RevealedAmount),
			Outcome:         bid.Outcome.String(),
			UnitID:          bid.UnitID,
			AvailableRefund: amount(bid.AvailableRefund),
			Withdrawn:       amount(bid.Withdrawn),
		}
		rows = append(rows, row)
	}
	return rows
}

var csvHeader = []string{
	"collection", "seller", "currency", "settled", "price_point", "edition_size", "revenue",
	"bidder", "sent_value", "revealed", "revealed_amount", "outcome", "unit_id",
	"available_refund", "withdrawn",
}

// SettlementCSV serialises rows and returns the data with its SHA-256 checksum.
func SettlementCSV(rows []SettlementRow) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	w := csv.NewWriter(buffer)
	if err := w.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			row.Collection,
			row.Seller,
			row.Currency,
			strconv.FormatBool(row.Settled),
			row.PricePoint,
			strconv.FormatUint(row.EditionSize, 10),
			row.Revenue,
			row.Bidder,
			row.SentValue,
			strconv.FormatBool(row.Revealed),
			row.RevealedAmount,
			row.Outcome,
			strconv.FormatUint(row.UnitID, 10),
			row.AvailableRefund,
			row.Withdrawn,
		}
		if err := w.Write(record); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

type parquetRow struct {
	Collection      string `parquet:"name=collection, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Seller          string `parquet:"name=seller, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Currency        string `parquet:"name=currency, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Settled         bool   `parquet:"name=settled, type=BOOLEAN"`
	PricePoint      string `parquet:"name=price_point, type=UTF8, encoding=PLAIN_DICTIONARY"`
	EditionSize     int64  `parquet:"name=edition_size, type=INT64"`
	Revenue         string `parquet:"name=revenue, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Bidder          string `parquet:"name=bidder, type=UTF8, encoding=PLAIN_DICTIONARY"`
	SentValue       string `parquet:"name=sent_value, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Revealed        bool   `parquet:"name=revealed, type=BOOLEAN"`
	RevealedAmount  string `parquet:"name=revealed_amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Outcome         string `parquet:"name=outcome, type=UTF8, encoding=PLAIN_DICTIONARY"`
	UnitID          int64  `parquet:"name=unit_id, type=INT64"`
	AvailableRefund string `parquet:"name=available_refund, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Withdrawn       string `parquet:"name=withdrawn, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

func writeParquet(path string, rows []SettlementRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			Collection:      row.Collection,
			Seller:          row.Seller,
			Currency:        row.Currency,
			Settled:         row.Settled,
			PricePoint:      row.PricePoint,
			EditionSize:     int64(row.EditionSize),
			Revenue:         row.Revenue,
			Bidder:          row.Bidder,
			SentValue:       row.SentValue,
			Revealed:        row.Revealed,
			RevealedAmount:  row.RevealedAmount,
			Outcome:         row.Outcome,
			UnitID:          int64(row.UnitID),
			AvailableRefund: row.AvailableRefund,
			Withdrawn:       row.Withdrawn,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}

// Exporter writes settlement reports into a directory.
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter creates the directory if needed.
func NewExporter(dir string) (*Exporter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("exports: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("exports: create dir: %w", err)
	}
	return &Exporter{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Export writes rows for the named collection in the requested format.
func (e *Exporter) Export(format, name string, rows []SettlementRow) (*Report, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	base := fmt.Sprintf("settlement-%s-%s", sanitize(name), e.now().Format("20060102T150405Z"))
	var (
		path     string
		checksum string
	)
	switch format {
	case FormatCSV:
		data, sum, err := SettlementCSV(rows)
		if err != nil {
			return nil, fmt.Errorf("exports: csv: %w", err)
		}
		path = filepath.Join(e.dir, base+".csv")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("exports: write csv: %w", err)
		}
		checksum = sum
	case FormatParquet:
		path = filepath.Join(e.dir, base+".parquet")
		if err := writeParquet(path, rows); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("exports: read parquet: %w", err)
		}
		sum := sha256.Sum256(data)
		checksum = hex.EncodeToString(sum[:])
	default:
		return nil, fmt.Errorf("exports: unsupported format %q", format)
	}
	metrics.Integrations().AddExportRows(format, len(rows))
	return &Report{Path: path, Format: format, Rows: len(rows), Checksum: checksum}, nil
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "auction"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
