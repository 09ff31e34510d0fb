package events

import (
	"math/big"
	"strings"

	"vsachain/core/types"
	"vsachain/crypto"
)

const (
	// TypeTransfer is emitted for every balance movement between accounts,
	// auction vaults included.
	TypeTransfer = "transfer"
	// TypeCredit is emitted when the faucet or genesis mints balance.
	TypeCredit = "transfer.credit"
)

type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Memo   string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := strings.ToUpper(strings.TrimSpace(e.Asset)); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = crypto.FormatAddress(e.From)
	attrs["to"] = crypto.FormatAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	if e.Memo != "" {
		attrs["memo"] = e.Memo
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Credit struct {
	Asset  string
	To     [20]byte
	Amount *big.Int
}

func (Credit) EventType() string { return TypeCredit }

func (e Credit) Event() *types.Event {
	return &types.Event{Type: TypeCredit, Attributes: map[string]string{
		"asset":  strings.ToUpper(strings.TrimSpace(e.Asset)),
		"to":     crypto.FormatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
