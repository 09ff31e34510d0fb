package types

import (
	"math/big"
	"sort"
	"strings"
)

// TokenBalance is a single currency balance held by an account. Balances are
// stored as a sorted slice so the RLP encoding stays deterministic.
type TokenBalance struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// Account tracks the spendable balances of an address and the nonce used to
// reject replayed signed requests.
type Account struct {
	Nonce    uint64         `json:"nonce"`
	Balances []TokenBalance `json:"balances"`
}

// NormalizeSymbol returns the canonical upper-case token symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Balance returns a copy of the balance held in token (zero when absent).
func (a *Account) Balance(token string) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	symbol := NormalizeSymbol(token)
	for _, bal := range a.Balances {
		if bal.Token == symbol && bal.Amount != nil {
			return new(big.Int).Set(bal.Amount)
		}
	}
	return big.NewInt(0)
}

// SetBalance overwrites the balance for token, dropping zero entries.
func (a *Account) SetBalance(token string, amount *big.Int) {
	symbol := NormalizeSymbol(token)
	out := make([]TokenBalance, 0, len(a.Balances)+1)
	for _, bal := range a.Balances {
		if bal.Token != symbol {
			out = append(out, bal)
		}
	}
	if amount != nil && amount.Sign() > 0 {
		out = append(out, TokenBalance{Token: symbol, Amount: new(big.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	a.Balances = out
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := &Account{Nonce: a.Nonce, Balances: make([]TokenBalance, 0, len(a.Balances))}
	for _, bal := range a.Balances {
		amount := big.NewInt(0)
		if bal.Amount != nil {
			amount.Set(bal.Amount)
		}
		clone.Balances = append(clone.Balances, TokenBalance{Token: bal.Token, Amount: amount})
	}
	return clone
}
