package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vsachain/core/events"
	"vsachain/core/types"
)

var (
	errNilState = errors.New("bank: state not configured")

	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrUnsupportedToken    = errors.New("bank: unsupported token")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrSelfTransfer        = errors.New("bank: source and destination are the same account")
)

type accountState interface {
	AccountGet(addr [20]byte) (*types.Account, error)
	AccountPut(addr [20]byte, account *types.Account) error
}

// VaultAddress derives the account that holds auction escrow for token:
// keccak256("vsa/auction/vault/" + SYMBOL)[12:].
func VaultAddress(token string) [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("vsa/auction/vault/" + types.NormalizeSymbol(token)))
	copy(addr[:], digest[12:])
	return addr
}

// Vault moves balances between accounts and the per-currency auction vaults.
// The native symbol runs in native mode; registered token symbols run in token
// mode. Both settle against account balances; the mode only decides which
// symbols are accepted.
type Vault struct {
	state   accountState
	emitter events.Emitter
	native  string
	tokens  map[string]struct{}
}

// NewVault creates a vault for the native symbol plus any registered tokens.
func NewVault(native string, tokens ...string) *Vault {
	v := &Vault{
		emitter: events.NoopEmitter{},
		native:  types.NormalizeSymbol(native),
		tokens:  make(map[string]struct{}),
	}
	for _, t := range tokens {
		if sym := types.NormalizeSymbol(t); sym != "" && sym != v.native {
			v.tokens[sym] = struct{}{}
		}
	}
	return v
}

// SetState configures the account backend.
func (v *Vault) SetState(state accountState) { v.state = state }

// SetEmitter configures the event emitter. Nil resets to a no-op emitter.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

// NativeSymbol returns the symbol of the native asset.
func (v *Vault) NativeSymbol() string { return v.native }

// IsNative reports whether token selects native mode.
func (v *Vault) IsNative(token string) bool {
	return types.NormalizeSymbol(token) == v.native
}

// Supported reports whether token is the native asset or a registered token.
func (v *Vault) Supported(token string) bool {
	sym := types.NormalizeSymbol(token)
	if sym == "" {
		return false
	}
	if sym == v.native {
		return true
	}
	_, ok := v.tokens[sym]
	return ok
}

// Symbols lists every accepted currency, native first.
func (v *Vault) Symbols() []string {
	out := make([]string, 0, len(v.tokens)+1)
	if v.native != "" {
		out = append(out, v.native)
	}
	tokens := make([]string, 0, len(v.tokens))
	for t := range v.tokens {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return append(out, tokens...)
}

// IsVault reports whether addr is the escrow vault of token.
func (v *Vault) IsVault(token string, addr [20]byte) bool {
	return VaultAddress(token) == addr
}

// Escrow moves amount from the bidder into the vault of token.
func (v *Vault) Escrow(token string, from [20]byte, amount *big.Int) error {
	return v.transfer(token, from, VaultAddress(token), amount, "escrow")
}

// PayOut moves amount from the vault of token to the recipient.
func (v *Vault) PayOut(token string, to [20]byte, amount *big.Int) error {
	return v.transfer(token, VaultAddress(token), to, amount, "payout")
}

// Transfer moves amount between two accounts.
func (v *Vault) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	return v.transfer(token, from, to, amount, "")
}

// Credit adds amount to the account without a debit. Used by genesis and the
// development faucet.
func (v *Vault) Credit(token string, to [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if !v.Supported(token) {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, token)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := v.state.AccountGet(to)
	if err != nil {
		return err
	}
	acc.SetBalance(token, new(big.Int).Add(acc.Balance(token), amount))
	if err := v.state.AccountPut(to, acc); err != nil {
		return err
	}
	v.emitter.Emit(events.Credit{Asset: token, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Balance returns the balance of addr in token.
func (v *Vault) Balance(token string, addr [20]byte) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	acc, err := v.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance(token), nil
}

func (v *Vault) transfer(token string, from, to [20]byte, amount *big.Int, memo string) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if !v.Supported(token) {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, token)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	fromAcc, err := v.state.AccountGet(from)
	if err != nil {
		return err
	}
	balance := fromAcc.Balance(token)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance, balance, amount, types.NormalizeSymbol(token))
	}
	fromAcc.SetBalance(token, new(big.Int).Sub(balance, amount))
	if err := v.state.AccountPut(from, fromAcc); err != nil {
		return err
	}
	toAcc, err := v.state.AccountGet(to)
	if err != nil {
		return err
	}
	toAcc.SetBalance(token, new(big.Int).Add(toAcc.Balance(token), amount))
	if err := v.state.AccountPut(to, toAcc); err != nil {
		return err
	}
	v.emitter.Emit(events.Transfer{Asset: types.NormalizeSymbol(token), From: from, To: to, Amount: new(big.Int).Set(amount), Memo: memo})
	return nil
}
