package state

import (
	"fmt"
	"math/big"

	"vsachain/core/types"
)

var accountPrefix = []byte("account/")

func accountKey(addr [20]byte) []byte {
	return append(append([]byte{}, accountPrefix...), addr[:]...)
}

// AccountGet returns the account stored for addr. Unknown addresses yield an
// empty account with nonce zero.
func (v *View) AccountGet(addr [20]byte) (*types.Account, error) {
	var account types.Account
	ok, err := v.KVGet(accountKey(addr), &account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{}, nil
	}
	return &account, nil
}

// AccountPut persists the account under addr.
func (v *View) AccountPut(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("nil account")
	}
	for _, bal := range account.Balances {
		if bal.Amount != nil && bal.Amount.Sign() < 0 {
			return fmt.Errorf("account: negative %s balance", bal.Token)
		}
	}
	return v.KVPut(accountKey(addr), account)
}

// Balance is a convenience accessor for a single token balance.
func (v *View) Balance(addr [20]byte, token string) (*big.Int, error) {
	account, err := v.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	return account.Balance(token), nil
}

// IncrementNonce bumps the replay counter of addr and returns the new value.
func (v *View) IncrementNonce(addr [20]byte) (uint64, error) {
	account, err := v.AccountGet(addr)
	if err != nil {
		return 0, err
	}
	account.Nonce++
	if err := v.AccountPut(addr, account); err != nil {
		return 0, err
	}
	return account.Nonce, nil
}
