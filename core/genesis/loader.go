// core/genesis/loader.go
package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"vsachain/native/collection"
)

// Ledger credits genesis balances.
type Ledger interface {
	Credit(token string, to [20]byte, amount *big.Int) error
}

// Registry registers genesis collections.
type Registry interface {
	Register(addr, owner [20]byte, name, symbol string) (*collection.Collection, error)
	SetOperator(caller, addr, operator [20]byte, enabled bool) (*collection.Collection, error)
}

// Apply writes the allocations and collections of a validated spec. Entries are
// applied in a fixed order so every node derives identical state from the same
// spec. The caller owns the surrounding state transaction.
func Apply(spec *GenesisSpec, ledger Ledger, registry Registry) error {
	if spec == nil {
		return errors.New("genesis spec must not be nil")
	}
	if ledger == nil || registry == nil {
		return errors.New("genesis ledger and registry must be provided")
	}
	if spec.genesisTimestamp.IsZero() {
		if err := spec.Validate(); err != nil {
			return err
		}
	}

	for _, alloc := range spec.allocations {
		if err := ledger.Credit(alloc.Token, alloc.Account, alloc.Amount); err != nil {
			return fmt.Errorf("alloc %x %s: %w", alloc.Account, alloc.Token, err)
		}
	}

	entries := append([]collectionEntry(nil), spec.collections...)
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].address[:], entries[j].address[:]) < 0
	})
	for _, entry := range entries {
		if _, err := registry.Register(entry.address, entry.owner, entry.name, entry.symbol); err != nil {
			return fmt.Errorf("collection %x: %w", entry.address, err)
		}
		for _, op := range entry.operators {
			if _, err := registry.SetOperator(entry.owner, entry.address, op, true); err != nil {
				return fmt.Errorf("collection %x operator %x: %w", entry.address, op, err)
			}
		}
	}
	return nil
}

func sortAllocations(allocs []Allocation) {
	sort.Slice(allocs, func(i, j int) bool {
		if cmp := bytes.Compare(allocs[i].Account[:], allocs[j].Account[:]); cmp != 0 {
			return cmp < 0
		}
		return allocs[i].Token < allocs[j].Token
	})
}
