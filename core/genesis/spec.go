// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"vsachain/crypto"
)

// GenesisSpec seeds a fresh node: balances per account and token, and the
// collections auctions can mint into. It is read from JSON or embedded in the
// node configuration.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime" toml:"GenesisTime" yaml:"genesisTime"`
	NativeToken string                       `json:"nativeToken,omitempty" toml:"NativeToken" yaml:"nativeToken"`
	Tokens      []string                     `json:"tokens,omitempty" toml:"Tokens" yaml:"tokens"`
	Alloc       map[string]map[string]string `json:"alloc" toml:"Alloc" yaml:"alloc"` // addr -> token -> amount
	Collections []CollectionSpec             `json:"collections,omitempty" toml:"Collections" yaml:"collections"`

	genesisTimestamp time.Time
	allocations      []Allocation
	collections      []collectionEntry
}

// CollectionSpec registers a collection at genesis.
type CollectionSpec struct {
	Address   string   `json:"address" toml:"Address" yaml:"address"`
	Owner     string   `json:"owner" toml:"Owner" yaml:"owner"`
	Name      string   `json:"name" toml:"Name" yaml:"name"`
	Symbol    string   `json:"symbol" toml:"Symbol" yaml:"symbol"`
	Operators []string `json:"operators,omitempty" toml:"Operators" yaml:"operators"`
}

// Allocation is a validated balance entry.
type Allocation struct {
	Account [20]byte
	Token   string
	Amount  *big.Int
}

type collectionEntry struct {
	address   [20]byte
	owner     [20]byte
	name      string
	symbol    string
	operators [][20]byte
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Allocations returns the validated balances ordered by account then token.
func (s *GenesisSpec) Allocations() []Allocation {
	out := make([]Allocation, len(s.allocations))
	for i, alloc := range s.allocations {
		out[i] = Allocation{Account: alloc.Account, Token: alloc.Token, Amount: new(big.Int).Set(alloc.Amount)}
	}
	return out
}

// Validate parses every address and amount. Tokens named by allocations must be
// the native token or one of Tokens; when both are empty any symbol is accepted
// and the node's own currency list decides.
func (s *GenesisSpec) Validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	known := make(map[string]struct{})
	if native := normalizeSymbol(s.NativeToken); native != "" {
		known[native] = struct{}{}
	}
	for i, token := range s.Tokens {
		symbol := normalizeSymbol(token)
		if symbol == "" {
			return fmt.Errorf("tokens[%d]: symbol must not be empty", i)
		}
		if _, exists := known[symbol]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, token)
		}
		known[symbol] = struct{}{}
	}

	s.allocations = s.allocations[:0]
	for addrStr, balances := range s.Alloc {
		addr, err := crypto.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		for token, amountStr := range balances {
			symbol := normalizeSymbol(token)
			if symbol == "" {
				return fmt.Errorf("alloc %q: empty token symbol", addrStr)
			}
			if len(known) > 0 {
				if _, ok := known[symbol]; !ok {
					return fmt.Errorf("alloc %q: unknown token %q", addrStr, token)
				}
			}
			amount, err := parseAmountString(amountStr)
			if err != nil {
				return fmt.Errorf("alloc %q %s: %w", addrStr, symbol, err)
			}
			if amount.Sign() == 0 {
				continue
			}
			s.allocations = append(s.allocations, Allocation{Account: addr, Token: symbol, Amount: amount})
		}
	}
	sortAllocations(s.allocations)

	s.collections = s.collections[:0]
	seen := make(map[[20]byte]struct{}, len(s.Collections))
	for i := range s.Collections {
		entry, err := s.Collections[i].parse()
		if err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
		if _, dup := seen[entry.address]; dup {
			return fmt.Errorf("collections[%d]: duplicate address %s", i, s.Collections[i].Address)
		}
		seen[entry.address] = struct{}{}
		s.collections = append(s.collections, entry)
	}
	return nil
}

func (c *CollectionSpec) parse() (collectionEntry, error) {
	var entry collectionEntry
	addr, err := crypto.ParseAddress(c.Address)
	if err != nil {
		return entry, fmt.Errorf("address: %w", err)
	}
	owner, err := crypto.ParseAddress(c.Owner)
	if err != nil {
		return entry, fmt.Errorf("owner: %w", err)
	}
	if strings.TrimSpace(c.Name) == "" {
		return entry, errors.New("name must be provided")
	}
	entry = collectionEntry{address: addr, owner: owner, name: strings.TrimSpace(c.Name), symbol: c.Symbol}
	for j, op := range c.Operators {
		operator, err := crypto.ParseAddress(op)
		if err != nil {
			return entry, fmt.Errorf("operators[%d]: %w", j, err)
		}
		entry.operators = append(entry.operators, operator)
	}
	return entry, nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, errors.New("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, errors.New("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
