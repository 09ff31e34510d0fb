package collection

import (
	"bytes"
	"sort"
	"strings"
)

// Collection is a registry of units sold through auctions. The owner and any
// listed operator may start auctions on it.
type Collection struct {
	Address    [20]byte
	Owner      [20]byte
	Name       string
	Symbol     string
	Operators  [][20]byte
	NextUnitID uint64
	Minted     uint64
	CreatedAt  int64
}

// Clone returns a deep copy of the collection.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Operators = append([][20]byte(nil), c.Operators...)
	return &clone
}

// IsOperator reports whether addr is a delegated operator.
func (c *Collection) IsOperator(addr [20]byte) bool {
	if c == nil {
		return false
	}
	for _, op := range c.Operators {
		if op == addr {
			return true
		}
	}
	return false
}

func (c *Collection) setOperator(addr [20]byte, enabled bool) bool {
	present := c.IsOperator(addr)
	switch {
	case enabled && !present:
		c.Operators = append(c.Operators, addr)
	case !enabled && present:
		out := c.Operators[:0]
		for _, op := range c.Operators {
			if op != addr {
				out = append(out, op)
			}
		}
		c.Operators = out
	default:
		return false
	}
	sortOperators(c.Operators)
	return true
}

func sortOperators(ops [][20]byte) {
	sort.Slice(ops, func(i, j int) bool { return bytes.Compare(ops[i][:], ops[j][:]) < 0 })
}

// Unit is a single minted unit and its owner.
type Unit struct {
	Collection [20]byte
	ID         uint64
	Owner      [20]byte
	MintedAt   int64
}

// NormalizeSymbol trims and upper-cases a collection symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
