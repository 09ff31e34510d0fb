package state

import (
	"encoding/binary"
	"fmt"

	"vsachain/native/collection"
)

var (
	collectionPrefix = []byte("collection/")
	unitPrefix       = []byte("unit/")
)

type storedCollection struct {
	Address    [20]byte
	Owner      [20]byte
	Name       string
	Symbol     string
	Operators  [][20]byte
	NextUnitID uint64
	Minted     uint64
	CreatedAt  uint64
}

type storedUnit struct {
	Collection [20]byte
	ID         uint64
	Owner      [20]byte
	MintedAt   uint64
}

func collectionKey(addr [20]byte) []byte {
	return append(append([]byte{}, collectionPrefix...), addr[:]...)
}

func unitKey(addr [20]byte, id uint64) []byte {
	key := make([]byte, 0, len(unitPrefix)+20+8)
	key = append(key, unitPrefix...)
	key = append(key, addr[:]...)
	return binary.BigEndian.AppendUint64(key, id)
}

// CollectionGet loads a registered collection.
func (v *View) CollectionGet(addr [20]byte) (*collection.Collection, bool, error) {
	var stored storedCollection
	ok, err := v.KVGet(collectionKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &collection.Collection{
		Address:    stored.Address,
		Owner:      stored.Owner,
		Name:       stored.Name,
		Symbol:     stored.Symbol,
		Operators:  stored.Operators,
		NextUnitID: stored.NextUnitID,
		Minted:     stored.Minted,
		CreatedAt:  int64(stored.CreatedAt),
	}, true, nil
}

// CollectionPut persists a collection.
func (v *View) CollectionPut(c *collection.Collection) error {
	if c == nil {
		return fmt.Errorf("collection: nil record")
	}
	if c.CreatedAt < 0 {
		return fmt.Errorf("collection: negative timestamp")
	}
	return v.KVPut(collectionKey(c.Address), &storedCollection{
		Address:    c.Address,
		Owner:      c.Owner,
		Name:       c.Name,
		Symbol:     c.Symbol,
		Operators:  c.Operators,
		NextUnitID: c.NextUnitID,
		Minted:     c.Minted,
		CreatedAt:  uint64(c.CreatedAt),
	})
}

// UnitGet loads a minted unit.
func (v *View) UnitGet(addr [20]byte, id uint64) (*collection.Unit, bool, error) {
	var stored storedUnit
	ok, err := v.KVGet(unitKey(addr, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &collection.Unit{
		Collection: stored.Collection,
		ID:         stored.ID,
		Owner:      stored.Owner,
		MintedAt:   int64(stored.MintedAt),
	}, true, nil
}

// UnitPut persists a minted unit.
func (v *View) UnitPut(u *collection.Unit) error {
	if u == nil {
		return fmt.Errorf("unit: nil record")
	}
	if u.MintedAt < 0 {
		return fmt.Errorf("unit: negative timestamp")
	}
	return v.KVPut(unitKey(u.Collection, u.ID), &storedUnit{
		Collection: u.Collection,
		ID:         u.ID,
		Owner:      u.Owner,
		MintedAt:   uint64(u.MintedAt),
	})
}
