package collection

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vsachain/core/events"
	"vsachain/core/types"
)

const (
	EventTypeCollectionRegistered = "collection.registered"
	EventTypeOperatorUpdated      = "collection.operator_updated"
	EventTypeUnitMinted           = "collection.unit_minted"
)

var (
	errNilState = errors.New("collection: state not configured")

	ErrCollectionExists   = errors.New("collection: already registered")
	ErrCollectionNotFound = errors.New("collection: not registered")
	ErrUnitNotFound       = errors.New("collection: unit not found")
	ErrInvalidOwner       = errors.New("collection: owner must be set")
	ErrInvalidAddress     = errors.New("collection: address must be set")
	ErrInvalidRecipient   = errors.New("collection: recipient must be set")
	ErrNotOwner           = errors.New("collection: caller is not the owner")
)

type engineState interface {
	CollectionGet(addr [20]byte) (*Collection, bool, error)
	CollectionPut(*Collection) error
	UnitGet(collection [20]byte, id uint64) (*Unit, bool, error)
	UnitPut(*Unit) error
}

type collectionEvent struct {
	evt *types.Event
}

func (e collectionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e collectionEvent) Event() *types.Event { return e.evt }

// Engine manages collection registration, operator delegation and unit
// minting. It is the minting collaborator and the authorization oracle of the
// auction module.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a collection engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Nil resets to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(collectionEvent{evt: evt})
}

func (e *Engine) load(addr [20]byte) (*Collection, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok, err := e.state.CollectionGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || c == nil {
		return nil, ErrCollectionNotFound
	}
	return c, nil
}

// Register records a new collection owned by owner.
func (e *Engine) Register(addr, owner [20]byte, name, symbol string) (*Collection, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if addr == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	if owner == ([20]byte{}) {
		return nil, ErrInvalidOwner
	}
	_, exists, err := e.state.CollectionGet(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrCollectionExists
	}
	c := &Collection{
		Address:    addr,
		Owner:      owner,
		Name:       strings.TrimSpace(name),
		Symbol:     NormalizeSymbol(symbol),
		NextUnitID: 1,
		CreatedAt:  e.now(),
	}
	if err := e.state.CollectionPut(c); err != nil {
		return nil, err
	}
	attrs := collectionAttrs(c)
	e.emit(&types.Event{Type: EventTypeCollectionRegistered, Attributes: attrs})
	return c.Clone(), nil
}

// SetOperator grants or revokes operator rights. Only the owner may call it.
func (e *Engine) SetOperator(caller, addr, operator [20]byte, enabled bool) (*Collection, error) {
	c, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	if caller != c.Owner {
		return nil, ErrNotOwner
	}
	if !c.setOperator(operator, enabled) {
		return c.Clone(), nil
	}
	if err := e.state.CollectionPut(c); err != nil {
		return nil, err
	}
	attrs := collectionAttrs(c)
	attrs["operator"] = hex.EncodeToString(operator[:])
	attrs["enabled"] = strconv.FormatBool(enabled)
	e.emit(&types.Event{Type: EventTypeOperatorUpdated, Attributes: attrs})
	return c.Clone(), nil
}

// IsOwnerOrOperator reports whether caller may manage sales of the collection.
// Unknown collections authorize nobody.
func (e *Engine) IsOwnerOrOperator(addr, caller [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	c, ok, err := e.state.CollectionGet(addr)
	if err != nil {
		return false, err
	}
	if !ok || c == nil {
		return false, nil
	}
	return c.Owner == caller || c.IsOperator(caller), nil
}

// MintOneUnitTo mints the next unit of the collection to recipient.
func (e *Engine) MintOneUnitTo(addr, recipient [20]byte) (uint64, error) {
	if recipient == ([20]byte{}) {
		return 0, ErrInvalidRecipient
	}
	c, err := e.load(addr)
	if err != nil {
		return 0, err
	}
	id := c.NextUnitID
	if id == 0 {
		id = 1
	}
	unit := &Unit{Collection: addr, ID: id, Owner: recipient, MintedAt: e.now()}
	if err := e.state.UnitPut(unit); err != nil {
		return 0, fmt.Errorf("collection: store unit %d: %w", id, err)
	}
	c.NextUnitID = id + 1
	c.Minted++
	if err := e.state.CollectionPut(c); err != nil {
		return 0, err
	}
	attrs := collectionAttrs(c)
	attrs["unitId"] = strconv.FormatUint(id, 10)
	attrs["owner"] = hex.EncodeToString(recipient[:])
	e.emit(&types.Event{Type: EventTypeUnitMinted, Attributes: attrs})
	return id, nil
}

// Collection returns the registered collection.
func (e *Engine) Collection(addr [20]byte) (*Collection, error) {
	c, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// OwnerOf returns the owner of a minted unit.
func (e *Engine) OwnerOf(addr [20]byte, id uint64) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	unit, ok, err := e.state.UnitGet(addr, id)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok || unit == nil {
		return [20]byte{}, ErrUnitNotFound
	}
	return unit.Owner, nil
}

func collectionAttrs(c *Collection) map[string]string {
	return map[string]string{
		"collection": hex.EncodeToString(c.Address[:]),
		"owner":      hex.EncodeToString(c.Owner[:]),
		"name":       c.Name,
		"symbol":     c.Symbol,
		"minted":     strconv.FormatUint(c.Minted, 10),
	}
}
