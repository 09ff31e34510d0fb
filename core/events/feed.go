package events

import (
	"strings"
	"sync"
	"sync/atomic"

	"vsachain/core/types"
)

// Feed delivers committed events to live subscribers such as websocket
// streams. Slow subscribers lose events instead of blocking the node.
type Feed struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	dropped atomic.Uint64
}

type subscription struct {
	ch     chan *types.Event
	filter map[string]struct{}
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a subscriber receiving events whose type is listed in
// eventTypes (all events when empty). The returned cancel function closes the
// channel and must be called once.
func (f *Feed) Subscribe(buffer int, eventTypes ...string) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{ch: make(chan *types.Event, buffer)}
	for _, typ := range eventTypes {
		trimmed := strings.TrimSpace(typ)
		if trimmed == "" {
			continue
		}
		if sub.filter == nil {
			sub.filter = make(map[string]struct{})
		}
		sub.filter[trimmed] = struct{}{}
	}
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Emit implements Emitter.
func (f *Feed) Emit(evt Event) {
	typed := ToTyped(evt)
	if typed == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.filter != nil {
			if _, ok := sub.filter[typed.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- typed.Clone():
		default:
			f.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
