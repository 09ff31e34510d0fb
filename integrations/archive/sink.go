package archive

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vsachain/core/events"
	"vsachain/core/types"
	"vsachain/observability/metrics"
)

const (
	defaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

// DefaultPrefixes selects auction and collection events. Plain transfers are
// reconstructible from them and carry no unique identifier.
var DefaultPrefixes = []string{"auction.", "collection."}

// Sink archives committed events off the node's hot path. It implements
// events.Emitter so it can be attached with Node.AddSink.
type Sink struct {
	store    *Store
	prefixes []string
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan *types.Event
	wg     sync.WaitGroup
}

// NewSink starts a background writer. Events whose type does not start with
// one of prefixes are ignored.
func NewSink(store *Store, logger *slog.Logger, queueSize int, prefixes ...string) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	sink := &Sink{
		store:    store,
		prefixes: append([]string(nil), prefixes...),
		logger:   logger,
		queue:    make(chan *types.Event, queueSize),
	}
	sink.wg.Add(1)
	go sink.run()
	return sink
}

func (s *Sink) accepts(eventType string) bool {
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

// Emit implements events.Emitter. A full queue drops the event and logs it.
func (s *Sink) Emit(evt events.Event) {
	typed := events.ToTyped(evt)
	if typed == nil || !s.accepts(typed.Type) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- typed.Clone():
		metrics.Integrations().SetArchivePending(len(s.queue))
	default:
		s.logger.Warn("archive queue full; event dropped", slog.String("type", typed.Type))
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for evt := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		inserted, err := s.store.Record(ctx, evt)
		cancel()
		if err != nil {
			s.logger.Error("archive event", slog.String("type", evt.Type), slog.Any("error", err))
			continue
		}
		metrics.Integrations().ObserveArchived(inserted)
		metrics.Integrations().SetArchivePending(len(s.queue))
	}
}

// Close stops accepting events and waits until the queue is drained.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}
