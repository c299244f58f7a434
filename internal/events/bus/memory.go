package bus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/logger"
)

// MemoryEventBus delivers events inside the process. Each handler call runs
// on its own goroutine; Wait blocks until the calls dispatched so far return.
type MemoryEventBus struct {
	mu       sync.RWMutex
	subs     []*memorySubscription
	closed   bool
	inflight sync.WaitGroup
	logger   *logger.Logger
}

type memorySubscription struct {
	bus     *MemoryEventBus
	pattern string
	handler EventHandler
	active  atomic.Bool
}

func (s *memorySubscription) Unsubscribe() error {
	s.active.Store(false)
	s.bus.mu.Lock()
	s.bus.subs = slices.DeleteFunc(s.bus.subs, func(o *memorySubscription) bool { return o == s })
	s.bus.mu.Unlock()
	return nil
}

func (s *memorySubscription) IsValid() bool {
	return s.active.Load()
}

// NewMemoryEventBus creates an in-process bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{logger: log.WithComponent("memory-bus")}
}

// Publish hands event to every subscription whose pattern covers subject.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	delivered := 0
	for _, sub := range b.subs {
		if !sub.IsValid() || !SubjectMatches(sub.pattern, subject) {
			continue
		}
		delivered++
		b.inflight.Add(1)
		go func(s *memorySubscription) {
			defer b.inflight.Done()
			if err := s.handler(ctx, event); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("subject", subject),
					zap.String("event_type", event.Type),
					zap.Error(err))
			}
		}(sub)
	}

	b.logger.Debug("event published",
		zap.String("subject", subject),
		zap.Int64("board_id", event.BoardID),
		zap.Int("subscribers", delivered))
	return nil
}

// Subscribe registers handler for subjects matching pattern.
func (b *MemoryEventBus) Subscribe(pattern string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}
	sub := &memorySubscription{bus: b, pattern: pattern, handler: handler}
	sub.active.Store(true)
	b.subs = append(b.subs, sub)
	return sub, nil
}

// Wait blocks until every handler call dispatched so far has returned.
func (b *MemoryEventBus) Wait() {
	b.inflight.Wait()
}

// Close rejects further use and waits for running handlers.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	b.closed = true
	for _, s := range b.subs {
		s.active.Store(false)
	}
	b.subs = nil
	b.mu.Unlock()
	b.inflight.Wait()
}

// IsConnected is true until Close.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}
