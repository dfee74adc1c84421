package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

var ErrBrokerClosed = errors.New("broker closed")

// LocalBroker fans events out inside one process. Used when no Redis is
// configured.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[chan HeroEvent]struct{}
	closed bool
	done   chan struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		subs: make(map[chan HeroEvent]struct{}),
		done: make(chan struct{}),
	}
}

// Publish never blocks; a subscriber with a full buffer misses the event
func (b *LocalBroker) Publish(ctx context.Context, event HeroEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			logger.Log.Warn("Subscriber lagging, hero event dropped",
				zap.String("hero_id", event.HeroID),
				zap.String("type", string(event.Type)),
			)
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan HeroEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	ch := make(chan HeroEvent, subscriberBuffer)
	b.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			b.remove(ch)
		case <-b.done:
		}
	}()

	return ch, nil
}

func (b *LocalBroker) remove(ch chan HeroEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close ends every subscription
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
