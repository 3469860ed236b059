// Package bus fans domain events out to downstream consumers (order
// history, websocket feeds, indexes). Publishing never blocks the matching
// core: a subscriber that cannot keep up loses messages, not the matcher.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Bus is a multi-subscriber fan-out of published messages. Payloads are the
// domain Event values plus the core's notification types (exchange
// transaction created, snapshot loaded).
type Bus struct {
	mu     sync.Mutex
	subs   []chan any
	closed bool
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer with the given buffer size and returns its
// channel. The channel is closed by Close.
func (b *Bus) Subscribe(buffer int) <-chan any {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan any, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers msg to every subscriber without blocking. A full
// subscriber buffer drops the message for that subscriber only.
func (b *Bus) Publish(msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			log.Warn().Type("message", msg).Msg("slow event subscriber, dropping message")
		}
	}
}

// Close closes every subscriber channel. Further publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
