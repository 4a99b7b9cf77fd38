package events

import (
	"log"
	"sync"
	"sync/atomic"

	"websentry/internal/types"
)

// Type names the lifecycle moments the engine announces
type Type string

const (
	AlertCreated Type = "new_alert"
	AlertUpdated Type = "alert_updated"
	IPBlocked    Type = "ip_blocked"
)

// Event is one announcement. Alert is set for alert events, Block for
// block events.
type Event struct {
	Type  Type
	Alert *types.Alert
	Block *types.BlockEntry
}

// Bus fans events out to subscribers over buffered channels. Publish
// never blocks the detection path: a subscriber that falls behind loses
// events, counted in Dropped.
type Bus struct {
	mu      sync.RWMutex
	subs    []chan Event
	closed  bool
	dropped atomic.Int64
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel of events. The buffer absorbs bursts;
// pick it to cover the slowest consumer's typical lag.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish delivers to every subscriber without blocking. Full
// subscribers drop the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			log.Printf("[EVENTS] Dropped %s event for slow subscriber", evt.Type)
		}
	}
}

// Dropped returns how many events were lost to slow subscribers
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Publish after Close is a no-op.
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
