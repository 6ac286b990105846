// Package feed is the in-process change feed: a write anywhere in the comment
// or reaction tables publishes a thread-scoped event, and every subscriber of
// that thread is told "something changed, refetch". Events carry no payload
// beyond the table name; consumers never rely on their content, only their
// occurrence.
package feed

import "sync"

// Table identifies which store a change event came from.
type Table string

const (
	TableComments  Table = "comments"
	TableReactions Table = "reactions"
)

// Event signals that rows of one table changed for one thread.
type Event struct {
	ThreadID string
	Table    Table
}

// Subscription delivers change events for a single thread. The channel is
// buffered and sends are non-blocking: a slow consumer loses intermediate
// events, which is fine because refetch is idempotent and coalesced anyway.
type Subscription struct {
	C chan Event

	bus      *Bus
	threadID string
	once     sync.Once
}

// Close tears the subscription down. Safe to call more than once; after
// Close the channel is drained and closed and no further events arrive.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
	})
}

// Bus fans change events out to thread-scoped subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]bool
}

// NewBus creates an empty change feed.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*Subscription]bool)}
}

// Subscribe registers for change events on one thread.
func (b *Bus) Subscribe(threadID string) *Subscription {
	sub := &Subscription{
		C:        make(chan Event, 8),
		bus:      b,
		threadID: threadID,
	}
	b.mu.Lock()
	if b.subs[threadID] == nil {
		b.subs[threadID] = make(map[*Subscription]bool)
	}
	b.subs[threadID][sub] = true
	b.mu.Unlock()
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if subs, ok := b.subs[sub.threadID]; ok {
		if subs[sub] {
			delete(subs, sub)
			close(sub.C)
		}
		if len(subs) == 0 {
			delete(b.subs, sub.threadID)
		}
	}
	b.mu.Unlock()
}

// Publish notifies every subscriber of the thread. Non-blocking: if a
// subscriber's buffer is full the event is dropped for that subscriber.
func (b *Bus) Publish(threadID string, table Table) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[threadID] {
		select {
		case sub.C <- Event{ThreadID: threadID, Table: table}:
		default:
		}
	}
}

// SubscriberCount returns how many subscriptions a thread currently has.
func (b *Bus) SubscriberCount(threadID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[threadID])
}
