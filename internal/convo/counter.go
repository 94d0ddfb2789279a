package convo

import (
	"sort"

	"github.com/pbraga/nexchat/internal/bus"
)

// UnreadChange is the payload of "unread.changed" bus events.
type UnreadChange struct {
	CounterpartID string
	Count         int
}

// Counter maintains the per-counterpart unread badge counts stored on the
// index and announces changes on the bus. It publishes one event per distinct
// counterpart per call, never one per message, so a backfill of N messages
// from one sender causes a single render update.
type Counter struct {
	ix  *Index
	bus *bus.Bus
}

// NewCounter creates a counter over the given index. The bus may be nil in
// tests.
func NewCounter(ix *Index, b *bus.Bus) *Counter {
	return &Counter{ix: ix, bus: b}
}

// Increment raises the unread count for a counterpart by one. Called once per
// inbound message event; own-message echoes must not reach it.
func (c *Counter) Increment(counterpartID string) {
	conv := c.ix.getOrCreate(counterpartID)
	conv.Unread++
	c.announce(counterpartID, conv.Unread)
}

// AddBatch applies pre-grouped unread counts from a backfill, one bus event
// per sender. Zero and negative deltas are skipped.
func (c *Counter) AddBatch(bySender map[string]int) {
	senders := make([]string, 0, len(bySender))
	for id, n := range bySender {
		if n > 0 {
			senders = append(senders, id)
		}
	}
	sort.Strings(senders)
	for _, id := range senders {
		conv := c.ix.getOrCreate(id)
		conv.Unread += bySender[id]
		c.announce(id, conv.Unread)
	}
}

// Clear zeroes the unread count when a conversation becomes the open one.
// No event is published when the count was already zero.
func (c *Counter) Clear(counterpartID string) {
	conv := c.ix.Get(counterpartID)
	if conv == nil || conv.Unread == 0 {
		return
	}
	conv.Unread = 0
	c.announce(counterpartID, 0)
}

// Count returns the current unread count for a counterpart.
func (c *Counter) Count(counterpartID string) int {
	conv := c.ix.Get(counterpartID)
	if conv == nil {
		return 0
	}
	return conv.Unread
}

func (c *Counter) announce(counterpartID string, count int) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Now("unread.changed", UnreadChange{
		CounterpartID: counterpartID,
		Count:         count,
	}))
}
