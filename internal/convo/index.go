package convo

import (
	"sort"

	"github.com/pbraga/nexchat/internal/model"
)

// Conversation holds the ordered message history exchanged with a single
// counterpart, plus the unread badge count for that counterpart.
type Conversation struct {
	CounterpartID string
	Messages      []*model.Message // sorted by SentAt ascending
	Unread        int
}

// Index is the session-wide conversation state: one Conversation per
// counterpart and a global message-id lookup across all of them. Message ids
// are globally unique, so a status update can be routed without scanning.
//
// Index is not safe for concurrent use. All mutation and reads are serialized
// by the engine's event loop; snapshots are taken for anything that escapes it.
type Index struct {
	convs map[string]*Conversation
	byID  map[string]string // message id -> counterpart id
}

// NewIndex creates an empty conversation index.
func NewIndex() *Index {
	return &Index{
		convs: make(map[string]*Conversation),
		byID:  make(map[string]string),
	}
}

func (ix *Index) getOrCreate(counterpartID string) *Conversation {
	c, ok := ix.convs[counterpartID]
	if !ok {
		c = &Conversation{CounterpartID: counterpartID}
		ix.convs[counterpartID] = c
	}
	return c
}

// Upsert inserts or replaces a message by id within the counterpart's
// sequence, keeping the sequence sorted by SentAt. A replace keeps the
// record's position unless its timestamp moved.
func (ix *Index) Upsert(counterpartID string, m *model.Message) {
	c := ix.getOrCreate(counterpartID)

	if prev, ok := ix.byID[m.ID]; ok && prev != counterpartID {
		// Ids are globally unique; a counterpart change means the old entry
		// was misfiled. Drop it before inserting.
		ix.remove(prev, m.ID)
	} else if ok {
		for i, existing := range c.Messages {
			if existing.ID != m.ID {
				continue
			}
			if existing.SentAt == m.SentAt {
				c.Messages[i] = m
				return
			}
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			break
		}
	}

	i := sort.Search(len(c.Messages), func(i int) bool {
		return c.Messages[i].SentAt > m.SentAt
	})
	c.Messages = append(c.Messages, nil)
	copy(c.Messages[i+1:], c.Messages[i:])
	c.Messages[i] = m
	ix.byID[m.ID] = counterpartID
}

// ReplaceHistory atomically swaps the counterpart's sequence for a fetched
// batch. Local records newer than the tail of the batch are retained and
// re-appended, so a push that raced the fetch is not lost. Where a local
// record and a fetched record share an id, the higher status and any
// locally-observed read flag survive the swap.
func (ix *Index) ReplaceHistory(counterpartID string, records []*model.Message) {
	c := ix.getOrCreate(counterpartID)

	sorted := make([]*model.Message, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SentAt < sorted[j].SentAt })

	fetched := make(map[string]bool, len(sorted))
	var lastTs int64
	for _, m := range sorted {
		fetched[m.ID] = true
		if m.SentAt > lastTs {
			lastTs = m.SentAt
		}
	}

	// Carry forward local knowledge the fetch cannot lower.
	local := make(map[string]*model.Message, len(c.Messages))
	for _, m := range c.Messages {
		local[m.ID] = m
	}
	for _, m := range sorted {
		if old, ok := local[m.ID]; ok {
			m.Promote(old.Status, old.ReadAt)
			if m.ReadAt == 0 {
				m.ReadAt = old.ReadAt
			}
			if old.LocallyRead {
				m.LocallyRead = true
			}
		}
	}

	// Retain local records that postdate the batch and are not in it.
	var retained []*model.Message
	for _, m := range c.Messages {
		if !fetched[m.ID] && m.SentAt > lastTs {
			retained = append(retained, m)
		}
	}
	sort.SliceStable(retained, func(i, j int) bool { return retained[i].SentAt < retained[j].SentAt })

	// Drop stale ids from the global lookup before rebuilding.
	for _, m := range c.Messages {
		if !fetched[m.ID] {
			delete(ix.byID, m.ID)
		}
	}

	c.Messages = append(sorted, retained...)
	for _, m := range c.Messages {
		ix.byID[m.ID] = counterpartID
	}
}

// ApplyStatus raises the status of the message with the given id, wherever it
// lives. It returns the record and whether anything changed. A stale or
// duplicate transition is a silent no-op; an unknown id returns nil (the
// record may simply not have arrived yet).
func (ix *Index) ApplyStatus(id string, status model.Status, readAt int64) (*model.Message, bool) {
	_, m, ok := ix.Lookup(id)
	if !ok {
		return nil, false
	}
	return m, m.Promote(status, readAt)
}

// Rekey replaces a placeholder message id with the server-assigned one,
// preserving the record's content, timestamp, and position. If the server id
// is already present in the index the placeholder is dropped in its favor; the
// surviving record's status is never lowered. Returns the surviving record.
func (ix *Index) Rekey(placeholderID, serverID string) (*model.Message, bool) {
	counterpartID, placeholder, ok := ix.Lookup(placeholderID)
	if !ok {
		return nil, false
	}

	if _, existing, exists := ix.Lookup(serverID); exists {
		// History or an echo landed first under the real id. Keep it and
		// discard the placeholder; pull the higher status across.
		existing.Promote(placeholder.Status, placeholder.ReadAt)
		ix.remove(counterpartID, placeholderID)
		return existing, true
	}

	placeholder.ID = serverID
	delete(ix.byID, placeholderID)
	ix.byID[serverID] = counterpartID
	return placeholder, true
}

func (ix *Index) remove(counterpartID, id string) {
	c, ok := ix.convs[counterpartID]
	if !ok {
		return
	}
	for i, m := range c.Messages {
		if m.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			break
		}
	}
	delete(ix.byID, id)
}

// Lookup finds a message by id across all conversations.
func (ix *Index) Lookup(id string) (counterpartID string, m *model.Message, ok bool) {
	counterpartID, ok = ix.byID[id]
	if !ok {
		return "", nil, false
	}
	c := ix.convs[counterpartID]
	for _, m := range c.Messages {
		if m.ID == id {
			return counterpartID, m, true
		}
	}
	return "", nil, false
}

// Get returns the conversation for a counterpart, or nil if none exists yet.
func (ix *Index) Get(counterpartID string) *Conversation {
	return ix.convs[counterpartID]
}

// Counterparts returns the ids of all known counterparts.
func (ix *Index) Counterparts() []string {
	out := make([]string, 0, len(ix.convs))
	for id := range ix.convs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy of a conversation for use outside the event
// loop. The second return is false if the counterpart is unknown.
func (ix *Index) Snapshot(counterpartID string) (Conversation, bool) {
	c, ok := ix.convs[counterpartID]
	if !ok {
		return Conversation{}, false
	}
	out := Conversation{CounterpartID: c.CounterpartID, Unread: c.Unread}
	out.Messages = make([]*model.Message, len(c.Messages))
	for i, m := range c.Messages {
		clone := *m
		out.Messages[i] = &clone
	}
	return out, true
}
