package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pbraga/nexchat/internal/bus"
	"github.com/pbraga/nexchat/internal/model"
	"go.uber.org/zap"
)

// fakeTransport records outbound collaborator calls.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []SendOutbound
	acks    []string
	fetches []string
}

func (f *fakeTransport) SendMessage(m SendOutbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
}

func (f *fakeTransport) RequestReadAck(counterpartID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, counterpartID)
}

func (f *fakeTransport) FetchHistory(counterpartID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, counterpartID)
}

func (f *fakeTransport) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acks)
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *bus.Bus) {
	t.Helper()
	b := bus.New()
	tr := &fakeTransport{}
	e := New(b, tr, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	t.Cleanup(cancel)

	e.StartSession("alice", "Alice A")
	return e, tr, b
}

// waitKind blocks until an event of the given kind arrives on ch.
func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %q event", kind)
		}
	}
}

func push(b *bus.Bus, p PushMessage) {
	b.Publish(bus.Now("srv.message", p))
}

func TestSendReturnsPlaceholderAndHandsOffToTransport(t *testing.T) {
	e, tr, _ := newTestEngine(t)

	placeholderID, err := e.Send("bob", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(placeholderID, "temp-") {
		t.Errorf("placeholder id = %q, want temp- prefix", placeholderID)
	}

	if tr.sentCount() != 1 {
		t.Fatalf("transport got %d sends, want 1", tr.sentCount())
	}
	out := tr.sent[0]
	if out.PlaceholderID != placeholderID || out.RecipientID != "bob" || out.Content != "hi" {
		t.Errorf("outbound = %+v", out)
	}

	snap, err := e.Conversation("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Status != model.StatusSent {
		t.Fatalf("conversation = %+v, want one SENT record", snap.Messages)
	}
}

func TestSendWithoutSessionFails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.EndSession()

	if _, err := e.Send("bob", "hi"); err != ErrNoSession {
		t.Errorf("Send() error = %v, want ErrNoSession", err)
	}
}

func TestStatusMonotonicity(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	push(b, PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hey", Timestamp: 1000})
	waitKind(t, ch, "message.upserted")

	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "m1", Status: model.StatusRead, RecipientID: "alice", ReadTimestamp: 5000}))
	waitKind(t, ch, "message.updated")

	// A stale DELIVERED after READ must change nothing. Follow it with a
	// fresh message and wait for that, so the stale event is known applied.
	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "m1", Status: model.StatusDelivered, RecipientID: "alice"}))
	push(b, PushMessage{ID: "m2", SenderID: "bob", RecipientID: "alice", Content: "again", Timestamp: 2000})
	waitKind(t, ch, "message.upserted")

	snap, _ := e.Conversation("bob")
	if snap.Messages[0].Status != model.StatusRead {
		t.Errorf("status = %s, want READ (never lowered)", snap.Messages[0].Status)
	}
	if snap.Messages[0].ReadAt != 5000 {
		t.Errorf("ReadAt = %d, want 5000", snap.Messages[0].ReadAt)
	}
}

func TestStatusUpdateIdempotent(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	push(b, PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hey", Timestamp: 1000})
	waitKind(t, ch, "message.upserted")

	upd := PushStatusUpdate{ID: "m1", Status: model.StatusRead, RecipientID: "alice", ReadTimestamp: 5000}
	b.Publish(bus.Now("srv.status", upd))
	waitKind(t, ch, "message.updated")
	b.Publish(bus.Now("srv.status", upd))
	push(b, PushMessage{ID: "m2", SenderID: "bob", RecipientID: "alice", Content: "again", Timestamp: 2000})
	waitKind(t, ch, "message.upserted")

	snap, _ := e.Conversation("bob")
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Status != model.StatusRead || snap.Messages[0].ReadAt != 5000 {
		t.Errorf("record = %s/%d, want READ/5000 after duplicate update", snap.Messages[0].Status, snap.Messages[0].ReadAt)
	}
}

func TestHistoryMergeKeepsRacingPush(t *testing.T) {
	e, tr, b := newTestEngine(t)
	ch, unsub := b.Subscribe("conversation.", 32)
	defer unsub()
	mch, munsub := b.Subscribe("message.", 32)
	defer munsub()

	// Open triggers the fetch; a live push lands before it resolves.
	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}
	if len(tr.fetches) != 1 || tr.fetches[0] != "bob" {
		t.Fatalf("fetches = %v, want [bob]", tr.fetches)
	}

	push(b, PushMessage{ID: "live", SenderID: "bob", RecipientID: "alice", Content: "racing", Timestamp: 5000})
	waitKind(t, mch, "message.upserted")

	h1, _ := model.NewMessage("h1", "bob", "alice", "old one", model.StatusRead, 1000, 1500)
	h2, _ := model.NewMessage("h2", "alice", "bob", "old two", model.StatusDelivered, 2000, 0)
	b.Publish(bus.Now("srv.history", HistoryFetchResult{CounterpartID: "bob", Records: []*model.Message{h1, h2}}))
	waitKind(t, ch, "conversation.replaced")

	snap, _ := e.Conversation("bob")
	if len(snap.Messages) != 3 {
		t.Fatalf("got %d messages, want 3 (history + racing push)", len(snap.Messages))
	}
	if snap.Messages[2].ID != "live" {
		t.Errorf("last message = %q, want the racing push appended", snap.Messages[2].ID)
	}
}

func TestUnreadCounterTracksClosedConversation(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	for i, id := range []string{"m1", "m2", "m3"} {
		push(b, PushMessage{ID: id, SenderID: "bob", RecipientID: "alice", Content: "hi", Timestamp: int64(1000 + i)})
		waitKind(t, ch, "message.upserted")
	}

	// Duplicate delivery of an already-known message must not count again.
	push(b, PushMessage{ID: "m2", SenderID: "bob", RecipientID: "alice", Content: "hi", Timestamp: 1001})
	waitKind(t, ch, "message.upserted")

	convs, err := e.Conversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].Unread != 3 {
		t.Fatalf("conversations = %+v, want bob with unread=3", convs)
	}

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}
	convs, _ = e.Conversations()
	if convs[0].Unread != 0 {
		t.Errorf("unread after open = %d, want 0", convs[0].Unread)
	}
}

func TestOpenConversationAcksUnreadHistoryOnce(t *testing.T) {
	e, tr, b := newTestEngine(t)
	ch, unsub := b.Subscribe("conversation.", 32)
	defer unsub()

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}

	var records []*model.Message
	for _, id := range []string{"m1", "m2", "m3"} {
		m, _ := model.NewMessage(id, "bob", "alice", "unread "+id, model.StatusDelivered, 1000, 0)
		records = append(records, m)
	}
	b.Publish(bus.Now("srv.history", HistoryFetchResult{CounterpartID: "bob", Records: records}))
	waitKind(t, ch, "conversation.replaced")

	if got := tr.ackCount(); got != 1 {
		t.Errorf("read acks = %d, want exactly 1 for the whole batch", got)
	}

	snap, _ := e.Conversation("bob")
	for _, m := range snap.Messages {
		if !m.LocallyRead {
			t.Errorf("message %s not flagged locally read", m.ID)
		}
		if m.Status != model.StatusDelivered {
			t.Errorf("message %s status = %s, authoritative status must wait for the server", m.ID, m.Status)
		}
	}
}

func TestHistoryWithoutUnreadOwesNoAck(t *testing.T) {
	e, tr, b := newTestEngine(t)
	ch, unsub := b.Subscribe("conversation.", 32)
	defer unsub()

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}
	m1, _ := model.NewMessage("m1", "bob", "alice", "seen", model.StatusRead, 1000, 1200)
	b.Publish(bus.Now("srv.history", HistoryFetchResult{CounterpartID: "bob", Records: []*model.Message{m1}}))
	waitKind(t, ch, "conversation.replaced")

	if got := tr.ackCount(); got != 0 {
		t.Errorf("read acks = %d, want 0 when nothing is unread", got)
	}
}

func TestLateHistoryForClosedConversationMergesSilently(t *testing.T) {
	e, tr, b := newTestEngine(t)
	ch, unsub := b.Subscribe("conversation.", 32)
	defer unsub()

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}
	// The user moved on before the fetch resolved.
	if _, err := e.OpenConversation("carol"); err != nil {
		t.Fatal(err)
	}

	m1, _ := model.NewMessage("m1", "bob", "alice", "late", model.StatusDelivered, 1000, 0)
	b.Publish(bus.Now("srv.history", HistoryFetchResult{CounterpartID: "bob", Records: []*model.Message{m1}}))
	waitKind(t, ch, "conversation.replaced")

	// The index stays globally consistent regardless of focus.
	snap, err := e.Conversation("bob")
	if err != nil || len(snap.Messages) != 1 {
		t.Fatalf("bob conversation = %+v, err %v; want the merged record", snap.Messages, err)
	}
	if got := tr.ackCount(); got != 0 {
		t.Errorf("read acks = %d, want 0 for a closed conversation", got)
	}
}

func TestLivePushInOpenConversationIsAckedNotCounted(t *testing.T) {
	e, tr, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}
	push(b, PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hi", Timestamp: 1000})
	waitKind(t, ch, "message.upserted")

	if got := tr.ackCount(); got != 1 {
		t.Errorf("read acks = %d, want 1", got)
	}
	convs, _ := e.Conversations()
	if convs[0].Unread != 0 {
		t.Errorf("unread = %d, want 0 while conversation is open", convs[0].Unread)
	}
	snap, _ := e.Conversation("bob")
	if !snap.Messages[0].LocallyRead {
		t.Error("live push in open conversation should be flagged locally read")
	}
	// Authoritative status must not jump ahead of the server.
	if snap.Messages[0].Status != model.StatusDelivered {
		t.Errorf("status = %s, want DELIVERED until the server confirms", snap.Messages[0].Status)
	}
}

func TestPlaceholderPromotionViaHook(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	placeholderID, err := e.Send("bob", "hi")
	if err != nil {
		t.Fatal(err)
	}
	waitKind(t, ch, "message.upserted")

	e.Promote(placeholderID, "42")

	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "42", Status: model.StatusDelivered, RecipientID: "bob"}))
	waitKind(t, ch, "message.updated")

	snap, _ := e.Conversation("bob")
	if len(snap.Messages) != 1 {
		t.Fatalf("got %d messages, want exactly one after promotion", len(snap.Messages))
	}
	m := snap.Messages[0]
	if m.ID != "42" || m.Content != "hi" || m.Status != model.StatusDelivered {
		t.Errorf("record = %+v, want id=42 DELIVERED with content intact", m)
	}
}

func TestOwnEchoPromotesPendingSend(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	if _, err := e.Send("bob", "hello there"); err != nil {
		t.Fatal(err)
	}
	waitKind(t, ch, "message.upserted")

	snap, _ := e.Conversation("bob")
	sentAt := snap.Messages[0].SentAt

	push(b, PushMessage{ID: "srv-9", SenderID: "alice", RecipientID: "bob", Content: "hello there", Timestamp: sentAt + 200})
	waitKind(t, ch, "message.upserted")

	snap, _ = e.Conversation("bob")
	if len(snap.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 (echo must not duplicate)", len(snap.Messages))
	}
	m := snap.Messages[0]
	if m.ID != "srv-9" || m.SentAt != sentAt {
		t.Errorf("record = %+v, want server id with original timestamp", m)
	}
	if m.Status != model.StatusDelivered {
		t.Errorf("status = %s, want DELIVERED after echo", m.Status)
	}
}

func TestBatchedReadRaisesAllOutboundMessages(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("conversation.", 32)
	defer unsub()
	mch, munsub := b.Subscribe("message.", 32)
	defer munsub()

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}
	p1, _ := e.Send("bob", "one")
	waitKind(t, mch, "message.upserted")
	if _, err := e.Send("bob", "two"); err != nil {
		t.Fatal(err)
	}
	waitKind(t, mch, "message.upserted")
	e.Promote(p1, "41")

	// The server reports read-state once for the whole conversation.
	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "41", Status: model.StatusRead, RecipientID: "bob", ReadTimestamp: 9000}))
	waitKind(t, ch, "conversation.read")

	snap, _ := e.Conversation("bob")
	for _, m := range snap.Messages {
		if m.Status != model.StatusRead {
			t.Errorf("message %s status = %s, want READ via batched raise", m.ID, m.Status)
		}
		if m.ReadAt != 9000 {
			t.Errorf("message %s ReadAt = %d, want 9000", m.ID, m.ReadAt)
		}
	}
}

func TestUndeliveredBackfillGroupsAndDeduplicates(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("unread.", 32)
	defer unsub()

	mk := func(id, sender string, ts int64) *model.Message {
		m, _ := model.NewMessage(id, sender, "alice", "offline "+id, model.StatusSent, ts, 0)
		return m
	}
	batch := UndeliveredFetchResult{Records: []*model.Message{
		mk("u1", "bob", 1000), mk("u2", "bob", 2000), mk("u3", "carol", 1500),
	}}

	b.Publish(bus.Now("srv.undelivered", batch))
	// One unread.changed per distinct sender.
	first := waitKind(t, ch, "unread.changed")
	second := waitKind(t, ch, "unread.changed")
	_ = first
	_ = second

	convs, _ := e.Conversations()
	counts := map[string]int{}
	for _, c := range convs {
		counts[c.CounterpartID] = c.Unread
	}
	if counts["bob"] != 2 || counts["carol"] != 1 {
		t.Fatalf("unread = %v, want bob=2 carol=1", counts)
	}

	// A presence-triggered re-fetch returns the same records; counts must
	// not inflate.
	b.Publish(bus.Now("srv.undelivered", batch))
	select {
	case evt := <-ch:
		t.Fatalf("unexpected %q event on duplicate backfill", evt.Kind)
	case <-time.After(100 * time.Millisecond):
	}
	convs, _ = e.Conversations()
	for _, c := range convs {
		if c.CounterpartID == "bob" && c.Unread != 2 {
			t.Errorf("bob unread = %d after duplicate backfill, want 2", c.Unread)
		}
	}
}

func TestStatusUpdateForUnknownIdIsIgnored(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "ghost", Status: model.StatusRead, RecipientID: "alice"}))
	push(b, PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hi", Timestamp: 1000})
	waitKind(t, ch, "message.upserted")

	snap, _ := e.Conversation("bob")
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m1" {
		t.Errorf("conversation = %+v, unknown-id update must not create records", snap.Messages)
	}
}

func TestMalformedPushIsDropped(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	b.Publish(bus.Now("srv.message", PushMessage{ID: "m1", Content: "no participants"}))
	push(b, PushMessage{ID: "m2", SenderID: "bob", RecipientID: "alice", Content: "ok", Timestamp: 1000})
	waitKind(t, ch, "message.upserted")

	snap, _ := e.Conversation("bob")
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m2" {
		t.Errorf("conversation = %+v, malformed push must not mutate state", snap.Messages)
	}
}

func TestSendFailureKeepsSentStatus(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	placeholderID, err := e.Send("bob", "hi")
	if err != nil {
		t.Fatal(err)
	}
	waitKind(t, ch, "message.upserted")

	b.Publish(bus.Now("srv.send_failed", SendFailure{PlaceholderID: placeholderID, Reason: "connection reset"}))
	evt := waitKind(t, ch, "message.send_failed")
	failure := evt.Payload.(SendFailure)
	if failure.CounterpartID != "bob" || failure.Reason != "connection reset" {
		t.Errorf("failure = %+v", failure)
	}

	snap, _ := e.Conversation("bob")
	if snap.Messages[0].Status != model.StatusSent {
		t.Errorf("status = %s, want SENT preserved after transport failure", snap.Messages[0].Status)
	}
}

func TestEndSessionDiscardsState(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	push(b, PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hi", Timestamp: 1000})
	waitKind(t, ch, "message.upserted")

	e.EndSession()
	if _, err := e.Conversation("bob"); err != ErrNoSession {
		t.Errorf("Conversation() after logout error = %v, want ErrNoSession", err)
	}

	// A fresh login starts from nothing.
	e.StartSession("alice", "Alice A")
	if _, err := e.Conversation("bob"); err != ErrUnknownConversation {
		t.Errorf("Conversation() after relogin error = %v, want ErrUnknownConversation", err)
	}
}

func TestDuplicatePushKeepsReadStatus(t *testing.T) {
	e, _, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	frame := PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hey", Timestamp: 1000}
	push(b, frame)
	waitKind(t, ch, "message.upserted")

	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "m1", Status: model.StatusRead, RecipientID: "alice", ReadTimestamp: 200}))
	waitKind(t, ch, "message.updated")

	// The server redelivers the identical frame. Follow it with a fresh
	// message and wait for that, so the duplicate is known applied.
	push(b, frame)
	push(b, PushMessage{ID: "m2", SenderID: "bob", RecipientID: "alice", Content: "again", Timestamp: 2000})
	waitKind(t, ch, "message.upserted")

	snap, _ := e.Conversation("bob")
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	m1 := snap.Messages[0]
	if m1.Status != model.StatusRead || m1.ReadAt != 200 {
		t.Errorf("record = %s/%d after redelivery, want READ/200", m1.Status, m1.ReadAt)
	}
	// m1 was counted once, m2 once; the redelivery adds nothing.
	if snap.Unread != 2 {
		t.Errorf("unread = %d, want 2", snap.Unread)
	}
}

func TestDuplicatePushInOpenConversationOwesNoExtraAck(t *testing.T) {
	e, tr, b := newTestEngine(t)
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	if _, err := e.OpenConversation("bob"); err != nil {
		t.Fatal(err)
	}

	frame := PushMessage{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hey", Timestamp: 1000}
	push(b, frame)
	waitKind(t, ch, "message.upserted")
	if tr.ackCount() != 1 {
		t.Fatalf("acks = %d after first push, want 1", tr.ackCount())
	}

	b.Publish(bus.Now("srv.status", PushStatusUpdate{ID: "m1", Status: model.StatusRead, RecipientID: "alice", ReadTimestamp: 200}))
	waitKind(t, ch, "message.updated")

	push(b, frame)
	push(b, PushMessage{ID: "m2", SenderID: "bob", RecipientID: "alice", Content: "again", Timestamp: 2000})
	waitKind(t, ch, "message.upserted")

	// One ack per newly visible message; the redelivered m1 owes none.
	if tr.ackCount() != 2 {
		t.Errorf("acks = %d, want 2", tr.ackCount())
	}
	snap, _ := e.Conversation("bob")
	m1 := snap.Messages[0]
	if m1.Status != model.StatusRead || m1.ReadAt != 200 || !m1.LocallyRead {
		t.Errorf("record = %s/%d locallyRead=%v after redelivery, want READ/200/true", m1.Status, m1.ReadAt, m1.LocallyRead)
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}

	// 40 three-byte runes; 100 bytes lands mid-rune.
	s := strings.Repeat("世", 40)
	got := truncate(s, 100)
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if len(got) != 99 {
		t.Errorf("truncated length = %d, want 99", len(got))
	}
}

func TestCommandsAfterStopDoNotBlock(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Stop()

	done := make(chan struct{})
	go func() {
		_, _ = e.Send("bob", "hi")
		_ = e.LocalUser()
		e.CloseConversation()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine call blocked after Stop")
	}
}
