package engine

import (
	"github.com/pbraga/nexchat/internal/bus"
	"github.com/pbraga/nexchat/internal/convo"
)

// session is the state scoped to one authenticated login. It is built when a
// user logs in and discarded wholesale on logout; nothing in it survives the
// session.
type session struct {
	localUser string
	fullName  string
	idx       *convo.Index
	counter   *convo.Counter

	// open is the counterpart whose conversation the user is viewing, or ""
	// when none is.
	open string

	// pending tracks optimistic sends awaiting their server id, keyed by
	// placeholder id, for echo matching and failure reporting.
	pending map[string]SendOutbound
}

func newSession(localUser, fullName string, b *bus.Bus) *session {
	idx := convo.NewIndex()
	return &session{
		localUser: localUser,
		fullName:  fullName,
		idx:       idx,
		counter:   convo.NewCounter(idx, b),
		pending:   make(map[string]SendOutbound),
	}
}

// matchPending finds an outstanding optimistic send whose counterpart and
// content match the given echo and whose timestamp is within the match
// window. Returns the placeholder id.
func (s *session) matchPending(counterpartID, content string, timestamp int64) (string, bool) {
	for placeholderID, out := range s.pending {
		if out.RecipientID != counterpartID || out.Content != content {
			continue
		}
		delta := timestamp - out.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta <= echoMatchWindowMs {
			return placeholderID, true
		}
	}
	return "", false
}
