package textcmd

import (
	"cmp"
	"net"
	"slices"
)

// connID identifies a connection inside one Server. IDs are never reused.
type connID uint64

type eventKind int

const (
	eventAccept eventKind = iota // conn is a freshly accepted connection
	eventData                    // data was read from id
	eventClosed                  // reading id failed with err
)

type event struct {
	kind eventKind
	id   connID
	conn net.Conn
	data []byte
	err  error
}

type entry struct {
	id            connID
	conn          net.Conn
	session       *Session
	authenticated bool   // counted in the authenticated gauges
	release       func() // returns the slot to the connection limiter
}

// sessionTable maps live connections to their sessions. It is owned by the
// event loop and never shared.
type sessionTable struct {
	entries map[connID]*entry
	next    connID
}

func newSessionTable() *sessionTable {
	return &sessionTable{entries: make(map[connID]*entry)}
}

func (t *sessionTable) add(conn net.Conn, session *Session) *entry {
	t.next++
	e := &entry{id: t.next, conn: conn, session: session}
	t.entries[e.id] = e
	return e
}

func (t *sessionTable) get(id connID) (*entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// remove reports whether id was present.
func (t *sessionTable) remove(id connID) bool {
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

func (t *sessionTable) len() int {
	return len(t.entries)
}

// all returns a snapshot ordered by id, safe to iterate while removing.
func (t *sessionTable) all() []*entry {
	out := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entry) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}
