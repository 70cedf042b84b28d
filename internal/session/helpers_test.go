package session

import (
	"context"
	"sync"
	"testing"

	"collabnotes/internal/models"
)

// recorder captures frames per connection and, optionally, into a shared
// log so tests can assert ordering across connections.
type recorder struct {
	mu     sync.Mutex
	connID string
	frames []models.WSFrame
	log    *sharedLog
	err    error
}

type logEntry struct {
	connID string
	frame  models.WSFrame
}

type sharedLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *sharedLog) add(connID string, frame models.WSFrame) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{connID, frame})
	l.mu.Unlock()
}

func (l *sharedLog) list() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]logEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (r *recorder) Send(frame models.WSFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame)
	if r.log != nil {
		r.log.add(r.connID, frame)
	}
	return nil
}

func (r *recorder) list() []models.WSFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.WSFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	var out []string
	for _, f := range r.list() {
		out = append(out, f.Type)
	}
	return out
}

// fakeAuthz grants per (noteID, userID) pair. A write grant implies read.
type fakeAuthz struct {
	mu     sync.Mutex
	grants map[string]models.AccessLevel
	err    error
	before func(noteID, userID string)
	calls  int
}

func newFakeAuthz() *fakeAuthz { return &fakeAuthz{grants: make(map[string]models.AccessLevel)} }

func (a *fakeAuthz) grant(noteID, userID string, level models.AccessLevel) {
	a.mu.Lock()
	a.grants[noteID+"|"+userID] = level
	a.mu.Unlock()
}

func (a *fakeAuthz) revoke(noteID, userID string) {
	a.mu.Lock()
	delete(a.grants, noteID+"|"+userID)
	a.mu.Unlock()
}

func (a *fakeAuthz) Authorize(_ context.Context, noteID, userID string, level models.AccessLevel) (bool, error) {
	a.mu.Lock()
	a.calls++
	before, err := a.before, a.err
	granted, ok := a.grants[noteID+"|"+userID]
	a.mu.Unlock()

	if before != nil {
		before(noteID, userID)
	}
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return level == models.AccessRead || granted == models.AccessWrite, nil
}

func ident(userID string) models.Identity {
	return models.Identity{UserID: userID, Username: "user-" + userID}
}

func idents(userIDs ...string) []models.Identity {
	out := make([]models.Identity, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, ident(id))
	}
	return out
}

// connect registers connID for userID with a fresh recorder.
func connect(t *testing.T, m *Manager, connID, userID string, log *sharedLog) *recorder {
	t.Helper()
	rec := &recorder{connID: connID, log: log}
	if err := m.Connect(connID, ident(userID), rec); err != nil {
		t.Fatalf("connect %s: %v", connID, err)
	}
	return rec
}

// checkInvariants asserts that every connection's current room contains its
// user mapped to that connection, and that no room is empty.
func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, c := range m.registry.conns {
		if c.room == "" {
			continue
		}
		holder, ok := m.rooms.MemberConn(c.room, c.identity.UserID)
		if !ok || holder != id {
			t.Fatalf("connection %s claims room %s but membership holder is %q (present=%v)", id, c.room, holder, ok)
		}
	}
	for noteID, r := range m.rooms.rooms {
		if len(r.members) == 0 {
			t.Fatalf("room %s exists with no members", noteID)
		}
		for userID, mem := range r.members {
			c, ok := m.registry.conns[mem.connID]
			if !ok {
				t.Fatalf("room %s holds unregistered connection %s", noteID, mem.connID)
			}
			if c.room != noteID || c.identity.UserID != userID {
				t.Fatalf("room %s member %s points at connection %s in room %q", noteID, userID, mem.connID, c.room)
			}
		}
	}
}
