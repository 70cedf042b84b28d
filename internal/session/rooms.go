package session

import (
	"sort"

	"collabnotes/internal/models"
)

type member struct {
	identity models.Identity
	connID   string
	seq      uint64
}

type room struct {
	noteID  string
	members map[string]*member // by userId
}

// RoomTable is the authoritative presence state: noteId -> members keyed by
// userId. Rooms exist only while they have members. Not safe for concurrent
// use; Manager serializes access.
type RoomTable struct {
	rooms map[string]*room
	seq   uint64
}

func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[string]*room)}
}

// Upsert adds the user to the room, creating the room if needed. If the user
// is already present under another connection, that entry is overwritten and
// the previous connection id is returned.
func (t *RoomTable) Upsert(noteID string, identity models.Identity, connID string) (displaced string) {
	r, ok := t.rooms[noteID]
	if !ok {
		r = &room{noteID: noteID, members: make(map[string]*member)}
		t.rooms[noteID] = r
	}
	if m, ok := r.members[identity.UserID]; ok {
		if m.connID != connID {
			displaced = m.connID
		}
		// keep the original seq so a reconnect keeps its roster position
		m.identity = identity
		m.connID = connID
		return displaced
	}
	t.seq++
	r.members[identity.UserID] = &member{identity: identity, connID: connID, seq: t.seq}
	return ""
}

// Remove deletes userID's entry if it still belongs to connID. It reports
// whether an entry was removed and whether the room no longer exists.
func (t *RoomTable) Remove(noteID, userID, connID string) (removed, roomGone bool) {
	r, ok := t.rooms[noteID]
	if !ok {
		return false, true
	}
	m, ok := r.members[userID]
	if !ok || m.connID != connID {
		return false, false
	}
	delete(r.members, userID)
	if len(r.members) == 0 {
		delete(t.rooms, noteID)
		return true, true
	}
	return true, false
}

// MemberConn returns the connection id currently holding userID's entry.
func (t *RoomTable) MemberConn(noteID, userID string) (string, bool) {
	r, ok := t.rooms[noteID]
	if !ok {
		return "", false
	}
	m, ok := r.members[userID]
	if !ok {
		return "", false
	}
	return m.connID, true
}

func (t *RoomTable) sortedMembers(noteID string) []*member {
	r, ok := t.rooms[noteID]
	if !ok {
		return nil
	}
	out := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Roster lists the room's members in join order. Unknown rooms yield an
// empty, non-nil slice.
func (t *RoomTable) Roster(noteID string) []models.Identity {
	members := t.sortedMembers(noteID)
	out := make([]models.Identity, 0, len(members))
	for _, m := range members {
		out = append(out, m.identity)
	}
	return out
}

// connIDs lists the connections present in the room, in join order.
func (t *RoomTable) connIDs(noteID string) []string {
	members := t.sortedMembers(noteID)
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.connID)
	}
	return out
}

func (t *RoomTable) Exists(noteID string) bool {
	_, ok := t.rooms[noteID]
	return ok
}

func (t *RoomTable) Len() int { return len(t.rooms) }

// NoteIDs lists every live room.
func (t *RoomTable) NoteIDs() []string {
	out := make([]string, 0, len(t.rooms))
	for id := range t.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
