package session

import "collabnotes/internal/models"

// Sender delivers one frame to one live connection without blocking.
type Sender interface {
	Send(frame models.WSFrame) error
}

type connection struct {
	id       string
	identity models.Identity
	sender   Sender
	room     string // "" while Unjoined
}

// Registry maps connection ids to their identity and current room.
// It is not safe for concurrent use; Manager serializes access.
type Registry struct {
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Register records a new connection with no current room.
func (r *Registry) Register(connID string, identity models.Identity, sender Sender) error {
	if _, ok := r.conns[connID]; ok {
		return ErrDuplicateConnection
	}
	r.conns[connID] = &connection{id: connID, identity: identity, sender: sender}
	return nil
}

func (r *Registry) get(connID string) (*connection, bool) {
	c, ok := r.conns[connID]
	return c, ok
}

// SetRoom points the connection at noteID, or at no room when noteID is "".
func (r *Registry) SetRoom(connID, noteID string) error {
	c, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	c.room = noteID
	return nil
}

// Room returns the connection's current room and whether it is registered.
func (r *Registry) Room(connID string) (string, bool) {
	c, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return c.room, true
}

// Unregister deletes the connection and returns the room it was last in.
func (r *Registry) Unregister(connID string) (string, error) {
	c, ok := r.conns[connID]
	if !ok {
		return "", ErrAlreadyUnregistered
	}
	delete(r.conns, connID)
	return c.room, nil
}

func (r *Registry) Len() int { return len(r.conns) }
