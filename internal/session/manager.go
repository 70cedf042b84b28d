package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collabnotes/internal/metrics"
	"collabnotes/internal/models"

	"go.uber.org/zap"
)

// Authorizer decides whether a user may act on a note at the given level.
type Authorizer interface {
	Authorize(ctx context.Context, noteID, userID string, level models.AccessLevel) (bool, error)
}

// RosterObserver is told about every committed membership change. It is
// called with the Manager lock held and must not block.
type RosterObserver interface {
	RosterChanged(noteID string, members []models.Identity)
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithObserver(o RosterObserver) Option {
	return func(m *Manager) { m.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the connection registry and the room table. Membership
// transitions (join, leave, disconnect) hold mu exclusively for their whole
// check-mutate-snapshot-notify sequence. Content and cursor broadcasts only
// read the state and hold mu shared. The authorizer is always called with mu
// released and the relevant state is checked again afterwards.
type Manager struct {
	mu          sync.RWMutex
	registry    *Registry
	rooms       *RoomTable
	broadcaster *Broadcaster

	authz    Authorizer
	observer RosterObserver
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(authz Authorizer, opts ...Option) *Manager {
	m := &Manager{
		registry: NewRegistry(),
		rooms:    NewRoomTable(),
		authz:    authz,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.broadcaster = NewBroadcaster(m.registry, m.rooms, m.logger)
	return m
}

// Connect registers an authenticated connection in the Unjoined state.
func (m *Manager) Connect(connID string, identity models.Identity, sender Sender) error {
	if connID == "" || identity.UserID == "" {
		return ErrInvalidPayload
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Register(connID, identity, sender); err != nil {
		m.logger.Error("register connection", zap.String("conn_id", connID), zap.Error(err))
		return err
	}
	metrics.ActiveConnections.Set(float64(m.registry.Len()))
	m.logger.Debug("connection registered",
		zap.String("conn_id", connID),
		zap.String("user_id", identity.UserID))
	return nil
}

// Join moves the connection into noteID's room, leaving its previous room
// first. It returns the roster after the join.
func (m *Manager) Join(ctx context.Context, connID, noteID string) ([]models.Identity, error) {
	if noteID == "" {
		return nil, m.reject(connID, "join", ErrInvalidPayload)
	}

	m.mu.RLock()
	c, ok := m.registry.get(connID)
	var identity models.Identity
	if ok {
		identity = c.identity
	}
	m.mu.RUnlock()
	if !ok {
		return nil, m.reject(connID, "join", ErrUnknownConnection)
	}

	if err := m.authorize(ctx, noteID, identity.UserID, models.AccessRead); err != nil {
		return nil, m.reject(connID, "join", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// the connection may have gone away while the oracle was consulted
	c, ok = m.registry.get(connID)
	if !ok {
		return nil, m.reject(connID, "join", ErrUnknownConnection)
	}

	if c.room == noteID {
		if holder, ok := m.rooms.MemberConn(noteID, identity.UserID); ok && holder == connID {
			roster := m.rooms.Roster(noteID)
			m.broadcaster.SendTo(connID, models.WSFrame{
				Type: models.FrameJoined,
				Data: models.JoinedEvent{NoteID: noteID, Members: roster},
			})
			return roster, nil
		}
	}

	kind := "join"
	if c.room != "" && c.room != noteID {
		m.leaveLocked(c)
		kind = "switch"
	}

	if displaced := m.rooms.Upsert(noteID, identity, connID); displaced != "" {
		// same user reconnected into the same room: the old connection loses
		// its membership but stays registered
		_ = m.registry.SetRoom(displaced, "")
		m.logger.Debug("membership taken over by new connection",
			zap.String("note_id", noteID),
			zap.String("user_id", identity.UserID),
			zap.String("old_conn_id", displaced),
			zap.String("conn_id", connID))
	}
	c.room = noteID

	roster := m.rooms.Roster(noteID)
	m.broadcaster.Publish(noteID, models.WSFrame{
		Type: models.FrameUserJoined,
		Data: models.UserJoinedEvent{NoteID: noteID, User: identity, Members: roster},
	}, connID)
	m.broadcaster.SendTo(connID, models.WSFrame{
		Type: models.FrameJoined,
		Data: models.JoinedEvent{NoteID: noteID, Members: roster},
	})

	m.committed(kind, noteID, roster)
	m.logger.Debug("joined room",
		zap.String("conn_id", connID),
		zap.String("user_id", identity.UserID),
		zap.String("note_id", noteID),
		zap.Int("members", len(roster)))
	return roster, nil
}

// Leave takes the connection out of noteID. Leaving a room the connection is
// not in is a silent no-op.
func (m *Manager) Leave(connID, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.registry.get(connID)
	if !ok {
		return m.reject(connID, "leave", ErrUnknownConnection)
	}
	if c.room == "" || c.room != noteID {
		return nil
	}
	m.leaveLocked(c)
	return nil
}

// Disconnect leaves the connection's current room, if any, and unregisters
// it. A second call for the same connection returns ErrAlreadyUnregistered
// and has no other effect.
func (m *Manager) Disconnect(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.registry.get(connID)
	if !ok {
		return ErrAlreadyUnregistered
	}
	if c.room != "" {
		m.leaveLocked(c)
	}
	if _, err := m.registry.Unregister(connID); err != nil {
		return err
	}
	metrics.ActiveConnections.Set(float64(m.registry.Len()))
	metrics.Transitions.WithLabelValues("disconnect").Inc()
	m.logger.Debug("connection unregistered",
		zap.String("conn_id", connID),
		zap.String("user_id", c.identity.UserID))
	return nil
}

// leaveLocked removes c from its current room and notifies the remaining
// members. mu must be held exclusively.
func (m *Manager) leaveLocked(c *connection) {
	noteID := c.room
	removed, gone := m.rooms.Remove(noteID, c.identity.UserID, c.id)
	c.room = ""
	if !removed {
		return
	}

	roster := m.rooms.Roster(noteID)
	if !gone {
		m.broadcaster.Publish(noteID, models.WSFrame{
			Type: models.FrameUserLeft,
			Data: models.UserLeftEvent{NoteID: noteID, UserID: c.identity.UserID, Members: roster},
		}, "")
	}
	m.committed("leave", noteID, roster)
	m.logger.Debug("left room",
		zap.String("conn_id", c.id),
		zap.String("user_id", c.identity.UserID),
		zap.String("note_id", noteID),
		zap.Bool("room_closed", gone))
}

// BroadcastContent relays a content delta to the rest of the room. The
// sender must be in the room and hold write access.
func (m *Manager) BroadcastContent(ctx context.Context, connID, noteID string, payload interface{}) error {
	identity, err := m.memberIdentity(connID, noteID)
	if err != nil {
		return m.reject(connID, "update-content", err)
	}
	if err := m.authorize(ctx, noteID, identity.UserID, models.AccessWrite); err != nil {
		return m.reject(connID, "update-content", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if room, ok := m.registry.Room(connID); !ok || room != noteID {
		return m.reject(connID, "update-content", ErrNotInRoom)
	}
	m.broadcaster.Publish(noteID, models.WSFrame{
		Type: models.FrameNoteUpdated,
		Data: models.NoteUpdatedEvent{
			NoteID:     noteID,
			Payload:    payload,
			ModifiedBy: identity,
			Timestamp:  m.now().UTC(),
		},
	}, connID)
	return nil
}

// BroadcastCursor relays a cursor move to the rest of the room. Membership
// is the only requirement.
func (m *Manager) BroadcastCursor(connID, noteID string, position, selection interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, err := m.memberIdentityLocked(connID, noteID)
	if err != nil {
		return m.reject(connID, "update-cursor", err)
	}
	m.broadcaster.Publish(noteID, models.WSFrame{
		Type: models.FrameCursorUpdated,
		Data: models.CursorUpdatedEvent{
			NoteID:    noteID,
			User:      identity,
			Position:  position,
			Selection: selection,
			Timestamp: m.now().UTC(),
		},
	}, connID)
	return nil
}

func (m *Manager) memberIdentity(connID, noteID string) (models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memberIdentityLocked(connID, noteID)
}

func (m *Manager) memberIdentityLocked(connID, noteID string) (models.Identity, error) {
	c, ok := m.registry.get(connID)
	if !ok {
		return models.Identity{}, ErrUnknownConnection
	}
	if noteID == "" || c.room != noteID {
		return models.Identity{}, ErrNotInRoom
	}
	return c.identity, nil
}

// authorize consults the oracle. Oracle errors count as a denial.
func (m *Manager) authorize(ctx context.Context, noteID, userID string, level models.AccessLevel) error {
	if m.authz == nil {
		return nil
	}
	ok, err := m.authz.Authorize(ctx, noteID, userID, level)
	if err != nil {
		m.logger.Error("authorization lookup failed",
			zap.String("note_id", noteID),
			zap.String("user_id", userID),
			zap.String("level", string(level)),
			zap.Error(err))
		return fmt.Errorf("%w: authorization unavailable", ErrAccessDenied)
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

func (m *Manager) reject(connID, op string, err error) error {
	metrics.Rejections.WithLabelValues(ErrorCode(err)).Inc()
	m.logger.Info("operation rejected",
		zap.String("conn_id", connID),
		zap.String("op", op),
		zap.Error(err))
	return err
}

// committed runs the bookkeeping shared by every membership change.
func (m *Manager) committed(kind, noteID string, roster []models.Identity) {
	metrics.Transitions.WithLabelValues(kind).Inc()
	metrics.ActiveRooms.Set(float64(m.rooms.Len()))
	if m.observer != nil {
		m.observer.RosterChanged(noteID, roster)
	}
}

// Presence returns the live roster of noteID in join order.
func (m *Manager) Presence(noteID string) []models.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms.Roster(noteID)
}

// CurrentRoom returns the connection's room ("" when Unjoined) and whether
// the connection is registered.
func (m *Manager) CurrentRoom(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Room(connID)
}

// Rosters snapshots every live room.
func (m *Manager) Rosters() map[string][]models.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]models.Identity, m.rooms.Len())
	for _, id := range m.rooms.NoteIDs() {
		out[id] = m.rooms.Roster(id)
	}
	return out
}

// Stats reports the number of registered connections and live rooms.
func (m *Manager) Stats() (connections, rooms int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Len(), m.rooms.Len()
}
