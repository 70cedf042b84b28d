package presence

import (
	"context"
	"strings"
	"time"

	"collabnotes/internal/metrics"
	"collabnotes/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "collab:presence:"

func Key(noteID string) string { return keyPrefix + noteID }

// RosterSource is the authoritative presence state, normally the session
// manager.
type RosterSource interface {
	Presence(noteID string) []models.Identity
	Rosters() map[string][]models.Identity
}

type resyncResult struct {
	rooms int
	err   error
}

// Mirror copies live rosters into Redis hashes (userId -> username) so other
// processes can read who is viewing a note. The session manager stays the
// source of truth. Run is the only goroutine that writes Redis, and every
// write reads the roster as it is at that moment, so an older state can never
// overwrite a newer one.
type Mirror struct {
	rdb    *redis.Client
	ttl    time.Duration
	dirty  chan string
	resync chan chan resyncResult
	logger *zap.Logger
}

func NewMirror(rdb *redis.Client, ttl time.Duration, queueSize int, logger *zap.Logger) *Mirror {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		rdb:    rdb,
		ttl:    ttl,
		dirty:  make(chan string, queueSize),
		resync: make(chan chan resyncResult),
		logger: logger,
	}
}

// RosterChanged marks noteID for rewriting. It never blocks; when the queue is
// full the change is dropped and the next resync repairs the key.
func (m *Mirror) RosterChanged(noteID string, _ []models.Identity) {
	select {
	case m.dirty <- noteID:
	default:
		metrics.PresenceWrites.WithLabelValues("dropped").Inc()
		m.logger.Warn("presence queue full, dropping change", zap.String("note_id", noteID))
	}
}

// Run applies queued changes and resync requests until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context, source RosterSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case noteID := <-m.dirty:
			m.write(ctx, noteID, source.Presence(noteID))
		case reply := <-m.resync:
			n, err := m.resyncFrom(ctx, source.Rosters())
			reply <- resyncResult{rooms: n, err: err}
		}
	}
}

// Resync asks Run to rewrite every live roster and delete mirrored rooms that
// no longer exist. It returns how many rooms were written.
func (m *Mirror) Resync(ctx context.Context) (int, error) {
	reply := make(chan resyncResult, 1)
	select {
	case m.resync <- reply:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.rooms, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (m *Mirror) write(ctx context.Context, noteID string, members []models.Identity) {
	if err := m.Write(ctx, noteID, members); err != nil {
		metrics.PresenceWrites.WithLabelValues("error").Inc()
		m.logger.Warn("presence write failed", zap.String("note_id", noteID), zap.Error(err))
		return
	}
	metrics.PresenceWrites.WithLabelValues("ok").Inc()
}

// Write replaces the stored roster for noteID. An empty roster deletes it.
func (m *Mirror) Write(ctx context.Context, noteID string, members []models.Identity) error {
	key := Key(noteID)
	if len(members) == 0 {
		return m.rdb.Del(ctx, key).Err()
	}
	fields := make(map[string]interface{}, len(members))
	for _, id := range members {
		fields[id.UserID] = id.Username
	}
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	return err
}

// Read returns the mirrored roster for noteID in no particular order.
func (m *Mirror) Read(ctx context.Context, noteID string) ([]models.Identity, error) {
	fields, err := m.rdb.HGetAll(ctx, Key(noteID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Identity, 0, len(fields))
	for userID, username := range fields {
		out = append(out, models.Identity{UserID: userID, Username: username})
	}
	return out, nil
}

// resyncFrom must only run on the Run goroutine: the stale sweep relies on no
// other write landing between the snapshot and the scan.
func (m *Mirror) resyncFrom(ctx context.Context, rosters map[string][]models.Identity) (int, error) {
	for noteID, members := range rosters {
		if err := m.Write(ctx, noteID, members); err != nil {
			return 0, err
		}
	}

	var stale []string
	iter := m.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		noteID := strings.TrimPrefix(iter.Val(), keyPrefix)
		if _, live := rosters[noteID]; !live {
			stale = append(stale, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(stale) > 0 {
		if err := m.rdb.Del(ctx, stale...).Err(); err != nil {
			return 0, err
		}
		m.logger.Debug("removed stale presence keys", zap.Int("count", len(stale)))
	}
	return len(rosters), nil
}
