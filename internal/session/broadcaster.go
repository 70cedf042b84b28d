package session

import (
	"collabnotes/internal/metrics"
	"collabnotes/internal/models"

	"go.uber.org/zap"
)

// Broadcaster fans frames out to the members of a room. Delivery is best
// effort: a connection that cannot take the frame is logged and counted and
// the rest still receive it. Callers hold the Manager lock (read or write).
type Broadcaster struct {
	registry *Registry
	rooms    *RoomTable
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, rooms *RoomTable, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{registry: registry, rooms: rooms, logger: logger}
}

// Publish sends frame to every member of noteID except exclude ("" for none)
// and returns how many connections accepted it.
func (b *Broadcaster) Publish(noteID string, frame models.WSFrame, exclude string) (delivered int) {
	for _, connID := range b.rooms.connIDs(noteID) {
		if connID == exclude {
			continue
		}
		if b.SendTo(connID, frame) {
			delivered++
		}
	}
	return delivered
}

// SendTo delivers frame to a single connection.
func (b *Broadcaster) SendTo(connID string, frame models.WSFrame) bool {
	c, ok := b.registry.get(connID)
	if !ok || c.sender == nil {
		b.fail(connID, frame, ErrUnknownConnection)
		return false
	}
	if err := c.sender.Send(frame); err != nil {
		b.fail(connID, frame, err)
		return false
	}
	metrics.BroadcastFrames.WithLabelValues(frame.Type).Inc()
	return true
}

func (b *Broadcaster) fail(connID string, frame models.WSFrame, err error) {
	metrics.DeliveryFailures.WithLabelValues(frame.Type).Inc()
	b.logger.Warn("frame delivery failed",
		zap.String("conn_id", connID),
		zap.String("frame_type", frame.Type),
		zap.Error(err))
}
