package session

import "errors"

// Errors reported to the originating connection. None of them tear the
// connection down or leave shared state partially applied.
var (
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrAlreadyUnregistered = errors.New("connection already unregistered")
	ErrAccessDenied        = errors.New("access denied")
	ErrNotInRoom           = errors.New("not in room")
	ErrInvalidPayload      = errors.New("invalid payload")

	ErrSendQueueFull = errors.New("send queue full")
	ErrClientClosed  = errors.New("client closed")
)

// ErrorCode is the stable code reported to clients and used as the metrics
// label for a rejected operation.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrDuplicateConnection), errors.Is(err, ErrAlreadyUnregistered):
		return "registry_conflict"
	default:
		return "internal_error"
	}
}
