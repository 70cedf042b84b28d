package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabnotes/internal/auth"
	"collabnotes/internal/models"
	"collabnotes/internal/session"
	"collabnotes/internal/utils"
)

// IdentityVerifier resolves the credential presented at connect time.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, credential string) (models.Identity, error)
}

// CollabHandler serves the collaboration WebSocket.
type CollabHandler struct {
	Verifier  IdentityVerifier
	Manager   *session.Manager
	QueueSize int
	Logger    *zap.Logger

	upgrader websocket.Upgrader
}

func NewCollabHandler(verifier IdentityVerifier, manager *session.Manager, queueSize int, allowedOrigins []string, logger *zap.Logger) *CollabHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollabHandler{
		Verifier:  verifier,
		Manager:   manager,
		QueueSize: queueSize,
		Logger:    logger,
		upgrader:  websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// inbound frames keep their payload raw until the type is known
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// credential reads the token from ?token= (browsers cannot set headers on a
// WebSocket handshake) or from the Authorization header.
func credential(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	t, _ := utils.ExtractBearer(r)
	return t
}

func (h *CollabHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.Verifier.VerifyIdentity(r.Context(), credential(r))
	if err != nil {
		h.Logger.Info("websocket authentication failed", zap.Error(err))
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized", auth.ErrAuthenticationFailure.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	client := session.NewClient(connID, conn, h.QueueSize, h.Logger)
	if err := h.Manager.Connect(connID, identity, client); err != nil {
		_ = conn.WriteJSON(errFrame(err))
		_ = conn.Close()
		return
	}

	pumpDone := make(chan struct{})
	go func() {
		client.WritePump()
		close(pumpDone)
	}()
	defer func() {
		_ = h.Manager.Disconnect(connID)
		client.Close()
		<-pumpDone
	}()

	client.PrepareRead()
	h.readLoop(r.Context(), client)
}

// readLoop ends only on transport errors. A message that does not decode is
// answered with an error frame and the connection stays open.
func (h *CollabHandler) readLoop(ctx context.Context, client *session.Client) {
	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Debug("websocket closed", zap.String("conn_id", client.ID), zap.Error(err))
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.reply(client, session.ErrInvalidPayload)
			continue
		}
		if err := h.dispatch(ctx, client.ID, frame); err != nil {
			h.reply(client, err)
		}
	}
}

func (h *CollabHandler) dispatch(ctx context.Context, connID string, frame inboundFrame) error {
	switch frame.Type {
	case models.FrameJoin:
		var req models.RoomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		_, err := h.Manager.Join(ctx, connID, req.NoteID)
		return err

	case models.FrameLeave:
		var req models.RoomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		return h.Manager.Leave(connID, req.NoteID)

	case models.FrameUpdateContent:
		var u models.ContentUpdate
		if err := decodeData(frame.Data, &u); err != nil {
			return err
		}
		return h.Manager.BroadcastContent(ctx, connID, u.NoteID, u.Payload)

	case models.FrameUpdateCursor:
		var u models.CursorUpdate
		if err := decodeData(frame.Data, &u); err != nil {
			return err
		}
		return h.Manager.BroadcastCursor(connID, u.NoteID, u.Position, u.Selection)

	default:
		return errUnknownFrame
	}
}

var errUnknownFrame = errors.New("unknown frame type")

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return session.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return session.ErrInvalidPayload
	}
	return nil
}

// reply sends a rejection to the originating connection only.
func (h *CollabHandler) reply(client *session.Client, err error) {
	if sendErr := client.Send(errFrame(err)); sendErr != nil {
		h.Logger.Debug("drop error frame", zap.String("conn_id", client.ID), zap.Error(sendErr))
	}
}

func errFrame(err error) models.WSFrame {
	code := session.ErrorCode(err)
	if errors.Is(err, errUnknownFrame) {
		code = "unknown_type"
	}
	return models.WSFrame{Type: models.FrameError, Data: models.ErrorEvent{Code: code, Message: err.Error()}}
}
