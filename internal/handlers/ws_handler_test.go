package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collabnotes/internal/auth"
	"collabnotes/internal/models"
	"collabnotes/internal/repositories"
	"collabnotes/internal/session"
	"collabnotes/internal/testhelpers"
	"collabnotes/internal/utils"

	"github.com/gorilla/websocket"
)

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wsFixture struct {
	server  *httptest.Server
	manager *session.Manager
	note    *models.Note
	owner   *models.User
	reader  *models.User
	other   *models.User
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	notes := &repositories.NoteRepository{DB: db}
	authz := auth.NewNoteAuthorizer(notes, &repositories.CollaboratorRepository{DB: db})
	manager := session.NewManager(authz)
	h := NewCollabHandler(auth.NewTokenVerifier(testSecret, nil, nil), manager, 16, []string{"*"}, nil)

	f := &wsFixture{
		server:  httptest.NewServer(http.HandlerFunc(h.ServeWS)),
		manager: manager,
		owner:   testhelpers.SeedUser(t, db, "owner"),
		reader:  testhelpers.SeedUser(t, db, "reader"),
		other:   testhelpers.SeedUser(t, db, "other"),
	}
	f.note = testhelpers.SeedNote(t, db, f.owner.ID, "shared", false)
	testhelpers.Grant(t, db, f.note.ID, f.reader.ID, models.AccessRead)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) url(token string) string {
	u := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (f *wsFixture) dial(t *testing.T, user *models.User) *websocket.Conn {
	t.Helper()
	token, err := utils.IssueToken(testSecret, user.IDString(), user.Username, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(f.url(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": frameType, "data": data}); err != nil {
		t.Fatalf("write %s: %v", frameType, err)
	}
}

// expect reads frames until one of the wanted type arrives.
func expect(t *testing.T, conn *websocket.Conn, frameType string) wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f wireFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", frameType, err)
		}
		if f.Type == frameType {
			return f
		}
	}
}

func expectError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	f := expect(t, conn, models.FrameError)
	var ev models.ErrorEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if ev.Code != code {
		t.Fatalf("expected error code %q, got %+v", code, ev)
	}
}

func join(t *testing.T, conn *websocket.Conn, noteID string) models.JoinedEvent {
	t.Helper()
	send(t, conn, models.FrameJoin, models.RoomRequest{NoteID: noteID})
	var ev models.JoinedEvent
	if err := json.Unmarshal(expect(t, conn, models.FrameJoined).Data, &ev); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	return ev
}

func TestCollabHandler_RejectsUnauthenticated(t *testing.T) {
	f := newWSFixture(t)

	for name, token := range map[string]string{"missing": "", "garbage": "not-a-jwt"} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(f.url(token), nil)
			if err == nil {
				t.Fatal("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %+v", resp)
			}
		})
	}
	if conns, _ := f.manager.Stats(); conns != 0 {
		t.Fatalf("expected no registered connections, got %d", conns)
	}
}

func TestCollabHandler_JoinAndFanOut(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, f.owner)
	bob := f.dial(t, f.reader)

	ev := join(t, alice, f.note.ID)
	if len(ev.Members) != 1 || ev.Members[0] != f.owner.Identity() {
		t.Fatalf("unexpected roster %+v", ev.Members)
	}

	ev = join(t, bob, f.note.ID)
	if len(ev.Members) != 2 || ev.Members[1] != f.reader.Identity() {
		t.Fatalf("unexpected roster %+v", ev.Members)
	}

	var joined models.UserJoinedEvent
	if err := json.Unmarshal(expect(t, alice, models.FrameUserJoined).Data, &joined); err != nil {
		t.Fatalf("decode user-joined: %v", err)
	}
	if joined.User != f.reader.Identity() || len(joined.Members) != 2 {
		t.Fatalf("unexpected user-joined %+v", joined)
	}

	send(t, bob, models.FrameUpdateCursor, map[string]any{"noteId": f.note.ID, "position": 7})
	var cursor models.CursorUpdatedEvent
	if err := json.Unmarshal(expect(t, alice, models.FrameCursorUpdated).Data, &cursor); err != nil {
		t.Fatalf("decode cursor-updated: %v", err)
	}
	if cursor.User != f.reader.Identity() || cursor.Position != float64(7) {
		t.Fatalf("unexpected cursor event %+v", cursor)
	}

	// readers may not push content
	send(t, bob, models.FrameUpdateContent, map[string]any{"noteId": f.note.ID, "payload": "x"})
	expectError(t, bob, "access_denied")

	send(t, alice, models.FrameUpdateContent, map[string]any{"noteId": f.note.ID, "payload": map[string]any{"ops": []int{1}}})
	var updated models.NoteUpdatedEvent
	if err := json.Unmarshal(expect(t, bob, models.FrameNoteUpdated).Data, &updated); err != nil {
		t.Fatalf("decode note-updated: %v", err)
	}
	if updated.ModifiedBy != f.owner.Identity() || updated.NoteID != f.note.ID {
		t.Fatalf("unexpected note-updated %+v", updated)
	}

	_ = bob.Close()
	var left models.UserLeftEvent
	if err := json.Unmarshal(expect(t, alice, models.FrameUserLeft).Data, &left); err != nil {
		t.Fatalf("decode user-left: %v", err)
	}
	if left.UserID != f.reader.IDString() || len(left.Members) != 1 {
		t.Fatalf("unexpected user-left %+v", left)
	}
}

func TestCollabHandler_ErrorFrames(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, f.other)

	send(t, conn, models.FrameJoin, models.RoomRequest{NoteID: f.note.ID})
	expectError(t, conn, "access_denied")
	if got := f.manager.Presence(f.note.ID); len(got) != 0 {
		t.Fatalf("denied join changed the room: %+v", got)
	}

	send(t, conn, "shout", map[string]any{})
	expectError(t, conn, "unknown_type")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectError(t, conn, "invalid_payload")

	// truncated and empty messages are rejected without closing the socket
	for _, raw := range []string{`{"type":`, ""} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write %q: %v", raw, err)
		}
		expectError(t, conn, "invalid_payload")
	}
	if conns, _ := f.manager.Stats(); conns != 1 {
		t.Fatalf("expected the connection to stay registered, got %d", conns)
	}

	send(t, conn, models.FrameJoin, nil)
	expectError(t, conn, "invalid_payload")

	send(t, conn, models.FrameUpdateCursor, map[string]any{"noteId": f.note.ID, "position": 1})
	expectError(t, conn, "not_in_room")

	// leaving a room the connection is not in is silent, and the
	// connection survives every rejection
	send(t, conn, models.FrameLeave, models.RoomRequest{NoteID: f.note.ID})
	send(t, conn, "shout", nil)
	expectError(t, conn, "unknown_type")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://notes.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://notes.example.com", true},
		{"HTTPS://NOTES.EXAMPLE.COM", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := check(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/ws", nil)) {
		t.Error("wildcard should allow any origin")
	}
}
