package models

import "time"

// AccessLevel is the permission required to act on a note.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
)

func (l AccessLevel) Valid() bool { return l == AccessRead || l == AccessWrite }

// Identity is the authenticated user behind a live connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

/*** Collaboration wire protocol ***/

const (
	FrameJoin          = "join"
	FrameLeave         = "leave"
	FrameUpdateContent = "update-content"
	FrameUpdateCursor  = "update-cursor"

	FrameJoined        = "joined"
	FrameUserJoined    = "user-joined"
	FrameUserLeft      = "user-left"
	FrameNoteUpdated   = "note-updated"
	FrameCursorUpdated = "cursor-updated"
	FrameError         = "error"
)

type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type RoomRequest struct {
	NoteID string `json:"noteId"`
}

type ContentUpdate struct {
	NoteID  string      `json:"noteId"`
	Payload interface{} `json:"payload"`
}

type CursorUpdate struct {
	NoteID    string      `json:"noteId"`
	Position  interface{} `json:"position"`
	Selection interface{} `json:"selection,omitempty"`
}

type JoinedEvent struct {
	NoteID  string     `json:"noteId"`
	Members []Identity `json:"members"`
}

type UserJoinedEvent struct {
	NoteID  string     `json:"noteId"`
	User    Identity   `json:"user"`
	Members []Identity `json:"members"`
}

type UserLeftEvent struct {
	NoteID  string     `json:"noteId"`
	UserID  string     `json:"userId"`
	Members []Identity `json:"members"`
}

type NoteUpdatedEvent struct {
	NoteID     string      `json:"noteId"`
	Payload    interface{} `json:"payload"`
	ModifiedBy Identity    `json:"modifiedBy"`
	Timestamp  time.Time   `json:"timestamp"`
}

type CursorUpdatedEvent struct {
	NoteID    string      `json:"noteId"`
	User      Identity    `json:"user"`
	Position  interface{} `json:"position"`
	Selection interface{} `json:"selection,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
