package auth

import (
	"context"
	"errors"
	"strconv"

	"collabnotes/internal/models"
	"collabnotes/internal/repositories"
)

// NoteAuthorizer answers whether a user holds a permission on a note.
type NoteAuthorizer struct {
	Notes         *repositories.NoteRepository
	Collaborators *repositories.CollaboratorRepository
}

func NewNoteAuthorizer(notes *repositories.NoteRepository, collaborators *repositories.CollaboratorRepository) *NoteAuthorizer {
	return &NoteAuthorizer{Notes: notes, Collaborators: collaborators}
}

// Authorize reports whether userID may act on noteID at level. A missing note
// or unknown user is a plain denial, not an error.
func (a *NoteAuthorizer) Authorize(ctx context.Context, noteID, userID string, level models.AccessLevel) (bool, error) {
	if !level.Valid() {
		return false, errors.New("invalid access level: " + string(level))
	}
	uid, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return false, nil
	}

	note, err := a.Notes.Get(ctx, noteID)
	if errors.Is(err, repositories.ErrNoteNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if note.OwnerID == uint(uid) {
		return true, nil
	}
	if level == models.AccessRead && note.IsPublic {
		return true, nil
	}

	grant, err := a.Collaborators.Get(ctx, noteID, uint(uid))
	if errors.Is(err, repositories.ErrCollaboratorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Permits(grant.Permission, level), nil
}

// Permits reports whether a granted permission covers the required level.
func Permits(granted, required models.AccessLevel) bool {
	switch required {
	case models.AccessRead:
		return granted == models.AccessRead || granted == models.AccessWrite
	case models.AccessWrite:
		return granted == models.AccessWrite
	}
	return false
}
