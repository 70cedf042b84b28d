package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"collabnotes/internal/models"
	"collabnotes/internal/repositories"
	"collabnotes/internal/session"
	"collabnotes/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PresenceSource answers who is currently in a note's room.
type PresenceSource interface {
	Presence(noteID string) []models.Identity
}

// NoteHandler serves note CRUD, history, sharing and presence.
type NoteHandler struct {
	Notes         *repositories.NoteRepository
	Versions      *repositories.VersionRepository
	Collaborators *repositories.CollaboratorRepository
	Users         *repositories.UserRepository
	Authz         session.Authorizer
	Presence      PresenceSource
	Logger        *zap.Logger
}

type createNoteRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPublic bool   `json:"isPublic"`
}

type updateNoteRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	IsPublic *bool   `json:"isPublic"`
}

type collaboratorRequest struct {
	UserID     uint               `json:"userId"`
	Permission models.AccessLevel `json:"permission"`
}

const maxTitleLength = 200

func (h *NoteHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// require checks the caller's access to the {id} note and writes the error
// response itself when access is missing.
func (h *NoteHandler) require(w http.ResponseWriter, r *http.Request, level models.AccessLevel) (string, models.Identity, uint, bool) {
	id, uid, ok := caller(w, r)
	if !ok {
		return "", id, 0, false
	}
	noteID := chi.URLParam(r, "id")
	allowed, err := h.Authz.Authorize(r.Context(), noteID, id.UserID, level)
	if err != nil {
		h.log().Error("authorize note", zap.String("note_id", noteID), zap.Error(err))
		internalError(w, "Failed to check access")
		return "", id, 0, false
	}
	if !allowed {
		if level == models.AccessRead {
			notFound(w)
		} else {
			h.deny(w, r, noteID, id.UserID, "Insufficient permission on note")
		}
		return "", id, 0, false
	}
	return noteID, id, uid, true
}

// deny refuses an operation on noteID. Callers who cannot read the note get
// the same 404 as for a missing note, so existence is not revealed.
func (h *NoteHandler) deny(w http.ResponseWriter, r *http.Request, noteID, userID, message string) {
	canRead, err := h.Authz.Authorize(r.Context(), noteID, userID, models.AccessRead)
	if err != nil {
		h.log().Error("authorize note", zap.String("note_id", noteID), zap.Error(err))
		internalError(w, "Failed to check access")
		return
	}
	if !canRead {
		notFound(w)
		return
	}
	utils.JSONError(w, http.StatusForbidden, "forbidden", message)
}

func notFound(w http.ResponseWriter) {
	utils.JSONError(w, http.StatusNotFound, "not_found", "Note not found")
}

// requireOwner loads the {id} note and checks the caller owns it.
func (h *NoteHandler) requireOwner(w http.ResponseWriter, r *http.Request) (*models.Note, uint, bool) {
	id, uid, ok := caller(w, r)
	if !ok {
		return nil, 0, false
	}
	note, err := h.Notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeNoteError(w, err)
		return nil, 0, false
	}
	if note.OwnerID != uid {
		h.deny(w, r, note.ID, id.UserID, "Only the owner can do this")
		return nil, 0, false
	}
	return note, uid, true
}

func (h *NoteHandler) CreateNoteHandler(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req createNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > maxTitleLength {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "title is required and must be at most 200 characters")
		return
	}

	note := &models.Note{Title: req.Title, Content: req.Content, OwnerID: uid, IsPublic: req.IsPublic}
	if err := h.Notes.Create(r.Context(), note); err != nil {
		h.log().Error("create note", zap.Error(err))
		internalError(w, "Failed to create note")
		return
	}
	utils.JSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) ListNotesHandler(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := caller(w, r)
	if !ok {
		return
	}
	page, limit, ok := utils.Pagination(r)
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "page and limit must be positive integers")
		return
	}
	notes, total, err := h.Notes.ListAccessible(r.Context(), uid, page, limit)
	if err != nil {
		h.log().Error("list notes", zap.Error(err))
		internalError(w, "Failed to list notes")
		return
	}
	utils.JSON(w, http.StatusOK, models.NewPageResponse(notes, total, page, limit))
}

func (h *NoteHandler) GetNoteHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, _, ok := h.require(w, r, models.AccessRead)
	if !ok {
		return
	}
	note, err := h.Notes.Get(r.Context(), noteID)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, note)
}

func (h *NoteHandler) UpdateNoteHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, uid, ok := h.require(w, r, models.AccessWrite)
	if !ok {
		return
	}
	var req updateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" || len(t) > maxTitleLength {
			utils.JSONError(w, http.StatusBadRequest, "validation_error", "title must be 1-200 characters")
			return
		}
		req.Title = &t
	}
	if req.IsPublic != nil {
		// visibility is an ownership decision
		note, err := h.Notes.Get(r.Context(), noteID)
		if err != nil {
			h.writeNoteError(w, err)
			return
		}
		if note.OwnerID != uid {
			utils.JSONError(w, http.StatusForbidden, "forbidden", "Only the owner can change visibility")
			return
		}
	}

	note, err := h.Notes.Update(r.Context(), noteID, repositories.NoteChanges{
		Title:    req.Title,
		Content:  req.Content,
		IsPublic: req.IsPublic,
	}, uid)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, note)
}

func (h *NoteHandler) DeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	note, _, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	if err := h.Notes.Delete(r.Context(), note.ID); err != nil {
		h.writeNoteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*** History ***/

func (h *NoteHandler) ListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, _, ok := h.require(w, r, models.AccessRead)
	if !ok {
		return
	}
	page, limit, ok := utils.Pagination(r)
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "page and limit must be positive integers")
		return
	}
	versions, total, err := h.Versions.List(r.Context(), noteID, page, limit)
	if err != nil {
		h.log().Error("list versions", zap.String("note_id", noteID), zap.Error(err))
		internalError(w, "Failed to list versions")
		return
	}
	utils.JSON(w, http.StatusOK, models.NewPageResponse(versions, total, page, limit))
}

func (h *NoteHandler) GetVersionHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, _, ok := h.require(w, r, models.AccessRead)
	if !ok {
		return
	}
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	v, err := h.Versions.Get(r.Context(), noteID, version)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, v)
}

// RestoreVersionHandler makes an old version current. The state being
// replaced is itself recorded as a new version.
func (h *NoteHandler) RestoreVersionHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, uid, ok := h.require(w, r, models.AccessWrite)
	if !ok {
		return
	}
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	v, err := h.Versions.Get(r.Context(), noteID, version)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	note, err := h.Notes.Update(r.Context(), noteID, repositories.NoteChanges{
		Title:   &v.Title,
		Content: &v.Content,
	}, uid)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, note)
}

func versionParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil || v < 1 {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "version must be a positive integer")
		return 0, false
	}
	return v, true
}

/*** Sharing ***/

func (h *NoteHandler) ListCollaboratorsHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, _, ok := h.require(w, r, models.AccessRead)
	if !ok {
		return
	}
	list, err := h.Collaborators.List(r.Context(), noteID)
	if err != nil {
		h.log().Error("list collaborators", zap.String("note_id", noteID), zap.Error(err))
		internalError(w, "Failed to list collaborators")
		return
	}
	utils.JSON(w, http.StatusOK, list)
}

func (h *NoteHandler) AddCollaboratorHandler(w http.ResponseWriter, r *http.Request) {
	note, uid, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	var req collaboratorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == 0 || !req.Permission.Valid() {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "userId and a permission of read or write are required")
		return
	}
	if req.UserID == uid {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "owner already has full access")
		return
	}
	if _, err := h.Users.GetUserByID(r.Context(), strconv.FormatUint(uint64(req.UserID), 10)); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			utils.JSONError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		internalError(w, "Failed to look up user")
		return
	}

	c := &models.Collaborator{NoteID: note.ID, UserID: req.UserID, Permission: req.Permission}
	if err := h.Collaborators.Upsert(r.Context(), c); err != nil {
		h.log().Error("upsert collaborator", zap.String("note_id", note.ID), zap.Error(err))
		internalError(w, "Failed to share note")
		return
	}
	saved, err := h.Collaborators.Get(r.Context(), note.ID, req.UserID)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, saved)
}

// RemoveCollaboratorHandler revokes a grant. Owners may remove anyone and a
// collaborator may remove themselves. Members already in the room stay until
// they leave.
func (h *NoteHandler) RemoveCollaboratorHandler(w http.ResponseWriter, r *http.Request) {
	id, uid, ok := caller(w, r)
	if !ok {
		return
	}
	target, err := strconv.ParseUint(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "userId must be numeric")
		return
	}
	note, err := h.Notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	if note.OwnerID != uid && uint(target) != uid {
		h.deny(w, r, note.ID, id.UserID, "Only the owner can remove other collaborators")
		return
	}
	if err := h.Collaborators.Remove(r.Context(), note.ID, uint(target)); err != nil {
		h.writeNoteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*** Presence ***/

// PresenceHandler reports who is in the note's room right now.
func (h *NoteHandler) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	noteID, _, _, ok := h.require(w, r, models.AccessRead)
	if !ok {
		return
	}
	utils.JSON(w, http.StatusOK, models.NotePresenceResponse{
		NoteID:  noteID,
		Members: h.Presence.Presence(noteID),
	})
}

func (h *NoteHandler) writeNoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrNoteNotFound):
		notFound(w)
	case errors.Is(err, repositories.ErrVersionNotFound):
		utils.JSONError(w, http.StatusNotFound, "not_found", "Version not found")
	case errors.Is(err, repositories.ErrCollaboratorNotFound):
		utils.JSONError(w, http.StatusNotFound, "not_found", "Collaborator not found")
	default:
		h.log().Error("note repository", zap.Error(err))
		internalError(w, "Failed to process note")
	}
}
