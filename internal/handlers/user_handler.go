package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"collabnotes/internal/auth"
	"collabnotes/internal/middleware"
	"collabnotes/internal/models"
	"collabnotes/internal/repositories"
	"collabnotes/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserHandler struct {
	Repo        *repositories.UserRepository
	Revocations auth.Revocations
	Logger      *zap.Logger
}

func NewUserHandler(repo *repositories.UserRepository, revocations auth.Revocations, logger *zap.Logger) *UserHandler {
	if revocations == nil {
		revocations = auth.NoRevocations{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{Repo: repo, Revocations: revocations, Logger: logger}
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// MeHandler returns the caller's own profile.
func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	id, _, ok := caller(w, r)
	if !ok {
		return
	}
	user, err := h.Repo.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, user)
}

// GetUserHandler retrieves another user's public profile by ID
func (h *UserHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "User ID is required")
		return
	}
	user, err := h.Repo.GetUserByID(r.Context(), userID)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.PublicUser{ID: user.ID, Username: user.Username})
}

// UpdateMeHandler changes the caller's username, email or password.
func (h *UserHandler) UpdateMeHandler(w http.ResponseWriter, r *http.Request) {
	id, uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	updates := &models.User{}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			utils.JSONError(w, http.StatusBadRequest, "validation_error", "username must not be empty")
			return
		}
		if existing, _ := h.Repo.GetUserByUsername(ctx, name); existing != nil && existing.ID != uid {
			utils.JSONError(w, http.StatusConflict, "conflict", "username taken")
			return
		}
		updates.Username = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" {
			utils.JSONError(w, http.StatusBadRequest, "validation_error", "email must not be empty")
			return
		}
		if existing, _ := h.Repo.GetUserByEmail(ctx, email); existing != nil && existing.ID != uid {
			utils.JSONError(w, http.StatusConflict, "conflict", "email taken")
			return
		}
		updates.Email = email
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			utils.JSONError(w, http.StatusBadRequest, "validation_error", "password must be at least 8 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			internalError(w, "failed to hash password")
			return
		}
		updates.PasswordHash = string(hash)
	}

	user, err := h.Repo.UpdateUser(ctx, id.UserID, updates)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, user)
}

// DeleteMeHandler removes the caller's account and revokes the token used.
func (h *UserHandler) DeleteMeHandler(w http.ResponseWriter, r *http.Request) {
	id, _, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.Repo.DeleteUser(r.Context(), id.UserID); err != nil {
		h.writeLookupError(w, err)
		return
	}
	if p, ok := middleware.GetPrincipal(r); ok && p.TokenID != "" {
		if err := h.Revocations.Revoke(r.Context(), p.TokenID, time.Until(p.ExpiresAt)); err != nil {
			h.Logger.Warn("revoke token after account deletion", zap.String("user_id", id.UserID), zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, repositories.ErrUserNotFound) {
		utils.JSONError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	h.Logger.Error("user repository", zap.Error(err))
	internalError(w, "Failed to process user")
}
