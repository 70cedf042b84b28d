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

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler manages authentication endpoints.
type AuthHandler struct {
	Repo        *repositories.UserRepository
	JWTSecret   string
	TokenTTL    time.Duration
	Revocations auth.Revocations
	Logger      *zap.Logger
}

func NewAuthHandler(repo *repositories.UserRepository, secret string, ttl time.Duration, revocations auth.Revocations, logger *zap.Logger) *AuthHandler {
	if revocations == nil {
		revocations = auth.NoRevocations{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{Repo: repo, JWTSecret: secret, TokenTTL: ttl, Revocations: revocations, Logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.PublicUser `json:"user"`
}

const minPasswordLength = 8

func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "username, email and password are required")
		return
	}
	if len(req.Password) < minPasswordLength {
		utils.JSONError(w, http.StatusBadRequest, "validation_error", "password must be at least 8 characters")
		return
	}

	ctx := r.Context()
	if existing, _ := h.Repo.GetUserByUsername(ctx, req.Username); existing != nil {
		utils.JSONError(w, http.StatusConflict, "conflict", "username taken")
		return
	}
	if existing, _ := h.Repo.GetUserByEmail(ctx, req.Email); existing != nil {
		utils.JSONError(w, http.StatusConflict, "conflict", "email taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, "failed to hash password")
		return
	}
	user := &models.User{Username: req.Username, Email: req.Email, PasswordHash: string(hash)}
	if err := h.Repo.CreateUser(ctx, user); err != nil {
		h.Logger.Error("create user", zap.Error(err))
		internalError(w, "failed to create user")
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]any{"id": user.ID, "username": user.Username, "email": user.Email})
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.Repo.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			h.Logger.Error("lookup user", zap.Error(err))
		}
		utils.JSONError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	signed, err := utils.IssueToken(h.JWTSecret, user.IDString(), user.Username, h.TokenTTL)
	if err != nil {
		internalError(w, "failed to sign token")
		return
	}
	utils.JSON(w, http.StatusOK, authResponse{
		Token:     signed,
		ExpiresAt: time.Now().Add(h.TokenTTL).UTC(),
		User:      models.PublicUser{ID: user.ID, Username: user.Username},
	})
}

// LogoutHandler revokes the presented token for the rest of its lifetime.
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	if p.TokenID != "" {
		if err := h.Revocations.Revoke(r.Context(), p.TokenID, time.Until(p.ExpiresAt)); err != nil {
			h.Logger.Error("revoke token", zap.String("user_id", p.Identity.UserID), zap.Error(err))
			internalError(w, "failed to revoke token")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
