package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"collabnotes/internal/middleware"
	"collabnotes/internal/models"
	"collabnotes/internal/utils"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON in request body")
		return false
	}
	return true
}

// caller returns the authenticated identity and its numeric user id.
func caller(w http.ResponseWriter, r *http.Request) (models.Identity, uint, bool) {
	id, ok := middleware.GetIdentity(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return models.Identity{}, 0, false
	}
	uid, err := strconv.ParseUint(id.UserID, 10, 64)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized", "invalid subject")
		return models.Identity{}, 0, false
	}
	return id, uint(uid), true
}

func internalError(w http.ResponseWriter, message string) {
	utils.JSONError(w, http.StatusInternalServerError, "internal_error", message)
}
