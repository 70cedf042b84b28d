package utils

import (
	"encoding/json"
	"net/http"
	"strconv"

	"collabnotes/internal/models"
)

// JSON writes a JSON response with status code
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// JSONError writes an error body in the uniform {code, message} shape.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, models.ErrorResponse{Code: code, Message: message})
}

// Pagination reads page/limit query parameters. Defaults are page 1, limit 20;
// limit is capped at 100.
func Pagination(r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, 20
	if s := r.URL.Query().Get("page"); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil || p < 1 {
			return 0, 0, false
		}
		page = p
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 {
			return 0, 0, false
		}
		limit = l
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, true
}
