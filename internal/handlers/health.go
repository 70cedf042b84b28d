package handlers

import (
	"net/http"

	"collabnotes/internal/utils"
)

// StatsSource reports live collaboration counts.
type StatsSource interface {
	Stats() (connections, rooms int)
}

type HealthHandler struct {
	Stats StatsSource
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	conns, rooms := h.Stats.Stats()
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": conns,
		"rooms":       rooms,
	})
}
