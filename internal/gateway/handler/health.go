package handler

import (
	"net/http"

	"shiyin/internal/gateway/service/session"
)

func Health(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": sessions.Len(),
		})
	}
}
