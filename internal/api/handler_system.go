package api

import (
	"net/http"

	"github.com/survivorpool/survivorpool/internal/buildinfo"
	"github.com/survivorpool/survivorpool/internal/store"
)

// HandleRoot returns a handler for GET /.
func HandleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Survivor pool API",
			"version": buildinfo.Version,
		})
	}
}

// HandleHealth returns a handler for GET /health. The endpoint always answers
// 200; a failing store ping flips the body to unhealthy so probes can alert
// without tearing the process down.
func HandleHealth(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		if err := st.Ping(r.Context()); err != nil {
			status = "unhealthy"
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}
