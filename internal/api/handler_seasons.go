package api

import (
	"net/http"

	"github.com/survivorpool/survivorpool/internal/service"
)

// HandleListSeasons returns a handler for GET /seasons.
func HandleListSeasons(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seasons, err := svc.ListSeasons(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, seasons)
	}
}
