package api

import (
	"net/http"

	"github.com/survivorpool/survivorpool/internal/service"
)

// HandleCreatePool returns a handler for POST /pools. The owner named in the
// payload must be the caller.
func HandleCreatePool(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreatePoolRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !requireSameUser(w, r, req.OwnerID) {
			return
		}
		view, err := svc.CreatePool(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, view)
	}
}

// HandleDeletePool returns a handler for DELETE /pools/{pool_id}.
func HandleDeletePool(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if err := svc.DeletePool(r.Context(), PathParam(r, "pool_id"), principal.UserID.Hex()); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleAvailableContestants returns a handler for
// GET /pools/{pool_id}/available_contestants.
func HandleAvailableContestants(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		view, err := svc.AvailableContestants(r.Context(), PathParam(r, "pool_id"), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleContestantDetail returns a handler for
// GET /pools/{pool_id}/contestants/{contestant_id}.
func HandleContestantDetail(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		view, err := svc.ContestantDetail(r.Context(), PathParam(r, "pool_id"), PathParam(r, "contestant_id"), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleAdvanceStatus returns a handler for GET /pools/{pool_id}/advance-status.
func HandleAdvanceStatus(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		view, err := svc.AdvanceStatus(r.Context(), PathParam(r, "pool_id"), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleAdvanceWeek returns a handler for POST /pools/{pool_id}/advance-week.
func HandleAdvanceWeek(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !requireSameUser(w, r, req.UserID) {
			return
		}
		result, err := svc.AdvanceWeek(r.Context(), PathParam(r, "pool_id"), req.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// HandleLeaderboard returns a handler for GET /pools/{pool_id}/leaderboard.
func HandleLeaderboard(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		view, err := svc.Leaderboard(r.Context(), PathParam(r, "pool_id"), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleListMemberships returns a handler for GET /pools/{pool_id}/memberships.
func HandleListMemberships(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner_id")
		if !requireSameUser(w, r, ownerID) {
			return
		}
		list, err := svc.ListPoolMemberships(r.Context(), PathParam(r, "pool_id"), ownerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, list)
	}
}

// HandleInviteUser returns a handler for POST /pools/{pool_id}/invites.
func HandleInviteUser(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.InviteRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !requireSameUser(w, r, req.OwnerID) {
			return
		}
		result, err := svc.InviteUserToPool(r.Context(), PathParam(r, "pool_id"), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// HandleRespondToInvite returns a handler for POST /pools/{pool_id}/invites/respond.
func HandleRespondToInvite(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.InviteDecisionRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !requireSameUser(w, r, req.UserID) {
			return
		}
		result, err := svc.RespondToInvite(r.Context(), PathParam(r, "pool_id"), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// HandleCreatePick returns a handler for POST /pools/{pool_id}/picks.
func HandleCreatePick(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreatePickRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !requireSameUser(w, r, req.UserID) {
			return
		}
		view, err := svc.CreatePick(r.Context(), PathParam(r, "pool_id"), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, view)
	}
}
