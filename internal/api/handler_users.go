package api

import (
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/survivorpool/survivorpool/internal/service"
)

// requireSameUser checks that the path or payload user matches the caller.
func requireSameUser(w http.ResponseWriter, r *http.Request, userID string) bool {
	principal := PrincipalFromContext(r.Context())
	if principal == nil || principal.UserID.Hex() != userID {
		WriteError(w, http.StatusForbidden, "Cannot act on behalf of another user")
		return false
	}
	return true
}

// HandleCreateUser returns a handler for POST /users.
func HandleCreateUser(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateUserRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		view, err := svc.CreateUser(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleLogin returns a handler for POST /users/login.
func HandleLogin(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.LoginRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		result, err := svc.LoginUser(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// HandleForgotPassword returns a handler for POST /users/forgot_password.
// The response never reveals whether the email exists.
func HandleForgotPassword(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleResetPassword returns a handler for POST /users/reset_password.
func HandleResetPassword(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token           string `json:"token"`
			NewPassword     string `json:"new_password"`
			ConfirmPassword string `json:"confirm_password"`
		}
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := svc.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

const verifyPageTemplate = `<!DOCTYPE html>
<html>
<head><title>Email verification</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`

// HandleVerifyEmail returns a handler for GET /users/verify/{token}. The page
// renders 200 for every outcome so a re-clicked link never shows an error.
func HandleVerifyEmail(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := PathParam(r, "token")
		outcome, _ := svc.VerifyEmail(r.Context(), token)

		var heading, body string
		switch outcome {
		case service.VerificationCompleted:
			heading = "Email verified"
			body = "Your email has been verified. You can now log in."
		case service.VerificationRepeated:
			heading = "Email already verified"
			body = "Your email was already verified. You can log in."
		default:
			heading = "Verification link invalid"
			body = "This verification link is invalid or was already used."
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, verifyPageTemplate, html.EscapeString(heading), html.EscapeString(body))
	}
}

// HandleMe returns a handler for GET /users/me.
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		WriteJSON(w, http.StatusOK, service.Profile(principal.User))
	}
}

// HandleListUserPools returns a handler for GET /users/{user_id}/pools.
func HandleListUserPools(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := PathParam(r, "user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		pools, err := svc.ListUserPools(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, pools)
	}
}

// HandlePendingInvites returns a handler for GET /users/{user_id}/invites.
func HandlePendingInvites(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := PathParam(r, "user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		invites, err := svc.PendingInvitesForUser(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, invites)
	}
}

// HandleSearchUsers returns a handler for GET /users/search.
func HandleSearchUsers(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 10
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeInvalidArgument(w, "limit: must be a positive integer")
				return
			}
			limit = n
		}
		var poolID *string
		if v := q.Get("pool_id"); v != "" {
			poolID = &v
		}

		results, err := svc.SearchActiveUsers(r.Context(), q.Get("q"), poolID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, results)
	}
}

// HandleUpdateDefaultPool returns a handler for PATCH /users/{user_id}/default_pool.
// A null default_pool clears the setting.
func HandleUpdateDefaultPool(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := PathParam(r, "user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		var req struct {
			DefaultPool *string `json:"default_pool"`
		}
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		view, err := svc.UpdateDefaultPool(r.Context(), userID, req.DefaultPool)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleUpdatePassword returns a handler for PATCH /users/{user_id}/password.
func HandleUpdatePassword(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := PathParam(r, "user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		var req struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
			ConfirmPassword string `json:"confirm_password"`
		}
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := svc.UpdatePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDeleteUser returns a handler for DELETE /users/{user_id}.
func HandleDeleteUser(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := PathParam(r, "user_id")
		if !requireSameUser(w, r, userID) {
			return
		}
		if err := svc.DeleteUser(r.Context(), userID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
