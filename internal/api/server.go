package api

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/survivorpool/survivorpool/internal/auth"
	"github.com/survivorpool/survivorpool/internal/metrics"
	"github.com/survivorpool/survivorpool/internal/service"
	"github.com/survivorpool/survivorpool/internal/store"
)

// ServerConfig carries the collaborators the HTTP surface needs.
type ServerConfig struct {
	ListenAddress        string
	Port                 int
	Service              *service.Service
	Authenticator        *auth.Authenticator
	Store                store.Store
	Metrics              *metrics.Metrics
	Logger               zerolog.Logger
	CORSAllowOriginRegex string
	APIMaxBodyBytes      int64
}

// Server wraps the HTTP server and mux.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates the API server wired with all routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	originRe, err := regexp.Compile(cfg.CORSAllowOriginRegex)
	if err != nil {
		return nil, err
	}

	svc := cfg.Service
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		return AuthMiddleware(cfg.Authenticator, h)
	}

	// Public (no auth)
	mux.Handle("GET /{$}", HandleRoot())
	mux.Handle("GET /health", HandleHealth(cfg.Store))
	mux.Handle("POST /users", HandleCreateUser(svc))
	mux.Handle("POST /users/login", HandleLogin(svc))
	mux.Handle("POST /users/forgot_password", HandleForgotPassword(svc))
	mux.Handle("POST /users/reset_password", HandleResetPassword(svc))
	mux.Handle("GET /users/verify/{token}", HandleVerifyEmail(svc))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	// Users
	mux.Handle("GET /users/me", authed(HandleMe()))
	mux.Handle("GET /users/search", authed(HandleSearchUsers(svc)))
	mux.Handle("GET /users/{user_id}/pools", authed(HandleListUserPools(svc)))
	mux.Handle("GET /users/{user_id}/invites", authed(HandlePendingInvites(svc)))
	mux.Handle("PATCH /users/{user_id}/default_pool", authed(HandleUpdateDefaultPool(svc)))
	mux.Handle("PATCH /users/{user_id}/password", authed(HandleUpdatePassword(svc)))
	mux.Handle("DELETE /users/{user_id}", authed(HandleDeleteUser(svc)))

	// Seasons
	mux.Handle("GET /seasons", authed(HandleListSeasons(svc)))

	// Pools
	mux.Handle("POST /pools", authed(HandleCreatePool(svc)))
	mux.Handle("DELETE /pools/{pool_id}", authed(HandleDeletePool(svc)))
	mux.Handle("GET /pools/{pool_id}/available_contestants", authed(HandleAvailableContestants(svc)))
	mux.Handle("GET /pools/{pool_id}/contestants/{contestant_id}", authed(HandleContestantDetail(svc)))
	mux.Handle("GET /pools/{pool_id}/advance-status", authed(HandleAdvanceStatus(svc)))
	mux.Handle("POST /pools/{pool_id}/advance-week", authed(HandleAdvanceWeek(svc)))
	mux.Handle("GET /pools/{pool_id}/leaderboard", authed(HandleLeaderboard(svc)))
	mux.Handle("GET /pools/{pool_id}/memberships", authed(HandleListMemberships(svc)))
	mux.Handle("POST /pools/{pool_id}/invites", authed(HandleInviteUser(svc)))
	mux.Handle("POST /pools/{pool_id}/invites/respond", authed(HandleRespondToInvite(svc)))
	mux.Handle("POST /pools/{pool_id}/picks", authed(HandleCreatePick(svc)))

	corsWrapper := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return originRe.MatchString(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"x-new-token"},
		AllowCredentials: true,
	})

	var handler http.Handler = mux
	handler = RequestBodyLimitMiddleware(cfg.APIMaxBodyBytes, handler)
	handler = corsWrapper.Handler(handler)
	handler = RequestLogMiddleware(cfg.Logger, handler)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: handler,
	}
	return &Server{httpServer: srv, handler: handler}, nil
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
