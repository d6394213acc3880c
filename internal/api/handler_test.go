package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/auth"
	"github.com/survivorpool/survivorpool/internal/mailer"
	"github.com/survivorpool/survivorpool/internal/metrics"
	"github.com/survivorpool/survivorpool/internal/season"
	"github.com/survivorpool/survivorpool/internal/service"
	"github.com/survivorpool/survivorpool/internal/store"
)

const testJWTSecret = "fN8!rQz2#kV9pL4xWm7Y"

type apiTestEnv struct {
	srv    *Server
	mem    *store.Memory
	svc    *service.Service
	tokens *auth.TokenCodec
}

func newTestServer(t *testing.T) *apiTestEnv {
	t.Helper()
	return newTestServerWithBodyLimit(t, 1<<20)
}

func newTestServerWithBodyLimit(t *testing.T, maxBodyBytes int64) *apiTestEnv {
	t.Helper()

	mem := store.NewMemory()
	reader, err := season.NewReader(mem.Seasons())
	if err != nil {
		t.Fatalf("season reader: %v", err)
	}
	tokens := auth.NewTokenCodec(testJWTSecret, 30, 3)
	svc := service.New(service.Config{
		Store:         mem,
		Seasons:       reader,
		Mailer:        &mailer.LogOnly{Log: zerolog.Nop()},
		Tokens:        tokens,
		Metrics:       metrics.New(),
		Logger:        zerolog.Nop(),
		PublicBaseURL: "http://localhost:8000",
	})

	srv, err := NewServer(ServerConfig{
		ListenAddress:        "127.0.0.1",
		Port:                 0,
		Service:              svc,
		Authenticator:        auth.NewAuthenticator(mem.Users(), tokens, nil),
		Store:                mem,
		Metrics:              metrics.New(),
		Logger:               zerolog.Nop(),
		CORSAllowOriginRegex: `https://app\.example\.com`,
		APIMaxBodyBytes:      maxBodyBytes,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &apiTestEnv{srv: srv, mem: mem, svc: svc, tokens: tokens}
}

// seedActiveUser inserts a verified user and mints a credential for them.
func (e *apiTestEnv) seedActiveUser(t *testing.T, username string) (primitive.ObjectID, string) {
	t.Helper()
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	id, err := e.mem.Users().Insert(context.Background(), &store.User{
		Username:      username,
		Email:         username + "@example.com",
		DisplayName:   username,
		PasswordHash:  hash,
		AccountStatus: store.AccountStatusActive,
		EmailVerified: true,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	token, err := e.tokens.Issue(id, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return id, token
}

func (e *apiTestEnv) seedSeason(t *testing.T, contestantIDs []string, eliminations map[int]string) primitive.ObjectID {
	t.Helper()
	contestants := make([]store.Contestant, 0, len(contestantIDs))
	for _, id := range contestantIDs {
		contestants = append(contestants, store.Contestant{ID: id, Name: "Contestant " + id})
	}
	var elims []store.Elimination
	for week, contestant := range eliminations {
		elims = append(elims, store.Elimination{Week: week, EliminatedContestantID: contestant})
	}
	return e.mem.SeedSeason(store.Season{
		SeasonName:   "Test Season",
		SeasonNumber: 48,
		Contestants:  contestants,
		Eliminations: elims,
	})
}

func doJSONRequest(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody []byte
	var err error
	if body != nil {
		switch v := body.(type) {
		case []byte:
			reqBody = v
		case string:
			reqBody = []byte(v)
		default:
			reqBody, err = json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal request body: %v", err)
			}
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSONMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal body: %v body=%q", err, rec.Body.String())
	}
	return m
}

func assertDetail(t *testing.T, rec *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status: got %d, want %d (body=%s)", rec.Code, status, rec.Body.String())
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("unmarshal error response: %v body=%q", err, rec.Body.String())
	}
	if er.Detail != detail {
		t.Fatalf("detail: got %q, want %q", er.Detail, detail)
	}
}
