package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/auth"
	"github.com/survivorpool/survivorpool/internal/metrics"
	"github.com/survivorpool/survivorpool/internal/season"
	"github.com/survivorpool/survivorpool/internal/store"
)

// fakeMailer records outgoing mail instead of sending it.
type fakeMailer struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
	resetLinks    []string
}

func (f *fakeMailer) SendVerificationEmail(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications = append(f.verifications, to)
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(_ context.Context, to, _, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, to)
	f.resetLinks = append(f.resetLinks, link)
	return nil
}

type testEnv struct {
	svc    *Service
	mem    *store.Memory
	mail   *fakeMailer
	now    time.Time
	nowMu  sync.Mutex
	tokens *auth.TokenCodec
}

func (e *testEnv) clock() time.Time {
	e.nowMu.Lock()
	defer e.nowMu.Unlock()
	return e.now
}

func (e *testEnv) advanceClock(d time.Duration) {
	e.nowMu.Lock()
	defer e.nowMu.Unlock()
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	reader, err := season.NewReader(mem.Seasons())
	if err != nil {
		t.Fatalf("season reader: %v", err)
	}
	env := &testEnv{
		mem:    mem,
		mail:   &fakeMailer{},
		now:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		tokens: auth.NewTokenCodec("fN8!rQz2#kV9pL4xWm7Y", 30, 3),
	}
	env.svc = New(Config{
		Store:         mem,
		Seasons:       reader,
		Mailer:        env.mail,
		Tokens:        env.tokens,
		Metrics:       metrics.New(),
		Logger:        zerolog.Nop(),
		PublicBaseURL: "http://localhost:8000",
		Clock:         env.clock,
	})
	return env
}

// seedUser inserts a verified active user directly.
func (e *testEnv) seedUser(t *testing.T, username, displayName string) primitive.ObjectID {
	t.Helper()
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	id, err := e.mem.Users().Insert(context.Background(), &store.User{
		Username:      username,
		Email:         username + "@example.com",
		DisplayName:   displayName,
		PasswordHash:  hash,
		AccountStatus: store.AccountStatusActive,
		EmailVerified: true,
		CreatedAt:     e.clock(),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return id
}

// seedSeason installs a season with the given contestants and eliminations.
func (e *testEnv) seedSeason(contestantIDs []string, eliminations map[int]string) primitive.ObjectID {
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

func requireServiceError(t *testing.T, err error, code string) *ServiceError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	svcErr, ok := err.(*ServiceError)
	if !ok {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if svcErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, svcErr.Code, svcErr.Message)
	}
	return svcErr
}

// assertInvariants checks the score/availability coupling for every
// membership in the pool.
func assertInvariants(t *testing.T, mem *store.Memory, poolID primitive.ObjectID) {
	t.Helper()
	memberships, err := mem.Memberships().ListByPool(context.Background(), poolID)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	for _, m := range memberships {
		if m.Status == store.MembershipStatusActive {
			if m.Score != len(m.AvailableContestants) {
				t.Fatalf("active member %s: score %d != |available| %d", m.UserID.Hex(), m.Score, len(m.AvailableContestants))
			}
		} else if m.Score != 0 || len(m.AvailableContestants) != 0 {
			t.Fatalf("%s member %s: score %d, available %v", m.Status, m.UserID.Hex(), m.Score, m.AvailableContestants)
		}
	}
}
