package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store with the same unique-index and
// conditional-update semantics as the Mongo implementation. It backs the
// test suite and local development without a database.
type Memory struct {
	mu          sync.Mutex
	users       map[primitive.ObjectID]User
	pools       map[primitive.ObjectID]Pool
	memberships map[primitive.ObjectID]Membership
	seasons     map[primitive.ObjectID]Season
	picks       map[primitive.ObjectID]Pick
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[primitive.ObjectID]User),
		pools:       make(map[primitive.ObjectID]Pool),
		memberships: make(map[primitive.ObjectID]Membership),
		seasons:     make(map[primitive.ObjectID]Season),
		picks:       make(map[primitive.ObjectID]Pick),
	}
}

func (m *Memory) Users() UserStore             { return (*memUsers)(m) }
func (m *Memory) Pools() PoolStore             { return (*memPools)(m) }
func (m *Memory) Memberships() MembershipStore { return (*memMemberships)(m) }
func (m *Memory) Seasons() SeasonStore         { return (*memSeasons)(m) }
func (m *Memory) Picks() PickStore             { return (*memPicks)(m) }

func (m *Memory) Ping(context.Context) error { return nil }

// SeedSeason installs a season document. Seasons are read-only through the
// Store interface, so seeding happens out of band, as with the real database.
func (m *Memory) SeedSeason(s Season) primitive.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	m.seasons[s.ID] = s
	return s.ID
}

func clonePtr[T any](v T) *T { return &v }

// ------------------------------------------------------------------
// Users
// ------------------------------------------------------------------

type memUsers Memory

func (s *memUsers) Insert(_ context.Context, u *User) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return primitive.NilObjectID, ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return u.ID, nil
}

func (s *memUsers) FindByID(_ context.Context, id primitive.ObjectID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePtr(u), nil
}

func (s *memUsers) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]*User)
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = clonePtr(u)
		}
	}
	return out, nil
}

func (s *memUsers) findBy(match func(User) bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return clonePtr(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUsers) FindByUsername(_ context.Context, username string) (*User, error) {
	return s.findBy(func(u User) bool { return u.Username == username })
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	return s.findBy(func(u User) bool { return u.Email == email })
}

func (s *memUsers) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	return s.findBy(func(u User) bool { return u.Username == identifier || u.Email == identifier })
}

func (s *memUsers) FindByVerificationToken(_ context.Context, token string) (*User, error) {
	return s.findBy(func(u User) bool { return u.VerificationToken != nil && *u.VerificationToken == token })
}

func (s *memUsers) FindByResetToken(_ context.Context, token string) (*User, error) {
	return s.findBy(func(u User) bool { return u.ResetToken != nil && *u.ResetToken == token })
}

func (s *memUsers) SearchActiveByUsername(_ context.Context, query string, limit int) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lowered := strings.ToLower(query)
	var out []*User
	for _, u := range s.users {
		if u.AccountStatus != AccountStatusActive {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), lowered) {
			out = append(out, clonePtr(u))
		}
	}
	// Deterministic order before truncation; Mongo returns index order.
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memUsers) mutate(id primitive.ObjectID, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}

func (s *memUsers) IncrementFailedLogins(_ context.Context, id primitive.ObjectID) (int, error) {
	var count int
	err := s.mutate(id, func(u *User) {
		u.FailedLoginAttempts++
		count = u.FailedLoginAttempts
	})
	return count, err
}

func (s *memUsers) SetLockout(_ context.Context, id primitive.ObjectID, until time.Time) error {
	return s.mutate(id, func(u *User) { u.LockedUntil = &until })
}

func (s *memUsers) ClearLockout(_ context.Context, id primitive.ObjectID) error {
	return s.mutate(id, func(u *User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

func (s *memUsers) SetPasswordHash(_ context.Context, id primitive.ObjectID, hash string, invalidatedAt time.Time) error {
	return s.mutate(id, func(u *User) {
		u.PasswordHash = hash
		u.TokenInvalidatedAt = &invalidatedAt
		u.ResetToken = nil
		u.ResetTokenExpiresAt = nil
	})
}

func (s *memUsers) SetResetToken(_ context.Context, id primitive.ObjectID, token string, expiresAt time.Time) error {
	return s.mutate(id, func(u *User) {
		u.ResetToken = &token
		u.ResetTokenExpiresAt = &expiresAt
	})
}

func (s *memUsers) PurgeExpiredResetTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, u := range s.users {
		if u.ResetToken != nil && u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.Before(now) {
			u.ResetToken = nil
			u.ResetTokenExpiresAt = nil
			s.users[id] = u
			purged++
		}
	}
	return purged, nil
}

func (s *memUsers) MarkEmailVerified(_ context.Context, id primitive.ObjectID) error {
	return s.mutate(id, func(u *User) {
		u.EmailVerified = true
		u.VerificationToken = nil
	})
}

func (s *memUsers) SetDefaultPool(_ context.Context, id primitive.ObjectID, poolID *primitive.ObjectID) error {
	return s.mutate(id, func(u *User) { u.DefaultPool = poolID })
}

func (s *memUsers) ClearDefaultPoolForPool(_ context.Context, poolID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.DefaultPool != nil && *u.DefaultPool == poolID {
			u.DefaultPool = nil
			s.users[id] = u
		}
	}
	return nil
}

func (s *memUsers) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// ------------------------------------------------------------------
// Pools
// ------------------------------------------------------------------

type memPools Memory

func (s *memPools) Insert(_ context.Context, p *Pool) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.pools[p.ID] = *p
	return p.ID, nil
}

func (s *memPools) FindByID(_ context.Context, id primitive.ObjectID) (*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePtr(p), nil
}

func (s *memPools) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]*Pool)
	for _, id := range ids {
		if p, ok := s.pools[id]; ok {
			out[id] = clonePtr(p)
		}
	}
	return out, nil
}

func (s *memPools) IncrementWeek(_ context.Context, id primitive.ObjectID, fromWeek int) (*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok || p.CurrentWeek != fromWeek {
		return nil, ErrNotFound
	}
	p.CurrentWeek++
	s.pools[id] = p
	return clonePtr(p), nil
}

func (s *memPools) MarkCompleted(_ context.Context, id primitive.ObjectID, week int, at time.Time, winners []primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = PoolStatusCompleted
	p.CompletedWeek = &week
	p.CompletedAt = &at
	p.Winners = winners
	s.pools[id] = p
	return nil
}

func (s *memPools) MarkCompetitive(_ context.Context, id primitive.ObjectID, sinceWeek int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok || p.IsCompetitive {
		return nil
	}
	p.IsCompetitive = true
	p.CompetitiveSinceWeek = &sinceWeek
	s.pools[id] = p
	return nil
}

func (s *memPools) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[id]; !ok {
		return ErrNotFound
	}
	delete(s.pools, id)
	return nil
}

// ------------------------------------------------------------------
// Memberships
// ------------------------------------------------------------------

type memMemberships Memory

func (s *memMemberships) Insert(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.memberships {
		if existing.PoolID == m.PoolID && existing.UserID == m.UserID {
			return ErrDuplicate
		}
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	s.memberships[m.ID] = *m
	return nil
}

func (s *memMemberships) Find(_ context.Context, poolID, userID primitive.ObjectID) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.UserID == userID {
			return clonePtr(m), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memMemberships) list(match func(Membership) bool) []*Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Membership
	for _, m := range s.memberships {
		if match(m) {
			out = append(out, clonePtr(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (s *memMemberships) ListByPool(_ context.Context, poolID primitive.ObjectID) ([]*Membership, error) {
	return s.list(func(m Membership) bool { return m.PoolID == poolID }), nil
}

func (s *memMemberships) ListByPoolAndStatus(_ context.Context, poolID primitive.ObjectID, status string) ([]*Membership, error) {
	return s.list(func(m Membership) bool { return m.PoolID == poolID && m.Status == status }), nil
}

func (s *memMemberships) CountByPoolAndStatus(ctx context.Context, poolID primitive.ObjectID, status string) (int, error) {
	docs, _ := s.ListByPoolAndStatus(ctx, poolID, status)
	return len(docs), nil
}

func (s *memMemberships) ListByUser(_ context.Context, userID primitive.ObjectID) ([]*Membership, error) {
	return s.list(func(m Membership) bool { return m.UserID == userID }), nil
}

func (s *memMemberships) ListByUserAndStatus(_ context.Context, userID primitive.ObjectID, status string) ([]*Membership, error) {
	return s.list(func(m Membership) bool { return m.UserID == userID && m.Status == status }), nil
}

func (s *memMemberships) UpsertInvited(_ context.Context, poolID, userID primitive.ObjectID, at time.Time) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.PoolID == poolID && m.UserID == userID {
			m.Role = RoleMember
			m.Status = MembershipStatusInvited
			m.InvitedAt = &at
			m.JoinedAt = nil
			m.EliminationReason = nil
			m.EliminatedWeek = nil
			m.EliminatedDate = nil
			m.FinalRank = nil
			m.FinishedWeek = nil
			m.FinishedDate = nil
			s.memberships[id] = m
			return clonePtr(m), nil
		}
	}
	m := Membership{
		ID:                   primitive.NewObjectID(),
		PoolID:               poolID,
		UserID:               userID,
		Role:                 RoleMember,
		Status:               MembershipStatusInvited,
		InvitedAt:            &at,
		AvailableContestants: []string{},
	}
	s.memberships[m.ID] = m
	return clonePtr(m), nil
}

func (s *memMemberships) ResolveInvite(_ context.Context, poolID, userID primitive.ObjectID, accept bool, now time.Time) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.PoolID != poolID || m.UserID != userID || m.Status != MembershipStatusInvited {
			continue
		}
		m.EliminationReason = nil
		m.FinalRank = nil
		m.FinishedWeek = nil
		m.FinishedDate = nil
		if accept {
			m.Status = MembershipStatusActive
			m.JoinedAt = &now
			m.EliminatedWeek = nil
			m.EliminatedDate = nil
		} else {
			m.Status = MembershipStatusDeclined
			m.JoinedAt = nil
			m.Score = 0
			m.AvailableContestants = []string{}
		}
		s.memberships[id] = m
		return clonePtr(m), nil
	}
	return nil, ErrNotFound
}

func (s *memMemberships) EliminateActive(_ context.Context, poolID primitive.ObjectID, userIDs []primitive.ObjectID, reason string, week int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make(map[primitive.ObjectID]struct{}, len(userIDs))
	for _, id := range userIDs {
		targets[id] = struct{}{}
	}
	for id, m := range s.memberships {
		if m.PoolID != poolID || m.Status != MembershipStatusActive {
			continue
		}
		if _, ok := targets[m.UserID]; !ok {
			continue
		}
		m.Status = MembershipStatusEliminated
		m.EliminationReason = &reason
		m.EliminatedWeek = &week
		m.EliminatedDate = &at
		m.Score = 0
		m.AvailableContestants = []string{}
		s.memberships[id] = m
	}
	return nil
}

func (s *memMemberships) PromoteWinners(_ context.Context, poolID primitive.ObjectID, userIDs []primitive.ObjectID, week int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make(map[primitive.ObjectID]struct{}, len(userIDs))
	for _, id := range userIDs {
		targets[id] = struct{}{}
	}
	rank := 1
	for id, m := range s.memberships {
		if m.PoolID != poolID {
			continue
		}
		if _, ok := targets[m.UserID]; !ok {
			continue
		}
		m.Status = MembershipStatusWinner
		m.EliminationReason = nil
		m.EliminatedWeek = nil
		m.EliminatedDate = nil
		m.FinishedWeek = &week
		m.FinishedDate = &at
		m.FinalRank = &rank
		m.Score = 0
		m.AvailableContestants = []string{}
		s.memberships[id] = m
	}
	return nil
}

func (s *memMemberships) SetAvailability(_ context.Context, id primitive.ObjectID, contestants []string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return ErrNotFound
	}
	m.AvailableContestants = contestants
	m.Score = score
	s.memberships[id] = m
	return nil
}

func (s *memMemberships) ZeroNonActive(_ context.Context, poolID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.PoolID == poolID && m.Status != MembershipStatusActive {
			m.Score = 0
			m.AvailableContestants = []string{}
			s.memberships[id] = m
		}
	}
	return nil
}

func (s *memMemberships) DeleteByPool(_ context.Context, poolID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.PoolID == poolID {
			delete(s.memberships, id)
		}
	}
	return nil
}

func (s *memMemberships) DeleteByUser(_ context.Context, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.UserID == userID {
			delete(s.memberships, id)
		}
	}
	return nil
}

// ------------------------------------------------------------------
// Seasons
// ------------------------------------------------------------------

type memSeasons Memory

func (s *memSeasons) FindByID(_ context.Context, id primitive.ObjectID) (*Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.seasons[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePtr(doc), nil
}

func (s *memSeasons) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]*Season)
	for _, id := range ids {
		if doc, ok := s.seasons[id]; ok {
			out[id] = clonePtr(doc)
		}
	}
	return out, nil
}

func (s *memSeasons) List(_ context.Context) ([]*Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Season
	for _, doc := range s.seasons {
		out = append(out, clonePtr(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeasonNumber > out[j].SeasonNumber })
	return out, nil
}

// ------------------------------------------------------------------
// Picks
// ------------------------------------------------------------------

type memPicks Memory

func (s *memPicks) Insert(_ context.Context, p *Pick) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.picks {
		if existing.PoolID == p.PoolID && existing.UserID == p.UserID && existing.Week == p.Week {
			return primitive.NilObjectID, ErrDuplicate
		}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.picks[p.ID] = *p
	return p.ID, nil
}

func (s *memPicks) FindForWeek(_ context.Context, poolID, userID primitive.ObjectID, week int) (*Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.picks {
		if p.PoolID == poolID && p.UserID == userID && p.Week == week {
			return clonePtr(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memPicks) FindByContestant(_ context.Context, poolID, userID primitive.ObjectID, contestantID string) (*Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.picks {
		if p.PoolID == poolID && p.UserID == userID && p.ContestantID == contestantID {
			return clonePtr(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memPicks) UserIDsWithPickForWeek(_ context.Context, poolID primitive.ObjectID, week int) (map[primitive.ObjectID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]struct{})
	for _, p := range s.picks {
		if p.PoolID == poolID && p.Week == week {
			out[p.UserID] = struct{}{}
		}
	}
	return out, nil
}

func (s *memPicks) ListForWeekByContestants(_ context.Context, poolID primitive.ObjectID, week int, contestantIDs []string) ([]*Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]struct{}, len(contestantIDs))
	for _, id := range contestantIDs {
		wanted[id] = struct{}{}
	}
	var out []*Pick
	for _, p := range s.picks {
		if p.PoolID != poolID || p.Week != week {
			continue
		}
		if _, ok := wanted[p.ContestantID]; ok {
			out = append(out, clonePtr(p))
		}
	}
	return out, nil
}

func (s *memPicks) UsedContestantsBefore(_ context.Context, poolID primitive.ObjectID, week int) (map[primitive.ObjectID]map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := make(map[primitive.ObjectID]map[string]struct{})
	for _, p := range s.picks {
		if p.PoolID != poolID || p.Week >= week {
			continue
		}
		set, ok := used[p.UserID]
		if !ok {
			set = make(map[string]struct{})
			used[p.UserID] = set
		}
		set[p.ContestantID] = struct{}{}
	}
	return used, nil
}

func (s *memPicks) DeleteByPool(_ context.Context, poolID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.picks {
		if p.PoolID == poolID {
			delete(s.picks, id)
		}
	}
	return nil
}

func (s *memPicks) DeleteByUser(_ context.Context, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.picks {
		if p.UserID == userID {
			delete(s.picks, id)
		}
	}
	return nil
}
