package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestUser(username, email string) *User {
	return &User{
		Username:      username,
		Email:         email,
		PasswordHash:  "x",
		AccountStatus: AccountStatusActive,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestUsers_UniqueUsernameAndEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Users().Insert(ctx, newTestUser("alice", "alice@example.com")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := m.Users().Insert(ctx, newTestUser("alice", "other@example.com")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate username: got %v, want ErrDuplicate", err)
	}
	if _, err := m.Users().Insert(ctx, newTestUser("bob", "alice@example.com")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate email: got %v, want ErrDuplicate", err)
	}
}

func TestUsers_FindByIdentifier(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Users().Insert(ctx, newTestUser("carol", "carol@example.com"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	byName, err := m.Users().FindByIdentifier(ctx, "carol")
	if err != nil || byName.ID != id {
		t.Fatalf("by username: %v %v", byName, err)
	}
	byEmail, err := m.Users().FindByIdentifier(ctx, "carol@example.com")
	if err != nil || byEmail.ID != id {
		t.Fatalf("by email: %v %v", byEmail, err)
	}
	if _, err := m.Users().FindByIdentifier(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown identifier: got %v, want ErrNotFound", err)
	}
}

func TestUsers_LockoutCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Users().Insert(ctx, newTestUser("dave", "dave@example.com"))

	for want := 1; want <= 3; want++ {
		got, err := m.Users().IncrementFailedLogins(ctx, id)
		if err != nil || got != want {
			t.Fatalf("increment %d: got %d, %v", want, got, err)
		}
	}

	until := time.Now().UTC().Add(15 * time.Minute)
	if err := m.Users().SetLockout(ctx, id, until); err != nil {
		t.Fatalf("set lockout: %v", err)
	}
	if err := m.Users().ClearLockout(ctx, id); err != nil {
		t.Fatalf("clear lockout: %v", err)
	}
	u, _ := m.Users().FindByID(ctx, id)
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("lockout not cleared: %+v", u)
	}
}

func TestUsers_SetPasswordHashClearsResetToken(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Users().Insert(ctx, newTestUser("erin", "erin@example.com"))

	exp := time.Now().UTC().Add(time.Hour)
	if err := m.Users().SetResetToken(ctx, id, "tok123", exp); err != nil {
		t.Fatalf("set reset token: %v", err)
	}
	invalidatedAt := time.Now().UTC()
	if err := m.Users().SetPasswordHash(ctx, id, "newhash", invalidatedAt); err != nil {
		t.Fatalf("set password hash: %v", err)
	}

	u, _ := m.Users().FindByID(ctx, id)
	if u.PasswordHash != "newhash" {
		t.Fatalf("hash not updated: %q", u.PasswordHash)
	}
	if u.ResetToken != nil || u.ResetTokenExpiresAt != nil {
		t.Fatal("reset token should be cleared after password change")
	}
	if u.TokenInvalidatedAt == nil || !u.TokenInvalidatedAt.Equal(invalidatedAt) {
		t.Fatalf("token_invalidated_at not stamped: %v", u.TokenInvalidatedAt)
	}
	if _, err := m.Users().FindByResetToken(ctx, "tok123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale reset token still resolvable: %v", err)
	}
}

func TestUsers_PurgeExpiredResetTokens(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	expired, _ := m.Users().Insert(ctx, newTestUser("old", "old@example.com"))
	fresh, _ := m.Users().Insert(ctx, newTestUser("new", "new@example.com"))
	m.Users().SetResetToken(ctx, expired, "expired", now.Add(-time.Minute))
	m.Users().SetResetToken(ctx, fresh, "fresh", now.Add(time.Hour))

	purged, err := m.Users().PurgeExpiredResetTokens(ctx, now)
	if err != nil || purged != 1 {
		t.Fatalf("purge: got %d, %v", purged, err)
	}
	if _, err := m.Users().FindByResetToken(ctx, "fresh"); err != nil {
		t.Fatalf("fresh token should survive: %v", err)
	}
	if _, err := m.Users().FindByResetToken(ctx, "expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired token should be gone: %v", err)
	}
}

func TestUsers_SearchActiveByUsername(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Users().Insert(ctx, newTestUser("Frank", "frank@example.com"))
	m.Users().Insert(ctx, newTestUser("franny", "franny@example.com"))
	inactive := newTestUser("francis", "francis@example.com")
	inactive.AccountStatus = AccountStatusInactive
	m.Users().Insert(ctx, inactive)

	got, err := m.Users().SearchActiveByUsername(ctx, "FRAN", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 (inactive excluded)", len(got))
	}
}

func TestPools_IncrementWeekCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Pools().Insert(ctx, &Pool{
		Name:        "office",
		OwnerID:     primitive.NewObjectID(),
		SeasonID:    primitive.NewObjectID(),
		CurrentWeek: 3,
		StartWeek:   1,
		Status:      PoolStatusOpen,
	})

	after, err := m.Pools().IncrementWeek(ctx, id, 3)
	if err != nil {
		t.Fatalf("cas bump: %v", err)
	}
	if after.CurrentWeek != 4 {
		t.Fatalf("current_week: got %d, want 4", after.CurrentWeek)
	}

	// Stale expected week: the precondition fails and nothing changes.
	if _, err := m.Pools().IncrementWeek(ctx, id, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale cas: got %v, want ErrNotFound", err)
	}
	p, _ := m.Pools().FindByID(ctx, id)
	if p.CurrentWeek != 4 {
		t.Fatalf("week changed after failed cas: %d", p.CurrentWeek)
	}
}

func TestPools_MarkCompetitiveIsLatched(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Pools().Insert(ctx, &Pool{Name: "p", CurrentWeek: 1, Status: PoolStatusOpen})

	if err := m.Pools().MarkCompetitive(ctx, id, 2); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	// A second call must not move competitive_since_week.
	if err := m.Pools().MarkCompetitive(ctx, id, 5); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	p, _ := m.Pools().FindByID(ctx, id)
	if !p.IsCompetitive || p.CompetitiveSinceWeek == nil || *p.CompetitiveSinceWeek != 2 {
		t.Fatalf("latch violated: %+v", p)
	}
}

func TestMemberships_UniquePerPoolAndUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	if err := m.Memberships().Insert(ctx, &Membership{PoolID: poolID, UserID: userID, Role: RoleOwner, Status: MembershipStatusActive}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := m.Memberships().Insert(ctx, &Membership{PoolID: poolID, UserID: userID, Role: RoleMember, Status: MembershipStatusInvited})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate membership: got %v, want ErrDuplicate", err)
	}
}

func TestMemberships_ResolveInviteOnlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	now := time.Now().UTC()

	if _, err := m.Memberships().UpsertInvited(ctx, poolID, userID, now); err != nil {
		t.Fatalf("upsert invited: %v", err)
	}

	accepted, err := m.Memberships().ResolveInvite(ctx, poolID, userID, true, now)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != MembershipStatusActive || accepted.JoinedAt == nil {
		t.Fatalf("accept result: %+v", accepted)
	}

	// Already resolved: the conditional update matches nothing.
	if _, err := m.Memberships().ResolveInvite(ctx, poolID, userID, false, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second resolve: got %v, want ErrNotFound", err)
	}
}

func TestMemberships_DeclineZeroesScore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	now := time.Now().UTC()

	m.Memberships().UpsertInvited(ctx, poolID, userID, now)
	declined, err := m.Memberships().ResolveInvite(ctx, poolID, userID, false, now)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != MembershipStatusDeclined || declined.JoinedAt != nil {
		t.Fatalf("decline result: %+v", declined)
	}
	if declined.Score != 0 || len(declined.AvailableContestants) != 0 {
		t.Fatalf("decline should zero score and availability: %+v", declined)
	}
}

func TestMemberships_ReinviteClearsElimination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	now := time.Now().UTC()

	m.Memberships().UpsertInvited(ctx, poolID, userID, now)
	m.Memberships().ResolveInvite(ctx, poolID, userID, true, now)
	m.Memberships().EliminateActive(ctx, poolID, []primitive.ObjectID{userID}, EliminationReasonMissedPick, 2, now)

	reinvited, err := m.Memberships().UpsertInvited(ctx, poolID, userID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("reinvite: %v", err)
	}
	if reinvited.Status != MembershipStatusInvited {
		t.Fatalf("status: got %q", reinvited.Status)
	}
	if reinvited.EliminationReason != nil || reinvited.EliminatedWeek != nil {
		t.Fatalf("elimination fields should be cleared: %+v", reinvited)
	}
}

func TestMemberships_EliminateActiveSkipsOthers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	active := primitive.NewObjectID()
	declined := primitive.NewObjectID()
	now := time.Now().UTC()

	m.Memberships().Insert(ctx, &Membership{PoolID: poolID, UserID: active, Status: MembershipStatusActive})
	m.Memberships().Insert(ctx, &Membership{PoolID: poolID, UserID: declined, Status: MembershipStatusDeclined})

	err := m.Memberships().EliminateActive(ctx, poolID, []primitive.ObjectID{active, declined}, EliminationReasonContestant, 4, now)
	if err != nil {
		t.Fatalf("eliminate: %v", err)
	}

	a, _ := m.Memberships().Find(ctx, poolID, active)
	if a.Status != MembershipStatusEliminated || a.EliminatedWeek == nil || *a.EliminatedWeek != 4 {
		t.Fatalf("active member not eliminated: %+v", a)
	}
	d, _ := m.Memberships().Find(ctx, poolID, declined)
	if d.Status != MembershipStatusDeclined {
		t.Fatalf("declined member should be untouched: %+v", d)
	}
}

func TestMemberships_PromoteWinnersFromEliminated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	now := time.Now().UTC()

	m.Memberships().Insert(ctx, &Membership{PoolID: poolID, UserID: userID, Status: MembershipStatusEliminated})
	if err := m.Memberships().PromoteWinners(ctx, poolID, []primitive.ObjectID{userID}, 6, now); err != nil {
		t.Fatalf("promote: %v", err)
	}
	w, _ := m.Memberships().Find(ctx, poolID, userID)
	if w.Status != MembershipStatusWinner || w.FinalRank == nil || *w.FinalRank != 1 {
		t.Fatalf("winner promotion: %+v", w)
	}
	if w.EliminationReason != nil || w.EliminatedWeek != nil {
		t.Fatalf("elimination fields should be cleared on win: %+v", w)
	}
}

func TestPicks_UniquePerWeek(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	pick := &Pick{PoolID: poolID, UserID: userID, ContestantID: "c1", Week: 2, Result: PickResultPending}
	if _, err := m.Picks().Insert(ctx, pick); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := &Pick{PoolID: poolID, UserID: userID, ContestantID: "c2", Week: 2, Result: PickResultPending}
	if _, err := m.Picks().Insert(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate week pick: got %v, want ErrDuplicate", err)
	}
	// Same contestant in a different pool is fine.
	other := &Pick{PoolID: primitive.NewObjectID(), UserID: userID, ContestantID: "c1", Week: 2, Result: PickResultPending}
	if _, err := m.Picks().Insert(ctx, other); err != nil {
		t.Fatalf("other pool insert: %v", err)
	}
}

func TestPicks_UsedContestantsBefore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	poolID := primitive.NewObjectID()
	u1 := primitive.NewObjectID()
	u2 := primitive.NewObjectID()

	for _, p := range []*Pick{
		{PoolID: poolID, UserID: u1, ContestantID: "c1", Week: 1},
		{PoolID: poolID, UserID: u1, ContestantID: "c2", Week: 2},
		{PoolID: poolID, UserID: u1, ContestantID: "c3", Week: 3},
		{PoolID: poolID, UserID: u2, ContestantID: "c4", Week: 1},
	} {
		if _, err := m.Picks().Insert(ctx, p); err != nil {
			t.Fatalf("insert week %d: %v", p.Week, err)
		}
	}

	used, err := m.Picks().UsedContestantsBefore(ctx, poolID, 3)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if len(used[u1]) != 2 {
		t.Fatalf("u1 used: got %v, want c1 and c2", used[u1])
	}
	if _, ok := used[u1]["c3"]; ok {
		t.Fatal("week 3 pick must not count as used before week 3")
	}
	if len(used[u2]) != 1 {
		t.Fatalf("u2 used: got %v", used[u2])
	}
}

func TestSeasons_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SeedSeason(Season{SeasonName: "Season 47", SeasonNumber: 47})
	m.SeedSeason(Season{SeasonName: "Season 48", SeasonNumber: 48})

	seasons, err := m.Seasons().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(seasons) != 2 || seasons[0].SeasonNumber != 48 {
		t.Fatalf("order: got %+v", seasons)
	}
}
