package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/store"
)

func TestAdvanceStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3"}, map[int]string{1: "c3"}, "alice", "bert")

	_, err := env.svc.AdvanceStatus(ctx, f.poolID, f.members["alice"].Hex())
	requireServiceError(t, err, "FORBIDDEN")

	f.pick(t, env, f.ownerID, "c1")
	status, err := env.svc.AdvanceStatus(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.True(t, status.CanAdvance)
	require.Equal(t, 3, status.ActiveMemberCount)
	require.Equal(t, 1, status.LockedCount)
	require.Equal(t, 2, status.MissingCount)
	require.Len(t, status.MissingMembers, 2)
	require.Equal(t, "alice", status.MissingMembers[0].DisplayName)
	require.Equal(t, "bert", status.MissingMembers[1].DisplayName)
}

func TestAdvanceStatus_NoResultsYet(t *testing.T) {
	env := newTestEnv(t)
	f := newPoolFixture(t, env, []string{"c1", "c2"}, map[int]string{2: "c2"}, "alice")

	status, err := env.svc.AdvanceStatus(context.Background(), f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.False(t, status.CanAdvance)

	_, err = env.svc.AdvanceWeek(context.Background(), f.poolID, f.ownerID.Hex())
	serr := requireServiceError(t, err, "INVALID_ARGUMENT")
	require.Equal(t, "Next week is not available yet", serr.Message)
}

func TestAdvanceWeek_CleanSurvival(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4"}, "alice")

	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["alice"], "c2")

	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.Equal(t, 2, result.NewCurrentWeek)
	require.Empty(t, result.Eliminations)
	require.False(t, result.PoolCompleted)
	require.Empty(t, result.Winners)

	pool, err := env.mem.Pools().FindByID(ctx, f.poolOID)
	require.NoError(t, err)
	require.Equal(t, 2, pool.CurrentWeek)
	require.Equal(t, store.PoolStatusOpen, pool.Status)

	// Week 2 availability drops the used pick and the week-1 boot.
	owner, err := env.mem.Memberships().Find(ctx, f.poolOID, f.ownerID)
	require.NoError(t, err)
	require.Equal(t, []string{"c2", "c3"}, owner.AvailableContestants)
	require.Equal(t, 2, owner.Score)
	assertInvariants(t, env.mem, f.poolOID)
}

func TestAdvanceWeek_MissedPickElimination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3"}, map[int]string{1: "c3"}, "alice", "bert")

	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["bert"], "c2")

	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.Equal(t, 2, result.NewCurrentWeek)
	require.False(t, result.PoolCompleted)
	require.Len(t, result.Eliminations, 1)
	require.Equal(t, "alice", result.Eliminations[0].DisplayName)
	require.Equal(t, store.EliminationReasonMissedPick, result.Eliminations[0].Reason)

	m, err := env.mem.Memberships().Find(ctx, f.poolOID, f.members["alice"])
	require.NoError(t, err)
	require.Equal(t, store.MembershipStatusEliminated, m.Status)
	require.NotNil(t, m.EliminatedWeek)
	require.Equal(t, 1, *m.EliminatedWeek)
	assertInvariants(t, env.mem, f.poolOID)
}

func TestAdvanceWeek_VotedOutPickCompletesPool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4"}, "alice")

	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["alice"], "c4")

	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.True(t, result.PoolCompleted)
	// Completion freezes the week.
	require.Equal(t, 1, result.NewCurrentWeek)
	require.Len(t, result.Eliminations, 1)
	require.Equal(t, store.EliminationReasonContestant, result.Eliminations[0].Reason)
	require.Len(t, result.Winners, 1)
	require.Equal(t, f.ownerID.Hex(), result.Winners[0].UserID)

	pool, err := env.mem.Pools().FindByID(ctx, f.poolOID)
	require.NoError(t, err)
	require.Equal(t, store.PoolStatusCompleted, pool.Status)
	require.NotNil(t, pool.CompletedWeek)
	require.Equal(t, 1, *pool.CompletedWeek)
	require.Equal(t, []primitive.ObjectID{f.ownerID}, pool.Winners)

	winner, err := env.mem.Memberships().Find(ctx, f.poolOID, f.ownerID)
	require.NoError(t, err)
	require.Equal(t, store.MembershipStatusWinner, winner.Status)
	require.NotNil(t, winner.FinalRank)
	require.Equal(t, 1, *winner.FinalRank)
	assertInvariants(t, env.mem, f.poolOID)

	// A completed pool refuses further advances.
	_, err = env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	serr := requireServiceError(t, err, "INVALID_ARGUMENT")
	require.Equal(t, "Pool already completed", serr.Message)
}

func TestAdvanceWeek_TieClosesPoolWithCoWinners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2"}, map[int]string{1: "c2"}, "alice")

	// Owner's only remaining option for week 2 is already used; alice's pick
	// is voted out. Both fall in the same week and share the win.
	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["alice"], "c2")

	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.True(t, result.PoolCompleted)
	require.Equal(t, 1, result.NewCurrentWeek)
	require.Len(t, result.Winners, 2)
	// Co-winners are not reported as eliminations.
	require.Empty(t, result.Eliminations)

	for _, id := range []primitive.ObjectID{f.ownerID, f.members["alice"]} {
		m, err := env.mem.Memberships().Find(ctx, f.poolOID, id)
		require.NoError(t, err)
		require.Equal(t, store.MembershipStatusWinner, m.Status)
		require.Nil(t, m.EliminationReason)
	}
	pool, err := env.mem.Pools().FindByID(ctx, f.poolOID)
	require.NoError(t, err)
	require.Len(t, pool.Winners, 2)
	assertInvariants(t, env.mem, f.poolOID)
}

func TestAdvanceWeek_NoOptionsLeft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4", 2: "c3"}, "alice", "bert")

	// Week 1: everyone survives.
	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["alice"], "c2")
	f.pick(t, env, f.members["bert"], "c3")
	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.Equal(t, 2, result.NewCurrentWeek)
	require.Empty(t, result.Eliminations)

	// Week 2: after c3's boot only c1 and c2 remain for week 3. Owner and
	// alice will have used both; bert still has one left.
	f.pick(t, env, f.ownerID, "c2")
	f.pick(t, env, f.members["alice"], "c1")
	f.pick(t, env, f.members["bert"], "c1")

	result, err = env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.True(t, result.PoolCompleted)
	require.Equal(t, 2, result.NewCurrentWeek)
	require.Len(t, result.Winners, 1)
	require.Equal(t, f.members["bert"].Hex(), result.Winners[0].UserID)
	require.Len(t, result.Eliminations, 2)
	for _, e := range result.Eliminations {
		require.Equal(t, store.EliminationReasonNoOptions, e.Reason)
	}
	// Sorted by display name.
	require.Equal(t, "alice", result.Eliminations[0].DisplayName)
	require.Equal(t, "Owner", result.Eliminations[1].DisplayName)
	assertInvariants(t, env.mem, f.poolOID)
}

func TestAdvanceWeek_SoloPoolNeverCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2"}, map[int]string{1: "c2"})

	// A pool that was never competitive cannot be won, even when its only
	// member goes out.
	f.pick(t, env, f.ownerID, "c2")
	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.False(t, result.PoolCompleted)
	require.Empty(t, result.Winners)
	require.Equal(t, 2, result.NewCurrentWeek)
	require.Len(t, result.Eliminations, 1)

	pool, err := env.mem.Pools().FindByID(ctx, f.poolOID)
	require.NoError(t, err)
	require.Equal(t, store.PoolStatusOpen, pool.Status)
	require.False(t, pool.IsCompetitive)
	assertInvariants(t, env.mem, f.poolOID)
}

// stalePoolStore wires a Store whose week bump always loses the race.
type stalePoolStore struct {
	store.Store
}

type stalePools struct {
	store.PoolStore
}

func (s *stalePoolStore) Pools() store.PoolStore {
	return &stalePools{s.Store.Pools()}
}

func (*stalePools) IncrementWeek(context.Context, primitive.ObjectID, int) (*store.Pool, error) {
	return nil, store.ErrNotFound
}

func TestAdvanceWeek_ConcurrentAdvanceConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3"}, map[int]string{1: "c3"}, "alice")
	f.pick(t, env, f.ownerID, "c1")
	f.pick(t, env, f.members["alice"], "c2")

	stale := New(Config{
		Store:         &stalePoolStore{Store: env.mem},
		Seasons:       env.svc.seasons,
		Mailer:        env.mail,
		Tokens:        env.tokens,
		Metrics:       env.svc.metrics,
		Logger:        env.svc.log,
		PublicBaseURL: "http://localhost:8000",
		Clock:         env.clock,
	})
	_, err := stale.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	serr := requireServiceError(t, err, "CONFLICT")
	require.Equal(t, "Pool week changed, retry", serr.Message)
}

func TestAdvanceWeek_CompetitiveLatchSurvivesDropBelowTwo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := newPoolFixture(t, env, []string{"c1", "c2", "c3", "c4"}, map[int]string{1: "c4", 2: "c3"}, "alice")

	pool, err := env.mem.Pools().FindByID(ctx, f.poolOID)
	require.NoError(t, err)
	require.True(t, pool.IsCompetitive)
	require.NotNil(t, pool.CompetitiveSinceWeek)
	require.Equal(t, 1, *pool.CompetitiveSinceWeek)

	// alice misses week 1 and is out; the latch holds with one player left,
	// so this advance closes the pool.
	f.pick(t, env, f.ownerID, "c1")
	result, err := env.svc.AdvanceWeek(ctx, f.poolID, f.ownerID.Hex())
	require.NoError(t, err)
	require.True(t, result.PoolCompleted)
	require.Len(t, result.Winners, 1)
	require.Equal(t, f.ownerID.Hex(), result.Winners[0].UserID)
}
