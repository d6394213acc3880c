// Package store provides typed access to the five document collections
// backing the survivor-pool system. Cross-document consistency is the
// caller's responsibility; the store only guarantees single-document
// atomicity and the conditional updates exposed below.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when no document matches, including when a
	// conditional update's precondition fails.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when an insert or update violates a unique index.
	ErrDuplicate = errors.New("store: duplicate key")
)

// Store bundles the typed collections plus a liveness probe.
type Store interface {
	Users() UserStore
	Pools() PoolStore
	Memberships() MembershipStore
	Seasons() SeasonStore
	Picks() PickStore
	Ping(ctx context.Context) error
}

// UserStore accesses the users collection.
type UserStore interface {
	Insert(ctx context.Context, u *User) (primitive.ObjectID, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByIdentifier matches either username or email, case-exact.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	FindByResetToken(ctx context.Context, token string) (*User, error)
	// SearchActiveByUsername returns up to limit active users whose username
	// contains the query, case-insensitively.
	SearchActiveByUsername(ctx context.Context, query string, limit int) ([]*User, error)

	// IncrementFailedLogins atomically bumps the counter and returns the new value.
	IncrementFailedLogins(ctx context.Context, id primitive.ObjectID) (int, error)
	SetLockout(ctx context.Context, id primitive.ObjectID, until time.Time) error
	ClearLockout(ctx context.Context, id primitive.ObjectID) error

	// SetPasswordHash stores a new hash, clears any reset token, and stamps
	// token_invalidated_at so outstanding credentials stop working.
	SetPasswordHash(ctx context.Context, id primitive.ObjectID, hash string, invalidatedAt time.Time) error
	SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expiresAt time.Time) error
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int, error)
	MarkEmailVerified(ctx context.Context, id primitive.ObjectID) error

	SetDefaultPool(ctx context.Context, id primitive.ObjectID, poolID *primitive.ObjectID) error
	ClearDefaultPoolForPool(ctx context.Context, poolID primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// PoolStore accesses the pools collection.
type PoolStore interface {
	Insert(ctx context.Context, p *Pool) (primitive.ObjectID, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*Pool, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Pool, error)
	// IncrementWeek is the compare-and-swap guarding against double-advance:
	// it bumps current_week only when it still equals fromWeek, returning the
	// after-image, or ErrNotFound when the precondition no longer holds.
	IncrementWeek(ctx context.Context, id primitive.ObjectID, fromWeek int) (*Pool, error)
	MarkCompleted(ctx context.Context, id primitive.ObjectID, week int, at time.Time, winners []primitive.ObjectID) error
	// MarkCompetitive flips is_competitive conditionally on it being false,
	// making concurrent callers idempotent.
	MarkCompetitive(ctx context.Context, id primitive.ObjectID, sinceWeek int) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// MembershipStore accesses the pool_memberships collection.
type MembershipStore interface {
	Insert(ctx context.Context, m *Membership) error
	Find(ctx context.Context, poolID, userID primitive.ObjectID) (*Membership, error)
	ListByPool(ctx context.Context, poolID primitive.ObjectID) ([]*Membership, error)
	ListByPoolAndStatus(ctx context.Context, poolID primitive.ObjectID, status string) ([]*Membership, error)
	CountByPoolAndStatus(ctx context.Context, poolID primitive.ObjectID, status string) (int, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*Membership, error)
	ListByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status string) ([]*Membership, error)

	// UpsertInvited creates or resets the (pool, user) membership to invited,
	// clearing any prior elimination and rank fields.
	UpsertInvited(ctx context.Context, poolID, userID primitive.ObjectID, at time.Time) (*Membership, error)
	// ResolveInvite transitions invited->active (accept) or invited->declined,
	// conditional on status still being invited; ErrNotFound otherwise.
	ResolveInvite(ctx context.Context, poolID, userID primitive.ObjectID, accept bool, now time.Time) (*Membership, error)

	// EliminateActive eliminates the given users' memberships, skipping any
	// that are no longer active.
	EliminateActive(ctx context.Context, poolID primitive.ObjectID, userIDs []primitive.ObjectID, reason string, week int, at time.Time) error
	// PromoteWinners marks the given users' memberships as winners with
	// final_rank 1, regardless of their prior status (tie closure).
	PromoteWinners(ctx context.Context, poolID primitive.ObjectID, userIDs []primitive.ObjectID, week int, at time.Time) error

	SetAvailability(ctx context.Context, id primitive.ObjectID, contestants []string, score int) error
	// ZeroNonActive clears score and available_contestants on every
	// membership in the pool that is not active.
	ZeroNonActive(ctx context.Context, poolID primitive.ObjectID) error

	DeleteByPool(ctx context.Context, poolID primitive.ObjectID) error
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}

// SeasonStore accesses the seasons collection (read-only).
type SeasonStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*Season, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Season, error)
	// List returns all seasons, newest season_number first.
	List(ctx context.Context) ([]*Season, error)
}

// PickStore accesses the picks collection.
type PickStore interface {
	Insert(ctx context.Context, p *Pick) (primitive.ObjectID, error)
	FindForWeek(ctx context.Context, poolID, userID primitive.ObjectID, week int) (*Pick, error)
	FindByContestant(ctx context.Context, poolID, userID primitive.ObjectID, contestantID string) (*Pick, error)
	// UserIDsWithPickForWeek returns the users who have locked a pick for the week.
	UserIDsWithPickForWeek(ctx context.Context, poolID primitive.ObjectID, week int) (map[primitive.ObjectID]struct{}, error)
	ListForWeekByContestants(ctx context.Context, poolID primitive.ObjectID, week int, contestantIDs []string) ([]*Pick, error)
	// UsedContestantsBefore maps each user to the contestants they picked in
	// weeks strictly before the given week.
	UsedContestantsBefore(ctx context.Context, poolID primitive.ObjectID, week int) (map[primitive.ObjectID]map[string]struct{}, error)
	DeleteByPool(ctx context.Context, poolID primitive.ObjectID) error
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}
